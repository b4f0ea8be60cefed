package fetch

import (
	"context"

	"yoink/internal/metadata"
	"yoink/internal/provider/deezer"
	"yoink/internal/provider/tidal"
	"yoink/internal/provider/youtube"
)

// Candidate is a provider-agnostic view of one matched track, carrying
// just enough to run the identity check before committing to a
// download. ref holds the provider's own handle.
type Candidate struct {
	Title      string
	Artist     string
	ISRC       string
	DurationMS int

	ref any
}

// Download is the raw audio a source produced.
type Download struct {
	Data    []byte
	Format  string
	Bitrate int
}

// Source is one rung of the lossless waterfall.
type Source interface {
	Name() string
	Available() bool
	FindByISRC(ctx context.Context, isrc string) (*Candidate, error)
	FindByLink(ctx context.Context, link string) (*Candidate, error)
	Search(ctx context.Context, track metadata.Track) (*Candidate, error)
	Fetch(ctx context.Context, c *Candidate) (*Download, error)
}

// hiResClient is the slice of the hi-res provider client the adapter
// consumes.
type hiResClient interface {
	Name() string
	Available() bool
	FindByISRC(ctx context.Context, isrc string) (*tidal.TrackInfo, error)
	FindByLink(ctx context.Context, link string) (*tidal.TrackInfo, error)
	Search(ctx context.Context, track metadata.Track) (*tidal.TrackInfo, error)
	Negotiate(ctx context.Context, trackID int64, preferHiRes bool) (*tidal.Manifest, error)
	Fetch(ctx context.Context, streamURL string) ([]byte, error)
}

// tidalSource adapts the hi-res client to the waterfall interface.
type tidalSource struct {
	client      hiResClient
	preferHiRes bool
}

func NewTidalSource(client *tidal.Client, preferHiRes bool) Source {
	return &tidalSource{client: client, preferHiRes: preferHiRes}
}

func (s *tidalSource) Name() string    { return s.client.Name() }
func (s *tidalSource) Available() bool { return s.client.Available() }

func (s *tidalSource) FindByISRC(ctx context.Context, isrc string) (*Candidate, error) {
	info, err := s.client.FindByISRC(ctx, isrc)
	if err != nil {
		return nil, err
	}
	return tidalCandidate(info), nil
}

func (s *tidalSource) FindByLink(ctx context.Context, link string) (*Candidate, error) {
	info, err := s.client.FindByLink(ctx, link)
	if err != nil {
		return nil, err
	}
	return tidalCandidate(info), nil
}

func (s *tidalSource) Search(ctx context.Context, track metadata.Track) (*Candidate, error) {
	info, err := s.client.Search(ctx, track)
	if err != nil {
		return nil, err
	}
	return tidalCandidate(info), nil
}

func (s *tidalSource) Fetch(ctx context.Context, c *Candidate) (*Download, error) {
	info := c.ref.(*tidal.TrackInfo)
	manifest, err := s.client.Negotiate(ctx, info.ID, s.preferHiRes)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Fetch(ctx, manifest.StreamURL)
	if err != nil {
		return nil, err
	}
	// Lossless bitrate is not meaningful; zero signals that to consumers.
	return &Download{Data: data, Format: "flac", Bitrate: 0}, nil
}

func tidalCandidate(info *tidal.TrackInfo) *Candidate {
	return &Candidate{
		Title:      info.Title,
		Artist:     info.Artist,
		ISRC:       info.ISRC,
		DurationMS: info.DurationMS,
		ref:        info,
	}
}

// deezerSource adapts the stripe-encrypted client.
type deezerSource struct {
	client *deezer.Client
}

func NewDeezerSource(client *deezer.Client) Source {
	return &deezerSource{client: client}
}

func (s *deezerSource) Name() string    { return s.client.Name() }
func (s *deezerSource) Available() bool { return s.client.Available() }

func (s *deezerSource) FindByISRC(ctx context.Context, isrc string) (*Candidate, error) {
	info, err := s.client.FindByISRC(ctx, isrc)
	if err != nil {
		return nil, err
	}
	return deezerCandidate(info), nil
}

func (s *deezerSource) FindByLink(ctx context.Context, link string) (*Candidate, error) {
	info, err := s.client.FindByLink(ctx, link)
	if err != nil {
		return nil, err
	}
	return deezerCandidate(info), nil
}

func (s *deezerSource) Search(ctx context.Context, track metadata.Track) (*Candidate, error) {
	info, err := s.client.Search(ctx, track)
	if err != nil {
		return nil, err
	}
	return deezerCandidate(info), nil
}

func (s *deezerSource) Fetch(ctx context.Context, c *Candidate) (*Download, error) {
	info := c.ref.(*deezer.TrackInfo)
	data, format, bitrate, err := s.client.Fetch(ctx, info)
	if err != nil {
		return nil, err
	}
	return &Download{Data: data, Format: format, Bitrate: bitrate}, nil
}

func deezerCandidate(info *deezer.TrackInfo) *Candidate {
	return &Candidate{
		Title:      info.Title,
		Artist:     info.Artist,
		ISRC:       info.ISRC,
		DurationMS: info.DurationMS,
		ref:        info,
	}
}

// FallbackSource is the video-platform rung tried after every lossless
// source fails. It does not implement Source: it has no ISRC index and
// its identity signal is the candidate score, not metadata equality.
type FallbackSource interface {
	Name() string
	Search(ctx context.Context, track metadata.Track) ([]youtube.Candidate, error)
	ResolveStream(ctx context.Context, videoID string) (*youtube.Stream, error)
	Download(ctx context.Context, stream *youtube.Stream) ([]byte, error)
}
