// Package pipeline wires the full flow for one pasted link: resolve the
// canonical track, run the provider waterfall, transcode, then tag and
// deliver the finished file.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"yoink/internal/config"
	"yoink/internal/fetch"
	"yoink/internal/httpx"
	"yoink/internal/logger"
	"yoink/internal/lyrics"
	"yoink/internal/metadata"
	"yoink/internal/provider/deezer"
	"yoink/internal/provider/tidal"
	"yoink/internal/provider/youtube"
	"yoink/internal/songlink"
	"yoink/internal/tag"
	"yoink/internal/transcode"
	"yoink/internal/verify"
)

type Hooks struct {
	OnStatus  func(status, provider string)
	OnWarning func(msg string)
}

// Result describes a delivered track.
type Result struct {
	Path   string
	Track  metadata.Track
	Audio  *fetch.AudioResult
	Format string
}

// Pipeline holds the long-lived pieces shared across runs: the resolver
// budget, the transcode limiter and the provider clients.
type Pipeline struct {
	cfg      config.Config
	log      *logger.Logger
	resolver *metadata.SpotifyResolver
	orch     *fetch.Orchestrator
	trans    *transcode.Transcoder
	lyrics   *lyrics.Client
	artC     *http.Client
}

func New(cfg config.Config, log *logger.Logger) *Pipeline {
	var lossless []fetch.Source
	if cfg.HasTidal() {
		sessions := tidal.NewSessionManager(cfg.TidalClientID, cfg.TidalClientSecret, cfg.TidalRefreshToken, cfg.TidalStaticToken, httpx.NewClient(httpx.DefaultTimeout))
		lossless = append(lossless, fetch.NewTidalSource(tidal.New(sessions, log), cfg.PreferHiRes))
	}
	if cfg.HasDeezer() {
		lossless = append(lossless, fetch.NewDeezerSource(deezer.New(cfg.DeezerARL, log)))
	}

	orch := fetch.NewOrchestrator(
		lossless,
		youtube.New(log),
		songlink.New(),
		verify.NewAcoustic(cfg.AcoustIDKey, log),
		log,
	)

	limiter := transcode.NewLimiter(cfg.MaxTranscodes)

	return &Pipeline{
		cfg:      cfg,
		log:      log,
		resolver: metadata.NewSpotifyResolver(cfg.SpotifyClientID, cfg.SpotifyClientSecret),
		orch:     orch,
		trans:    transcode.New(limiter, log),
		lyrics:   lyrics.NewClient(),
		artC:     httpx.NewClient(30 * time.Second),
	}
}

// Run processes one link end to end.
func (p *Pipeline) Run(ctx context.Context, link string, hooks Hooks) (*Result, error) {
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		p.log.Warn("%s", msg)
		if hooks.OnWarning != nil {
			hooks.OnWarning(msg)
		}
	}

	track, err := p.resolver.Resolve(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve track: %w", err)
	}
	p.log.Info("Resolved: %s - %s", track.Artist, track.Name)

	p.orch.OnStatus = hooks.OnStatus
	audio, err := p.orch.Fetch(ctx, track, link)
	if err != nil {
		return nil, err
	}
	p.log.Info("Fetched %d bytes from %s (%s)", len(audio.Data), audio.Source, audio.Format)

	artwork := p.fetchArtwork(ctx, track.ArtworkURL)

	data, ext, err := p.trans.Convert(ctx, audio.Data, transcode.Options{
		InputExt:       audio.Format,
		OutputFormat:   p.cfg.AudioFormat,
		ArtworkJPEG:    artwork,
		Track:          track,
		Timeout:        time.Duration(p.cfg.TranscodeTimeout) * time.Second,
		MaxOutputBytes: int64(p.cfg.MaxOutputSizeMB) * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("transcode failed: %w", err)
	}

	path, err := p.deliver(track, data, ext)
	if err != nil {
		return nil, err
	}

	if err := tag.WriteTags(path, track); err != nil {
		warn("tagging failed: %v", err)
	}
	if err := tag.WriteArtwork(path, artwork); err != nil {
		warn("artwork embedding failed: %v", err)
	}
	p.embedLyrics(ctx, path, track, warn)

	p.log.Info("Delivered %s", path)
	return &Result{Path: path, Track: track, Audio: audio, Format: ext}, nil
}

func (p *Pipeline) deliver(track metadata.Track, data []byte, ext string) (string, error) {
	dir := filepath.Join(p.cfg.OutputDir, tag.SubDirFor(track))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := fmt.Sprintf("%s - %s.%s", tag.SanitizePath(track.Artist), tag.SanitizePath(track.Name), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write output file: %w", err)
	}
	return path, nil
}

func (p *Pipeline) fetchArtwork(ctx context.Context, artURL string) []byte {
	if artURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artURL, nil)
	if err != nil {
		return nil
	}
	resp, err := httpx.Do(p.artC, req)
	if err != nil {
		p.log.Debug("artwork fetch failed: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	return data
}

func (p *Pipeline) embedLyrics(ctx context.Context, path string, track metadata.Track, warn func(string, ...any)) {
	result, err := p.lyrics.Fetch(ctx, track)
	if err != nil {
		warn("lyrics lookup failed: %v", err)
		return
	}
	text := result.Synced
	if text == "" {
		text = result.Plain
	}
	if text == "" {
		return
	}
	if err := tag.WriteLyrics(path, text); err != nil {
		warn("lyrics embedding failed: %v", err)
	}
}
