// Package youtube implements the fallback provider: free-text video
// search scored against the canonical track, direct audio stream
// resolution via yt-dlp, and a host allow-list guarding the download.
package youtube

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"sort"
	"strings"
	"time"

	"yoink/internal/httpx"
	"yoink/internal/logger"
	"yoink/internal/metadata"
)

const (
	searchCount     = 6
	downloadTimeout = 60 * time.Second
)

// streamHostAllowlist is the fixed set of CDN domains a resolved stream
// URL may point at. Anything else is rejected outright: a malicious or
// compromised upstream response must not be able to point the
// downloader at an arbitrary host.
var streamHostAllowlist = []string{
	"googlevideo.com",
	"youtube.com",
	"ytimg.com",
}

// Candidate is one search result with its match score.
type Candidate struct {
	ID       string
	Title    string
	Uploader string
	Duration int // seconds
	Score    int
}

// Stream is a resolved direct audio stream.
type Stream struct {
	URL     string
	Ext     string
	Bitrate int // kbps, rounded
}

// Client is the fallback provider client.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger

	// Overridable for testing
	runYtdlp func(ctx context.Context, args ...string) ([]byte, error)
}

// New creates a new client.
func New(log *logger.Logger) *Client {
	return &Client{
		httpClient: httpx.NewClient(downloadTimeout),
		log:        log,
		runYtdlp:   runYtdlp,
	}
}

func (c *Client) Name() string { return "youtube" }

func runYtdlp(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w\nDetails: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Search runs a free-text search and scores each result against the
// canonical track. Returns candidates in descending score order; the
// best candidate is first, with the original result order winning ties.
func (c *Client) Search(ctx context.Context, track metadata.Track) ([]Candidate, error) {
	query := metadata.SearchQuery(track)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	out, err := c.runYtdlp(ctx,
		"-J", "--flat-playlist", "--no-warnings",
		fmt.Sprintf("ytsearch%d:%s", searchCount, query),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	entries, err := parseSearchEntries(out)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no results for %q", query)
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, Candidate{
			ID:       e.ID,
			Title:    e.Title,
			Uploader: e.Uploader,
			Duration: int(e.Duration),
			Score:    ScoreCandidate(track, e.Title, e.Uploader, int(e.Duration)),
		})
	}

	// Stable sort: ties keep the ranked search order, so the first
	// result wins when nothing scores strictly higher.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates, nil
}

// ScoreCandidate rates a search result against the canonical track.
// Exact substring title match and artist presence are the strong
// signals; duration proximity refines, with a penalty for gross
// mismatch.
func ScoreCandidate(track metadata.Track, title, uploader string, durationSec int) int {
	score := 0

	cleanTitle := strings.ToLower(metadata.CleanTitle(track.Name))
	candTitle := strings.ToLower(title)
	if cleanTitle != "" && strings.Contains(candTitle, cleanTitle) {
		score += 3
	}

	artist := strings.ToLower(track.Artist)
	if artist != "" {
		if strings.Contains(strings.ToLower(uploader), artist) {
			score += 3
		} else if strings.Contains(candTitle, artist) {
			score += 2
		}
	}

	if track.DurationMS > 0 && durationSec > 0 {
		diff := track.DurationMS/1000 - durationSec
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff <= 2:
			score += 4
		case diff <= 5:
			score += 2
		case diff > 15:
			score -= 3
		}
	}

	return score
}

// ResolveStream picks the best audio-only format of a video and
// returns its direct stream URL.
func (c *Client) ResolveStream(ctx context.Context, videoID string) (*Stream, error) {
	out, err := c.runYtdlp(ctx,
		"-J", "--no-warnings", "--skip-download",
		"https://www.youtube.com/watch?v="+url.QueryEscape(videoID),
	)
	if err != nil {
		return nil, fmt.Errorf("stream resolution failed: %w", err)
	}

	info, err := parseVideoInfo(out)
	if err != nil {
		return nil, err
	}

	best := pickAudioFormat(info.Formats)
	if best == nil {
		return nil, fmt.Errorf("no usable audio format for video %s", videoID)
	}

	return &Stream{
		URL:     best.URL,
		Ext:     best.Ext,
		Bitrate: int(best.ABR),
	}, nil
}

// pickAudioFormat prefers audio-only webm/opus streams over muxed ones,
// then higher bitrate.
func pickAudioFormat(formats []ytdlpFormat) *ytdlpFormat {
	var candidates []ytdlpFormat
	for _, f := range formats {
		if f.URL == "" || f.ACodec == "none" || f.ACodec == "" {
			continue
		}
		if f.VCodec == "none" || f.VCodec == "" {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		for _, f := range formats {
			if f.URL != "" && f.ACodec != "none" && f.ACodec != "" {
				candidates = append(candidates, f)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := formatScore(candidates[i]), formatScore(candidates[j])
		if si == sj {
			return candidates[i].ABR > candidates[j].ABR
		}
		return si > sj
	})
	return &candidates[0]
}

func formatScore(f ytdlpFormat) int {
	score := 0
	switch strings.ToLower(f.Ext) {
	case "webm":
		score += 100
	case "m4a":
		score += 90
	case "ogg", "opus":
		score += 85
	default:
		score += 60
	}
	if strings.HasPrefix(strings.ToLower(f.Protocol), "http") {
		score += 30
	}
	return score
}

// HostAllowed reports whether a stream URL points at a known CDN host.
func HostAllowed(streamURL string) bool {
	parsed, err := url.Parse(streamURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range streamHostAllowlist {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// Download fetches the stream bytes. The stream host must be on the
// allow-list; a zero-byte body is a failure, not an empty success.
func (c *Client) Download(ctx context.Context, stream *Stream) ([]byte, error) {
	if !HostAllowed(stream.URL) {
		return nil, fmt.Errorf("stream host not on allow-list: %s", stream.URL)
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stream.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpx.Do(c.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("stream download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stream returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty stream body")
	}
	return data, nil
}
