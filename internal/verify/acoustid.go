package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"time"

	"yoink/internal/httpx"
	"yoink/internal/logger"
	"yoink/internal/metadata"
)

const (
	acoustidURL   = "https://api.acoustid.org/v2/lookup"
	fpcalcTimeout = 30 * time.Second
	lookupTimeout = 15 * time.Second
	minConfidence = 0.5
)

// Result is the outcome of an acoustic verification. A zero Result
// (unverified, confidence 0) is what every failure path produces:
// acoustic verification informs, it never blocks.
type Result struct {
	Verified    bool    `json:"verified"`
	Confidence  float64 `json:"confidence"`
	MatchTitle  string  `json:"matchedTitle,omitempty"`
	MatchArtist string  `json:"matchedArtist,omitempty"`
}

// Acoustic fingerprints audio buffers and checks them against the
// AcoustID database.
type Acoustic struct {
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger

	// Overridable for testing
	apiURL    string
	runFpcalc func(ctx context.Context, path string) (fingerprint string, durationSec int, err error)
}

// NewAcoustic creates a verifier. An empty API key disables lookups;
// Verify then always reports unverified.
func NewAcoustic(apiKey string, log *logger.Logger) *Acoustic {
	return &Acoustic{
		apiKey:     apiKey,
		httpClient: httpx.NewClient(lookupTimeout),
		log:        log,
		apiURL:     acoustidURL,
		runFpcalc:  runFpcalc,
	}
}

// Verify fingerprints the audio and looks it up. Any failure along the
// way degrades to an unverified result rather than an error: a missing
// fpcalc binary or a flaky lookup must never cost us a download that
// already succeeded.
func (a *Acoustic) Verify(ctx context.Context, audio []byte, ext string, track metadata.Track) Result {
	if a.apiKey == "" {
		return Result{}
	}

	tmp, err := os.CreateTemp("", "yoink-fp-*."+ext)
	if err != nil {
		a.log.Debug("acoustic verify skipped: %v", err)
		return Result{}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		a.log.Debug("acoustic verify skipped: %v", err)
		return Result{}
	}
	tmp.Close()

	fingerprint, duration, err := a.runFpcalc(ctx, tmp.Name())
	if err != nil {
		a.log.Debug("fingerprinting failed: %v", err)
		return Result{}
	}

	match, err := a.lookup(ctx, fingerprint, duration)
	if err != nil {
		a.log.Debug("acoustid lookup failed: %v", err)
		return Result{}
	}
	if match == nil {
		return Result{}
	}

	if !recordingMatches(*match, track) {
		return Result{Confidence: match.score}
	}

	return Result{
		Verified:    match.score >= minConfidence,
		Confidence:  match.score,
		MatchTitle:  match.title,
		MatchArtist: match.artist,
	}
}

type acoustidMatch struct {
	score  float64
	title  string
	artist string
}

func (a *Acoustic) lookup(ctx context.Context, fingerprint string, durationSec int) (*acoustidMatch, error) {
	form := url.Values{}
	form.Set("client", a.apiKey)
	form.Set("meta", "recordings")
	form.Set("duration", strconv.Itoa(durationSec))
	form.Set("fingerprint", fingerprint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL,
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpx.Do(a.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("acoustid returned %d", resp.StatusCode)
	}

	var result acoustidResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse acoustid response: %w", err)
	}
	if result.Status != "ok" || len(result.Results) == 0 {
		return nil, nil
	}

	best := result.Results[0]
	for _, r := range result.Results[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	match := &acoustidMatch{score: best.Score}
	if len(best.Recordings) > 0 {
		rec := best.Recordings[0]
		match.title = rec.Title
		if len(rec.Artists) > 0 {
			match.artist = rec.Artists[0].Name
		}
	}
	return match, nil
}

// recordingMatches accepts a lookup hit when the matched recording's
// metadata overlaps the canonical track's. A hit with no recording
// metadata still counts: the fingerprint itself matched.
func recordingMatches(m acoustidMatch, track metadata.Track) bool {
	if m.title == "" {
		return true
	}
	if !metadata.TitlesOverlap(m.title, track.Name) {
		return false
	}
	if m.artist != "" && track.Artist != "" {
		return metadata.ArtistsMatch(m.artist, track.Artist)
	}
	return true
}

func runFpcalc(ctx context.Context, path string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, fpcalcTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "fpcalc", "-json", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("fpcalc failed: %w\nDetails: %s", err, stderr.String())
	}

	var out struct {
		Duration    float64 `json:"duration"`
		Fingerprint string  `json:"fingerprint"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return "", 0, fmt.Errorf("failed to parse fpcalc output: %w", err)
	}
	if out.Fingerprint == "" {
		return "", 0, fmt.Errorf("fpcalc produced no fingerprint")
	}
	return out.Fingerprint, int(out.Duration), nil
}

type acoustidResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Score      float64 `json:"score"`
		Recordings []struct {
			Title   string `json:"title"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"recordings"`
	} `json:"results"`
}
