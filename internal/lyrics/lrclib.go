// Package lyrics fetches synced and plain lyrics from LRCLib.
package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"yoink/internal/metadata"
)

type Result struct {
	Synced string // LRC format with timestamps, empty if unavailable
	Plain  string // plain text lyrics, empty if unavailable
}

type Client struct {
	httpClient *http.Client
	apiURL     string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://lrclib.net/api/get",
	}
}

// Fetch retrieves lyrics for the given track. A miss on the exact
// title is retried with the cleaned title (feat. tags and remaster
// suffixes stripped), since LRCLib indexes by the plain song name.
// Returns an empty Result (no error) when lyrics are not found.
func (c *Client) Fetch(ctx context.Context, track metadata.Track) (Result, error) {
	result, err := c.doFetch(ctx, track.Artist, track.Name, track.Album, track.DurationMS)
	if err != nil {
		// Retry once on network-level errors only; API errors would
		// fail identically.
		if !isTransient(err) {
			return Result{}, err
		}
		select {
		case <-ctx.Done():
			return Result{}, err
		case <-time.After(2 * time.Second):
		}
		result, err = c.doFetch(ctx, track.Artist, track.Name, track.Album, track.DurationMS)
		if err != nil {
			return Result{}, err
		}
	}
	if result.Synced != "" || result.Plain != "" {
		return result, nil
	}

	if clean := metadata.CleanTitle(track.Name); clean != track.Name {
		return c.doFetch(ctx, track.Artist, clean, track.Album, track.DurationMS)
	}
	return result, nil
}

func isTransient(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) doFetch(ctx context.Context, artist, title, album string, durationMS int) (Result, error) {
	params := url.Values{}
	params.Set("artist_name", artist)
	params.Set("track_name", title)
	params.Set("album_name", album)
	if durationMS > 0 {
		params.Set("duration", strconv.Itoa(durationMS/1000))
	}

	reqURL := fmt.Sprintf("%s?%s", c.apiURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create lrclib request: %w", err)
	}
	req.Header.Set("User-Agent", "yoink/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("lrclib request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Result{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("lrclib returned status %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Result{}, fmt.Errorf("failed to decode lrclib response: %w", err)
	}

	return Result{
		Synced: apiResp.SyncedLyrics,
		Plain:  apiResp.PlainLyrics,
	}, nil
}

type apiResponse struct {
	SyncedLyrics string `json:"syncedLyrics"`
	PlainLyrics  string `json:"plainLyrics"`
}
