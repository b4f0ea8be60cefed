// Package tidal implements the hi-res streaming provider: OAuth
// session management, catalog identity resolution, and playback
// manifest negotiation across a descending quality ladder.
package tidal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"yoink/internal/httpx"
	"yoink/internal/logger"
	"yoink/internal/metadata"
)

const (
	searchLimit = 25
	durWindowMS = 5000
	countryCode = "US"
)

// TrackInfo identifies a track on this provider.
type TrackInfo struct {
	ID         int64
	Title      string
	Artist     string
	ISRC       string
	DurationMS int
}

// Client is the provider client.
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	sessions       *SessionManager
	log            *logger.Logger

	// Overridable for testing
	apiURL string
}

// New creates a new client using the given session manager.
func New(sessions *SessionManager, log *logger.Logger) *Client {
	return &Client{
		httpClient:     httpx.NewClient(15 * time.Second),
		downloadClient: httpx.BrowserClient(),
		sessions:       sessions,
		log:            log,
		apiURL:         "https://api.tidal.com/v1",
	}
}

func (c *Client) Name() string { return "tidal" }

// Available reports whether the session manager holds any credential.
func (c *Client) Available() bool { return c.sessions.HasCredentials() }

// FindByISRC searches the catalog for an exact ISRC match.
func (c *Client) FindByISRC(ctx context.Context, isrc string) (*TrackInfo, error) {
	items, err := c.searchTracks(ctx, isrc)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if strings.EqualFold(item.ISRC, isrc) {
			return item.toTrackInfo(), nil
		}
	}
	return nil, fmt.Errorf("no exact ISRC match for %s", isrc)
}

// FindByLink resolves a provider track page URL to a track.
func (c *Client) FindByLink(ctx context.Context, link string) (*TrackInfo, error) {
	idx := strings.Index(link, "/track/")
	if idx < 0 {
		return nil, fmt.Errorf("not a track link: %s", link)
	}
	idStr := strings.TrimSpace(strings.SplitN(link[idx+len("/track/"):], "?", 2)[0])

	var id int64
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return nil, fmt.Errorf("failed to parse track id from %s: %w", link, err)
	}

	token, err := c.sessions.Token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/tracks/%d?countryCode=%s", c.apiURL, id, countryCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpx.Do(c.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("track lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("track lookup returned %d", resp.StatusCode)
	}

	var item searchItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}
	return item.toTrackInfo(), nil
}

// Search runs a free-text search and returns the first ranked result
// within the duration window whose artist matches the canonical artist.
func (c *Client) Search(ctx context.Context, track metadata.Track) (*TrackInfo, error) {
	q := metadata.SearchQuery(track)
	if q == "" {
		return nil, fmt.Errorf("empty search query")
	}

	items, err := c.searchTracks(ctx, q)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		info := item.toTrackInfo()
		if !track.DurationWithin(info.DurationMS, durWindowMS) {
			continue
		}
		if !metadata.ArtistsMatch(track.Artist, info.Artist) {
			continue
		}
		return info, nil
	}

	return nil, fmt.Errorf("no search result within duration/artist bounds for %q", q)
}

// Fetch downloads the audio bytes from a negotiated stream URL.
func (c *Client) Fetch(ctx context.Context, streamURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpx.Do(c.downloadClient, req)
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

func (c *Client) searchTracks(ctx context.Context, query string) ([]searchItem, error) {
	token, err := c.sessions.Token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/search/tracks?query=%s&limit=%d&countryCode=%s",
		c.apiURL, url.QueryEscape(query), searchLimit, countryCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpx.Do(c.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned %d", resp.StatusCode)
	}

	var result struct {
		Items []searchItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return result.Items, nil
}

// Catalog API response types

type searchItem struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ISRC     string `json:"isrc"`
	Duration int    `json:"duration"` // seconds
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

func (i searchItem) toTrackInfo() *TrackInfo {
	artist := i.Artist.Name
	if len(i.Artists) > 0 {
		var names []string
		for _, a := range i.Artists {
			names = append(names, a.Name)
		}
		artist = strings.Join(names, ", ")
	}
	return &TrackInfo{
		ID:         i.ID,
		Title:      i.Title,
		Artist:     artist,
		ISRC:       i.ISRC,
		DurationMS: i.Duration * 1000,
	}
}
