// Package songlink resolves a track link from one platform to its
// counterparts on other platforms via the song.link API. The API has a
// strict global rate limit, so all lookups go through a shared budget
// and a long TTL cache; an exhausted budget yields no result rather
// than blocking the pipeline.
package songlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"yoink/internal/httpx"
)

const (
	apiURL   = "https://api.song.link/v1-alpha.1/links"
	cacheTTL = 1 * time.Hour

	// song.link enforces roughly 10 requests per minute; stay under it.
	minCallGap  = 7 * time.Second
	callWindow  = 60 * time.Second
	callsPerWin = 8
)

// Links holds the per-platform URLs known for a source link.
type Links struct {
	Tidal   string
	Deezer  string
	YouTube string
}

// Client is a song.link API client with process-wide caching and budget.
type Client struct {
	httpClient *http.Client
	baseURL    string
	budget     *limiter

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	links   Links
	fetched time.Time
}

// New creates a new song.link client.
func New() *Client {
	return &Client{
		httpClient: httpx.NewClient(30 * time.Second),
		baseURL:    apiURL,
		budget:     newLimiter(minCallGap, callWindow, callsPerWin),
		cache:      make(map[string]cacheEntry),
	}
}

// Resolve maps a source URL to its per-platform links. A cached result
// is served for an hour. When the shared budget is exhausted, Resolve
// returns ok=false without calling out; the caller falls through to
// its next strategy.
func (c *Client) Resolve(ctx context.Context, sourceURL string) (Links, bool, error) {
	c.mu.Lock()
	if entry, found := c.cache[sourceURL]; found && time.Since(entry.fetched) < cacheTTL {
		c.mu.Unlock()
		return entry.links, true, nil
	}
	c.mu.Unlock()

	if !c.budget.Allow() {
		return Links{}, false, nil
	}

	reqURL := fmt.Sprintf("%s?url=%s", c.baseURL, url.QueryEscape(sourceURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Links{}, false, fmt.Errorf("failed to create songlink request: %w", err)
	}

	resp, err := httpx.Do(c.httpClient, req)
	if err != nil {
		return Links{}, false, fmt.Errorf("songlink request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Links{}, false, fmt.Errorf("songlink returned %d", resp.StatusCode)
	}

	var apiResp linksResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Links{}, false, fmt.Errorf("failed to decode songlink response: %w", err)
	}

	links := Links{
		Tidal:   apiResp.LinksByPlatform["tidal"].URL,
		Deezer:  apiResp.LinksByPlatform["deezer"].URL,
		YouTube: apiResp.LinksByPlatform["youtube"].URL,
	}

	c.mu.Lock()
	c.cache[sourceURL] = cacheEntry{links: links, fetched: time.Now()}
	c.mu.Unlock()

	return links, true, nil
}

type linksResponse struct {
	LinksByPlatform map[string]struct {
		URL string `json:"url"`
	} `json:"linksByPlatform"`
}
