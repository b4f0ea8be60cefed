package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"yoink/internal/httpx"
)

// SpotifyResolver turns a pasted Spotify track link into a canonical Track.
type SpotifyResolver struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	// Overridable for testing
	tokenURL string
	apiURL   string
}

// NewSpotifyResolver creates a new Spotify metadata resolver.
func NewSpotifyResolver(clientID, clientSecret string) *SpotifyResolver {
	return &SpotifyResolver{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpx.NewClient(10 * time.Second),
		tokenURL:     "https://accounts.spotify.com/api/token",
		apiURL:       "https://api.spotify.com/v1",
	}
}

var spotifyTrackPattern = regexp.MustCompile(`(?:open\.spotify\.com/(?:intl-[a-z]+/)?track/|spotify:track:)([A-Za-z0-9]+)`)

// TrackIDFromURL extracts the Spotify track ID from a pasted link.
func TrackIDFromURL(link string) (string, error) {
	m := spotifyTrackPattern.FindStringSubmatch(link)
	if m == nil {
		return "", fmt.Errorf("not a spotify track link: %s", link)
	}
	return m[1], nil
}

// Resolve fetches canonical track metadata for a Spotify track link.
func (r *SpotifyResolver) Resolve(ctx context.Context, link string) (Track, error) {
	id, err := TrackIDFromURL(link)
	if err != nil {
		return Track{}, err
	}

	token, err := r.getToken(ctx)
	if err != nil {
		return Track{}, fmt.Errorf("spotify auth failed: %w", err)
	}

	reqURL := fmt.Sprintf("%s/tracks/%s", r.apiURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Track{}, fmt.Errorf("failed to create track request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpx.DoWithRetry(r.httpClient, req, httpx.DefaultRetryConfig())
	if err != nil {
		return Track{}, fmt.Errorf("spotify track request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Track{}, fmt.Errorf("spotify track lookup returned %d: %s", resp.StatusCode, body)
	}

	var item trackItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return Track{}, fmt.Errorf("failed to decode spotify response: %w", err)
	}

	return parseTrack(item, link), nil
}

func parseTrack(item trackItem, link string) Track {
	var artists []string
	for _, a := range item.Artists {
		artists = append(artists, a.Name)
	}

	var albumArtist string
	if len(item.Album.Artists) > 0 {
		albumArtist = item.Album.Artists[0].Name
	}

	var artworkURL string
	if len(item.Album.Images) > 0 {
		artworkURL = item.Album.Images[0].URL
	}

	return Track{
		Name:        item.Name,
		Artist:      strings.Join(artists, ", "),
		Album:       item.Album.Name,
		AlbumArtist: albumArtist,
		TrackNumber: item.TrackNumber,
		TotalTracks: item.Album.TotalTracks,
		DiscNumber:  item.DiscNumber,
		ReleaseDate: item.Album.ReleaseDate,
		DurationMS:  item.DurationMs,
		ISRC:        item.ExternalIDs.ISRC,
		SpotifyURL:  link,
		ArtworkURL:  artworkURL,
	}
}

// getToken returns a valid access token, refreshing if necessary.
func (r *SpotifyResolver) getToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.tokenExpiry) {
		return r.accessToken, nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(r.clientID, r.clientSecret)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request returned %d: %s", resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	r.accessToken = tokenResp.AccessToken
	// Refresh a bit early to avoid edge-case expiry
	r.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)

	return r.accessToken, nil
}

// Spotify API response types

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type trackItem struct {
	Name        string     `json:"name"`
	Artists     []artist   `json:"artists"`
	Album       albumInfo  `json:"album"`
	TrackNumber int        `json:"track_number"`
	DiscNumber  int        `json:"disc_number"`
	DurationMs  int        `json:"duration_ms"`
	ExternalIDs externalID `json:"external_ids"`
}

type artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type albumInfo struct {
	Name        string   `json:"name"`
	Artists     []artist `json:"artists"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	Images      []image  `json:"images"`
}

type image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type externalID struct {
	ISRC string `json:"isrc"`
}
