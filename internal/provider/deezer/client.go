// Package deezer implements the lossless provider whose audio payloads
// arrive encrypted with a per-track stream cipher. Identity resolution
// uses the public catalog API; audio fetch goes through the private web
// API with an ARL cookie session, falling back to the legacy CDN URL
// scheme when the media endpoint refuses.
package deezer

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
	formatFLAC  = "FLAC"
	formatMP3   = "MP3_320"
	flacCode    = "9"
	mp3Code     = "3"
	fuzzyLimit  = 10
	durWindowMS = 5000
)

// TrackInfo identifies a track on this provider, with enough reported
// metadata for pre-fetch verification.
type TrackInfo struct {
	ID         string
	Title      string
	Artist     string
	ISRC       string
	DurationMS int
}

// Client is the provider client.
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	arl            string
	log            *logger.Logger

	// Overridable for testing
	apiURL   string
	gwURL    string
	mediaURL string
}

// New creates a new client. The ARL cookie may be empty, in which case
// audio fetch is unavailable but catalog lookups still work.
func New(arl string, log *logger.Logger) *Client {
	return &Client{
		httpClient:     httpx.NewClient(15 * time.Second),
		downloadClient: httpx.BrowserClient(),
		arl:            arl,
		log:            log,
		apiURL:         "https://api.deezer.com",
		gwURL:          "https://www.deezer.com/ajax/gw-light.php",
		mediaURL:       "https://media.deezer.com/v1/get_url",
	}
}

func (c *Client) Name() string { return "deezer" }

// Available reports whether audio fetch is configured.
func (c *Client) Available() bool { return c.arl != "" }

// FindByISRC looks up a track on the ISRC-indexed catalog endpoint.
func (c *Client) FindByISRC(ctx context.Context, isrc string) (*TrackInfo, error) {
	reqURL := fmt.Sprintf("%s/2.0/track/isrc:%s", c.apiURL, url.PathEscape(isrc))
	var item catalogTrack
	if err := c.getJSON(ctx, reqURL, &item); err != nil {
		return nil, err
	}
	if item.Error != nil || item.ID == 0 {
		return nil, fmt.Errorf("no track for ISRC %s", isrc)
	}
	return item.toTrackInfo(), nil
}

// FindByLink resolves a provider track page URL to a track.
func (c *Client) FindByLink(ctx context.Context, link string) (*TrackInfo, error) {
	idx := strings.Index(link, "/track/")
	if idx < 0 {
		return nil, fmt.Errorf("not a track link: %s", link)
	}
	id := strings.TrimSpace(strings.SplitN(link[idx+len("/track/"):], "?", 2)[0])
	if id == "" {
		return nil, fmt.Errorf("no track id in link: %s", link)
	}

	reqURL := fmt.Sprintf("%s/2.0/track/%s", c.apiURL, url.PathEscape(id))
	var item catalogTrack
	if err := c.getJSON(ctx, reqURL, &item); err != nil {
		return nil, err
	}
	if item.Error != nil || item.ID == 0 {
		return nil, fmt.Errorf("track %s not found", id)
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

	reqURL := fmt.Sprintf("%s/search?q=%s&limit=%d", c.apiURL, url.QueryEscape(q), fuzzyLimit)
	var result struct {
		Data  []catalogTrack  `json:"data"`
		Error json.RawMessage `json:"error"`
	}
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, err
	}

	for _, item := range result.Data {
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

// Fetch downloads and decrypts the audio for a resolved track.
// Returns the raw bytes, the container format ("flac" or "mp3") and
// the nominal bitrate (0 for lossless).
func (c *Client) Fetch(ctx context.Context, info *TrackInfo) ([]byte, string, int, error) {
	sess, err := c.openSession(ctx)
	if err != nil {
		return nil, "", 0, fmt.Errorf("session: %w", err)
	}

	song, err := c.songData(ctx, sess, info.ID)
	if err != nil {
		return nil, "", 0, fmt.Errorf("track data: %w", err)
	}

	format, formatCode, bitrate := formatFLAC, flacCode, 0
	if song.FilesizeFlac == "0" || song.FilesizeFlac == "" {
		format, formatCode, bitrate = formatMP3, mp3Code, 320
	}

	streamURL, err := c.streamURL(ctx, sess, song, format)
	if err != nil {
		c.log.Debug("deezer: media endpoint failed (%v), trying legacy URL", err)
		streamURL, err = legacyStreamURL(song.MD5Origin, song.MediaVersion, song.ID, formatCode)
		if err != nil {
			return nil, "", 0, fmt.Errorf("stream url: %w", err)
		}
	}

	encrypted, err := c.download(ctx, streamURL, sess.cookie)
	if err != nil {
		return nil, "", 0, fmt.Errorf("download: %w", err)
	}

	decrypted, err := decryptStream(encrypted, song.ID)
	if err != nil {
		return nil, "", 0, fmt.Errorf("decrypt: %w", err)
	}

	ext := "flac"
	if format == formatMP3 {
		ext = "mp3"
	}
	return decrypted, ext, bitrate, nil
}

// songData fetches the private per-track descriptor carrying the
// origin hash, media version and track token needed for stream URLs.
func (c *Client) songData(ctx context.Context, sess *session, trackID string) (*songInfo, error) {
	reqURL := c.gwURL + "?method=song.getData&input=3&api_version=1.0&api_token=" + url.QueryEscape(sess.apiToken)
	body := fmt.Sprintf(`{"sng_id":%q}`, trackID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", sess.cookie)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("song data returned %d", resp.StatusCode)
	}

	var envelope gwResponse[songInfo]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode song data: %w", err)
	}
	if envelope.Results.ID == "" {
		return nil, fmt.Errorf("empty song data for track %s", trackID)
	}
	return &envelope.Results, nil
}

// streamURL asks the media endpoint for a direct stream URL using the
// session's license token.
func (c *Client) streamURL(ctx context.Context, sess *session, song *songInfo, format string) (string, error) {
	if sess.licenseToken == "" || song.TrackToken == "" {
		return "", fmt.Errorf("missing license or track token")
	}

	payload := mediaRequest{
		LicenseToken: sess.licenseToken,
		TrackTokens:  []string{song.TrackToken},
		Media: []mediaSpec{{
			Type: "FULL",
			Formats: []mediaFormat{{
				Cipher: "BF_CBC_STRIPE",
				Format: format,
			}},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mediaURL, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Cookie", sess.cookie)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media endpoint returned %d", resp.StatusCode)
	}

	var mediaResp mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&mediaResp); err != nil {
		return "", fmt.Errorf("failed to decode media response: %w", err)
	}

	for _, d := range mediaResp.Data {
		for _, m := range d.Media {
			for _, s := range m.Sources {
				if s.URL != "" {
					return s.URL, nil
				}
			}
		}
	}
	return "", fmt.Errorf("no stream source in media response")
}

func (c *Client) download(ctx context.Context, streamURL, cookie string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", cookie)

	resp, err := httpx.Do(c.downloadClient, req)
	if err != nil {
		return nil, err
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

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("catalog returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Catalog and media API response types

type catalogTrack struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	ISRC     string          `json:"isrc"`
	Duration int             `json:"duration"` // seconds
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Error json.RawMessage `json:"error,omitempty"`
}

func (t catalogTrack) toTrackInfo() *TrackInfo {
	return &TrackInfo{
		ID:         fmt.Sprintf("%d", t.ID),
		Title:      t.Title,
		Artist:     t.Artist.Name,
		ISRC:       t.ISRC,
		DurationMS: t.Duration * 1000,
	}
}

type songInfo struct {
	ID           string `json:"SNG_ID"`
	MD5Origin    string `json:"MD5_ORIGIN"`
	MediaVersion string `json:"MEDIA_VERSION"`
	TrackToken   string `json:"TRACK_TOKEN"`
	FilesizeFlac string `json:"FILESIZE_FLAC"`
}

type mediaRequest struct {
	LicenseToken string      `json:"license_token"`
	TrackTokens  []string    `json:"track_tokens"`
	Media        []mediaSpec `json:"media"`
}

type mediaSpec struct {
	Type    string        `json:"type"`
	Formats []mediaFormat `json:"formats"`
}

type mediaFormat struct {
	Cipher string `json:"cipher"`
	Format string `json:"format"`
}

type mediaResponse struct {
	Data []struct {
		Media []struct {
			Sources []struct {
				URL string `json:"url"`
			} `json:"sources"`
		} `json:"media"`
	} `json:"data"`
}
