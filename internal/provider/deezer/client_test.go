package deezer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"yoink/internal/logger"
	"yoink/internal/metadata"
)

func newTestClient(arl string) *Client {
	return New(arl, logger.New(false))
}

func catalogJSON(id int64, title, artist, isrc string, durationSec int) map[string]any {
	return map[string]any{
		"id":       id,
		"title":    title,
		"isrc":     isrc,
		"duration": durationSec,
		"artist":   map[string]string{"name": artist},
	}
}

func TestFindByISRC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2.0/track/isrc:GBAYE9700084" {
			t.Errorf("path = %q, want isrc lookup", r.URL.Path)
		}
		json.NewEncoder(w).Encode(catalogJSON(3135556, "Karma Police", "Radiohead", "GBAYE9700084", 264))
	}))
	defer srv.Close()

	c := newTestClient("")
	c.apiURL = srv.URL

	info, err := c.FindByISRC(context.Background(), "GBAYE9700084")
	if err != nil {
		t.Fatalf("FindByISRC failed: %v", err)
	}
	if info.ID != "3135556" {
		t.Errorf("ID = %q, want 3135556", info.ID)
	}
	if info.Title != "Karma Police" || info.Artist != "Radiohead" {
		t.Errorf("got %q by %q", info.Title, info.Artist)
	}
	if info.DurationMS != 264000 {
		t.Errorf("DurationMS = %d, want 264000", info.DurationMS)
	}
}

func TestFindByISRCNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "DataException", "message": "no data"},
		})
	}))
	defer srv.Close()

	c := newTestClient("")
	c.apiURL = srv.URL

	if _, err := c.FindByISRC(context.Background(), "XXZZZ0000000"); err == nil {
		t.Fatal("expected error for unknown ISRC, got nil")
	}
}

func TestFindByLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2.0/track/3135556" {
			t.Errorf("path = %q, want /2.0/track/3135556", r.URL.Path)
		}
		json.NewEncoder(w).Encode(catalogJSON(3135556, "Karma Police", "Radiohead", "GBAYE9700084", 264))
	}))
	defer srv.Close()

	c := newTestClient("")
	c.apiURL = srv.URL

	tests := []struct {
		name string
		link string
	}{
		{"plain link", "https://www.deezer.com/track/3135556"},
		{"localized link", "https://www.deezer.com/en/track/3135556"},
		{"link with query", "https://www.deezer.com/track/3135556?utm_source=share"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := c.FindByLink(context.Background(), tt.link)
			if err != nil {
				t.Fatalf("FindByLink(%q) failed: %v", tt.link, err)
			}
			if info.ID != "3135556" {
				t.Errorf("ID = %q, want 3135556", info.ID)
			}
		})
	}

	if _, err := c.FindByLink(context.Background(), "https://www.deezer.com/album/999"); err == nil {
		t.Error("expected error for non-track link, got nil")
	}
}

func TestSearchFiltersCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); !strings.Contains(got, "Karma Police") {
			t.Errorf("query = %q, want title in search query", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				// Wrong artist, right duration.
				catalogJSON(1, "Karma Police", "Karaoke Heroes", "", 264),
				// Right artist, duration far outside the window.
				catalogJSON(2, "Karma Police (Live)", "Radiohead", "", 310),
				// First acceptable hit.
				catalogJSON(3, "Karma Police", "Radiohead", "GBAYE9700084", 263),
				catalogJSON(4, "Karma Police", "Radiohead", "", 264),
			},
		})
	}))
	defer srv.Close()

	c := newTestClient("")
	c.apiURL = srv.URL

	track := metadata.Track{
		Name:       "Karma Police",
		Artist:     "Radiohead",
		DurationMS: 264066,
	}
	info, err := c.Search(context.Background(), track)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if info.ID != "3" {
		t.Errorf("Search picked track %s, want first candidate passing both filters (3)", info.ID)
	}
}

func TestSearchNoAcceptableResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				catalogJSON(1, "Karma Police", "Radiohead", "", 310),
			},
		})
	}))
	defer srv.Close()

	c := newTestClient("")
	c.apiURL = srv.URL

	track := metadata.Track{Name: "Karma Police", Artist: "Radiohead", DurationMS: 264066}
	if _, err := c.Search(context.Background(), track); err == nil {
		t.Fatal("expected error when no candidate passes the filters, got nil")
	}
}

func TestOpenSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Cookie"); got != "arl=test-arl" {
			t.Errorf("Cookie = %q, want arl=test-arl", got)
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "session-id"})
		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"checkForm": "api-token-123",
				"USER": map[string]any{
					"USER_ID": 42,
					"OPTIONS": map[string]any{"license_token": "lic-token"},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient("test-arl")
	c.gwURL = srv.URL

	sess, err := c.openSession(context.Background())
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}
	if sess.apiToken != "api-token-123" {
		t.Errorf("apiToken = %q, want api-token-123", sess.apiToken)
	}
	if sess.licenseToken != "lic-token" {
		t.Errorf("licenseToken = %q, want lic-token", sess.licenseToken)
	}
	if sess.cookie != "arl=test-arl; sid=session-id" {
		t.Errorf("cookie = %q, want combined arl and sid", sess.cookie)
	}
}

func TestOpenSessionExpiredARL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An expired ARL yields an anonymous session without an api token.
		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"checkForm": "",
				"USER":      map[string]any{"USER_ID": 0},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient("stale-arl")
	c.gwURL = srv.URL

	_, err := c.openSession(context.Background())
	if err == nil {
		t.Fatal("expected error for expired ARL, got nil")
	}
	if !strings.Contains(err.Error(), "ARL") {
		t.Errorf("error = %q, want mention of the ARL cookie", err)
	}
}

func TestOpenSessionNoARL(t *testing.T) {
	c := newTestClient("")
	if _, err := c.openSession(context.Background()); err == nil {
		t.Fatal("expected error without ARL cookie, got nil")
	}
}

func TestFetchDecryptsStream(t *testing.T) {
	plain := bytes.Repeat([]byte("lossless audio bytes "), 500)
	const trackID = "3135556"
	encrypted := encryptStream(t, plain, trackID)

	streamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(encrypted)
	}))
	defer streamSrv.Close()

	mediaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mediaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode media request: %v", err)
		}
		if req.LicenseToken != "lic-token" {
			t.Errorf("license token = %q, want lic-token", req.LicenseToken)
		}
		if len(req.Media) != 1 || len(req.Media[0].Formats) != 1 || req.Media[0].Formats[0].Format != "FLAC" {
			t.Errorf("media request formats = %+v, want single FLAC", req.Media)
		}
		fmt.Fprintf(w, `{"data":[{"media":[{"sources":[{"url":%q}]}]}]}`, streamSrv.URL)
	}))
	defer mediaSrv.Close()

	gwSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("method") {
		case "deezer.getUserData":
			json.NewEncoder(w).Encode(map[string]any{
				"results": map[string]any{
					"checkForm": "api-token",
					"USER": map[string]any{
						"USER_ID": 42,
						"OPTIONS": map[string]any{"license_token": "lic-token"},
					},
				},
			})
		case "song.getData":
			json.NewEncoder(w).Encode(map[string]any{
				"results": map[string]any{
					"SNG_ID":        trackID,
					"MD5_ORIGIN":    "d41d8cd98f00b204e9800998ecf8427e",
					"MEDIA_VERSION": "1",
					"TRACK_TOKEN":   "track-token",
					"FILESIZE_FLAC": "12345678",
				},
			})
		default:
			t.Errorf("unexpected gw method %q", r.URL.Query().Get("method"))
		}
	}))
	defer gwSrv.Close()

	c := newTestClient("test-arl")
	c.gwURL = gwSrv.URL
	c.mediaURL = mediaSrv.URL

	data, format, bitrate, err := c.Fetch(context.Background(), &TrackInfo{ID: trackID})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if format != "flac" {
		t.Errorf("format = %q, want flac", format)
	}
	if bitrate != 0 {
		t.Errorf("bitrate = %d, want 0 for lossless", bitrate)
	}
	if !bytes.Equal(data, plain) {
		t.Error("decrypted payload does not match original audio")
	}
}

func TestFetchFallsBackToMP3(t *testing.T) {
	plain := bytes.Repeat([]byte("mp3 payload "), 400)
	const trackID = "999001"
	encrypted := encryptStream(t, plain, trackID)

	streamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(encrypted)
	}))
	defer streamSrv.Close()

	mediaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mediaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if got := req.Media[0].Formats[0].Format; got != "MP3_320" {
			t.Errorf("requested format = %q, want MP3_320 when no FLAC exists", got)
		}
		fmt.Fprintf(w, `{"data":[{"media":[{"sources":[{"url":%q}]}]}]}`, streamSrv.URL)
	}))
	defer mediaSrv.Close()

	gwSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("method") {
		case "deezer.getUserData":
			json.NewEncoder(w).Encode(map[string]any{
				"results": map[string]any{
					"checkForm": "api-token",
					"USER": map[string]any{
						"USER_ID": 42,
						"OPTIONS": map[string]any{"license_token": "lic-token"},
					},
				},
			})
		case "song.getData":
			json.NewEncoder(w).Encode(map[string]any{
				"results": map[string]any{
					"SNG_ID":        trackID,
					"MD5_ORIGIN":    "d41d8cd98f00b204e9800998ecf8427e",
					"MEDIA_VERSION": "1",
					"TRACK_TOKEN":   "track-token",
					"FILESIZE_FLAC": "0",
				},
			})
		}
	}))
	defer gwSrv.Close()

	c := newTestClient("test-arl")
	c.gwURL = gwSrv.URL
	c.mediaURL = mediaSrv.URL

	data, format, bitrate, err := c.Fetch(context.Background(), &TrackInfo{ID: trackID})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if format != "mp3" {
		t.Errorf("format = %q, want mp3", format)
	}
	if bitrate != 320 {
		t.Errorf("bitrate = %d, want 320", bitrate)
	}
	if !bytes.Equal(data, plain) {
		t.Error("decrypted payload does not match original audio")
	}
}
