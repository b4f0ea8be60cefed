package tidal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"yoink/internal/httpx"
)

// Quality is a ranked fidelity tier.
type Quality string

const (
	QualityHiRes    Quality = "HI_RES_LOSSLESS"
	QualityLossless Quality = "LOSSLESS"
	QualityHigh     Quality = "HIGH"
)

// Manifest describes one negotiated stream.
type Manifest struct {
	StreamURL string
	Quality   Quality // tier actually granted, which may differ from requested
}

// ladder returns the descending quality order to attempt.
func ladder(preferHiRes bool) []Quality {
	if preferHiRes {
		return []Quality{QualityHiRes, QualityLossless, QualityHigh}
	}
	return []Quality{QualityLossless, QualityHigh}
}

// Negotiate walks the quality ladder top-down and returns the first
// tier that yields a playable, unencrypted stream URL. DRM-wrapped
// tiers and malformed manifests are skipped silently; they are a
// property of the catalog, not an error. Exhausting the ladder returns
// an error so the caller abandons this provider.
func (c *Client) Negotiate(ctx context.Context, trackID int64, preferHiRes bool) (*Manifest, error) {
	for _, tier := range ladder(preferHiRes) {
		m, err := c.playbackManifest(ctx, trackID, tier)
		if err != nil {
			c.log.Debug("tidal: tier %s unusable for track %d: %v", tier, trackID, err)
			continue
		}
		return m, nil
	}
	return nil, fmt.Errorf("no playable tier for track %d", trackID)
}

func (c *Client) playbackManifest(ctx context.Context, trackID int64, tier Quality) (*Manifest, error) {
	token, err := c.sessions.Token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf(
		"%s/tracks/%d/playbackinfopostpaywall?audioquality=%s&playbackmode=STREAM&assetpresentation=FULL",
		c.apiURL, trackID, tier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpx.Do(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playback info returned %d", resp.StatusCode)
	}

	body, err := httpx.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	// An error page comes back as XML, not JSON.
	if strings.HasPrefix(strings.TrimSpace(string(body)), "<") {
		return nil, fmt.Errorf("playback info returned XML error page")
	}

	var info playbackInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode playback info: %w", err)
	}
	if info.Manifest == "" {
		return nil, fmt.Errorf("empty manifest")
	}

	manifestBytes, err := base64.StdEncoding.DecodeString(info.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	var manifest streamManifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if manifest.EncryptionType != "" && manifest.EncryptionType != "NONE" {
		return nil, fmt.Errorf("tier is DRM-encrypted (%s)", manifest.EncryptionType)
	}
	if len(manifest.URLs) == 0 || manifest.URLs[0] == "" {
		return nil, fmt.Errorf("no stream URL in manifest")
	}

	granted := Quality(info.AudioQuality)
	if granted == "" {
		granted = tier
	}

	return &Manifest{
		StreamURL: manifest.URLs[0],
		Quality:   granted,
	}, nil
}

type playbackInfo struct {
	TrackID          int64  `json:"trackId"`
	AudioQuality     string `json:"audioQuality"`
	ManifestMimeType string `json:"manifestMimeType"`
	Manifest         string `json:"manifest"`
	BitDepth         int    `json:"bitDepth"`
	SampleRate       int    `json:"sampleRate"`
}

type streamManifest struct {
	MimeType       string   `json:"mimeType"`
	Codecs         string   `json:"codecs"`
	EncryptionType string   `json:"encryptionType"`
	URLs           []string `json:"urls"`
}
