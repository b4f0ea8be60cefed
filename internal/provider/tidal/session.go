package tidal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// expiryMargin refreshes tokens a minute early to avoid edge-case
// expiry mid-request.
const expiryMargin = 60 * time.Second

// SessionManager exchanges a long-lived refresh token for short-lived
// access tokens and caches them process-wide. When the refresh flow
// fails it falls back to a static pre-provisioned token, if configured.
// Concurrent refreshes may race; a redundant refresh is wasteful but
// harmless, so no lock is held across the network call.
type SessionManager struct {
	clientID     string
	clientSecret string
	refreshToken string
	staticToken  string
	httpClient   *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time

	now      func() time.Time
	tokenURL string
}

// NewSessionManager creates a session manager for the OAuth refresh flow.
func NewSessionManager(clientID, clientSecret, refreshToken, staticToken string, httpClient *http.Client) *SessionManager {
	return &SessionManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		staticToken:  staticToken,
		httpClient:   httpClient,
		now:          time.Now,
		tokenURL:     "https://auth.tidal.com/v1/oauth2/token",
	}
}

// HasCredentials reports whether any token path is configured. A
// manager with neither a refresh token nor a static token can never
// produce a session.
func (s *SessionManager) HasCredentials() bool {
	return s.refreshToken != "" || s.staticToken != ""
}

// Token returns a valid bearer token, refreshing if the cached one has
// expired. Returns an error when neither the refresh flow nor the
// static fallback can produce a credential; callers treat that as
// "provider unavailable" and skip it for the request.
func (s *SessionManager) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.now().Add(expiryMargin).Before(s.expires) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	if s.refreshToken != "" {
		token, expiresIn, err := s.refresh(ctx)
		if err == nil {
			s.mu.Lock()
			s.token = token
			s.expires = s.now().Add(time.Duration(expiresIn) * time.Second)
			s.mu.Unlock()
			return token, nil
		}
		if s.staticToken != "" {
			return s.staticToken, nil
		}
		return "", fmt.Errorf("token refresh failed and no static token configured: %w", err)
	}

	if s.staticToken != "" {
		return s.staticToken, nil
	}

	return "", fmt.Errorf("no credentials configured")
}

func (s *SessionManager) refresh(ctx context.Context) (string, int, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.clientID, s.clientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("token request returned %d: %s", resp.StatusCode, body)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, fmt.Errorf("empty access token in response")
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3300
	}
	return tokenResp.AccessToken, expiresIn, nil
}
