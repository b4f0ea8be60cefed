package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// session holds the short-lived credentials negotiated from the
// long-lived ARL cookie: a CSRF-style API token, a license token for
// the media endpoint, and the composite cookie header carrying both
// the ARL and the secondary session cookie.
type session struct {
	apiToken     string
	licenseToken string
	cookie       string
}

// openSession presents the ARL cookie to the private web API and
// combines the returned session id with it. Sessions are cheap and
// short-lived, so one is negotiated per track fetch rather than cached.
func (c *Client) openSession(ctx context.Context) (*session, error) {
	if c.arl == "" {
		return nil, fmt.Errorf("no ARL cookie configured")
	}

	reqURL := c.gwURL + "?method=deezer.getUserData&input=3&api_version=1.0&api_token="
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Cookie", "arl="+c.arl)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session negotiation returned %d", resp.StatusCode)
	}

	var userData gwResponse[userDataResult]
	if err := json.NewDecoder(resp.Body).Decode(&userData); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}

	if userData.Results.CheckForm == "" {
		return nil, fmt.Errorf("session negotiation yielded no api token (ARL may be expired)")
	}
	if userData.Results.User.ID == 0 {
		return nil, fmt.Errorf("ARL cookie not accepted")
	}

	cookie := "arl=" + c.arl
	for _, ck := range resp.Cookies() {
		if ck.Name == "sid" && ck.Value != "" {
			cookie += "; sid=" + ck.Value
			break
		}
	}

	return &session{
		apiToken:     userData.Results.CheckForm,
		licenseToken: userData.Results.User.Options.LicenseToken,
		cookie:       cookie,
	}, nil
}

// Web API response envelopes

type gwResponse[T any] struct {
	Error   json.RawMessage `json:"error"`
	Results T               `json:"results"`
}

type userDataResult struct {
	CheckForm string `json:"checkForm"`
	User      struct {
		ID      int64 `json:"USER_ID"`
		Options struct {
			LicenseToken string `json:"license_token"`
		} `json:"OPTIONS"`
	} `json:"USER"`
}
