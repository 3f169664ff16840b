// File path: internal/ibmcloud/iam.go
package ibmcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenSkew refreshes the bearer two minutes before IAM expires it so a
// request never leaves with a token about to lapse.
const tokenSkew = 2 * time.Minute

var errNoAPIKey = errors.New("ibmcloud: no api key configured")

type iamClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newIAMClient(endpoint, apiKey string, httpClient *http.Client) *iamClient {
	return &iamClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Token returns a cached bearer, fetching a fresh one when missing or close
// to expiry. Callers serialize on the mutex so only one refresh runs.
func (c *iamClient) Token(ctx context.Context) (string, error) {
	if c == nil || strings.TrimSpace(c.apiKey) == "" {
		return "", errNoAPIKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expires.Add(-tokenSkew)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ibm:params:oauth:grant-type:apikey")
	form.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/identity/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ibmcloud: iam token request failed: %s", strings.TrimSpace(string(data)))
	}
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		Expiration  int64  `json:"expiration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", errors.New("ibmcloud: iam response missing access token")
	}
	c.token = payload.AccessToken
	switch {
	case payload.Expiration > 0:
		c.expires = time.Unix(payload.Expiration, 0)
	case payload.ExpiresIn > 0:
		c.expires = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	default:
		c.expires = time.Now().Add(30 * time.Minute)
	}
	return c.token, nil
}

// invalidate drops the cached token after an authorization failure so the
// next call re-authenticates.
func (c *iamClient) invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}
