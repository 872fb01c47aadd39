package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const twitchTokenURL = "https://id.twitch.tv/oauth2/token"

// tokenExpirySlack is subtracted from a token's lifetime so a token about to
// lapse mid-request is replaced early.
const tokenExpirySlack = time.Minute

// TokenSource caches an app access token obtained via the client credentials
// grant. App tokens back the anonymous live-status checks on the spectator
// view; raids always use the participant's own user token.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // overridable for tests; defaults to the Twitch id endpoint
	HTTPClient   *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns the cached app token, fetching a replacement when it is missing
// or close to expiry.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	tok, ok := ts.cached()
	ts.mu.RUnlock()
	if ok {
		return tok, nil
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	// another caller may have refreshed while we waited on the lock
	if tok, ok := ts.cached(); ok {
		return tok, nil
	}
	if err := ts.fetch(ctx); err != nil {
		return "", err
	}
	return ts.token, nil
}

// cached returns the token when it is still comfortably valid. Callers hold
// at least a read lock.
func (ts *TokenSource) cached() (string, bool) {
	if ts.token == "" || time.Until(ts.expiresAt) <= tokenExpirySlack {
		return "", false
	}
	return ts.token, true
}

// fetch requests a fresh token. Callers hold the write lock.
func (ts *TokenSource) fetch(ctx context.Context) error {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return fmt.Errorf("app token source not configured: client id/secret missing")
	}
	endpoint := ts.TokenURL
	if endpoint == "" {
		endpoint = twitchTokenURL
	}

	form := url.Values{
		"client_id":     {ts.ClientID},
		"client_secret": {ts.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hc := ts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request app token: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("app token request rejected: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return fmt.Errorf("decode app token response: %w", err)
	}
	if grant.AccessToken == "" {
		return fmt.Errorf("app token response carried no access_token")
	}
	ts.token = grant.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	return nil
}
