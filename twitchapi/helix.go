// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs:
// resolving logins to user ids, starting raids on behalf of a broadcaster, and
// checking live status with an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cma2819/relaying-raids/telemetry"
)

// ErrTokenExpired is returned when Helix answers 401. Callers holding a user
// token should refresh once and retry; see auth.WithFreshToken.
var ErrTokenExpired = errors.New("twitch access token expired")

const defaultBaseURL = "https://api.twitch.tv/helix"

// User is the subset of the Helix users payload the relay needs.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Client calls Helix endpoints with a caller-supplied bearer token.
type Client struct {
	ClientID   string
	BaseURL    string // defaults to the public Helix URL; overridable for tests
	HTTPClient *http.Client
	AppTokens  *TokenSource // optional, used only for live-status checks
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

// do performs a Helix request and decodes the enclosing {"data": [...]} body
// into out when out is non-nil. A 401 maps to ErrTokenExpired.
func (c *Client) do(ctx context.Context, method, path, bearer string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, nil)
	if err != nil {
		return err
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, path, ErrTokenExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twitch %s %s failed: %s: %s", method, path, resp.Status, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUser resolves a login name to its Helix user record.
func (c *Client) GetUser(ctx context.Context, bearer, login string) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	q := url.Values{}
	q.Set("login", login)
	var body struct {
		Data []User `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", bearer, q, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("twitch user %q not found", login)
	}
	return &body.Data[0], nil
}

// GetMe returns the user record of the token owner (used after login).
func (c *Client) GetMe(ctx context.Context, bearer string) (*User, error) {
	var body struct {
		Data []User `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", bearer, nil, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("twitch token resolved to no user")
	}
	return &body.Data[0], nil
}

// StartRaid initiates a raid between two broadcaster ids. The bearer must be
// the from-broadcaster's user token with the channel:manage:raids scope.
func (c *Client) StartRaid(ctx context.Context, bearer, fromBroadcasterID, toBroadcasterID string) error {
	q := url.Values{}
	q.Set("from_broadcaster_id", fromBroadcasterID)
	q.Set("to_broadcaster_id", toBroadcasterID)
	return c.do(ctx, http.MethodPost, "/raids", bearer, q, nil)
}

// RaidByLogin resolves the target login to its id and starts the raid. The
// lookup is an unavoidable extra round trip and can fail independently of
// the raid call (e.g. unknown handle); either failure leaves no state behind.
func (c *Client) RaidByLogin(ctx context.Context, bearer, fromBroadcasterID, toLogin string) error {
	var err error
	telemetry.TimeFunc(telemetry.RaidDuration, func() {
		var target *User
		target, err = c.GetUser(ctx, bearer, toLogin)
		if err != nil {
			return
		}
		err = c.StartRaid(ctx, bearer, fromBroadcasterID, target.ID)
	})
	return err
}

// StreamLive reports whether the channel is currently broadcasting, using the
// cached app access token. Requires AppTokens to be configured.
func (c *Client) StreamLive(ctx context.Context, login string) (bool, error) {
	if c.AppTokens == nil {
		return false, fmt.Errorf("app token source not configured")
	}
	tok, err := c.AppTokens.Get(ctx)
	if err != nil {
		return false, err
	}
	q := url.Values{}
	q.Set("user_login", login)
	var body struct {
		Data []struct {
			Type string `json:"type"`
		} `json:"data"`
	}
	telemetry.TimeFunc(telemetry.LiveCheckDuration, func() {
		err = c.do(ctx, http.MethodGet, "/streams", tok, q, &body)
	})
	if err != nil {
		return false, err
	}
	return len(body.Data) > 0, nil
}
