// Package auth handles Twitch login via OAuth2 authorization code flow,
// cookie sessions, and access token freshness for API calls made on a
// user's behalf.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"

	"github.com/cma2819/relaying-raids/config"
	"github.com/cma2819/relaying-raids/db"
	"github.com/cma2819/relaying-raids/relay"
	"github.com/cma2819/relaying-raids/telemetry"
	"github.com/cma2819/relaying-raids/twitchapi"
)

const (
	sessionName  = "relay_session"
	sessionIDKey = "twitch_id"
)

// UserStore persists logged-in users and their tokens.
type UserStore interface {
	Upsert(ctx context.Context, u *db.User) error
	Get(ctx context.Context, twitchID string) (*db.User, error)
}

// SQLUserStore is the Postgres-backed UserStore.
type SQLUserStore struct{ DB *sql.DB }

func (s *SQLUserStore) Upsert(ctx context.Context, u *db.User) error {
	return db.UpsertUser(ctx, s.DB, u)
}

func (s *SQLUserStore) Get(ctx context.Context, twitchID string) (*db.User, error) {
	return db.GetUser(ctx, s.DB, twitchID)
}

// Service ties together the OAuth2 config, the user store, and the Helix
// client used to resolve the logged-in account.
type Service struct {
	Users    UserStore
	OAuth    *oauth2.Config
	Helix    *twitchapi.Client
	Sessions *sessions.CookieStore
}

// NewService builds the auth service from config. The session secret must be
// set; OAuth credentials are checked separately via cfg.ValidateOAuthReady.
func NewService(cfg *config.Config, users UserStore, helix *twitchapi.Client) (*Service, error) {
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET must be set")
	}
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	}
	return &Service{
		Users: users,
		OAuth: &oauth2.Config{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			RedirectURL:  cfg.TwitchRedirectURI,
			Scopes:       strings.Fields(cfg.TwitchScopes),
			Endpoint:     twitch.Endpoint,
		},
		Helix:    helix,
		Sessions: store,
	}, nil
}

// LoginURL returns the Twitch consent page URL for the given CSRF state.
func (s *Service) LoginURL(state string) string {
	return s.OAuth.AuthCodeURL(state)
}

// HandleExchange redeems an authorization code, resolves the token owner via
// Helix, and upserts the user row with the fresh tokens.
func (s *Service) HandleExchange(ctx context.Context, code string) (*db.User, error) {
	tok, err := s.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	me, err := s.Helix.GetMe(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("resolve token owner: %w", err)
	}
	u := &db.User{
		TwitchID:        me.ID,
		Login:           me.Login,
		DisplayName:     me.DisplayName,
		Email:           me.Email,
		ProfileImageURL: me.ProfileImageURL,
		AccessToken:     tok.AccessToken,
		RefreshToken:    tok.RefreshToken,
		ExpiresAt:       tok.Expiry,
		Scope:           strings.Join(s.OAuth.Scopes, " "),
	}
	if err := s.Users.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}
	return u, nil
}

// SaveSession writes the logged-in user id into the session cookie.
func (s *Service) SaveSession(w http.ResponseWriter, r *http.Request, twitchID string) error {
	sess, _ := s.Sessions.Get(r, sessionName)
	sess.Values[sessionIDKey] = twitchID
	return sess.Save(r, w)
}

// ClearSession expires the session cookie.
func (s *Service) ClearSession(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.Sessions.Get(r, sessionName)
	sess.Options.MaxAge = -1
	delete(sess.Values, sessionIDKey)
	return sess.Save(r, w)
}

// CurrentUser resolves the session cookie to a stored user. Returns nil
// without error when the request carries no valid session.
func (s *Service) CurrentUser(r *http.Request) (*db.User, error) {
	sess, err := s.Sessions.Get(r, sessionName)
	if err != nil {
		// a tampered or stale cookie is treated as logged out
		return nil, nil
	}
	id, ok := sess.Values[sessionIDKey].(string)
	if !ok || id == "" {
		return nil, nil
	}
	return s.Users.Get(r.Context(), id)
}

// Refresh redeems the user's refresh token for a new access token and
// persists the result. The passed user is updated in place.
func (s *Service) Refresh(ctx context.Context, u *db.User) error {
	if u.RefreshToken == "" {
		return fmt.Errorf("user %s has no refresh token", u.Login)
	}
	src := s.OAuth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: u.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute), // force a refresh round trip
	})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("refresh token for %s: %w", u.Login, err)
	}
	u.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		u.RefreshToken = tok.RefreshToken
	}
	u.ExpiresAt = tok.Expiry
	if err := s.Users.Upsert(ctx, u); err != nil {
		return fmt.Errorf("persist refreshed token: %w", err)
	}
	telemetry.Inc(telemetry.TokenRefreshes)
	return nil
}

// WithFreshToken runs fn with the user's access token, refreshing and
// retrying exactly once when Helix reports the token expired. A failed or
// still-rejected refresh surfaces as an auth_expired error so handlers can
// send the user back through login.
func (s *Service) WithFreshToken(ctx context.Context, u *db.User, fn func(token string) error) error {
	err := fn(u.AccessToken)
	if !errors.Is(err, twitchapi.ErrTokenExpired) {
		return err
	}
	if refreshErr := s.Refresh(ctx, u); refreshErr != nil {
		return relay.AuthExpired(refreshErr)
	}
	err = fn(u.AccessToken)
	if errors.Is(err, twitchapi.ErrTokenExpired) {
		return relay.AuthExpired(err)
	}
	return err
}
