// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/cma2819/relaying-raids/announce"
	"github.com/cma2819/relaying-raids/auth"
	"github.com/cma2819/relaying-raids/db"
	"github.com/cma2819/relaying-raids/relay"
	"github.com/cma2819/relaying-raids/sheetsimport"
	"github.com/cma2819/relaying-raids/twitchapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx       context.Context
	db        *sql.DB // nil in unit tests; used by readiness probe only
	store     relay.Store
	svc       *relay.Service
	auth      *auth.Service
	helix     *twitchapi.Client
	announcer *announce.Announcer
	sheets    *sheetsimport.Client

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// Deps bundles the collaborators a Handlers instance needs.
type Deps struct {
	DB        *sql.DB
	Store     relay.Store
	Auth      *auth.Service
	Helix     *twitchapi.Client
	Announcer *announce.Announcer
	Sheets    *sheetsimport.Client
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	return &Handlers{
		ctx:        ctx,
		db:         deps.DB,
		store:      deps.Store,
		svc:        relay.NewService(deps.Store),
		auth:       deps.Auth,
		helix:      deps.Helix,
		announcer:  deps.Announcer,
		sheets:     deps.Sheets,
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// Call with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Refusing past the cap fails the OAuth flow, which beats memory exhaustion.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}

// consumeOAuthState validates and removes a state token.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return time.Now().Before(exp)
}

// requireUser resolves the session to a user or writes 401.
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) *db.User {
	u, err := h.auth.CurrentUser(r)
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	if u == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "login required",
			"loginUrl": "/auth/twitch/start",
		})
		return nil
	}
	return u
}

// requireSlugAvailable pre-checks slug uniqueness so the caller gets the
// field-level conflict error instead of relying on the database constraint.
// excludeEventID lets an event keep its own slug on update.
func (h *Handlers) requireSlugAvailable(w http.ResponseWriter, r *http.Request, slug string, excludeEventID int64) bool {
	free, err := h.store.SlugAvailable(r.Context(), slug, excludeEventID)
	if err != nil {
		writeError(w, r, err)
		return false
	}
	if !free {
		writeError(w, r, relay.SlugConflict(slug))
		return false
	}
	return true
}

// requireModerator checks that the user moderates the event, writing 403 if not.
func (h *Handlers) requireModerator(w http.ResponseWriter, r *http.Request, ev *relay.Event, u *db.User) bool {
	if ev.Moderator != u.TwitchID {
		writeError(w, r, relay.Unauthorized("only the event moderator may do this"))
		return false
	}
	return true
}
