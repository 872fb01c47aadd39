package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

// HandleTwitchOAuthStart initiates the Twitch login flow by redirecting to
// the consent page with a fresh CSRF state.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, h.auth.LoginURL(st), http.StatusFound)
}

// HandleTwitchOAuthCallback redeems the authorization code, stores the user,
// and opens a session.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	u, err := h.auth.HandleExchange(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.auth.SaveSession(w, r, u.TwitchID); err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleLogout clears the session cookie.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.auth.ClearSession(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

// HandleMe returns the logged-in user's public profile.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u := h.requireUser(w, r)
	if u == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"twitchId":        u.TwitchID,
		"login":           u.Login,
		"displayName":     u.DisplayName,
		"profileImageUrl": u.ProfileImageURL,
	})
}
