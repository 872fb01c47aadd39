package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer mocks the Helix endpoints the relay talks to. Point a
// twitchapi.Client's BaseURL (and a TokenSource's TokenURL plus /oauth2/token)
// at m.URL.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	raids []RaidCall
}

// RaidCall records one POST /raids request.
type RaidCall struct {
	From   string
	To     string
	Bearer string
}

// NewMockTwitchServer creates a new mock Twitch API server.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUsers serves GET /users, resolving login query params against the given
// login->id table. Requests without a login return the first entry, mimicking
// the token-owner lookup.
func (m *MockTwitchServer) MockUsers(users map[string]string) {
	m.Handlers["/users"] = func(w http.ResponseWriter, r *http.Request) {
		login := r.URL.Query().Get("login")
		data := make([]map[string]string, 0, 1)
		if login == "" {
			for l, id := range users {
				data = append(data, map[string]string{"id": id, "login": l, "display_name": l})
				break
			}
		} else if id, ok := users[login]; ok {
			data = append(data, map[string]string{"id": id, "login": login, "display_name": login})
		}
		writeMockJSON(w, map[string]any{"data": data})
	}
}

// MockRaids serves POST /raids with the given status and records each call.
func (m *MockTwitchServer) MockRaids(status int) {
	m.Handlers["/raids"] = func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.raids = append(m.raids, RaidCall{
			From:   r.URL.Query().Get("from_broadcaster_id"),
			To:     r.URL.Query().Get("to_broadcaster_id"),
			Bearer: r.Header.Get("Authorization"),
		})
		m.mu.Unlock()
		w.WriteHeader(status)
		if status >= 200 && status <= 299 {
			writeMockJSON(w, map[string]any{"data": []any{}})
		}
	}
}

// Raids returns a copy of the recorded raid calls.
func (m *MockTwitchServer) Raids() []RaidCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RaidCall, len(m.raids))
	copy(out, m.raids)
	return out
}

// MockStreams serves GET /streams; live logins get a stream entry back.
func (m *MockTwitchServer) MockStreams(live map[string]bool) {
	m.Handlers["/streams"] = func(w http.ResponseWriter, r *http.Request) {
		login := r.URL.Query().Get("user_login")
		data := make([]map[string]any, 0, 1)
		if live[login] {
			data = append(data, map[string]any{"type": "live", "user_login": login})
		}
		writeMockJSON(w, map[string]any{"data": data})
	}
}

// MockOAuthToken serves POST /oauth2/token for both app tokens and refresh
// grants.
func (m *MockTwitchServer) MockOAuthToken(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		writeMockJSON(w, map[string]any{
			"access_token":  accessToken,
			"refresh_token": accessToken + "-refresh",
			"expires_in":    expiresIn,
			"token_type":    "bearer",
		})
	}
}

func writeMockJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
}
