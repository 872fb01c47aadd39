package twitchapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/cma2819/relaying-raids/testutil"
	"github.com/cma2819/relaying-raids/twitchapi"
)

func TestGetUserResolvesLogin(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUsers(map[string]string{"alice_tv": "1001"})

	client := &twitchapi.Client{ClientID: "cid", BaseURL: mock.URL}
	u, err := client.GetUser(context.Background(), "tok", "alice_tv")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.ID != "1001" || u.Login != "alice_tv" {
		t.Errorf("user = %+v", u)
	}
}

func TestGetUserUnknownLogin(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUsers(map[string]string{"alice_tv": "1001"})

	client := &twitchapi.Client{ClientID: "cid", BaseURL: mock.URL}
	if _, err := client.GetUser(context.Background(), "tok", "nobody_tv"); err == nil {
		t.Fatal("expected error for unknown login")
	}
}

func TestRaidByLoginTwoRoundTrips(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUsers(map[string]string{"bob_tv": "1002"})
	mock.MockRaids(http.StatusOK)

	client := &twitchapi.Client{ClientID: "cid", BaseURL: mock.URL}
	if err := client.RaidByLogin(context.Background(), "tok", "1001", "bob_tv"); err != nil {
		t.Fatalf("RaidByLogin: %v", err)
	}
	raids := mock.Raids()
	if len(raids) != 1 {
		t.Fatalf("raid calls = %d, want 1", len(raids))
	}
	if raids[0].From != "1001" || raids[0].To != "1002" {
		t.Errorf("raid = %+v", raids[0])
	}
	if raids[0].Bearer != "Bearer tok" {
		t.Errorf("bearer = %q", raids[0].Bearer)
	}
}

func TestRaidByLoginUnknownTargetSkipsRaid(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUsers(map[string]string{})
	mock.MockRaids(http.StatusOK)

	client := &twitchapi.Client{ClientID: "cid", BaseURL: mock.URL}
	if err := client.RaidByLogin(context.Background(), "tok", "1001", "nobody_tv"); err == nil {
		t.Fatal("expected lookup failure")
	}
	if n := len(mock.Raids()); n != 0 {
		t.Errorf("raid calls = %d after failed lookup, want 0", n)
	}
}

func TestExpiredTokenMapsToSentinel(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.Handlers["/users"] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}

	client := &twitchapi.Client{ClientID: "cid", BaseURL: mock.URL}
	_, err := client.GetUser(context.Background(), "stale", "alice_tv")
	if !errors.Is(err, twitchapi.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestStreamLiveUsesAppToken(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthToken("app-token", 3600)
	mock.MockStreams(map[string]bool{"alice_tv": true})

	client := &twitchapi.Client{
		ClientID: "cid",
		BaseURL:  mock.URL,
		AppTokens: &twitchapi.TokenSource{
			ClientID:     "cid",
			ClientSecret: "secret",
			TokenURL:     mock.URL + "/oauth2/token",
		},
	}
	live, err := client.StreamLive(context.Background(), "alice_tv")
	if err != nil {
		t.Fatalf("StreamLive: %v", err)
	}
	if !live {
		t.Error("alice_tv should be live")
	}
	live, err = client.StreamLive(context.Background(), "bob_tv")
	if err != nil {
		t.Fatalf("StreamLive: %v", err)
	}
	if live {
		t.Error("bob_tv should be offline")
	}
}

func TestTokenSourceCachesUntilExpiry(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	calls := 0
	mock.Handlers["/oauth2/token"] = func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","expires_in":3600,"token_type":"bearer"}`))
	}

	ts := &twitchapi.TokenSource{ClientID: "cid", ClientSecret: "secret", TokenURL: mock.URL + "/oauth2/token"}
	for i := 0; i < 3; i++ {
		tok, err := ts.Get(context.Background())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if tok != "app-token" {
			t.Errorf("token = %q", tok)
		}
	}
	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
}
