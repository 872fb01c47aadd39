package oauth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/cma2819/relaying-raids/auth"
	"github.com/cma2819/relaying-raids/db"
	"github.com/cma2819/relaying-raids/testutil"
)

func newRefreshService(t *testing.T, users *auth.SQLUserStore, mock *testutil.MockTwitchServer) *auth.Service {
	t.Helper()
	return &auth.Service{
		Users: users,
		OAuth: &oauth2.Config{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			Endpoint: oauth2.Endpoint{
				AuthURL:  mock.URL + "/oauth2/authorize",
				TokenURL: mock.URL + "/oauth2/token",
			},
		},
	}
}

func TestRefreshDueUsersWithinWindow(t *testing.T) {
	database := testutil.SetupTestDB(t)
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthToken("refreshed-access", 3600)
	svc := newRefreshService(t, &auth.SQLUserStore{DB: database}, mock)

	ctx := context.Background()
	u := &db.User{
		TwitchID:     "42",
		Login:        "alice_tv",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(5 * time.Minute),
	}
	if err := db.UpsertUser(ctx, database, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	refreshDueUsers(ctx, database, svc, 15*time.Minute)

	got, err := db.GetUser(ctx, database, "42")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.AccessToken != "refreshed-access" {
		t.Errorf("access token = %q, want refreshed-access", got.AccessToken)
	}
	if got.RefreshToken != "refreshed-access-refresh" {
		t.Errorf("refresh token = %q, want refreshed-access-refresh", got.RefreshToken)
	}
	if time.Until(got.ExpiresAt) < 30*time.Minute {
		t.Errorf("expiry not pushed out, got %v", got.ExpiresAt)
	}
}

func TestRefreshDueUsersNotDue(t *testing.T) {
	database := testutil.SetupTestDB(t)
	mock := testutil.NewMockTwitchServer(t)
	tokenCalls := 0
	mock.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.WriteHeader(http.StatusInternalServerError)
	}
	svc := newRefreshService(t, &auth.SQLUserStore{DB: database}, mock)

	ctx := context.Background()
	u := &db.User{
		TwitchID:     "43",
		Login:        "bob_plays",
		AccessToken:  "still-good",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := db.UpsertUser(ctx, database, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	refreshDueUsers(ctx, database, svc, 15*time.Minute)

	if tokenCalls != 0 {
		t.Errorf("token endpoint called %d times for a token expiring in an hour", tokenCalls)
	}
	got, err := db.GetUser(ctx, database, "43")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.AccessToken != "still-good" {
		t.Errorf("access token changed to %q", got.AccessToken)
	}
}

func TestStartRefresherCancellation(t *testing.T) {
	database := testutil.SetupTestDB(t)
	mock := testutil.NewMockTwitchServer(t)
	svc := newRefreshService(t, &auth.SQLUserStore{DB: database}, mock)

	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, database, svc, time.Second, 15*time.Minute)
	cancel()

	// the refresher goroutine must exit promptly once the context is done
	time.Sleep(50 * time.Millisecond)
}
