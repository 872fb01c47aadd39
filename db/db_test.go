package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/cma2819/relaying-raids/db"
	"github.com/cma2819/relaying-raids/testutil"
)

func TestUserRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	u := &db.User{
		TwitchID:     "1001",
		Login:        "Alice_TV",
		DisplayName:  "Alice",
		Email:        "alice@example.com",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Scope:        "user:read:email channel:manage:raids",
	}
	if err := db.UpsertUser(ctx, database, u); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	got, err := db.GetUser(ctx, database, "1001")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil {
		t.Fatal("GetUser returned nil for stored user")
	}
	if got.AccessToken != "access-1" || got.RefreshToken != "refresh-1" {
		t.Errorf("tokens not round-tripped: %+v", got)
	}

	// second upsert replaces tokens
	u.AccessToken = "access-2"
	if err := db.UpsertUser(ctx, database, u); err != nil {
		t.Fatalf("UpsertUser update: %v", err)
	}
	got, err = db.GetUser(ctx, database, "1001")
	if err != nil {
		t.Fatalf("GetUser after update: %v", err)
	}
	if got.AccessToken != "access-2" {
		t.Errorf("access token = %q, want access-2", got.AccessToken)
	}
}

func TestGetUserByLoginCaseInsensitive(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	u := &db.User{TwitchID: "1002", Login: "Bob_TV", AccessToken: "tok"}
	if err := db.UpsertUser(ctx, database, u); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	got, err := db.GetUserByLogin(ctx, database, "bob_tv")
	if err != nil {
		t.Fatalf("GetUserByLogin: %v", err)
	}
	if got == nil || got.TwitchID != "1002" {
		t.Errorf("got = %+v, want twitch id 1002", got)
	}
}

func TestGetUserMissing(t *testing.T) {
	database := testutil.SetupTestDB(t)
	got, err := db.GetUser(context.Background(), database, "no-such-id")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil for missing user", got)
	}
}
