package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TWITCH_SCOPES", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("HTTP_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TwitchScopes != "user:read:email channel:manage:raids" {
		t.Errorf("default scopes = %q", cfg.TwitchScopes)
	}
	if cfg.DBDsn == "" {
		t.Error("expected default DB DSN")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("default HTTP addr = %q", cfg.HTTPAddr)
	}
}

func TestValidateOAuthReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateOAuthReady(); err == nil {
		t.Error("expected error with empty twitch creds")
	}
	cfg = &Config{TwitchClientID: "id", TwitchClientSecret: "secret", TwitchRedirectURI: "http://localhost/cb"}
	if err := cfg.ValidateOAuthReady(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateAnnouncerReady(t *testing.T) {
	cfg := &Config{AnnounceChannel: "somechannel"}
	if err := cfg.ValidateAnnouncerReady(); err == nil {
		t.Error("expected error with partial announcer config")
	}
	cfg.AnnounceBotUsername = "relaybot"
	cfg.AnnounceBotToken = "oauth:abc"
	if err := cfg.ValidateAnnouncerReady(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestProduction(t *testing.T) {
	for env, want := range map[string]bool{"production": true, "prod": true, "dev": false, "": false} {
		cfg := &Config{Env: env}
		if cfg.Production() != want {
			t.Errorf("Production() with ENV=%q = %v, want %v", env, cfg.Production(), want)
		}
	}
}
