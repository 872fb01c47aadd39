// Package db provides database connection helpers, schema migration, and the
// user token store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/cma2819/relaying-raids/crypto"
)

var (
	// encryptor guards the Twitch user tokens at rest
	encryptor     crypto.Encryptor
	encryptorOnce sync.Once
	encryptorErr  error
)

// initEncryptor initializes the global encryptor from ENCRYPTION_KEY.
// If ENCRYPTION_KEY is not set, encryption is disabled (encryption_version = 0).
func initEncryptor() {
	encryptorOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, Twitch tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
			return
		}

		enc, err := crypto.NewAESEncryptor(key)
		if err != nil {
			encryptorErr = fmt.Errorf("failed to initialize encryption: %w", err)
			slog.Error("encryption initialization failed", slog.Any("error", encryptorErr), slog.String("component", "db_encryption"))
			return
		}

		encryptor = enc
		slog.Info("Twitch token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	})
}

func getEncryptor() (crypto.Encryptor, error) {
	initEncryptor()
	if encryptorErr != nil {
		return nil, encryptorErr
	}
	return encryptor, nil
}

// Connect opens a Postgres connection with the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and
// indices. It is the fallback when the versioned migrations directory is not
// available (e.g. a container image built without it); RunMigrations is
// preferred.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			twitch_id TEXT PRIMARY KEY,
			login TEXT NOT NULL,
			display_name TEXT,
			email TEXT,
			profile_image_url TEXT,
			access_token TEXT,
			refresh_token TEXT,
			expires_at TIMESTAMPTZ,
			scope TEXT,
			encryption_version INTEGER DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS relay_events (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			moderator TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS relay_submissions (
			id SERIAL PRIMARY KEY,
			event_id INTEGER NOT NULL REFERENCES relay_events(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			twitch TEXT NOT NULL,
			"order" INTEGER NOT NULL,
			UNIQUE(event_id, "order")
		)`,
		`CREATE TABLE IF NOT EXISTS relay_cursors (
			event_id INTEGER PRIMARY KEY REFERENCES relay_events(id) ON DELETE CASCADE,
			current_submission_id INTEGER NOT NULL REFERENCES relay_submissions(id) ON DELETE CASCADE,
			raided_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_login ON users(lower(login))`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_event ON relay_submissions(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_twitch ON relay_submissions(twitch)`,
		`CREATE INDEX IF NOT EXISTS idx_events_moderator ON relay_events(moderator)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// User is a logged-in Twitch account with its stored OAuth tokens.
type User struct {
	TwitchID        string
	Login           string
	DisplayName     string
	Email           string
	ProfileImageURL string
	AccessToken     string
	RefreshToken    string
	ExpiresAt       time.Time
	Scope           string
}

// UpsertUser stores or updates a user row keyed by Twitch id. When encryption
// is enabled (ENCRYPTION_KEY set) the tokens are encrypted before storage;
// encryption_version=1 marks encrypted rows, version=0 plaintext.
func UpsertUser(ctx context.Context, dbx *sql.DB, u *User) error {
	enc, err := getEncryptor()
	if err != nil {
		return fmt.Errorf("get encryptor: %w", err)
	}

	encVersion := 0
	accessToStore := u.AccessToken
	refreshToStore := u.RefreshToken
	if enc != nil {
		encVersion = 1
		if accessToStore, err = crypto.EncryptString(enc, u.AccessToken); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refreshToStore, err = crypto.EncryptString(enc, u.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	q := `INSERT INTO users(twitch_id, login, display_name, email, profile_image_url, access_token, refresh_token, expires_at, scope, encryption_version, updated_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		  ON CONFLICT(twitch_id) DO UPDATE SET
		    login=EXCLUDED.login,
		    display_name=EXCLUDED.display_name,
		    email=EXCLUDED.email,
		    profile_image_url=EXCLUDED.profile_image_url,
		    access_token=EXCLUDED.access_token,
		    refresh_token=EXCLUDED.refresh_token,
		    expires_at=EXCLUDED.expires_at,
		    scope=EXCLUDED.scope,
		    encryption_version=EXCLUDED.encryption_version,
		    updated_at=NOW()`
	_, err = dbx.ExecContext(ctx, q,
		u.TwitchID, u.Login, u.DisplayName, u.Email, u.ProfileImageURL,
		accessToStore, refreshToStore, u.ExpiresAt, u.Scope, encVersion)
	return err
}

// GetUser retrieves a user row by Twitch id; returns nil if not found.
// Tokens stored with encryption_version=1 are decrypted transparently.
func GetUser(ctx context.Context, dbx *sql.DB, twitchID string) (*User, error) {
	row := dbx.QueryRowContext(ctx,
		`SELECT twitch_id, login, COALESCE(display_name,''), COALESCE(email,''), COALESCE(profile_image_url,''),
		        COALESCE(access_token,''), COALESCE(refresh_token,''), COALESCE(expires_at, to_timestamp(0)), COALESCE(scope,''),
		        COALESCE(encryption_version, 0)
		 FROM users WHERE twitch_id = $1`, twitchID)
	return scanUser(row)
}

// GetUserByLogin retrieves a user row by login name, case-insensitively.
func GetUserByLogin(ctx context.Context, dbx *sql.DB, login string) (*User, error) {
	row := dbx.QueryRowContext(ctx,
		`SELECT twitch_id, login, COALESCE(display_name,''), COALESCE(email,''), COALESCE(profile_image_url,''),
		        COALESCE(access_token,''), COALESCE(refresh_token,''), COALESCE(expires_at, to_timestamp(0)), COALESCE(scope,''),
		        COALESCE(encryption_version, 0)
		 FROM users WHERE lower(login) = lower($1)`, login)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var encVersion int
	err := row.Scan(&u.TwitchID, &u.Login, &u.DisplayName, &u.Email, &u.ProfileImageURL,
		&u.AccessToken, &u.RefreshToken, &u.ExpiresAt, &u.Scope, &encVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if encVersion == 1 {
		enc, encErr := getEncryptor()
		if encErr != nil {
			return nil, fmt.Errorf("get encryptor for decryption: %w", encErr)
		}
		if enc == nil {
			return nil, fmt.Errorf("tokens are encrypted but ENCRYPTION_KEY not configured")
		}
		if u.AccessToken, err = crypto.DecryptString(enc, u.AccessToken); err != nil {
			return nil, fmt.Errorf("decrypt access token: %w", err)
		}
		if u.RefreshToken, err = crypto.DecryptString(enc, u.RefreshToken); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return &u, nil
}

// UsersWithRefreshTokens lists users that hold a refresh token, for the
// background refresher. Tokens are decrypted on read.
func UsersWithRefreshTokens(ctx context.Context, dbx *sql.DB) ([]User, error) {
	rows, err := dbx.QueryContext(ctx,
		`SELECT twitch_id, login, COALESCE(display_name,''), COALESCE(email,''), COALESCE(profile_image_url,''),
		        COALESCE(access_token,''), COALESCE(refresh_token,''), COALESCE(expires_at, to_timestamp(0)), COALESCE(scope,''),
		        COALESCE(encryption_version, 0)
		 FROM users WHERE refresh_token IS NOT NULL AND refresh_token <> '' ORDER BY expires_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []User
	for rows.Next() {
		var u User
		var encVersion int
		if err := rows.Scan(&u.TwitchID, &u.Login, &u.DisplayName, &u.Email, &u.ProfileImageURL,
			&u.AccessToken, &u.RefreshToken, &u.ExpiresAt, &u.Scope, &encVersion); err != nil {
			return nil, err
		}
		if encVersion == 1 {
			enc, encErr := getEncryptor()
			if encErr != nil {
				return nil, encErr
			}
			if enc == nil {
				return nil, fmt.Errorf("tokens are encrypted but ENCRYPTION_KEY not configured")
			}
			if u.AccessToken, err = crypto.DecryptString(enc, u.AccessToken); err != nil {
				return nil, fmt.Errorf("decrypt access token: %w", err)
			}
			if u.RefreshToken, err = crypto.DecryptString(enc, u.RefreshToken); err != nil {
				return nil, fmt.Errorf("decrypt refresh token: %w", err)
			}
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
