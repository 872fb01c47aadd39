// Package oauth provides background refresh scheduling for stored Twitch user
// tokens. It performs jittered checks and refreshes tokens whose expiry falls
// within a configured window, so participants don't hit a dead token at the
// moment they hand off a raid.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cma2819/relaying-raids/auth"
	"github.com/cma2819/relaying-raids/db"
)

// StartRefresher launches a goroutine that periodically scans the users table
// and refreshes tokens nearing expiry.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, database *sql.DB, svc *auth.Service, interval, window time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			refreshDueUsers(ctx, database, svc, window)
		}
	}()
}

func refreshDueUsers(ctx context.Context, database *sql.DB, svc *auth.Service, window time.Duration) {
	users, err := db.UsersWithRefreshTokens(ctx, database)
	if err != nil {
		slog.Warn("listing users for token refresh failed", slog.Any("err", err))
		return
	}
	for i := range users {
		u := &users[i]
		if time.Until(u.ExpiresAt) > window {
			// rows are ordered by expiry, nothing further is due
			return
		}
		// Small pre-refresh jitter to avoid stampedes when many pods see the same expiry.
		//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
		pre := time.Duration(rand.Int63n(int64(2 * time.Second)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(pre):
		}
		ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := svc.Refresh(ctx2, u)
		cancel()
		if err != nil {
			slog.Warn("token refresh failed", slog.String("login", u.Login), slog.Any("err", err))
			continue
		}
		slog.Info("token refreshed", slog.String("login", u.Login))
	}
}
