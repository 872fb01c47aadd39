// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RaidsStarted   prometheus.Counter
	RaidsSucceeded prometheus.Counter
	RaidsFailed    prometheus.Counter
	RaidsSkipped   prometheus.Counter
	CursorAdvances prometheus.Counter
	CursorRewinds  prometheus.Counter
	SheetImports   prometheus.Counter
	TokenRefreshes prometheus.Counter

	// HTTPResponses counts responses by status class (2xx, 4xx, ...).
	HTTPResponses *prometheus.CounterVec

	// Histograms (seconds)
	RaidDuration      prometheus.Observer
	LiveCheckDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RaidsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_raids_started_total", Help: "Number of raid attempts started by participants"})
		RaidsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_raids_succeeded_total", Help: "Number of raids that completed and advanced the cursor"})
		RaidsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_raids_failed_total", Help: "Number of raid attempts that failed (cursor unchanged)"})
		RaidsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_raids_skipped_total", Help: "Number of handoffs advanced without a raid"})
		CursorAdvances = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_cursor_advances_total", Help: "Number of cursor moves (participant and moderator)"})
		CursorRewinds = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_cursor_rewinds_total", Help: "Number of moderator moves backwards in order"})
		SheetImports = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_sheet_imports_total", Help: "Number of participant list imports from Google Sheets"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_token_refreshes_total", Help: "Number of Twitch token refreshes"})
		HTTPResponses = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_http_responses_total", Help: "HTTP responses by status class"}, []string{"class"})
		RaidDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_raid_duration_seconds", Help: "Raid call duration seconds (lookup + raid)", Buckets: prometheus.DefBuckets})
		LiveCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_live_check_duration_seconds", Help: "Live-status check duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// Inc increments a counter if metrics are initialized, and is safe otherwise.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
