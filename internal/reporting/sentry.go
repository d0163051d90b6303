// Package reporting forwards unexpected errors and panics to Sentry.
package reporting

import (
	"context"
	"net/http"
	"time"

	"github.com/bookfinder/apiserver/config"
	"github.com/bookfinder/apiserver/internal/logging"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

// Reporter is a no-op when no DSN is configured.
type Reporter struct {
	enabled bool
}

// New initializes the Sentry client. Initialization failures disable reporting.
func New(ctx context.Context, cfg config.SentryConfig, logger logging.Logger) *Reporter {
	if cfg.DSN == "" {
		logger.Info(ctx, "SENTRY_DSN not set, error reporting disabled")
		return &Reporter{}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		AttachStacktrace: true,
	})
	if err != nil {
		logger.Error(ctx, "sentry initialization failed", "error", err)
		return &Reporter{}
	}
	return &Reporter{enabled: true}
}

// Disabled returns a Reporter that drops everything.
func Disabled() *Reporter {
	return &Reporter{}
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// Capture reports err tagged with the operation that produced it.
func (r *Reporter) Capture(ctx context.Context, operation string, err error) {
	if !r.Enabled() || err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", operation)
		scope.SetLevel(sentry.LevelError)
		hub.CaptureException(err)
	})
}

// Middleware attaches a per-request hub and reports panics before re-panicking.
func (r *Reporter) Middleware(next http.Handler) http.Handler {
	if !r.Enabled() {
		return next
	}
	return sentryhttp.New(sentryhttp.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	}).Handle(next)
}

// Flush waits up to timeout for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return sentry.Flush(timeout)
}
