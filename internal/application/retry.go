package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

// Default retry bounds.
const (
	DefaultMaxAttempts     = 5
	DefaultConnectAttempts = 20
)

// RetryPolicy bounds transfer and connection retries.
type RetryPolicy struct {
	MaxAttempts     int           // Attempts per file
	ConnectAttempts int           // Attempts for login and listings
	InitialInterval time.Duration // First backoff wait, zero retries immediately
	MaxInterval     time.Duration // Cap for a single backoff wait
}

// DefaultRetryPolicy returns the default retry bounds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		ConnectAttempts: DefaultConnectAttempts,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

func (p RetryPolicy) transferBackOff(ctx context.Context) backoff.BackOff {
	return p.backOff(ctx, p.MaxAttempts, DefaultMaxAttempts)
}

func (p RetryPolicy) connectBackOff(ctx context.Context) backoff.BackOff {
	return p.backOff(ctx, p.ConnectAttempts, DefaultConnectAttempts)
}

// backOff allows attempts tries in total, so attempts-1 retries.
func (p RetryPolicy) backOff(ctx context.Context, attempts, fallback int) backoff.BackOff {
	if attempts < 1 {
		attempts = fallback
	}

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.InitialInterval > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.InitialInterval
		if p.MaxInterval > 0 {
			exp.MaxInterval = p.MaxInterval
		}
		exp.MaxElapsedTime = 0
		b = exp
	}

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// sessionRetrier runs login and listing calls in the bounded connection loop.
type sessionRetrier struct {
	remote  output.Remote
	policy  RetryPolicy
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// do runs fn until it succeeds or the connection attempts are used up. Between
// attempts the session is checked and re-established if it died.
func (r *sessionRetrier) do(ctx context.Context, operation string, day domain.DayID, fn func(context.Context) error) error {
	attempts := 0
	var last error

	op := func() error {
		attempts++
		start := time.Now()
		err := fn(ctx)
		r.metrics.IncCatalogOperations(operation, err == nil)
		r.metrics.ObserveCatalogDuration(operation, time.Since(start))
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		// Rejected credentials or a malformed request will not improve on retry.
		if errors.Is(err, domain.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("catalog operation failed, retrying",
			"operation", operation,
			"day", day,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
		if operation != opConnect {
			ensureSession(ctx, r.remote, r.logger)
		}
	}

	err := backoff.RetryNotify(op, r.policy.connectBackOff(ctx), notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		return &domain.CatalogError{Operation: operation, Day: day, Err: err}
	}
	return &domain.CatalogError{
		Operation: operation,
		Day:       day,
		Err:       fmt.Errorf("%w after %d attempts: %w", domain.ErrConnectionExhausted, attempts, last),
	}
}

// ensureSession reconnects when the session no longer answers.
func ensureSession(ctx context.Context, remote output.Remote, logger *slog.Logger) {
	if err := remote.Ping(ctx); err == nil {
		return
	}
	logger.Info("remote session lost, reconnecting")
	if err := remote.Connect(ctx); err != nil {
		logger.Warn("reconnect failed", "error", err)
	}
}
