package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

// errTransport marks faults of the remote session, as opposed to bad payloads.
var errTransport = errors.New("transport fault")

// Retry reasons reported to metrics.
const (
	reasonTransport    = "transport"
	reasonSizeMismatch = "size_mismatch"
	reasonCorrupt      = "corrupt"
	reasonLocal        = "local"
)

// TransferEngine fetches single files into the local store with verification
// and bounded retry.
type TransferEngine struct {
	remote    output.Remote
	store     output.LocalStore
	manifest  output.Manifest
	validator output.Validator
	archive   output.ArchiveIndex
	metrics   output.MetricsCollector
	policy    RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// NewTransferEngine creates a transfer engine for one session. Validator and
// archive are optional.
func NewTransferEngine(
	remote output.Remote,
	store output.LocalStore,
	manifest output.Manifest,
	validator output.Validator,
	archive output.ArchiveIndex,
	metrics output.MetricsCollector,
	policy RetryPolicy,
	logger *slog.Logger,
) *TransferEngine {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &TransferEngine{
		remote:    remote,
		store:     store,
		manifest:  manifest,
		validator: validator,
		archive:   archive,
		metrics:   metrics,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Fetch downloads name from day and returns the number of bytes written.
// The file only reaches its final name, the manifest and the archive index
// after the size check and the validator passed.
func (e *TransferEngine) Fetch(ctx context.Context, day domain.DayID, name string) (int64, error) {
	start := time.Now()
	attempts := 0
	var written int64

	op := func() error {
		attempts++
		n, err := e.attempt(ctx, day, name)
		if err == nil {
			written = n
			return nil
		}
		if discardErr := e.store.Discard(name); discardErr != nil {
			e.logger.Warn("failed to remove partial file", "file", name, "error", discardErr)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		e.metrics.IncRetries(retryReason(err))
		e.logger.Warn("transfer failed, retrying",
			"file", name,
			"day", day,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
		if errors.Is(err, errTransport) {
			ensureSession(ctx, e.remote, e.logger)
		}
	}

	if err := backoff.RetryNotify(op, e.policy.transferBackOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = e.store.Discard(name)
			return 0, ctxErr
		}
		return 0, &domain.TransferError{Name: name, Day: day, Attempts: attempts, Err: err}
	}

	if err := e.manifest.Append(name); err != nil {
		e.logger.Error("failed to append to manifest", "file", name, "error", err)
	}
	e.record(ctx, day, name, written)

	e.metrics.AddBytes(written)
	e.metrics.ObserveTransferDuration(time.Since(start))

	e.logger.Info("file downloaded",
		"file", name,
		"day", day,
		"bytes", written,
		"attempts", attempts,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return written, nil
}

// attempt runs one transfer into the partial file and commits it on success.
func (e *TransferEngine) attempt(ctx context.Context, day domain.DayID, name string) (int64, error) {
	w, err := e.store.Create(name)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("creating partial file: %w", err))
	}

	body, declared, err := e.remote.Open(ctx, day, name)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("%w: opening %s: %w", errTransport, name, err)
	}

	n, copyErr := io.Copy(w, &contextReader{ctx: ctx, r: body})
	// The stream must be closed before any further command on the session.
	closeErr := body.Close()
	writeErr := w.Close()

	switch {
	case copyErr != nil:
		return n, fmt.Errorf("%w: reading %s: %w", errTransport, name, copyErr)
	case closeErr != nil:
		return n, fmt.Errorf("%w: finishing %s: %w", errTransport, name, closeErr)
	case writeErr != nil:
		return n, fmt.Errorf("writing partial file of %s: %w", name, writeErr)
	}

	if declared < 0 {
		declared, err = e.remote.Size(ctx, day, name)
		if err != nil {
			return n, fmt.Errorf("%w: size of %s: %w", errTransport, name, err)
		}
	}
	if declared < 0 {
		e.logger.Warn("remote size unknown, accepting transfer", "file", name, "bytes", n)
	} else if declared != n {
		return n, fmt.Errorf("%w: %s declared %d bytes, received %d", domain.ErrSizeMismatch, name, declared, n)
	}

	if e.validator != nil && !isSidecarName(name) {
		if err := e.validator.Validate(ctx, e.store.PartialPath(name)); err != nil {
			return n, err
		}
	}

	if err := e.store.Commit(name); err != nil {
		return n, backoff.Permanent(fmt.Errorf("committing %s: %w", name, err))
	}
	return n, nil
}

func (e *TransferEngine) record(ctx context.Context, day domain.DayID, name string, size int64) {
	if e.archive == nil {
		return
	}
	g, err := domain.ParseGranule(name)
	if err != nil {
		return
	}
	if err := e.archive.Record(ctx, domain.NewArchivedGranule(g, day, size, e.now().UTC())); err != nil {
		e.logger.Warn("failed to record granule in archive index", "file", name, "error", err)
	}
}

func retryReason(err error) string {
	switch {
	case errors.Is(err, errTransport):
		return reasonTransport
	case errors.Is(err, domain.ErrSizeMismatch):
		return reasonSizeMismatch
	case errors.Is(err, domain.ErrIntegrity):
		return reasonCorrupt
	default:
		return reasonLocal
	}
}

// contextReader stops a copy once the context is done. Not every transport
// honours the context after the stream was opened.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
