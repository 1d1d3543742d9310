package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/input"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

// Catalog operation names used in logs, errors and metrics.
const (
	opConnect   = "connect"
	opListDays  = "list_days"
	opListFiles = "list_files"
)

// ManifestOpener creates the manifest of a new session.
type ManifestOpener func() (output.Manifest, error)

// DownloadService runs download sessions against one remote archive.
type DownloadService struct {
	remote    output.Remote
	store     output.LocalStore
	manifests ManifestOpener
	validator output.Validator
	archive   output.ArchiveIndex
	metrics   output.MetricsCollector
	policy    RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// NewDownloadService creates a new download service. Validator and archive are optional.
func NewDownloadService(
	remote output.Remote,
	store output.LocalStore,
	manifests ManifestOpener,
	validator output.Validator,
	archive output.ArchiveIndex,
	metrics output.MetricsCollector,
	policy RetryPolicy,
	logger *slog.Logger,
) *DownloadService {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &DownloadService{
		remote:    remote,
		store:     store,
		manifests: manifests,
		validator: validator,
		archive:   archive,
		metrics:   metrics,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one session: resolve the days, then select, reconcile and
// fetch the files of every day, newest first. Failed files are counted in the
// report and do not end the session. Configuration errors, exhausted
// connection retries and cancellation do.
func (s *DownloadService) Run(ctx context.Context, req input.Request) (*domain.Report, error) {
	started := s.now()
	report := &domain.Report{StartedAt: started, DryRun: req.DryRun}

	today := req.Today
	if today.IsZero() {
		today = started
	}
	if err := checkRequest(req, today); err != nil {
		return nil, err
	}

	err := s.run(ctx, req, today, report)

	report.Duration = s.now().Sub(started)
	s.metrics.ObserveSession(err == nil, len(report.Days), report.Duration)

	if err != nil {
		s.logger.Error("download session failed",
			"error", err,
			"days", len(report.Days),
			"fetched", report.Fetched,
		)
		return report, err
	}

	s.logger.Info("download session completed",
		"days", len(report.Days),
		"selected", report.Selected,
		"fetched", report.Fetched,
		"replaced", report.Replaced,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"conflicts", report.Conflicts,
		"bytes", report.Bytes,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (s *DownloadService) run(ctx context.Context, req input.Request, today time.Time, report *domain.Report) error {
	retrier := &sessionRetrier{remote: s.remote, policy: s.policy, metrics: s.metrics, logger: s.logger}

	if err := retrier.do(ctx, opConnect, "", s.remote.Connect); err != nil {
		return err
	}
	defer func() {
		if err := s.remote.Close(); err != nil {
			s.logger.Warn("failed to close remote session", "error", err)
		}
	}()

	if req.Clean && !req.DryRun {
		removed, err := s.store.RemoveEmpty(ctx)
		if err != nil {
			return fmt.Errorf("removing empty files: %w", err)
		}
		for _, name := range removed {
			s.logger.Info("removed empty file", "file", name)
			s.forget(ctx, name)
		}
	}

	var engine *TransferEngine
	if !req.DryRun {
		manifest, err := s.manifests()
		if err != nil {
			return fmt.Errorf("opening manifest: %w", err)
		}
		defer func() {
			if err := manifest.Close(); err != nil {
				s.logger.Warn("failed to close manifest", "error", err)
			}
		}()
		report.ManifestPath = manifest.Path()
		engine = NewTransferEngine(s.remote, s.store, manifest, s.validator, s.archive, s.metrics, s.policy, s.logger)
	}

	localFiles, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing destination: %w", err)
	}
	local := make([]string, len(localFiles))
	for i, f := range localFiles {
		local[i] = f.Name
	}

	days, err := s.resolveDays(ctx, retrier, req, today)
	if err != nil {
		return err
	}
	s.logger.Info("resolved days", "count", len(days), "today", domain.NewDayID(today))

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.processDay(ctx, retrier, engine, req, day, local, report); err != nil {
			return err
		}
		report.Days = append(report.Days, day)
	}

	return nil
}

func (s *DownloadService) resolveDays(ctx context.Context, retrier *sessionRetrier, req input.Request, today time.Time) ([]domain.DayID, error) {
	var available []domain.DayID
	err := retrier.do(ctx, opListDays, "", func(ctx context.Context) error {
		days, err := s.remote.ListDays(ctx)
		available = days
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case req.AllDays:
		return available, nil
	case len(req.Dates) > 0:
		return ResolveDates(req.Dates, available)
	default:
		return ResolveDays(today, req.EndDate, req.Delta, available)
	}
}

// processDay handles one day directory. Only fatal errors are returned.
func (s *DownloadService) processDay(
	ctx context.Context,
	retrier *sessionRetrier,
	engine *TransferEngine,
	req input.Request,
	day domain.DayID,
	local []string,
	report *domain.Report,
) error {
	var files []string
	err := retrier.do(ctx, opListFiles, day, func(ctx context.Context) error {
		names, err := s.remote.ListFiles(ctx, day)
		files = names
		return err
	})
	if err != nil {
		return err
	}

	selected := SelectFiles(files, req.Tiles, req.Previews)
	if req.XMLOnly {
		selected = SidecarsOnly(selected)
	}
	report.Selected += len(selected)

	plan := Reconcile(selected, local)
	report.Skipped += len(plan.Skipped)
	for range plan.Skipped {
		s.metrics.IncFiles("skipped")
	}
	for _, conflict := range plan.Conflicts {
		report.Conflicts++
		s.metrics.IncFiles("conflict")
		s.logger.Error("skipping file with several local versions",
			"day", day,
			"file", conflict.Remote,
			"local", conflict.Local,
		)
	}

	s.logger.Debug("day planned",
		"day", day,
		"listed", len(files),
		"selected", len(selected),
		"fetch", len(plan.Fetch),
		"skipped", len(plan.Skipped),
		"conflicts", len(plan.Conflicts),
	)

	for _, f := range plan.Fetch {
		if err := ctx.Err(); err != nil {
			return err
		}

		if req.DryRun {
			s.logger.Info("would download", "day", day, "file", f.Name, "replaces", f.Replaces)
			continue
		}

		n, err := engine.Fetch(ctx, day, f.Name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			report.Failed++
			s.metrics.IncFiles("failed")
			s.logger.Error("giving up on file", "day", day, "file", f.Name, "error", err)
			continue
		}

		report.Fetched++
		report.Bytes += n
		s.metrics.IncFiles("fetched")

		if f.Replaces != "" {
			s.replace(ctx, f, report)
		}
	}

	return nil
}

// replace removes the local file superseded by a verified download.
func (s *DownloadService) replace(ctx context.Context, f PlannedFetch, report *domain.Report) {
	if err := s.store.Remove(f.Replaces); err != nil {
		s.logger.Warn("failed to remove superseded file", "file", f.Replaces, "replaced_by", f.Name, "error", err)
		return
	}
	s.forget(ctx, f.Replaces)
	report.Replaced++
	s.metrics.IncFiles("replaced")
	s.logger.Info("replaced older version", "file", f.Replaces, "replaced_by", f.Name)
}

func (s *DownloadService) forget(ctx context.Context, name string) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Remove(ctx, name); err != nil {
		s.logger.Warn("failed to remove granule from archive index", "file", name, "error", err)
	}
}

// checkRequest rejects windows that cannot be resolved before any network
// traffic happens.
func checkRequest(req input.Request, today time.Time) error {
	if req.AllDays || len(req.Dates) > 0 {
		return nil
	}
	if req.EndDate != nil {
		if domain.DaysBetween(*req.EndDate, today) < 0 {
			return fmt.Errorf("%w: %s is after %s", domain.ErrEndAfterToday,
				req.EndDate.Format(domain.DateLayout), today.Format(domain.DateLayout))
		}
		return nil
	}
	if req.Delta < 1 {
		return fmt.Errorf("%w: must be at least 1, got %d", domain.ErrInvalidDelta, req.Delta)
	}
	return nil
}
