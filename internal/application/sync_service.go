// Package application contains the application services.
package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/input"
)

// DefaultTriggerCooldown is the minimum time between two API triggered syncs.
const DefaultTriggerCooldown = 30 * time.Second

// RequestFunc builds the request of a scheduled session.
type RequestFunc func() input.Request

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	Days            int       `json:"days"`
	Fetched         int       `json:"fetched"`
	Replaced        int       `json:"replaced"`
	Skipped         int       `json:"skipped"`
	Failed          int       `json:"failed"`
	Conflicts       int       `json:"conflicts"`
	Bytes           int64     `json:"bytes"`
	SyncedAt        time.Time `json:"synced_at"`
	DurationMS      int64     `json:"duration_ms"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// SyncStatus describes the last finished session.
type SyncStatus struct {
	LastRun         time.Time
	LastError       string
	LastReport      *domain.Report
	NextScheduledAt time.Time
}

// SyncService runs download sessions on a schedule, on API request and
// when the watcher reports local deletions.
type SyncService struct {
	downloader input.Downloader
	request    RequestFunc
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger

	// Lifecycle management
	stopCh   chan struct{}
	resyncCh chan struct{}
	wg       sync.WaitGroup

	// Rate limiting for API triggers
	cooldown    time.Duration
	lastAPISync time.Time
	apiMutex    sync.Mutex

	// Prevents concurrent sessions
	syncOpMutex sync.Mutex

	// Track next scheduled sync for reporting
	nextSync time.Time
	syncMu   sync.RWMutex

	// Outcome of the last session
	status   SyncStatus
	statusMu sync.RWMutex
}

// NewSyncService creates a new sync service.
func NewSyncService(downloader input.Downloader, request RequestFunc, interval time.Duration, logger *slog.Logger) *SyncService {
	return &SyncService{
		downloader: downloader,
		request:    request,
		interval:   interval,
		logger:     logger,
		stopCh:     make(chan struct{}),
		resyncCh:   make(chan struct{}, 1),
		cooldown:   DefaultTriggerCooldown,
		// Initialize to past time to allow immediate first API call
		lastAPISync: time.Now().Add(-DefaultTriggerCooldown - time.Second),
	}
}

// SetRunOnStart makes the scheduler run a session as soon as it starts.
func (s *SyncService) SetRunOnStart(v bool) {
	s.runOnStart = v
}

// Start begins the periodic sync scheduler.
func (s *SyncService) Start(ctx context.Context) {
	s.logger.Info("starting sync service", "interval", s.interval, "run_on_start", s.runOnStart)

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the main sync loop.
func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextSync(time.Now().Add(s.interval))

	if s.runOnStart {
		s.doSync(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled sync triggered")
			s.doSync(ctx)
			s.setNextSync(time.Now().Add(s.interval))
		case <-s.resyncCh:
			s.logger.Info("resync requested")
			s.doSync(ctx)
		}
	}
}

// Stop gracefully stops the sync service.
func (s *SyncService) Stop() {
	s.logger.Info("stopping sync service")
	close(s.stopCh)
	s.wg.Wait()
}

// RequestResync schedules a session without waiting for it. Requests made
// while one is already pending are merged.
func (s *SyncService) RequestResync() {
	select {
	case s.resyncCh <- struct{}{}:
	default:
	}
}

// TriggerSync manually triggers a session with rate limiting.
// Returns domain.ErrRateLimited if called again within the cooldown.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.apiMutex.Lock()
	defer s.apiMutex.Unlock()

	if time.Since(s.lastAPISync) < s.cooldown {
		return SyncResult{}, domain.ErrRateLimited
	}
	s.lastAPISync = time.Now()

	report, err := s.runSession(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	return s.result(report), nil
}

// doSync performs a session without returning detailed results.
func (s *SyncService) doSync(ctx context.Context) {
	if _, err := s.runSession(ctx); err != nil {
		s.logger.Error("sync failed", "error", err)
	}
}

// runSession serialises sessions and records their outcome.
func (s *SyncService) runSession(ctx context.Context) (*domain.Report, error) {
	s.syncOpMutex.Lock()
	defer s.syncOpMutex.Unlock()

	started := time.Now()
	report, err := s.downloader.Run(ctx, s.request())

	s.statusMu.Lock()
	s.status.LastRun = started
	s.status.LastReport = report
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.statusMu.Unlock()

	return report, err
}

func (s *SyncService) result(r *domain.Report) SyncResult {
	return SyncResult{
		Days:            len(r.Days),
		Fetched:         r.Fetched,
		Replaced:        r.Replaced,
		Skipped:         r.Skipped,
		Failed:          r.Failed,
		Conflicts:       r.Conflicts,
		Bytes:           r.Bytes,
		SyncedAt:        r.StartedAt,
		DurationMS:      r.Duration.Milliseconds(),
		NextScheduledAt: s.getNextSync(),
	}
}

// Status returns the outcome of the last session.
func (s *SyncService) Status() SyncStatus {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()

	status.NextScheduledAt = s.getNextSync()
	return status
}

// setNextSync updates the next scheduled sync time.
func (s *SyncService) setNextSync(t time.Time) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.nextSync = t
}

// getNextSync returns the next scheduled sync time.
func (s *SyncService) getNextSync() time.Time {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}
