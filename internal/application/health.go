package application

import (
	"context"

	"github.com/jobrunner/modisfetch/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	sync *SyncService
}

// NewHealthService creates a new health service.
func NewHealthService(sync *SyncService) *HealthService {
	return &HealthService{
		sync: sync,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(ctx context.Context) bool {
	return true // Basic health check
}

// IsReady returns true unless the last session failed as a whole.
// Individual failed files do not affect readiness.
func (s *HealthService) IsReady(ctx context.Context) bool {
	return s.sync.Status().LastError == ""
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	status := s.sync.Status()

	components := map[string]string{
		"scheduler": "ok",
		"remote":    "ok",
	}
	switch {
	case status.LastRun.IsZero():
		components["remote"] = "pending"
	case status.LastError != "":
		components["remote"] = "error"
	}

	details := input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      s.IsReady(ctx),
		LastRun:    status.LastRun,
		LastError:  status.LastError,
		Components: components,
	}
	if status.LastReport != nil {
		details.LastFetched = status.LastReport.Fetched
	}
	return details
}
