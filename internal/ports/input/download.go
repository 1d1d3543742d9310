// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// Request describes one download session.
type Request struct {
	Today    time.Time         // First (newest) day of the window; zero means the current date
	EndDate  *time.Time        // Optional oldest day, overrides Delta
	Delta    int               // Number of available days to process
	AllDays  bool              // Process every day the catalog offers
	Dates    []time.Time       // Explicit acquisition dates, each resolved with delta 1
	Tiles    domain.TileFilter // Tiles to download, empty for all
	Previews bool              // Also download browse/JPEG previews
	Clean    bool              // Remove zero-byte files before reconciling
	XMLOnly  bool              // Only download XML sidecars
	DryRun   bool              // Compute the plan without transferring
}

// Downloader defines the primary port for download sessions.
type Downloader interface {
	// Run executes one session and returns its report.
	Run(ctx context.Context, req Request) (*domain.Report, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy     bool              // Overall health status
	Ready       bool              // Ready to accept requests
	LastRun     time.Time         // Start of the last finished session
	LastError   string            // Error of the last session, if any
	LastFetched int               // Files fetched by the last session
	Components  map[string]string // Component statuses
}
