package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

// ReindexStats contains statistics from a reindex run.
type ReindexStats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

// ArchiveService keeps the archive index in step with the destination directory.
type ArchiveService struct {
	store  output.LocalStore
	index  output.ArchiveIndex
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiveService creates a new archive service.
func NewArchiveService(store output.LocalStore, index output.ArchiveIndex, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		store:  store,
		index:  index,
		logger: logger,
		now:    time.Now,
	}
}

// Query returns indexed granules matching q.
func (s *ArchiveService) Query(ctx context.Context, q domain.ArchiveQuery) ([]domain.ArchivedGranule, error) {
	return s.index.Query(ctx, q)
}

// Reindex adds granule files missing from the index and drops entries whose
// file is gone. Existing entries keep their day and download time. Files
// that are not granules are ignored.
func (s *ArchiveService) Reindex(ctx context.Context) (ReindexStats, error) {
	var stats ReindexStats

	files, err := s.store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing destination: %w", err)
	}
	indexed, err := s.index.Query(ctx, domain.ArchiveQuery{Limit: math.MaxInt32})
	if err != nil {
		return stats, err
	}

	known := make(map[string]struct{}, len(indexed))
	for _, g := range indexed {
		known[g.Name] = struct{}{}
	}
	onDisk := make(map[string]struct{}, len(files))

	for _, f := range files {
		g, err := domain.ParseGranule(f.Name)
		if err != nil {
			continue
		}
		onDisk[f.Name] = struct{}{}
		stats.Total++
		if _, ok := known[f.Name]; ok {
			continue
		}

		date, err := g.AcquisitionDate()
		if err != nil {
			s.logger.Debug("skipping file with invalid acquisition code", "file", f.Name, "error", err)
			continue
		}
		if err := s.index.Record(ctx, domain.NewArchivedGranule(g, domain.NewDayID(date), f.Size, s.now().UTC())); err != nil {
			return stats, err
		}
		stats.Added++
	}

	for _, g := range indexed {
		if _, ok := onDisk[g.Name]; ok {
			continue
		}
		if err := s.index.Remove(ctx, g.Name); err != nil {
			return stats, err
		}
		stats.Removed++
	}

	s.logger.Info("archive index rebuilt",
		"added", stats.Added,
		"removed", stats.Removed,
		"total", stats.Total,
	)
	return stats, nil
}

// Forget removes a deleted file from the index.
func (s *ArchiveService) Forget(ctx context.Context, name string) error {
	return s.index.Remove(ctx, name)
}
