package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// LocalRemote implements output.Remote for a day-directory mirror on a local
// or mounted filesystem.
type LocalRemote struct {
	root   string
	logger *slog.Logger
}

// NewLocalRemote creates a new local mirror remote.
func NewLocalRemote(root string, logger *slog.Logger) *LocalRemote {
	return &LocalRemote{
		root:   root,
		logger: logger,
	}
}

// Connect checks the mirror root is a directory.
func (r *LocalRemote) Connect(ctx context.Context) error {
	if err := r.Ping(ctx); err != nil {
		return err
	}
	r.logger.Debug("local mirror opened", "root", r.root)
	return nil
}

// Ping checks the mirror root is still accessible.
func (r *LocalRemote) Ping(_ context.Context) error {
	info, err := os.Stat(r.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("mirror root %s is not a directory", r.root)
	}
	return nil
}

// Close is a no-op.
func (r *LocalRemote) Close() error {
	return nil
}

// ListDays returns the day directories of the mirror, newest first.
func (r *LocalRemote) ListDays(ctx context.Context) ([]domain.DayID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return daysFromNames(names), nil
}

// ListFiles returns the regular files of a day directory in name order.
func (r *LocalRemote) ListFiles(ctx context.Context, day domain.DayID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(r.root, day.String()))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Open opens a mirrored file.
func (r *LocalRemote) Open(ctx context.Context, day domain.DayID, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, -1, err
	}

	f, err := os.Open(r.filePath(day, name)) //#nosec G304 -- path is built from a listed day and base name
	if err != nil {
		return nil, -1, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, -1, err
	}
	return f, info.Size(), nil
}

// Size stats a mirrored file.
func (r *LocalRemote) Size(ctx context.Context, day domain.DayID, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	info, err := os.Stat(r.filePath(day, name))
	if err != nil {
		return -1, err
	}
	return info.Size(), nil
}

func (r *LocalRemote) filePath(day domain.DayID, name string) string {
	return filepath.Join(r.root, day.String(), filepath.Base(name))
}
