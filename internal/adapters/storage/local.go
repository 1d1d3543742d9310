// Package storage provides the destination directory of a download session.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

// PartialSuffix marks files that are still being transferred.
const PartialSuffix = ".part"

// LocalStorage implements LocalStore for a local directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// CheckWritable returns an error if the destination does not exist or cannot be written.
func CheckWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "stat", Path: path, Err: os.ErrInvalid}
	}
	f, err := os.CreateTemp(path, ".modisfetch-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// List returns the regular files directly inside the destination, sorted by name.
func (s *LocalStorage) List(ctx context.Context) ([]output.LocalFile, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	files := make([]output.LocalFile, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), PartialSuffix) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		files = append(files, output.LocalFile{
			Name: e.Name(),
			Size: info.Size(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Create opens the partial file for name.
func (s *LocalStorage) Create(name string) (io.WriteCloser, error) {
	return os.Create(s.PartialPath(name)) //#nosec G304 -- name comes from the remote listing, joined under basePath
}

// Commit renames the partial file to its final name.
func (s *LocalStorage) Commit(name string) error {
	return os.Rename(s.PartialPath(name), s.Path(name))
}

// Discard removes the partial file of name.
func (s *LocalStorage) Discard(name string) error {
	if err := os.Remove(s.PartialPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Remove deletes a committed file.
func (s *LocalStorage) Remove(name string) error {
	return os.Remove(s.Path(name))
}

// RemoveEmpty deletes zero-byte granule files left by crashed sessions.
// Files whose names are not granule names are left alone.
func (s *LocalStorage) RemoveEmpty(ctx context.Context) ([]string, error) {
	files, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, f := range files {
		if f.Size != 0 {
			continue
		}
		if _, err := domain.ParseGranule(f.Name); err != nil {
			continue
		}
		if err := s.Remove(f.Name); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, f.Name)
	}
	return removed, nil
}

// PartialPath returns the path of the partial file for name.
func (s *LocalStorage) PartialPath(name string) string {
	return s.Path(name) + PartialSuffix
}

// Path returns the full path for a file name.
func (s *LocalStorage) Path(name string) string {
	return filepath.Join(s.basePath, filepath.Base(name))
}

// BasePath returns the destination directory.
func (s *LocalStorage) BasePath() string {
	return s.basePath
}
