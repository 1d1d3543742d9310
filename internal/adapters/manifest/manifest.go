// Package manifest writes the per-session list of downloaded files.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName returns the manifest file name for a product, e.g. listfileMOD11A1.061.txt.
func FileName(product string) string {
	return fmt.Sprintf("listfile%s.txt", product)
}

// File is an append-only manifest. Every line is synced to disk before
// Append returns, so an interrupted session leaves a truthful record.
type File struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Create opens the manifest at path, truncating the record of an earlier session.
func Create(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644) //#nosec G304 -- path is derived from the destination directory
	if err != nil {
		return nil, fmt.Errorf("creating manifest: %w", err)
	}

	return &File{f: f, path: path}, nil
}

// Append writes one file name and syncs it.
func (m *File) Append(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return os.ErrClosed
	}
	if _, err := m.f.WriteString(name + "\n"); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return m.f.Sync()
}

// Path returns the manifest location.
func (m *File) Path() string {
	return m.path
}

// Close closes the manifest. Closing twice is a no-op.
func (m *File) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// Read returns the file names recorded in the manifest at path.
func Read(path string) ([]string, error) {
	f, err := os.Open(path) //#nosec G304 -- path comes from a session report
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	names := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return names, nil
}
