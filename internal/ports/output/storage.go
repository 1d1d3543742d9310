// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// Catalog lists what a remote MODIS archive offers.
type Catalog interface {
	// ListDays returns the available day directories, newest first.
	ListDays(ctx context.Context) ([]domain.DayID, error)

	// ListFiles returns the file names inside a day directory in listing order.
	ListFiles(ctx context.Context, day domain.DayID) ([]string, error)
}

// Transport moves the bytes of a single remote file.
type Transport interface {
	// Open streams a remote file. The returned size is the declared byte size,
	// or -1 when the protocol did not announce one.
	Open(ctx context.Context, day domain.DayID, name string) (io.ReadCloser, int64, error)

	// Size queries the byte size of a remote file.
	Size(ctx context.Context, day domain.DayID, name string) (int64, error)
}

// Remote is one logical session against a remote archive.
type Remote interface {
	Catalog
	Transport

	// Connect establishes (or re-establishes) the session, including login.
	Connect(ctx context.Context) error

	// Ping checks that the session is still usable.
	Ping(ctx context.Context) error

	// Close releases the session.
	Close() error
}

// LocalFile is a file present in the destination directory.
type LocalFile struct {
	Name string // File name relative to the destination
	Size int64  // Size in bytes
}

// LocalStore is the destination directory of a download session.
type LocalStore interface {
	// List returns the regular files in the destination, excluding partial downloads.
	List(ctx context.Context) ([]LocalFile, error)

	// Create opens a partial file for name, truncating leftovers of earlier attempts.
	Create(name string) (io.WriteCloser, error)

	// Commit promotes the partial file of name to its final name.
	Commit(name string) error

	// Discard removes the partial file of name, if any.
	Discard(name string) error

	// Remove deletes a committed file.
	Remove(name string) error

	// RemoveEmpty deletes zero-byte granule files and returns their names.
	RemoveEmpty(ctx context.Context) ([]string, error)

	// PartialPath returns the path of the partial file for name.
	PartialPath(name string) string

	// Path returns the final path for name.
	Path(name string) string
}

// Manifest records successfully downloaded file names.
type Manifest interface {
	// Append writes one name and flushes it to stable storage.
	Append(name string) error

	// Path returns the manifest location.
	Path() string

	// Close closes the manifest.
	Close() error
}

// Validator checks the structure of a downloaded payload.
type Validator interface {
	// Validate returns an error wrapping domain.ErrCorruptFile if the file is unusable.
	Validate(ctx context.Context, path string) error
}

// ArchiveIndex persists the catalog of downloaded granules.
type ArchiveIndex interface {
	// Record inserts or replaces a granule.
	Record(ctx context.Context, g domain.ArchivedGranule) error

	// Remove deletes a granule by file name.
	Remove(ctx context.Context, name string) error

	// Query returns granules matching the filter, newest day first.
	Query(ctx context.Context, q domain.ArchiveQuery) ([]domain.ArchivedGranule, error)

	// Close closes the index.
	Close() error
}
