// Package archive provides the SQLite index of downloaded granules.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/jobrunner/modisfetch/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS granules (
	name          TEXT PRIMARY KEY,
	product       TEXT NOT NULL,
	acquisition   TEXT NOT NULL,
	tile          TEXT NOT NULL,
	version       TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	day           TEXT NOT NULL,
	size          INTEGER NOT NULL,
	downloaded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_granules_product_tile_day ON granules (product, tile, day);
`

const defaultQueryLimit = 1000

// Index implements output.ArchiveIndex on a SQLite database.
type Index struct {
	db *sql.DB
}

// Open opens or creates the index database at path.
func Open(ctx context.Context, path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Record inserts or replaces a granule.
func (x *Index) Record(ctx context.Context, g domain.ArchivedGranule) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO granules (name, product, acquisition, tile, version, timestamp, day, size, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			product = excluded.product,
			acquisition = excluded.acquisition,
			tile = excluded.tile,
			version = excluded.version,
			timestamp = excluded.timestamp,
			day = excluded.day,
			size = excluded.size,
			downloaded_at = excluded.downloaded_at`,
		g.Name, g.Product, g.Acquisition, g.Tile, g.Version, g.Timestamp,
		g.Day.String(), g.Size, g.DownloadedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", g.Name, err)
	}
	return nil
}

// Remove deletes a granule. Removing an unknown name is not an error.
func (x *Index) Remove(ctx context.Context, name string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM granules WHERE name = ?`, name); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// Query returns granules matching q, newest day first.
func (x *Index) Query(ctx context.Context, q domain.ArchiveQuery) ([]domain.ArchivedGranule, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.Product != "" {
		where = append(where, "product = ?")
		args = append(args, q.Product)
	}
	if q.Tile != "" {
		where = append(where, "tile = ?")
		args = append(args, q.Tile)
	}
	if q.From != "" {
		where = append(where, "day >= ?")
		args = append(args, q.From.String())
	}
	if q.To != "" {
		where = append(where, "day <= ?")
		args = append(args, q.To.String())
	}

	query := `SELECT name, product, acquisition, tile, version, timestamp, day, size, downloaded_at FROM granules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY day DESC, name ASC LIMIT ?"

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var granules []domain.ArchivedGranule
	for rows.Next() {
		var (
			g            domain.ArchivedGranule
			day          string
			downloadedAt string
		)
		if err := rows.Scan(&g.Name, &g.Product, &g.Acquisition, &g.Tile, &g.Version,
			&g.Timestamp, &day, &g.Size, &downloadedAt); err != nil {
			return nil, err
		}
		g.Day = domain.DayID(day)
		g.DownloadedAt, _ = time.Parse(time.RFC3339, downloadedAt)
		granules = append(granules, g)
	}

	return granules, rows.Err()
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}
