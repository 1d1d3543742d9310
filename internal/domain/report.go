package domain

import "time"

// Report summarises one download session.
type Report struct {
	Days         []DayID       // Days processed, newest first
	Selected     int           // Files relevant after tile/format selection
	Fetched      int           // Files transferred and verified
	Replaced     int           // Local files superseded by a newer remote version
	Skipped      int           // Files already present or not newer than local
	Failed       int           // Files given up on after retries
	Conflicts    int           // Files skipped because of several local versions
	Bytes        int64         // Bytes written by successful transfers
	ManifestPath string        // Manifest of this session
	StartedAt    time.Time     // Session start
	Duration     time.Duration // Session duration
	DryRun       bool          // Plan computed without transferring
}

// HasFailures returns true if any file could not be transferred.
func (r *Report) HasFailures() bool {
	return r.Failed > 0
}

// ArchivedGranule is a granule recorded in the local archive index.
type ArchivedGranule struct {
	Name         string
	Product      string
	Acquisition  string
	Tile         string
	Version      string
	Timestamp    string
	Day          DayID
	Size         int64
	DownloadedAt time.Time
}

// NewArchivedGranule builds an index record from a parsed granule.
func NewArchivedGranule(g Granule, day DayID, size int64, at time.Time) ArchivedGranule {
	return ArchivedGranule{
		Name:         g.Name,
		Product:      g.Product,
		Acquisition:  g.Acquisition,
		Tile:         g.Tile,
		Version:      g.Version,
		Timestamp:    g.Timestamp,
		Day:          day,
		Size:         size,
		DownloadedAt: at,
	}
}

// ArchiveQuery filters archived granules. Empty fields match everything.
type ArchiveQuery struct {
	Product string
	Tile    string
	From    DayID // inclusive
	To      DayID // inclusive
	Limit   int
}
