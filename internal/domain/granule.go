package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Segment positions of the tile id in a split file name.
const (
	dataTileIndex    = 2
	previewTileIndex = 3
	groupSegments    = 4
)

// Preview markers. A preview file carries one extra leading segment.
const (
	previewMarkerJPEG   = "jpg"
	previewMarkerBrowse = "BROWSE"
)

// Granule is a parsed MODIS file name such as
// MOD11A1.A2020001.h17v04.006.2020010000000.hdf.
type Granule struct {
	Name        string // Full file name
	Product     string // e.g. MOD11A1
	Acquisition string // e.g. A2020001
	Tile        string // e.g. h17v04
	Version     string // Collection, e.g. 006
	Timestamp   string // Processing timestamp, e.g. 2020010000000
	Ext         string // Last segment: hdf, xml, jpg
	Preview     bool   // Browse/JPEG variant

	segments []string
}

// ParseGranule parses a MODIS file name. Data files need at least six segments,
// preview files seven.
func ParseGranule(name string) (Granule, error) {
	segs := strings.Split(name, ".")
	preview := isPreview(segs)
	offset := 0
	if preview {
		offset = 1
	}
	if len(segs) < 6+offset {
		return Granule{}, fmt.Errorf("%w: %q has %d segments", ErrInvalidGranuleName, name, len(segs))
	}

	return Granule{
		Name:        name,
		Product:     segs[offset],
		Acquisition: segs[offset+1],
		Tile:        segs[offset+2],
		Version:     segs[offset+3],
		Timestamp:   segs[offset+4],
		Ext:         segs[len(segs)-1],
		Preview:     preview,
		segments:    segs,
	}, nil
}

// MustParseGranule is like ParseGranule but panics on error. Used by tests and fixtures.
func MustParseGranule(name string) Granule {
	g, err := ParseGranule(name)
	if err != nil {
		panic(err)
	}
	return g
}

// GroupPrefix returns the first four dot-separated segments. Files sharing a group
// prefix and extension are versions of the same logical file.
func (g Granule) GroupPrefix() string {
	return strings.Join(g.segments[:groupSegments], ".")
}

// SameGroup reports whether two granules are versions of the same file.
func (g Granule) SameGroup(other Granule) bool {
	return g.GroupPrefix() == other.GroupPrefix() && g.Ext == other.Ext
}

// NewerThan reports whether g was processed after other.
func (g Granule) NewerThan(other Granule) bool {
	return CompareTimestamps(g.Timestamp, other.Timestamp) > 0
}

// IsSidecar reports whether the file is the XML metadata of a granule.
func (g Granule) IsSidecar() bool {
	return strings.EqualFold(g.Ext, "xml")
}

// AcquisitionDate decodes the AYYYYDDD acquisition code.
func (g Granule) AcquisitionDate() (time.Time, error) {
	return ParseAcquisition(g.Acquisition)
}

// ParseAcquisition decodes an AYYYYDDD acquisition code into a date.
func ParseAcquisition(code string) (time.Time, error) {
	if len(code) != 8 || code[0] != 'A' {
		return time.Time{}, fmt.Errorf("%w: acquisition %q", ErrInvalidGranuleName, code)
	}
	year, err := strconv.Atoi(code[1:5])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: acquisition %q", ErrInvalidGranuleName, code)
	}
	doy, err := strconv.Atoi(code[5:])
	if err != nil || doy < 1 || doy > 366 {
		return time.Time{}, fmt.Errorf("%w: acquisition %q", ErrInvalidGranuleName, code)
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1), nil
}

// AcquisitionCode encodes a date as AYYYYDDD.
func AcquisitionCode(t time.Time) string {
	return fmt.Sprintf("A%04d%03d", t.Year(), t.YearDay())
}

// CompareTimestamps orders processing timestamps. Equal-length numeric strings
// compare lexicographically; a longer numeric string is the larger one.
func CompareTimestamps(a, b string) int {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

// SplitName splits a file name on dots.
func SplitName(name string) []string {
	return strings.Split(name, ".")
}

// IsPreviewName reports whether a file name is a browse/JPEG variant.
func IsPreviewName(name string) bool {
	return isPreview(SplitName(name))
}

// DataTileOf returns the tile position of a data file name, or "" if absent.
func DataTileOf(segs []string) string {
	if len(segs) > dataTileIndex {
		return segs[dataTileIndex]
	}
	return ""
}

// PreviewTileOf returns the tile position of a preview file name, or "" if absent.
func PreviewTileOf(segs []string) string {
	if len(segs) > previewTileIndex {
		return segs[previewTileIndex]
	}
	return ""
}

func isPreview(segs []string) bool {
	for _, s := range segs {
		if s == previewMarkerJPEG || s == previewMarkerBrowse {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
