package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

// CheckRequest describes the granules expected in the destination.
type CheckRequest struct {
	Product string            // e.g. MOD11A1
	Version string            // Collection, empty matches every version
	Tiles   domain.TileFilter // Expected tiles, must not be empty
	From    time.Time         // Oldest acquisition date, inclusive
	To      time.Time         // Newest acquisition date, inclusive
	Every   int               // Days between acquisitions, e.g. 8 for 8-day composites
}

// MissingGranule is one expected (acquisition, tile) pair without a local file.
type MissingGranule struct {
	Acquisition string    `json:"acquisition" yaml:"acquisition"`
	Date        time.Time `json:"date" yaml:"date"`
	Tile        string    `json:"tile" yaml:"tile"`
}

// CheckReport lists the granules missing from the destination.
type CheckReport struct {
	Product  string           `json:"product" yaml:"product"`
	Version  string           `json:"version,omitempty" yaml:"version,omitempty"`
	Expected int              `json:"expected" yaml:"expected"`
	Present  int              `json:"present" yaml:"present"`
	Missing  []MissingGranule `json:"missing" yaml:"missing"`
}

// Complete reports whether nothing is missing.
func (r *CheckReport) Complete() bool {
	return len(r.Missing) == 0
}

// CheckMissing compares the HDF files in the store with every acquisition
// between From and To for every tile. Missing entries are ordered by date,
// then tile.
func CheckMissing(ctx context.Context, store output.LocalStore, req CheckRequest) (*CheckReport, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	files, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing destination: %w", err)
	}

	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		g, err := domain.ParseGranule(f.Name)
		if err != nil || g.Preview || !strings.EqualFold(g.Ext, "hdf") {
			continue
		}
		if g.Product != req.Product || (req.Version != "" && g.Version != req.Version) {
			continue
		}
		present[g.Acquisition+"|"+g.Tile] = struct{}{}
	}

	every := req.Every
	if every < 1 {
		every = 1
	}

	report := &CheckReport{Product: req.Product, Version: req.Version, Missing: []MissingGranule{}}
	tiles := req.Tiles.Tiles()
	for date := req.From; !date.After(req.To); date = date.AddDate(0, 0, every) {
		code := domain.AcquisitionCode(date)
		for _, tile := range tiles {
			report.Expected++
			if _, ok := present[code+"|"+tile]; ok {
				report.Present++
				continue
			}
			report.Missing = append(report.Missing, MissingGranule{Acquisition: code, Date: date, Tile: tile})
		}
	}

	return report, nil
}

func (r CheckRequest) validate() error {
	if r.Product == "" {
		return &domain.ValidationError{Field: "product", Constraint: "required", Message: "product is required"}
	}
	if r.Tiles.Empty() {
		return &domain.ValidationError{Field: "tiles", Constraint: "required", Message: "at least one tile is required"}
	}
	if r.From.IsZero() || r.To.IsZero() {
		return &domain.ValidationError{Field: "dates", Constraint: "required", Message: "first and last day are required"}
	}
	if r.From.After(r.To) {
		return &domain.ValidationError{
			Field:      "dates",
			Value:      r.From.Format(domain.DateLayout),
			Constraint: "from <= to",
			Message:    "first day is after last day",
		}
	}
	return nil
}
