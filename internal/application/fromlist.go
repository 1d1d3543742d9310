package application

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/input"
)

// GranuleList is the content of a list of granule names.
type GranuleList struct {
	Names []string
	Tiles domain.TileFilter
	Dates []time.Time // Distinct acquisition dates, newest first
}

// ParseGranuleList reads one granule name per line. Lines may be paths or
// URLs. Blank lines and lines starting with # are ignored.
func ParseGranuleList(r io.Reader) (*GranuleList, error) {
	scanner := bufio.NewScanner(r)

	list := &GranuleList{}
	var tiles []string
	seenTiles := make(map[string]struct{})
	seenDates := make(map[time.Time]struct{})

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		name := path.Base(text)
		g, err := domain.ParseGranule(name)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		date, err := g.AcquisitionDate()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		list.Names = append(list.Names, name)
		if _, ok := seenTiles[g.Tile]; !ok {
			seenTiles[g.Tile] = struct{}{}
			tiles = append(tiles, g.Tile)
		}
		if _, ok := seenDates[date]; !ok {
			seenDates[date] = struct{}{}
			list.Dates = append(list.Dates, date)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading granule list: %w", err)
	}
	if len(list.Names) == 0 {
		return nil, &domain.ValidationError{Field: "list", Constraint: "non-empty", Message: "granule list is empty"}
	}

	filter, err := domain.NewTileFilter(tiles...)
	if err != nil {
		return nil, err
	}
	list.Tiles = filter

	sort.Slice(list.Dates, func(i, j int) bool { return list.Dates[i].After(list.Dates[j]) })
	return list, nil
}

// Request returns a download request for the dates and tiles of the list.
// Options not derived from the list are taken from base.
func (l *GranuleList) Request(base input.Request) input.Request {
	req := base
	req.Dates = l.Dates
	req.Tiles = l.Tiles
	req.EndDate = nil
	req.AllDays = false
	return req
}
