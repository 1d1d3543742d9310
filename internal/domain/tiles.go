package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var tilePattern = regexp.MustCompile(`^h([0-9]{2})v([0-9]{2})$`)

// TileFilter is an immutable set of sinusoidal tile ids (hNNvNN). The empty
// filter matches every tile.
type TileFilter struct {
	tiles map[string]struct{}
}

// NewTileFilter builds a filter from tile ids. Duplicates are ignored.
func NewTileFilter(tiles ...string) (TileFilter, error) {
	f := TileFilter{tiles: make(map[string]struct{}, len(tiles))}
	for _, t := range tiles {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !tilePattern.MatchString(t) {
			return TileFilter{}, &ValidationError{
				Field:      "tiles",
				Value:      t,
				Constraint: "hNNvNN",
				Message:    fmt.Sprintf("invalid tile id %q", t),
			}
		}
		f.tiles[t] = struct{}{}
	}
	return f, nil
}

// ParseTileFilter parses a comma separated tile list such as "h17v04,h18v04".
func ParseTileFilter(s string) (TileFilter, error) {
	if strings.TrimSpace(s) == "" {
		return TileFilter{}, nil
	}
	return NewTileFilter(strings.Split(s, ",")...)
}

// Empty reports whether the filter matches every tile.
func (f TileFilter) Empty() bool {
	return len(f.tiles) == 0
}

// Contains reports whether the tile is part of the filter.
func (f TileFilter) Contains(tile string) bool {
	_, ok := f.tiles[tile]
	return ok
}

// With returns a new filter with the given tiles added.
func (f TileFilter) With(tiles ...string) (TileFilter, error) {
	return NewTileFilter(append(f.Tiles(), tiles...)...)
}

// Tiles returns the tile ids in sorted order.
func (f TileFilter) Tiles() []string {
	out := make([]string, 0, len(f.tiles))
	for t := range f.tiles {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// String returns the comma separated representation.
func (f TileFilter) String() string {
	return strings.Join(f.Tiles(), ",")
}
