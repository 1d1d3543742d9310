package domain

import (
	"fmt"
	"math"
)

// MODIS sinusoidal grid parameters.
const (
	sphereRadius = 6371007.181
	tileSize     = 1111950.5197665233
	gridMinX     = -20015109.355798
	gridMaxY     = 10007554.677899
	gridColumns  = 36
	gridRows     = 18
)

// Coordinate is a WGS84 longitude/latitude pair.
type Coordinate struct {
	Lon float64
	Lat float64
}

// Validate checks the coordinate is within WGS84 bounds.
func (c Coordinate) Validate() error {
	if c.Lon < -180 || c.Lon > 180 {
		return &ValidationError{
			Field:      "longitude",
			Value:      c.Lon,
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
		}
	}
	if c.Lat < -90 || c.Lat > 90 {
		return &ValidationError{
			Field:      "latitude",
			Value:      c.Lat,
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	return nil
}

// String returns a string representation of the coordinate.
func (c Coordinate) String() string {
	return fmt.Sprintf("POINT(%f %f)", c.Lon, c.Lat)
}

// TileFor returns the sinusoidal grid tile (e.g. "h18v04") containing the coordinate.
func TileFor(c Coordinate) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	lat := c.Lat * math.Pi / 180
	lon := c.Lon * math.Pi / 180
	x := sphereRadius * lon * math.Cos(lat)
	y := sphereRadius * lat

	h := int(math.Floor((x - gridMinX) / tileSize))
	v := int(math.Floor((gridMaxY - y) / tileSize))

	// The eastern and southern edges belong to the last column and row.
	h = clamp(h, 0, gridColumns-1)
	v = clamp(v, 0, gridRows-1)

	return fmt.Sprintf("h%02dv%02d", h, v), nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
