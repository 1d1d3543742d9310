package domain

import (
	"errors"
	"testing"
)

func TestTileFor(t *testing.T) {
	tests := []struct {
		name  string
		coord Coordinate
		want  string
	}{
		{"Trento", Coordinate{Lon: 11.12, Lat: 46.07}, "h18v04"},
		{"Nebraska", Coordinate{Lon: -100, Lat: 41}, "h10v04"},
		{"north pole", Coordinate{Lon: 0.5, Lat: 90}, "h18v00"},
		{"south pole", Coordinate{Lon: 0.5, Lat: -90}, "h18v17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TileFor(tt.coord)
			if err != nil {
				t.Fatalf("TileFor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TileFor(%v) = %q, want %q", tt.coord, got, tt.want)
			}
		})
	}
}

func TestTileForInvalid(t *testing.T) {
	for _, c := range []Coordinate{{Lon: 181, Lat: 0}, {Lon: 0, Lat: -91}} {
		if _, err := TileFor(c); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("TileFor(%v) error = %v, want ErrInvalidInput", c, err)
		}
	}
}
