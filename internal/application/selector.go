package application

import (
	"strings"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// SelectFiles keeps the files of a day listing that match the tile filter.
//
// Data files carry the tile in the third dot-separated segment, previews in
// the fourth. Previews are only kept when requested. Listing order is preserved.
func SelectFiles(names []string, tiles domain.TileFilter, previews bool) []string {
	selected := make([]string, 0, len(names))

	for _, name := range names {
		segs := domain.SplitName(name)
		preview := domain.IsPreviewName(name)

		if tiles.Empty() {
			if previews || !preview {
				selected = append(selected, name)
			}
			continue
		}

		if tiles.Contains(domain.DataTileOf(segs)) {
			selected = append(selected, name)
			continue
		}
		if previews && preview && tiles.Contains(domain.PreviewTileOf(segs)) {
			selected = append(selected, name)
		}
	}

	return selected
}

// SidecarsOnly keeps the XML metadata files of a selection.
func SidecarsOnly(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if isSidecarName(name) {
			out = append(out, name)
		}
	}
	return out
}

func isSidecarName(name string) bool {
	return strings.EqualFold(lastSegment(name), "xml")
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return ""
}
