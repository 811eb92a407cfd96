package routing

import (
	"math"

	"github.com/technosupport/ts-evac/internal/floors"
)

// DistanceMeters converts the pixel distance between two nodes to meters
// using the floor map's scale. An absent or incomplete scale yields the raw
// pixel distance; the completeness check also guards the divisions.
func DistanceMeters(a, b floors.Node, img *floors.MapImage) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	pixels := math.Sqrt(dx*dx + dy*dy)

	if img == nil ||
		img.WidthPixels <= 0 || img.HeightPixels <= 0 ||
		img.WidthMeters <= 0 || img.HeightMeters <= 0 {
		return pixels
	}

	averageScale := (img.WidthPixels/img.WidthMeters + img.HeightPixels/img.HeightMeters) / 2
	return pixels / averageScale
}
