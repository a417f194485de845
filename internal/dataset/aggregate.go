package dataset

import (
	"math"
	"sort"

	"github.com/carbonlab/mapviz/pkg/core"
)

// DefaultCellSize is the grid resolution in degrees used by the CLI.
const DefaultCellSize = 1.0

type cellKey struct{ x, y int64 }

// GridAggregate bins points into square cells of cellSize degrees. Each
// cell sits at the centre of its bin, clipped to WGS84 bounds, and counts
// the summed values of the points falling in it. Cells come back ordered by
// latitude then longitude.
func GridAggregate(points []core.DataPoint, cellSize float64) []core.HeatmapCell {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}

	sums := make(map[cellKey]float64)
	for _, p := range points {
		k := cellKey{
			x: int64(math.Floor(p.Lng / cellSize)),
			y: int64(math.Floor(p.Lat / cellSize)),
		}
		sums[k] += p.Value
	}

	keys := make([]cellKey, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].y != keys[j].y {
			return keys[i].y < keys[j].y
		}
		return keys[i].x < keys[j].x
	})

	out := make([]core.HeatmapCell, len(keys))
	for i, k := range keys {
		out[i] = core.HeatmapCell{
			Lng:   binCentre(k.x, cellSize, 180),
			Lat:   binCentre(k.y, cellSize, 90),
			Count: sums[k],
		}
	}
	return out
}

// binCentre is the midpoint of bin i after clipping it to [-limit, limit].
func binCentre(i int64, size, limit float64) float64 {
	lo := math.Max(float64(i)*size, -limit)
	hi := math.Min(float64(i+1)*size, limit)
	return (lo + hi) / 2
}

// Aggregator returns a lazily evaluated GridAggregate over points, for
// use as a render request's aggregate function.
func Aggregator(points []core.DataPoint, cellSize float64) core.AggregateFunc {
	return func() []core.HeatmapCell {
		return GridAggregate(points, cellSize)
	}
}
