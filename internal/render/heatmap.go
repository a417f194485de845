package render

import (
	"fmt"
	"math"

	"github.com/carbonlab/mapviz/internal/geo"
	"github.com/carbonlab/mapviz/pkg/core"
)

const (
	HeatmapRadius    = 15.0
	HeatmapIntensity = 2.0
)

// HeatmapRamp is the 9-stop diverging ramp of the heat field.
var HeatmapRamp = []string{
	"#0A3161",
	"#0F5257",
	"#167A54",
	"#4C9F38",
	"#8CBB26",
	"#DEBB26",
	"#F49D1A",
	"#E4632D",
	"#BC2025",
}

// HeatmapRampPositions are the stop positions of HeatmapRamp.
var HeatmapRampPositions = []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1.0}

// Heatmap draws an intensity field from the cells returned by the caller's
// aggregate function. Intensity is count divided by the largest count.
func Heatmap(in Input) (core.LayerSpec, error) {
	if in.Aggregate == nil {
		return core.LayerSpec{}, ErrNoAggregator
	}
	cells := in.Aggregate()

	maxCount := 0.0
	for i, c := range cells {
		if err := geo.ValidateLngLat(c.Lng, c.Lat); err != nil {
			return core.LayerSpec{}, fmt.Errorf("%w: cell %d: %v", ErrMalformedData, i, err)
		}
		if math.IsNaN(c.Count) || math.IsInf(c.Count, 0) || c.Count < 0 {
			return core.LayerSpec{}, fmt.Errorf("%w: cell %d: invalid count %v", ErrMalformedData, i, c.Count)
		}
		maxCount = math.Max(maxCount, c.Count)
	}
	intensity := linear{domainMax: maxCount, rangeMax: 1}

	features := make([]core.Feature, 0, len(cells))
	for _, c := range cells {
		v := intensity.at(c.Count)
		features = append(features, core.Feature{
			Lng:       c.Lng,
			Lat:       c.Lat,
			Value:     c.Count,
			Intensity: v,
			Color:     quantize(HeatmapRamp, HeatmapRampPositions, v),
		})
	}

	bounds, err := boundsOf(features)
	if err != nil {
		return core.LayerSpec{}, err
	}

	return core.LayerSpec{
		Name:     "heatmapLayer",
		Mode:     core.ModeHeatmap,
		Shape:    core.ShapeHeatmap,
		Features: features,
		Style: core.LayerStyle{
			Opacity:   layerOpacity,
			Radius:    HeatmapRadius,
			Intensity: HeatmapIntensity,
			Ramp: &core.ColorRamp{
				Colors:    append([]string(nil), HeatmapRamp...),
				Positions: append([]float64(nil), HeatmapRampPositions...),
			},
		},
		Bounds: bounds,
	}, nil
}
