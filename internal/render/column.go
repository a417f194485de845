package render

import "github.com/carbonlab/mapviz/pkg/core"

const (
	// ColumnHeightDivisor converts a magnitude into an extrusion height.
	ColumnHeightDivisor = 10.0
	// ColumnFootprint is the side of the square column base.
	ColumnFootprint = 4.0
)

// Column extrudes one cylinder per observation. Height is value/10, clamped
// to [0, MaxValue/10].
func Column(in Input) (core.LayerSpec, error) {
	height := linear{
		domainMax: in.Options.MaxValue,
		rangeMax:  in.Options.MaxValue / ColumnHeightDivisor,
	}
	norm := linear{domainMax: in.Options.MaxValue, rangeMax: 1}

	features := make([]core.Feature, 0, len(in.Points))
	for i, p := range in.Points {
		if err := checkPoint(i, p); err != nil {
			return core.LayerSpec{}, err
		}
		features = append(features, core.Feature{
			Lng:       p.Lng,
			Lat:       p.Lat,
			Value:     p.Value,
			Height:    height.at(p.Value),
			Footprint: [2]float64{ColumnFootprint, ColumnFootprint},
			Color:     quantize(SequentialRamp, nil, norm.at(p.Value)),
		})
	}

	bounds, err := boundsOf(features)
	if err != nil {
		return core.LayerSpec{}, err
	}

	return core.LayerSpec{
		Name:     "3dColumnLayer",
		Mode:     core.ModeColumn,
		Shape:    core.ShapeCylinder,
		Features: features,
		Style: core.LayerStyle{
			Opacity: layerOpacity,
			Ramp:    &core.ColorRamp{Colors: append([]string(nil), SequentialRamp...)},
		},
		Bounds: bounds,
	}, nil
}
