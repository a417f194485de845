package render

import "github.com/carbonlab/mapviz/pkg/core"

const (
	PointMinSize = 5.0
	PointMaxSize = 25.0
	layerOpacity = 0.8
)

// SequentialRamp is the 5-stop ramp shared by the point and column layers.
var SequentialRamp = []string{
	"#feedde",
	"#fdbe85",
	"#fd8d3c",
	"#e6550d",
	"#a63603",
}

// Point draws one filled circle per observation, sized and colored by value.
func Point(in Input) (core.LayerSpec, error) {
	size := linear{domainMax: in.Options.MaxValue, rangeMin: PointMinSize, rangeMax: PointMaxSize}
	norm := linear{domainMax: in.Options.MaxValue, rangeMax: 1}

	features := make([]core.Feature, 0, len(in.Points))
	for i, p := range in.Points {
		if err := checkPoint(i, p); err != nil {
			return core.LayerSpec{}, err
		}
		features = append(features, core.Feature{
			Lng:   p.Lng,
			Lat:   p.Lat,
			Value: p.Value,
			Size:  size.at(p.Value),
			Color: quantize(SequentialRamp, nil, norm.at(p.Value)),
		})
	}

	bounds, err := boundsOf(features)
	if err != nil {
		return core.LayerSpec{}, err
	}

	return core.LayerSpec{
		Name:     "pointLayer",
		Mode:     core.ModePoint,
		Shape:    core.ShapeCircle,
		Features: features,
		Style: core.LayerStyle{
			Opacity:     layerOpacity,
			Stroke:      "#fff",
			StrokeWidth: 1,
			Ramp:        &core.ColorRamp{Colors: append([]string(nil), SequentialRamp...)},
		},
		Bounds: bounds,
	}, nil
}
