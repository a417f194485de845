// pkg/core/layer.go
package core

import geom "github.com/peterstace/simplefeatures/geom"

// SceneID is the engine's opaque handle for a scene.
type SceneID string

// LayerID is the engine's opaque handle for an attached layer.
type LayerID string

// Shape is the marker geometry an engine draws for each feature.
type Shape string

const (
	ShapeCircle   Shape = "circle"
	ShapeHeatmap  Shape = "heatmap"
	ShapeCylinder Shape = "cylinder"
)

// Layer describes a layer attached to a scene.
type Layer struct {
	ID   LayerID `json:"id"`
	Mode Mode    `json:"mode"`
	Name string  `json:"name"`
}

// ColorRamp maps a normalized value to a color. Positions is empty for an
// evenly spaced ramp.
type ColorRamp struct {
	Colors    []string  `json:"colors"`
	Positions []float64 `json:"positions,omitempty"`
}

// LayerStyle holds the per-layer drawing constants.
type LayerStyle struct {
	Opacity     float64    `json:"opacity"`
	Stroke      string     `json:"stroke,omitempty"`
	StrokeWidth float64    `json:"strokeWidth,omitempty"`
	Radius      float64    `json:"radius,omitempty"`
	Intensity   float64    `json:"intensity,omitempty"`
	Ramp        *ColorRamp `json:"ramp,omitempty"`
}

// Feature is one drawable element of a layer.
type Feature struct {
	Lng       float64    `json:"lng"`
	Lat       float64    `json:"lat"`
	Value     float64    `json:"value"`
	Size      float64    `json:"size,omitempty"`
	Height    float64    `json:"height,omitempty"`
	Footprint [2]float64 `json:"footprint,omitempty"`
	Intensity float64    `json:"intensity,omitempty"`
	Color     string     `json:"color,omitempty"`
}

// LayerSpec is the engine independent description of a layer to attach.
type LayerSpec struct {
	Name     string        `json:"name"`
	Mode     Mode          `json:"mode"`
	Shape    Shape         `json:"shape"`
	Features []Feature     `json:"features"`
	Style    LayerStyle    `json:"style"`
	Bounds   geom.Envelope `json:"-"`
}
