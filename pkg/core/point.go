// pkg/core/point.go
package core

// DataPoint is a single geographic observation.
// Duplicates are allowed and represent independent observations.
type DataPoint struct {
	Lng   float64 `json:"lng"`
	Lat   float64 `json:"lat"`
	Value float64 `json:"value"`
	Year  int     `json:"year,omitempty"`
	Label string  `json:"label,omitempty"`
}

// HeatmapCell is an aggregated observation produced outside the controller.
type HeatmapCell struct {
	Lng   float64 `json:"lng"`
	Lat   float64 `json:"lat"`
	Count float64 `json:"count"`
}

// AggregateFunc produces heatmap cells on demand. It is only invoked when
// the heatmap mode is rendered.
type AggregateFunc func() []HeatmapCell
