// Package render converts datasets into engine independent layer specs.
// Each visualization mode has one strategy; strategies are pure functions
// and never touch a rendering engine.
package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/carbonlab/mapviz/internal/geo"
	"github.com/carbonlab/mapviz/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

var (
	// ErrMalformedData is returned when an observation cannot be drawn.
	ErrMalformedData = errors.New("malformed data")
	// ErrNoAggregator is returned when the heatmap mode has no aggregate function.
	ErrNoAggregator = errors.New("heatmap mode requires an aggregate function")
)

// Options holds the tunable constants shared by the strategies.
type Options struct {
	// MaxValue is the magnitude that maps to the largest marker and the
	// tallest column. Magnitudes at or above it are clamped.
	MaxValue float64
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{MaxValue: 100}
}

// Input is everything a strategy may read.
type Input struct {
	Points    []core.DataPoint
	Aggregate core.AggregateFunc
	Options   Options
}

// Strategy builds a layer spec for one mode.
type Strategy func(Input) (core.LayerSpec, error)

var strategies = map[core.Mode]Strategy{
	core.ModePoint:   Point,
	core.ModeHeatmap: Heatmap,
	core.ModeColumn:  Column,
}

// For returns the strategy registered for the mode.
func For(mode core.Mode) (Strategy, error) {
	s, ok := strategies[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownMode, mode)
	}
	return s, nil
}

// Build selects the strategy for mode and runs it.
func Build(mode core.Mode, in Input) (core.LayerSpec, error) {
	s, err := For(mode)
	if err != nil {
		return core.LayerSpec{}, err
	}
	if in.Options.MaxValue <= 0 {
		in.Options = DefaultOptions()
	}
	return s(in)
}

// checkPoint validates a single observation.
func checkPoint(i int, p core.DataPoint) error {
	if err := geo.ValidateLngLat(p.Lng, p.Lat); err != nil {
		return fmt.Errorf("%w: point %d: %v", ErrMalformedData, i, err)
	}
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return fmt.Errorf("%w: point %d: non-finite value", ErrMalformedData, i)
	}
	return nil
}

func boundsOf(features []core.Feature) (geom.Envelope, error) {
	xys := make([]geom.XY, len(features))
	for i, f := range features {
		xys[i] = geom.XY{X: f.Lng, Y: f.Lat}
	}
	env, err := geo.Bounds(xys)
	if err != nil {
		return geom.Envelope{}, fmt.Errorf("%w: bounds: %v", ErrMalformedData, err)
	}
	return env, nil
}
