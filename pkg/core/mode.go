// pkg/core/mode.go
package core

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects one of the mutually exclusive visualizations.
type Mode string

const (
	ModePoint   Mode = "point"
	ModeHeatmap Mode = "heatmap"
	ModeColumn  Mode = "column"
)

// ColumnTilt is the viewing angle used while columns are displayed.
const ColumnTilt = 45.0

// ErrUnknownMode is returned for a mode tag outside point, heatmap and column.
var ErrUnknownMode = errors.New("unknown visualization mode")

// ParseMode converts a user supplied tag into a Mode.
// "3dcolumn" is accepted as an alias for column.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "point":
		return ModePoint, nil
	case "heatmap":
		return ModeHeatmap, nil
	case "column", "3dcolumn":
		return ModeColumn, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModePoint, ModeHeatmap, ModeColumn:
		return true
	}
	return false
}

// VisualizationConfig is the state the controller reconciles against.
type VisualizationConfig struct {
	BaseStyle string `json:"baseStyle"`
	Mode      Mode   `json:"mode"`
}

// Tilt is derived from the mode: columns are viewed at an angle, everything
// else top down.
func (c VisualizationConfig) Tilt() float64 {
	if c.Mode == ModeColumn {
		return ColumnTilt
	}
	return 0
}
