// Package echarts is an engine that renders every scene into a standalone
// HTML page. Features are projected to Web Mercator and drawn as a scatter
// chart, one series per attached layer, so a map can be inspected without
// a browser-side renderer.
package echarts

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/internal/geo"
	"github.com/carbonlab/mapviz/pkg/core"
)

// Config holds snapshot engine configuration.
type Config struct {
	OutputDir  string
	Width      string
	Height     string
	AssetsHost string
}

type layer struct {
	id   core.LayerID
	spec core.LayerSpec
}

type scene struct {
	cfg    engine.SceneConfig
	style  string
	tilt   float64
	layers []layer
}

// Engine writes <OutputDir>/<scene>.html after every change to a scene.
// Scenes are ready as soon as they exist; readiness callbacks still run on
// their own goroutine.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	scenes map[core.SceneID]*scene
}

// New creates the output directory and returns the engine.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Width == "" {
		cfg.Width = "900px"
	}
	if cfg.Height == "" {
		cfg.Height = "900px"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		scenes: make(map[core.SceneID]*scene),
	}, nil
}

// Path returns the snapshot file of a scene.
func (e *Engine) Path(id core.SceneID) string {
	return filepath.Join(e.cfg.OutputDir, string(id)+".html")
}

func (e *Engine) CreateScene(cfg engine.SceneConfig) (core.SceneID, error) {
	id := core.SceneID(uuid.NewString())
	s := &scene{cfg: cfg, style: cfg.BaseStyle, tilt: cfg.Tilt}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writeLocked(id, s); err != nil {
		return "", fmt.Errorf("create scene: %w", err)
	}
	e.scenes[id] = s
	return id, nil
}

func (e *Engine) OnReady(id core.SceneID, fn func()) (func(), error) {
	e.mu.Lock()
	_, ok := e.scenes[id]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("on ready %s: %w", id, engine.ErrUnknownScene)
	}

	var cancelled atomic.Bool
	go func() {
		if !cancelled.Load() {
			fn()
		}
	}()
	return func() { cancelled.Store(true) }, nil
}

func (e *Engine) SetStyle(id core.SceneID, style string) error {
	return e.update(id, "set style", func(s *scene) error {
		s.style = style
		return nil
	})
}

func (e *Engine) SetTilt(id core.SceneID, angle float64) error {
	return e.update(id, "set tilt", func(s *scene) error {
		s.tilt = angle
		return nil
	})
}

func (e *Engine) AddLayer(id core.SceneID, spec core.LayerSpec) (core.LayerID, error) {
	layerID := core.LayerID(uuid.NewString())
	err := e.update(id, "add layer", func(s *scene) error {
		s.layers = append(s.layers, layer{id: layerID, spec: spec})
		return nil
	})
	if err != nil {
		return "", err
	}
	return layerID, nil
}

func (e *Engine) RemoveLayer(id core.SceneID, layerID core.LayerID) error {
	return e.update(id, "remove layer", func(s *scene) error {
		for i, l := range s.layers {
			if l.id == layerID {
				s.layers = append(s.layers[:i], s.layers[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("remove layer %s: %w", layerID, engine.ErrUnknownLayer)
	})
}

// DestroyScene forgets the scene. The last snapshot stays on disk.
func (e *Engine) DestroyScene(id core.SceneID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.scenes[id]; !ok {
		return fmt.Errorf("destroy %s: %w", id, engine.ErrUnknownScene)
	}
	delete(e.scenes, id)
	return nil
}

// update applies fn to a copy of the scene and commits it only when the
// snapshot was written.
func (e *Engine) update(id core.SceneID, op string, fn func(*scene) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.scenes[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", op, id, engine.ErrUnknownScene)
	}
	next := *s
	next.layers = append([]layer(nil), s.layers...)
	if err := fn(&next); err != nil {
		return err
	}
	if err := e.writeLocked(id, &next); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	*s = next
	return nil
}

func (e *Engine) writeLocked(id core.SceneID, s *scene) error {
	var buf bytes.Buffer
	if err := e.chart(id, s).Render(&buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	path := e.Path(id)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	e.logger.Debug("Scene snapshot written", "scene", id, "path", path, "layers", len(s.layers))
	return nil
}

func (e *Engine) chart(id core.SceneID, s *scene) *charts.Scatter {
	theme := "white"
	if s.style == "dark" {
		theme = "dark"
	}

	colors := []string{"#feedde", "#a63603"}
	maxValue := 0.0
	var extent geom.Envelope
	for _, l := range s.layers {
		extent = extent.ExpandToIncludeEnvelope(l.spec.Bounds)
		if l.spec.Style.Ramp != nil && len(l.spec.Style.Ramp.Colors) > 0 {
			colors = l.spec.Style.Ramp.Colors
		}
		for _, f := range l.spec.Features {
			maxValue = math.Max(maxValue, visualValue(l.spec.Shape, f))
		}
	}
	if maxValue == 0 {
		maxValue = 1
	}
	subtitle := fmt.Sprintf("style=%s tilt=%g layers=%d surface=%s", s.style, s.tilt, len(s.layers), s.cfg.Surface)
	if lng, lat, ok := geo.Center(extent); ok {
		subtitle += fmt.Sprintf(" center=%.4f,%.4f", lng, lat)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "mapviz " + string(id),
			Theme:      theme,
			Width:      e.cfg.Width,
			Height:     e.cfg.Height,
			AssetsHost: e.cfg.AssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Scene %s", id),
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30, Scale: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxValue),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: colors},
		}),
	)

	for _, l := range s.layers {
		data := make([]opts.ScatterData, 0, len(l.spec.Features))
		for _, f := range l.spec.Features {
			pt, err := geo.Coords3857From4326(f.Lng, f.Lat)
			if err != nil {
				e.logger.Warn("Skipping feature outside WGS84 bounds", "layer", l.id, "lng", f.Lng, "lat", f.Lat)
				continue
			}
			xy, _ := pt.XY()
			data = append(data, opts.ScatterData{
				Value:      []interface{}{xy.X, xy.Y, visualValue(l.spec.Shape, f)},
				SymbolSize: symbolSize(l.spec, f),
			})
		}
		scatter.AddSeries(l.spec.Name, data,
			charts.WithItemStyleOpts(opts.ItemStyle{
				Opacity:     opts.Float(float32(l.spec.Style.Opacity)),
				BorderColor: l.spec.Style.Stroke,
				BorderWidth: float32(l.spec.Style.StrokeWidth),
			}),
		)
	}
	return scatter
}

// visualValue is the quantity the color scale is keyed on.
func visualValue(shape core.Shape, f core.Feature) float64 {
	if shape == core.ShapeHeatmap {
		return f.Intensity
	}
	return f.Value
}

func symbolSize(spec core.LayerSpec, f core.Feature) int {
	var size float64
	switch spec.Shape {
	case core.ShapeHeatmap:
		size = spec.Style.Radius
	case core.ShapeCylinder:
		size = f.Footprint[0] + f.Height
	default:
		size = f.Size
	}
	return int(math.Max(1, math.Round(size)))
}
