// Package mapview owns one map scene and keeps its overlay layer in step
// with the latest visualization config and dataset.
//
// A Controller rebuilds the scene only when the base style changes and
// rebuilds the single overlay layer on every Apply. Requests that arrive
// before the scene reports ready are held in a one-item buffer where the
// newest request replaces older ones; the buffer is flushed once readiness
// fires. No engine failure escapes the controller: failures are logged and
// leave an empty map at worst.
package mapview

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/internal/queue"
	"github.com/carbonlab/mapviz/internal/render"
	"github.com/carbonlab/mapviz/pkg/core"
)

// Logger interface for pluggable logging. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// StylePolicy decides what a base style change does to a live scene.
type StylePolicy int

const (
	// StylePolicyRebuild destroys the scene and creates a new one with the
	// new style. Layers are rebuilt once the new scene is ready.
	StylePolicyRebuild StylePolicy = iota
	// StylePolicyRestyle changes the style in place; layers survive.
	StylePolicyRestyle
)

// ParseStylePolicy maps "rebuild" (or empty) and "restyle" to a policy.
func ParseStylePolicy(s string) (StylePolicy, error) {
	switch s {
	case "", "rebuild":
		return StylePolicyRebuild, nil
	case "restyle":
		return StylePolicyRestyle, nil
	default:
		return 0, fmt.Errorf("unknown style policy %q", s)
	}
}

// Options configures a Controller.
type Options struct {
	Surface     engine.Surface
	Viewport    engine.Viewport
	StylePolicy StylePolicy
	Render      render.Options
	Logger      Logger
	// Meter receives the controller instruments. Nil uses the global meter.
	Meter metric.Meter
}

// Request is one configuration update from the host.
type Request struct {
	Config  core.VisualizationConfig
	Dataset []core.DataPoint
	// Aggregate is only invoked in heatmap mode.
	Aggregate core.AggregateFunc
}

// State is a snapshot of the controller, for hosts and tests.
type State struct {
	Scene     core.SceneID
	Epoch     uint64
	BaseStyle string
	Tilt      float64
	Ready     bool
	Layers    []core.Layer
	Pending   bool
	// PendingMode is the mode of the held request when Pending is set.
	PendingMode core.Mode
	// Superseded counts held requests replaced by a newer one before they
	// were rendered.
	Superseded int
	Unmounted  bool
}

// ErrNoSurface is returned by New when no mount surface is supplied.
var ErrNoSurface = errors.New("no mount surface")

// Controller is the single owner of a scene and its layers.
type Controller struct {
	mu sync.Mutex

	engine  engine.Engine
	opts    Options
	log     Logger
	metrics *metrics

	scene     *scene
	epoch     uint64
	layers    layerSet
	pending   *queue.Slot[Request]
	unmounted bool
}

// New creates a controller mounted on opts.Surface. No scene is created
// until the first Apply.
func New(eng engine.Engine, opts Options) (*Controller, error) {
	if eng == nil {
		return nil, errors.New("mapview: nil engine")
	}
	if opts.Surface == "" {
		return nil, ErrNoSurface
	}
	if opts.Viewport == (engine.Viewport{}) {
		opts.Viewport = engine.DefaultViewport
	}
	if opts.Render.MaxValue <= 0 {
		opts.Render = render.DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Controller{
		engine:  eng,
		opts:    opts,
		log:     opts.Logger,
		pending: queue.NewSlot[Request](),
	}

	m, err := newMetrics(opts.Meter, c.liveLayers)
	if err != nil {
		return nil, err
	}
	c.metrics = m

	return c, nil
}

// Apply reconciles the scene and its layer with req. Configuration changes
// are processed in call order and the latest one always wins.
func (c *Controller) Apply(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted {
		c.log.Debug("apply after unmount ignored", "mode", req.Config.Mode)
		return
	}

	style := req.Config.BaseStyle
	if c.scene != nil && c.scene.style != style {
		switch c.opts.StylePolicy {
		case StylePolicyRestyle:
			c.restyleLocked(style)
		default:
			c.log.Info("base style changed, rebuilding scene", "from", c.scene.style, "to", style)
			c.teardownLocked()
		}
	}

	if c.pending.Put(req) {
		c.metrics.replaced(req.Config.Mode)
		c.log.Debug("pending render replaced", "mode", req.Config.Mode)
	}

	if c.scene == nil {
		c.initSceneLocked(req.Config)
		return
	}
	if c.scene.ready {
		c.flushLocked()
	}
}

// Restyle changes the base style of the live scene in place. The attached
// layer is not touched. It is a no-op without a scene.
func (c *Controller) Restyle(style string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted || c.scene == nil {
		return
	}
	c.restyleLocked(style)
}

// Unmount cancels any pending readiness, detaches every layer and destroys
// the scene. It is safe to call more than once; after it the controller
// ignores further updates.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted {
		c.log.Debug("unmount called twice")
		return
	}
	c.unmounted = true
	c.pending.Clear()
	c.teardownLocked()
	c.metrics.close()
	c.log.Debug("controller unmounted")
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Layers:     c.layers.list(),
		Pending:    c.pending.Full(),
		Superseded: c.pending.Replaced(),
		Unmounted:  c.unmounted,
	}
	if req, ok := c.pending.Peek(); ok {
		st.PendingMode = req.Config.Mode
	}
	if s := c.scene; s != nil {
		st.Scene = s.id
		st.Epoch = s.epoch
		st.BaseStyle = s.style
		st.Tilt = s.tilt
		st.Ready = s.ready
	}
	return st
}

// flushLocked renders the pending request on a ready scene: tilt is
// reconciled first, then the old layer is cleared before the new one is
// built so two visualizations never coexist. A column layer is never built
// on a scene whose tilt could not be set.
func (c *Controller) flushLocked() {
	req, ok := c.pending.Take()
	if !ok {
		return
	}
	s := c.scene

	tiltOK := true
	if tilt := req.Config.Tilt(); s.tilt != tilt {
		tiltOK = c.setTiltLocked(tilt)
	}

	c.layers.clearAll(c, s)

	if !tiltOK && req.Config.Mode == core.ModeColumn {
		c.metrics.failure("build_layer")
		c.log.Error("column layer needs a tilted scene, map left empty", "scene", s.id, "tilt", s.tilt)
		return
	}

	var spec core.LayerSpec
	err := guard("build layer", func() error {
		var err error
		spec, err = render.Build(req.Config.Mode, render.Input{
			Points:    req.Dataset,
			Aggregate: req.Aggregate,
			Options:   c.opts.Render,
		})
		return err
	})
	if err != nil {
		c.metrics.failure("build_layer")
		c.log.Error("layer build failed, map left empty", "mode", req.Config.Mode, "error", err)
		return
	}

	if _, err := c.layers.attach(c, s, spec); err != nil {
		c.metrics.failure("add_layer")
		c.log.Error("attaching layer failed", "mode", spec.Mode, "error", err)
		return
	}
	c.log.Debug("layer attached", "mode", spec.Mode, "features", len(spec.Features))
}

func (c *Controller) liveLayers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layers.len()
}
