package mapview

import (
	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/pkg/core"
)

// scene is the controller's view of the engine scene it owns.
type scene struct {
	id          core.SceneID
	epoch       uint64
	style       string
	tilt        float64
	ready       bool
	cancelReady func()
}

// initSceneLocked creates a scene for cfg and registers for readiness.
// On failure no scene is kept; the pending request stays so the next Apply
// retries.
func (c *Controller) initSceneLocked(cfg core.VisualizationConfig) {
	sc := engine.SceneConfig{
		Surface:   c.opts.Surface,
		BaseStyle: cfg.BaseStyle,
		Tilt:      cfg.Tilt(),
		Viewport:  c.opts.Viewport,
	}

	var id core.SceneID
	err := guard("create scene", func() error {
		var err error
		id, err = c.engine.CreateScene(sc)
		return err
	})
	if err != nil {
		c.metrics.failure("create_scene")
		c.log.Error("scene initialization failed, no map rendered", "style", cfg.BaseStyle, "error", err)
		return
	}

	c.epoch++
	s := &scene{
		id:    id,
		epoch: c.epoch,
		style: cfg.BaseStyle,
		tilt:  sc.Tilt,
	}
	c.scene = s
	c.metrics.sceneCreated()
	c.log.Debug("scene created", "scene", id, "style", cfg.BaseStyle, "tilt", sc.Tilt, "epoch", s.epoch)

	epoch := s.epoch
	var cancel func()
	err = guard("register ready", func() error {
		var err error
		cancel, err = c.engine.OnReady(id, func() { c.onSceneReady(epoch) })
		return err
	})
	if err != nil {
		c.metrics.failure("on_ready")
		c.log.Error("readiness registration failed, dropping scene", "scene", id, "error", err)
		c.teardownLocked()
		return
	}
	s.cancelReady = cancel
}

// onSceneReady runs on whatever goroutine the engine reports readiness on.
// Readiness for a scene that has since been replaced or destroyed, and any
// repeated readiness, is ignored.
func (c *Controller) onSceneReady(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.scene
	if c.unmounted || s == nil || s.epoch != epoch {
		c.log.Debug("stale scene readiness ignored", "epoch", epoch)
		return
	}
	if s.ready {
		return
	}
	s.ready = true
	s.cancelReady = nil
	c.log.Debug("scene ready", "scene", s.id, "epoch", epoch)

	c.flushLocked()
}

// restyleLocked changes the base style in place; layers are untouched.
func (c *Controller) restyleLocked(style string) {
	s := c.scene
	if s.style == style {
		return
	}
	err := guard("set style", func() error {
		return c.engine.SetStyle(s.id, style)
	})
	if err != nil {
		c.metrics.failure("set_style")
		c.log.Error("restyle failed", "scene", s.id, "style", style, "error", err)
		return
	}
	c.log.Debug("scene restyled", "scene", s.id, "from", s.style, "to", style)
	s.style = style
}

// setTiltLocked reports whether the scene now has the requested tilt. On
// failure the recorded tilt is left unchanged so the next flush retries.
func (c *Controller) setTiltLocked(angle float64) bool {
	s := c.scene
	err := guard("set tilt", func() error {
		return c.engine.SetTilt(s.id, angle)
	})
	if err != nil {
		c.metrics.failure("set_tilt")
		c.log.Error("updating tilt failed", "scene", s.id, "tilt", angle, "error", err)
		return false
	}
	s.tilt = angle
	return true
}

// teardownLocked releases layers before the scene on every exit path.
// It never fails: errors are logged as warnings and the resources are
// presumed released. Calling it without a scene is a no-op.
func (c *Controller) teardownLocked() {
	s := c.scene
	if s == nil {
		c.layers.reset()
		return
	}

	if s.cancelReady != nil {
		s.cancelReady()
		s.cancelReady = nil
	}

	c.layers.clearAll(c, s)

	err := guard("destroy scene", func() error {
		return c.engine.DestroyScene(s.id)
	})
	if err != nil {
		c.metrics.failure("destroy_scene")
		c.log.Warn("destroying scene failed, treating as released", "scene", s.id, "error", err)
	}

	c.scene = nil
	c.metrics.sceneDestroyed()
	c.log.Debug("scene destroyed", "scene", s.id, "epoch", s.epoch)
}
