package mapview

import (
	"github.com/carbonlab/mapviz/pkg/core"
)

// layerSet tracks the layers attached to the current scene. The controller
// clears it before every build, so it never holds more than one layer.
type layerSet struct {
	layers []core.Layer
}

// clearAll detaches every tracked layer. A failing detach is logged and
// does not stop the others; the set is empty afterwards. Without a ready
// scene nothing can be attached, so there is nothing to detach.
func (ls *layerSet) clearAll(c *Controller, s *scene) {
	if s == nil || !s.ready {
		ls.reset()
		return
	}
	for _, l := range ls.layers {
		err := guard("remove layer", func() error {
			return c.engine.RemoveLayer(s.id, l.ID)
		})
		if err != nil {
			c.metrics.failure("remove_layer")
			c.log.Warn("removing layer failed", "scene", s.id, "layer", l.ID, "mode", l.Mode, "error", err)
			continue
		}
		c.metrics.layerDetached(l.Mode)
	}
	ls.reset()
}

// attach adds spec to the scene and records the layer for teardown.
func (ls *layerSet) attach(c *Controller, s *scene, spec core.LayerSpec) (core.Layer, error) {
	if s == nil || !s.ready {
		return core.Layer{}, nil
	}
	var id core.LayerID
	err := guard("add layer", func() error {
		var err error
		id, err = c.engine.AddLayer(s.id, spec)
		return err
	})
	if err != nil {
		return core.Layer{}, err
	}
	l := core.Layer{ID: id, Mode: spec.Mode, Name: spec.Name}
	ls.layers = append(ls.layers, l)
	c.metrics.layerAttached(spec.Mode)
	return l, nil
}

func (ls *layerSet) reset() {
	ls.layers = nil
}

func (ls *layerSet) len() int {
	return len(ls.layers)
}

func (ls *layerSet) list() []core.Layer {
	if len(ls.layers) == 0 {
		return nil
	}
	return append([]core.Layer(nil), ls.layers...)
}
