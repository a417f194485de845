// internal/engine/engine.go
package engine

import (
	"errors"

	"github.com/carbonlab/mapviz/pkg/core"
)

var (
	// ErrUnknownScene is returned for a scene id the engine does not own.
	ErrUnknownScene = errors.New("unknown scene")
	// ErrUnknownLayer is returned for a layer id not attached to the scene.
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrClosed is returned once the engine has been shut down.
	ErrClosed = errors.New("engine closed")
)

// Surface identifies the host drawable a scene is mounted on. The host UI
// owns it; engines never create one.
type Surface string

// Viewport is the initial camera of a scene.
type Viewport struct {
	Center [2]float64 `json:"center"` // lng, lat
	Zoom   float64    `json:"zoom"`
}

// DefaultViewport is the neutral camera used for the whole platform.
var DefaultViewport = Viewport{Center: [2]float64{108.9, 34.2}, Zoom: 3}

// SceneConfig is passed to CreateScene.
type SceneConfig struct {
	Surface   Surface  `json:"surface"`
	BaseStyle string   `json:"baseStyle"`
	Tilt      float64  `json:"tilt"`
	Viewport  Viewport `json:"viewport"`
}

// Engine is the capability set the map controller needs from a rendering
// provider. Any provider offering it is substitutable.
//
// Scene creation is asynchronous: CreateScene returns a handle immediately
// and readiness is reported through the callback registered with OnReady.
// Implementations must never invoke that callback on the caller's goroutine
// before OnReady returns.
type Engine interface {
	CreateScene(cfg SceneConfig) (core.SceneID, error)
	// OnReady registers a one-shot readiness callback. The returned cancel
	// function unregisters it; calling cancel after the callback fired is a
	// no-op.
	OnReady(scene core.SceneID, fn func()) (cancel func(), err error)
	SetStyle(scene core.SceneID, style string) error
	SetTilt(scene core.SceneID, angle float64) error
	AddLayer(scene core.SceneID, spec core.LayerSpec) (core.LayerID, error)
	RemoveLayer(scene core.SceneID, layer core.LayerID) error
	DestroyScene(scene core.SceneID) error
}

// Closer is implemented by engines that hold process level resources
// (connections, output files) beyond individual scenes.
type Closer interface {
	Close() error
}
