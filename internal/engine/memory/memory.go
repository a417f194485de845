// internal/engine/memory/memory.go
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/pkg/core"
)

// Op names an engine call, used for failure injection and the call log.
type Op string

const (
	OpCreate      Op = "create_scene"
	OpSetStyle    Op = "set_style"
	OpSetTilt     Op = "set_tilt"
	OpAddLayer    Op = "add_layer"
	OpRemoveLayer Op = "remove_layer"
	OpDestroy     Op = "destroy_scene"
)

// Call is one recorded engine call.
type Call struct {
	Op    Op
	Scene core.SceneID
	Layer core.LayerID
	Mode  core.Mode
}

// LayerRecord is a layer attached to a scene.
type LayerRecord struct {
	ID   core.LayerID
	Spec core.LayerSpec
}

// SceneRecord groups a scene with its state and attached layers.
type SceneRecord struct {
	ID     core.SceneID
	Config engine.SceneConfig
	Style  string
	Tilt   float64
	Ready  bool
	Layers []LayerRecord
}

type sceneState struct {
	SceneRecord
	callbacks map[int]func()
	nextCB    int
}

// Engine keeps scenes in memory. Readiness is reported either manually with
// MarkReady or automatically after a delay (WithAutoReady).
type Engine struct {
	mu        sync.Mutex
	scenes    map[core.SceneID]*sceneState
	calls     []Call
	failures  map[Op]error
	autoReady time.Duration
	auto      bool
	created   int
	destroyed int
}

// Option configures the memory engine.
type Option func(*Engine)

// WithAutoReady makes every scene ready after the given delay.
func WithAutoReady(delay time.Duration) Option {
	return func(e *Engine) {
		e.auto = true
		e.autoReady = delay
	}
}

// New creates a new memory engine
func New(opts ...Option) *Engine {
	e := &Engine{
		scenes:   make(map[core.SceneID]*sceneState),
		failures: make(map[Op]error),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fail makes every subsequent call of op return err until ClearFailures.
func (e *Engine) Fail(op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = err
}

// ClearFailures removes all injected failures.
func (e *Engine) ClearFailures() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = make(map[Op]error)
}

// record logs the call and returns the injected failure, if any.
// Callers hold e.mu.
func (e *Engine) record(c Call) error {
	e.calls = append(e.calls, c)
	return e.failures[c.Op]
}

func (e *Engine) CreateScene(cfg engine.SceneConfig) (core.SceneID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.record(Call{Op: OpCreate}); err != nil {
		return "", err
	}
	if cfg.Surface == "" {
		return "", fmt.Errorf("create scene: no mount surface")
	}

	id := core.SceneID(uuid.NewString())
	e.scenes[id] = &sceneState{
		SceneRecord: SceneRecord{
			ID:     id,
			Config: cfg,
			Style:  cfg.BaseStyle,
			Tilt:   cfg.Tilt,
		},
		callbacks: make(map[int]func()),
	}
	e.created++

	if e.auto {
		time.AfterFunc(e.autoReady, func() {
			e.MarkReady(id)
		})
	}
	return id, nil
}

func (e *Engine) OnReady(scene core.SceneID, fn func()) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.scenes[scene]
	if !ok {
		return nil, fmt.Errorf("on ready %s: %w", scene, engine.ErrUnknownScene)
	}
	if s.Ready {
		go fn()
		return func() {}, nil
	}

	id := s.nextCB
	s.nextCB++
	s.callbacks[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if s, ok := e.scenes[scene]; ok {
			delete(s.callbacks, id)
		}
	}, nil
}

// MarkReady flags the scene as loaded and fires its pending callbacks on the
// calling goroutine. It reports whether the scene existed and was not ready.
func (e *Engine) MarkReady(scene core.SceneID) bool {
	e.mu.Lock()
	s, ok := e.scenes[scene]
	if !ok || s.Ready {
		e.mu.Unlock()
		return false
	}
	s.Ready = true
	callbacks := make([]func(), 0, len(s.callbacks))
	for i := 0; i < s.nextCB; i++ {
		if fn, ok := s.callbacks[i]; ok {
			callbacks = append(callbacks, fn)
		}
	}
	s.callbacks = make(map[int]func())
	e.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return true
}

func (e *Engine) SetStyle(scene core.SceneID, style string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.record(Call{Op: OpSetStyle, Scene: scene}); err != nil {
		return err
	}
	s, ok := e.scenes[scene]
	if !ok {
		return fmt.Errorf("set style %s: %w", scene, engine.ErrUnknownScene)
	}
	s.Style = style
	return nil
}

func (e *Engine) SetTilt(scene core.SceneID, angle float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.record(Call{Op: OpSetTilt, Scene: scene}); err != nil {
		return err
	}
	s, ok := e.scenes[scene]
	if !ok {
		return fmt.Errorf("set tilt %s: %w", scene, engine.ErrUnknownScene)
	}
	s.Tilt = angle
	return nil
}

func (e *Engine) AddLayer(scene core.SceneID, spec core.LayerSpec) (core.LayerID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.record(Call{Op: OpAddLayer, Scene: scene, Mode: spec.Mode}); err != nil {
		return "", err
	}
	s, ok := e.scenes[scene]
	if !ok {
		return "", fmt.Errorf("add layer %s: %w", scene, engine.ErrUnknownScene)
	}
	id := core.LayerID(uuid.NewString())
	s.Layers = append(s.Layers, LayerRecord{ID: id, Spec: spec})
	return id, nil
}

func (e *Engine) RemoveLayer(scene core.SceneID, layer core.LayerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.record(Call{Op: OpRemoveLayer, Scene: scene, Layer: layer}); err != nil {
		return err
	}
	s, ok := e.scenes[scene]
	if !ok {
		return fmt.Errorf("remove layer %s: %w", scene, engine.ErrUnknownScene)
	}
	for i, l := range s.Layers {
		if l.ID == layer {
			s.Layers = append(s.Layers[:i], s.Layers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("remove layer %s: %w", layer, engine.ErrUnknownLayer)
}

func (e *Engine) DestroyScene(scene core.SceneID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.record(Call{Op: OpDestroy, Scene: scene}); err != nil {
		return err
	}
	if _, ok := e.scenes[scene]; !ok {
		return fmt.Errorf("destroy %s: %w", scene, engine.ErrUnknownScene)
	}
	delete(e.scenes, scene)
	e.destroyed++
	return nil
}

// Scene returns a copy of a live scene.
func (e *Engine) Scene(id core.SceneID) (SceneRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.scenes[id]
	if !ok {
		return SceneRecord{}, false
	}
	rec := s.SceneRecord
	rec.Layers = append([]LayerRecord(nil), s.Layers...)
	return rec, true
}

// Scenes returns copies of all live scenes.
func (e *Engine) Scenes() []SceneRecord {
	e.mu.Lock()
	ids := make([]core.SceneID, 0, len(e.scenes))
	for id := range e.scenes {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	out := make([]SceneRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := e.Scene(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Calls returns the recorded call log.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CountCalls returns how many times op was called.
func (e *Engine) CountCalls(op Op) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Stats returns the number of scenes created and destroyed.
func (e *Engine) Stats() (created, destroyed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.created, e.destroyed
}
