// Package websocket drives a remote renderer (typically a browser page
// hosting the mapping provider) over a WebSocket connection. Commands are
// fire-and-forget except scene creation, which waits for the renderer's
// ack so that a rejected scene surfaces as an initialization error.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/pkg/core"
	"github.com/carbonlab/mapviz/pkg/streaming"
)

const defaultAckTimeout = 10 * time.Second

var errClosed = engine.ErrClosed

// Config holds WebSocket engine configuration.
type Config struct {
	URL        string
	Secret     string
	AckTimeout time.Duration
}

// remoteScene is the local mirror of one renderer scene. create keeps the
// creation payload with style and tilt kept current, so a replay rebuilds
// the scene as it is now rather than as it was created.
type remoteScene struct {
	create    streaming.CreateScenePayload
	layers    map[core.LayerID][]byte
	order     []core.LayerID
	ready     bool
	callbacks map[int]func()
	nextCB    int
}

// Engine mirrors the renderer's scenes locally so that unknown handles are
// rejected without a round trip and state can be replayed on reconnect.
type Engine struct {
	conn   *connection
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	scenes map[core.SceneID]*remoteScene
}

// New creates a new WebSocket engine. Call Connect before use.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		conn:   newConnection(logger),
		cfg:    cfg,
		logger: logger,
		scenes: make(map[core.SceneID]*remoteScene),
	}
	e.conn.onLoaded = e.handleLoaded
	e.conn.replay = e.replayMessages
	return e
}

// Connect dials the renderer.
func (e *Engine) Connect() error {
	return e.conn.dial(e.cfg.URL, e.cfg.Secret)
}

// Close disconnects from the renderer.
func (e *Engine) Close() error {
	return e.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (e *Engine) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return e.conn.send(data)
}

// CreateScene registers the scene locally, sends create_scene and waits for
// the renderer's ack.
func (e *Engine) CreateScene(cfg engine.SceneConfig) (core.SceneID, error) {
	id := core.SceneID(uuid.NewString())
	payload := streaming.CreateScenePayload{
		SceneID:   id,
		Surface:   string(cfg.Surface),
		BaseStyle: cfg.BaseStyle,
		Tilt:      cfg.Tilt,
		Viewport:  streaming.Viewport{Center: cfg.Viewport.Center, Zoom: cfg.Viewport.Zoom},
	}
	data, err := marshalEnvelope(streaming.TypeCreateScene, payload)
	if err != nil {
		return "", err
	}

	// Registered before sending so a fast scene_loaded is not lost.
	e.mu.Lock()
	e.scenes[id] = &remoteScene{
		create:    payload,
		layers:    make(map[core.LayerID][]byte),
		callbacks: make(map[int]func()),
	}
	e.mu.Unlock()

	if err := e.conn.sendAndWait(data, streaming.TypeCreateScene, id, e.cfg.AckTimeout); err != nil {
		e.mu.Lock()
		delete(e.scenes, id)
		e.mu.Unlock()
		return "", fmt.Errorf("create scene: %w", err)
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
	if s.ready {
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

// handleLoaded runs on the read loop. Callbacks are started on their own
// goroutines: the controller may be blocked in CreateScene waiting for an
// ack that this same loop has to deliver.
func (e *Engine) handleLoaded(scene core.SceneID) {
	e.mu.Lock()
	s, ok := e.scenes[scene]
	if !ok || s.ready {
		e.mu.Unlock()
		return
	}
	s.ready = true
	callbacks := make([]func(), 0, len(s.callbacks))
	for i := 0; i < s.nextCB; i++ {
		if fn, ok := s.callbacks[i]; ok {
			callbacks = append(callbacks, fn)
		}
	}
	s.callbacks = make(map[int]func())
	e.mu.Unlock()

	for _, fn := range callbacks {
		go fn()
	}
}

// SetStyle records the style for replay before sending, so a message lost
// to a dropped connection is still applied after reconnect.
func (e *Engine) SetStyle(scene core.SceneID, style string) error {
	if !e.updateScene(scene, func(s *remoteScene) { s.create.BaseStyle = style }) {
		return fmt.Errorf("set style %s: %w", scene, engine.ErrUnknownScene)
	}
	return e.sendEnvelope(streaming.TypeSetStyle, streaming.SetStylePayload{SceneID: scene, Style: style})
}

func (e *Engine) SetTilt(scene core.SceneID, angle float64) error {
	if !e.updateScene(scene, func(s *remoteScene) { s.create.Tilt = angle }) {
		return fmt.Errorf("set tilt %s: %w", scene, engine.ErrUnknownScene)
	}
	return e.sendEnvelope(streaming.TypeSetTilt, streaming.SetTiltPayload{SceneID: scene, Tilt: angle})
}

// AddLayer assigns a layer id and sends the layer spec.
func (e *Engine) AddLayer(scene core.SceneID, spec core.LayerSpec) (core.LayerID, error) {
	id := core.LayerID(uuid.NewString())
	data, err := marshalEnvelope(streaming.TypeAddLayer, streaming.AddLayerPayload{SceneID: scene, LayerID: id, Spec: spec})
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	s, ok := e.scenes[scene]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("add layer %s: %w", scene, engine.ErrUnknownScene)
	}
	s.layers[id] = data
	s.order = append(s.order, id)
	e.mu.Unlock()

	if err := e.conn.send(data); err != nil {
		e.forgetLayer(scene, id)
		return "", err
	}
	return id, nil
}

func (e *Engine) RemoveLayer(scene core.SceneID, layer core.LayerID) error {
	e.mu.Lock()
	s, ok := e.scenes[scene]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("remove layer %s: %w", scene, engine.ErrUnknownScene)
	}
	if _, ok := s.layers[layer]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("remove layer %s: %w", layer, engine.ErrUnknownLayer)
	}
	e.mu.Unlock()

	e.forgetLayer(scene, layer)
	return e.sendEnvelope(streaming.TypeRemoveLayer, streaming.RemoveLayerPayload{SceneID: scene, LayerID: layer})
}

func (e *Engine) DestroyScene(scene core.SceneID) error {
	e.mu.Lock()
	if _, ok := e.scenes[scene]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("destroy %s: %w", scene, engine.ErrUnknownScene)
	}
	delete(e.scenes, scene)
	e.mu.Unlock()

	return e.sendEnvelope(streaming.TypeDestroyScene, streaming.DestroyScenePayload{SceneID: scene})
}

func (e *Engine) updateScene(scene core.SceneID, fn func(*remoteScene)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.scenes[scene]
	if ok {
		fn(s)
	}
	return ok
}

func (e *Engine) forgetLayer(scene core.SceneID, layer core.LayerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.scenes[scene]
	if !ok {
		return
	}
	delete(s.layers, layer)
	for i, id := range s.order {
		if id == layer {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// replayMessages returns create_scene, carrying the current style and tilt,
// and add_layer for every live scene, in attachment order.
func (e *Engine) replayMessages() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out [][]byte
	for sceneID, s := range e.scenes {
		data, err := marshalEnvelope(streaming.TypeCreateScene, s.create)
		if err != nil {
			e.logger.Warn("Skipping scene in replay", "scene", sceneID, "error", err)
			continue
		}
		out = append(out, data)
		for _, id := range s.order {
			out = append(out, s.layers[id])
		}
	}
	return out
}
