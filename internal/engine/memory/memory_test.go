package memory

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/pkg/core"
)

// Compile-time interface check.
var _ engine.Engine = (*Engine)(nil)

func newScene(t *testing.T, e *Engine) core.SceneID {
	t.Helper()
	id, err := e.CreateScene(engine.SceneConfig{Surface: "s", BaseStyle: "light", Tilt: 0, Viewport: engine.DefaultViewport})
	require.NoError(t, err)
	return id
}

func TestCreateScene_RequiresSurface(t *testing.T) {
	e := New()
	_, err := e.CreateScene(engine.SceneConfig{BaseStyle: "light"})
	assert.Error(t, err)
}

func TestOnReady_FiresOnMarkReady(t *testing.T) {
	e := New()
	id := newScene(t, e)

	var fired atomic.Int32
	_, err := e.OnReady(id, func() { fired.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, int32(0), fired.Load())

	assert.True(t, e.MarkReady(id))
	assert.False(t, e.MarkReady(id))
	assert.Equal(t, int32(1), fired.Load())

	rec, ok := e.Scene(id)
	require.True(t, ok)
	assert.True(t, rec.Ready)
}

func TestOnReady_Cancel(t *testing.T) {
	e := New()
	id := newScene(t, e)

	var fired atomic.Int32
	cancel, err := e.OnReady(id, func() { fired.Add(1) })
	require.NoError(t, err)
	cancel()
	e.MarkReady(id)

	assert.Equal(t, int32(0), fired.Load())
	// cancel after the fact is harmless
	cancel()
}

func TestOnReady_AlreadyReadyFiresAsync(t *testing.T) {
	e := New()
	id := newScene(t, e)
	e.MarkReady(id)

	done := make(chan struct{})
	_, err := e.OnReady(id, func() { close(done) })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestOnReady_UnknownScene(t *testing.T) {
	e := New()
	_, err := e.OnReady("nope", func() {})
	assert.True(t, errors.Is(err, engine.ErrUnknownScene))
}

func TestLayers_AddRemove(t *testing.T) {
	e := New()
	id := newScene(t, e)

	l, err := e.AddLayer(id, core.LayerSpec{Mode: core.ModePoint})
	require.NoError(t, err)
	rec, _ := e.Scene(id)
	require.Len(t, rec.Layers, 1)

	require.NoError(t, e.RemoveLayer(id, l))
	rec, _ = e.Scene(id)
	assert.Empty(t, rec.Layers)

	err = e.RemoveLayer(id, l)
	assert.True(t, errors.Is(err, engine.ErrUnknownLayer))
}

func TestDestroy_UnknownScene(t *testing.T) {
	e := New()
	id := newScene(t, e)
	require.NoError(t, e.DestroyScene(id))

	err := e.DestroyScene(id)
	assert.True(t, errors.Is(err, engine.ErrUnknownScene))
	_, err = e.AddLayer(id, core.LayerSpec{})
	assert.True(t, errors.Is(err, engine.ErrUnknownScene))

	created, destroyed := e.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, destroyed)
}

func TestFailureInjection(t *testing.T) {
	e := New()
	boom := errors.New("boom")
	e.Fail(OpCreate, boom)

	_, err := e.CreateScene(engine.SceneConfig{Surface: "s"})
	assert.Equal(t, boom, err)

	e.ClearFailures()
	id := newScene(t, e)
	assert.NotEmpty(t, id)
	assert.Equal(t, 2, e.CountCalls(OpCreate))
}

func TestStyleAndTilt(t *testing.T) {
	e := New()
	id := newScene(t, e)

	require.NoError(t, e.SetStyle(id, "dark"))
	require.NoError(t, e.SetTilt(id, 45))

	rec, _ := e.Scene(id)
	assert.Equal(t, "dark", rec.Style)
	assert.Equal(t, 45.0, rec.Tilt)
	assert.Equal(t, "light", rec.Config.BaseStyle)
}

func TestAutoReady(t *testing.T) {
	e := New(WithAutoReady(time.Millisecond))
	id := newScene(t, e)

	fired := make(chan struct{})
	_, err := e.OnReady(id, func() { close(fired) })
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scene never became ready")
	}
}
