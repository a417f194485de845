package echarts

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/internal/mapview"
	"github.com/carbonlab/mapviz/internal/render"
	"github.com/carbonlab/mapviz/pkg/core"
)

var _ engine.Engine = (*Engine)(nil)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{OutputDir: t.TempDir()}, nil)
	require.NoError(t, err)
	return e
}

func readSnapshot(t *testing.T, e *Engine, id core.SceneID) string {
	t.Helper()
	data, err := os.ReadFile(e.Path(id))
	require.NoError(t, err)
	return string(data)
}

func TestCreateSceneWritesSnapshot(t *testing.T) {
	e := newEngine(t)

	id, err := e.CreateScene(engine.SceneConfig{Surface: "map", BaseStyle: "dark", Tilt: 45})
	require.NoError(t, err)

	html := readSnapshot(t, e, id)
	assert.Contains(t, html, "style=dark tilt=45 layers=0")
}

func TestOnReadyFiresAsynchronously(t *testing.T) {
	e := newEngine(t)
	id, err := e.CreateScene(engine.SceneConfig{Surface: "map"})
	require.NoError(t, err)

	fired := make(chan struct{})
	_, err = e.OnReady(id, func() { close(fired) })
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ready callback never fired")
	}

	_, err = e.OnReady("missing", func() {})
	assert.True(t, errors.Is(err, engine.ErrUnknownScene))
}

func TestLayersAreRendered(t *testing.T) {
	e := newEngine(t)
	id, err := e.CreateScene(engine.SceneConfig{Surface: "map", BaseStyle: "light"})
	require.NoError(t, err)

	spec, err := render.Build(core.ModePoint, render.Input{Points: []core.DataPoint{
		{Lng: 108.9, Lat: 34.2, Value: 50},
		{Lng: 116.4, Lat: 39.9, Value: 100},
	}})
	require.NoError(t, err)

	layer, err := e.AddLayer(id, spec)
	require.NoError(t, err)

	html := readSnapshot(t, e, id)
	assert.Contains(t, html, "pointLayer")
	assert.Contains(t, html, "layers=1")
	assert.Contains(t, html, "#a63603")

	require.NoError(t, e.RemoveLayer(id, layer))
	assert.Contains(t, readSnapshot(t, e, id), "layers=0")

	err = e.RemoveLayer(id, layer)
	assert.True(t, errors.Is(err, engine.ErrUnknownLayer))
}

func TestStyleAndTilt(t *testing.T) {
	e := newEngine(t)
	id, err := e.CreateScene(engine.SceneConfig{Surface: "map", BaseStyle: "light"})
	require.NoError(t, err)

	require.NoError(t, e.SetStyle(id, "dark"))
	require.NoError(t, e.SetTilt(id, 45))
	assert.Contains(t, readSnapshot(t, e, id), "style=dark tilt=45")
}

func TestDestroyKeepsLastSnapshot(t *testing.T) {
	e := newEngine(t)
	id, err := e.CreateScene(engine.SceneConfig{Surface: "map"})
	require.NoError(t, err)

	require.NoError(t, e.DestroyScene(id))
	assert.FileExists(t, e.Path(id))

	assert.True(t, errors.Is(e.DestroyScene(id), engine.ErrUnknownScene))
	assert.True(t, errors.Is(e.SetTilt(id, 0), engine.ErrUnknownScene))
	_, err = e.AddLayer(id, core.LayerSpec{})
	assert.True(t, errors.Is(err, engine.ErrUnknownScene))
}

func TestSymbolSize(t *testing.T) {
	assert.Equal(t, 15, symbolSize(core.LayerSpec{Shape: core.ShapeHeatmap, Style: core.LayerStyle{Radius: 15}}, core.Feature{}))
	assert.Equal(t, 9, symbolSize(core.LayerSpec{Shape: core.ShapeCylinder}, core.Feature{Height: 5, Footprint: [2]float64{4, 4}}))
	assert.Equal(t, 25, symbolSize(core.LayerSpec{Shape: core.ShapeCircle}, core.Feature{Size: 25}))
	assert.Equal(t, 1, symbolSize(core.LayerSpec{Shape: core.ShapeCircle}, core.Feature{}))
}

func TestControllerSnapshot(t *testing.T) {
	e := newEngine(t)
	c, err := mapview.New(e, mapview.Options{Surface: "map"})
	require.NoError(t, err)

	c.Apply(mapview.Request{
		Config:  core.VisualizationConfig{BaseStyle: "light", Mode: core.ModeHeatmap},
		Dataset: []core.DataPoint{{Lng: 108.9, Lat: 34.2, Value: 1}},
		Aggregate: func() []core.HeatmapCell {
			return []core.HeatmapCell{{Lng: 108.9, Lat: 34.2, Count: 3}}
		},
	})

	require.Eventually(t, func() bool { return len(c.State().Layers) == 1 }, time.Second, 10*time.Millisecond)
	scene := c.State().Scene
	html := readSnapshot(t, e, scene)
	assert.Contains(t, html, "heatmapLayer")
	assert.Contains(t, html, "#BC2025")

	c.Unmount()
	assert.FileExists(t, e.Path(scene))
}
