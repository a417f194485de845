package mapview

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/internal/engine/memory"
	"github.com/carbonlab/mapviz/pkg/core"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) add(level, msg string, keysAndValues []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, keysAndValues))
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.add("DEBUG", msg, keysAndValues) }
func (l *testLogger) Info(msg string, keysAndValues ...any)  { l.add("INFO", msg, keysAndValues) }
func (l *testLogger) Warn(msg string, keysAndValues ...any)  { l.add("WARN", msg, keysAndValues) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.add("ERROR", msg, keysAndValues) }

func (l *testLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, level+":") {
			n++
		}
	}
	return n
}

func newTestController(t *testing.T, opts ...func(*Options)) (*Controller, *memory.Engine, *testLogger) {
	t.Helper()
	eng := memory.New()
	logger := &testLogger{}

	o := Options{Surface: "map-container", Logger: logger}
	for _, fn := range opts {
		fn(&o)
	}

	c, err := New(eng, o)
	require.NoError(t, err)
	return c, eng, logger
}

func request(style string, mode core.Mode, points ...core.DataPoint) Request {
	return Request{
		Config:  core.VisualizationConfig{BaseStyle: style, Mode: mode},
		Dataset: points,
		Aggregate: func() []core.HeatmapCell {
			cells := make([]core.HeatmapCell, len(points))
			for i, p := range points {
				cells[i] = core.HeatmapCell{Lng: p.Lng, Lat: p.Lat, Count: 1}
			}
			return cells
		},
	}
}

var origin = core.DataPoint{Lng: 0, Lat: 0, Value: 10}

// ready marks the controller's current scene as loaded.
func ready(t *testing.T, c *Controller, eng *memory.Engine) {
	t.Helper()
	id := c.State().Scene
	require.NotEmpty(t, id, "no scene to mark ready")
	require.True(t, eng.MarkReady(id))
}

func engineLayers(t *testing.T, eng *memory.Engine, id core.SceneID) []memory.LayerRecord {
	t.Helper()
	rec, ok := eng.Scene(id)
	require.True(t, ok, "scene %s not live", id)
	return rec.Layers
}

func TestNew_RequiresSurface(t *testing.T) {
	_, err := New(memory.New(), Options{})
	assert.True(t, errors.Is(err, ErrNoSurface))

	_, err = New(nil, Options{Surface: "s"})
	assert.Error(t, err)
}

func TestNew_DefaultsViewport(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModePoint))

	rec, ok := eng.Scene(c.State().Scene)
	require.True(t, ok)
	assert.Equal(t, engine.DefaultViewport, rec.Config.Viewport)
	assert.Equal(t, engine.Surface("map-container"), rec.Config.Surface)
	assert.Equal(t, "light", rec.Config.BaseStyle)
}

func TestApply_DefersLayerUntilReady(t *testing.T) {
	c, eng, _ := newTestController(t)

	c.Apply(request("light", core.ModePoint, origin))

	st := c.State()
	assert.False(t, st.Ready)
	assert.True(t, st.Pending)
	assert.Empty(t, st.Layers)
	assert.Equal(t, 0, eng.CountCalls(memory.OpAddLayer))

	ready(t, c, eng)

	st = c.State()
	assert.True(t, st.Ready)
	assert.False(t, st.Pending)
	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModePoint, st.Layers[0].Mode)
	assert.Equal(t, "pointLayer", st.Layers[0].Name)

	layers := engineLayers(t, eng, st.Scene)
	require.Len(t, layers, 1)
	assert.Equal(t, st.Layers[0].ID, layers[0].ID)
	assert.Len(t, layers[0].Spec.Features, 1)
}

func TestApply_LatestPendingRequestWins(t *testing.T) {
	c, eng, _ := newTestController(t)

	c.Apply(request("light", core.ModePoint, origin))
	c.Apply(request("light", core.ModeHeatmap, origin))
	c.Apply(request("light", core.ModePoint, origin, origin))

	st := c.State()
	assert.True(t, st.Pending)
	assert.Equal(t, core.ModePoint, st.PendingMode)
	assert.Equal(t, 2, st.Superseded)

	ready(t, c, eng)

	assert.Equal(t, 1, eng.CountCalls(memory.OpAddLayer))
	st = c.State()
	assert.Empty(t, st.PendingMode)
	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModePoint, st.Layers[0].Mode)
	layers := engineLayers(t, eng, st.Scene)
	require.Len(t, layers, 1)
	assert.Len(t, layers[0].Spec.Features, 2)
}

func TestReady_FiresOnce(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))

	id := c.State().Scene
	require.True(t, eng.MarkReady(id))
	assert.False(t, eng.MarkReady(id))

	// A duplicate notification from a misbehaving engine changes nothing.
	c.onSceneReady(c.State().Epoch)

	assert.Equal(t, 1, eng.CountCalls(memory.OpAddLayer))
	assert.Len(t, c.State().Layers, 1)
}

func TestScenario_ModeChangeKeepsScene(t *testing.T) {
	c, eng, _ := newTestController(t)

	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)
	first := c.State()
	require.Len(t, first.Layers, 1)

	c.Apply(request("light", core.ModeHeatmap, origin))

	st := c.State()
	created, destroyed := eng.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, destroyed)
	assert.Equal(t, first.Scene, st.Scene)

	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModeHeatmap, st.Layers[0].Mode)
	assert.NotEqual(t, first.Layers[0].ID, st.Layers[0].ID)

	layers := engineLayers(t, eng, st.Scene)
	require.Len(t, layers, 1)
	assert.Equal(t, core.ModeHeatmap, layers[0].Spec.Mode)
	assert.Equal(t, 1, eng.CountCalls(memory.OpRemoveLayer))
}

func TestScenario_StyleChangeRebuildsScene(t *testing.T) {
	c, eng, _ := newTestController(t)

	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)
	old := c.State()

	c.Apply(request("dark", core.ModePoint, origin))

	st := c.State()
	assert.NotEqual(t, old.Scene, st.Scene)
	assert.Equal(t, "dark", st.BaseStyle)
	assert.False(t, st.Ready)
	assert.Empty(t, st.Layers)
	assert.True(t, st.Pending)

	_, ok := eng.Scene(old.Scene)
	assert.False(t, ok, "old scene should be destroyed")
	assert.False(t, eng.MarkReady(old.Scene))

	ready(t, c, eng)

	st = c.State()
	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModePoint, st.Layers[0].Mode)
	assert.Len(t, engineLayers(t, eng, st.Scene), 1)

	created, destroyed := eng.Stats()
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, destroyed)
	assert.Len(t, eng.Scenes(), 1)
}

func TestStyleChange_BeforeReadyCancelsOldRegistration(t *testing.T) {
	c, eng, _ := newTestController(t)

	c.Apply(request("light", core.ModePoint, origin))
	old := c.State().Scene
	c.Apply(request("dark", core.ModeColumn, origin))

	// The first scene is gone; its readiness can no longer reach the controller.
	assert.False(t, eng.MarkReady(old))
	c.onSceneReady(1)
	assert.Empty(t, c.State().Layers)

	ready(t, c, eng)
	st := c.State()
	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModeColumn, st.Layers[0].Mode)
	assert.Equal(t, uint64(2), st.Epoch)
}

func TestUnmount_TwiceIsNoop(t *testing.T) {
	c, eng, logger := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)

	assert.NotPanics(t, c.Unmount)
	assert.NotPanics(t, c.Unmount)

	created, destroyed := eng.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, 1, eng.CountCalls(memory.OpDestroy))
	assert.Equal(t, 0, logger.count("WARN"))
}

func TestUnmount_BeforeReady(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	id := c.State().Scene

	c.Unmount()

	st := c.State()
	assert.True(t, st.Unmounted)
	assert.Empty(t, st.Scene)
	assert.Empty(t, st.Layers)
	assert.False(t, st.Pending)
	assert.Empty(t, eng.Scenes())

	// Late readiness from the engine must not resurrect anything.
	assert.False(t, eng.MarkReady(id))
	c.onSceneReady(st.Epoch + 1)
	assert.Equal(t, 0, eng.CountCalls(memory.OpAddLayer))
}

func TestUnmount_AfterReady(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModeHeatmap, origin))
	ready(t, c, eng)
	require.Len(t, c.State().Layers, 1)

	c.Unmount()

	assert.Empty(t, c.State().Layers)
	assert.Empty(t, eng.Scenes())
	assert.Equal(t, 1, eng.CountCalls(memory.OpRemoveLayer))
}

func TestUnmount_WithoutScene(t *testing.T) {
	c, eng, _ := newTestController(t)
	assert.NotPanics(t, c.Unmount)
	assert.Empty(t, eng.Calls())
}

func TestApply_AfterUnmountIgnored(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Unmount()

	c.Apply(request("light", core.ModePoint, origin))

	created, _ := eng.Stats()
	assert.Equal(t, 0, created)
	assert.False(t, c.State().Pending)
}

func TestRestylePolicy_KeepsSceneAndLayers(t *testing.T) {
	c, eng, _ := newTestController(t, func(o *Options) { o.StylePolicy = StylePolicyRestyle })

	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)
	before := c.State()

	c.Apply(request("dark", core.ModePoint, origin))

	st := c.State()
	assert.Equal(t, before.Scene, st.Scene)
	assert.Equal(t, "dark", st.BaseStyle)
	require.Len(t, st.Layers, 1)

	rec, ok := eng.Scene(st.Scene)
	require.True(t, ok)
	assert.Equal(t, "dark", rec.Style)
	created, destroyed := eng.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, destroyed)
}

func TestRestyle_DoesNotTouchLayers(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModeColumn, origin))
	ready(t, c, eng)
	before := c.State()
	removes := eng.CountCalls(memory.OpRemoveLayer)

	c.Restyle("satellite")

	st := c.State()
	assert.Equal(t, before.Layers, st.Layers)
	assert.Equal(t, "satellite", st.BaseStyle)
	assert.Equal(t, removes, eng.CountCalls(memory.OpRemoveLayer))
	assert.Len(t, engineLayers(t, eng, st.Scene), 1)

	// Same style again is a no-op.
	c.Restyle("satellite")
	assert.Equal(t, 1, eng.CountCalls(memory.OpSetStyle))
}

func TestRestyle_WithoutSceneIsNoop(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Restyle("dark")
	assert.Empty(t, eng.Calls())
}

func TestTilt_FollowsMode(t *testing.T) {
	c, eng, _ := newTestController(t)

	c.Apply(request("light", core.ModeColumn, origin))
	rec, ok := eng.Scene(c.State().Scene)
	require.True(t, ok)
	assert.Equal(t, 45.0, rec.Config.Tilt)
	ready(t, c, eng)
	assert.Equal(t, 0, eng.CountCalls(memory.OpSetTilt))

	c.Apply(request("light", core.ModePoint, origin))
	rec, _ = eng.Scene(c.State().Scene)
	assert.Equal(t, 0.0, rec.Tilt)
	assert.Equal(t, 0.0, c.State().Tilt)

	c.Apply(request("light", core.ModeColumn, origin))
	rec, _ = eng.Scene(c.State().Scene)
	assert.Equal(t, 45.0, rec.Tilt)

	// Tilt is set before the layer is built.
	calls := eng.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, memory.OpAddLayer, last.Op)
	assert.Equal(t, memory.OpSetTilt, calls[len(calls)-3].Op)
	assert.Equal(t, memory.OpRemoveLayer, calls[len(calls)-2].Op)
}

func TestTilt_StyleRebuildInColumnMode(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModeColumn, origin))
	ready(t, c, eng)

	c.Apply(request("dark", core.ModeColumn, origin))

	rec, ok := eng.Scene(c.State().Scene)
	require.True(t, ok)
	assert.Equal(t, 45.0, rec.Config.Tilt, "new scene must be created with the column tilt")
	ready(t, c, eng)
	assert.Equal(t, 0, eng.CountCalls(memory.OpSetTilt))
}

func TestTilt_ReconciledWhenModeChangesBeforeReady(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	c.Apply(request("light", core.ModeColumn, origin))

	ready(t, c, eng)

	rec, _ := eng.Scene(c.State().Scene)
	assert.Equal(t, 45.0, rec.Tilt)
	assert.Equal(t, 45.0, c.State().Tilt)
}

func TestTilt_FailureKeepsColumnOffFlatScene(t *testing.T) {
	c, eng, logger := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)
	require.Len(t, c.State().Layers, 1)

	eng.Fail(memory.OpSetTilt, errors.New("camera locked"))
	c.Apply(request("light", core.ModeColumn, origin))

	st := c.State()
	assert.Empty(t, st.Layers, "previous layer is cleared, nothing attached")
	assert.Empty(t, engineLayers(t, eng, st.Scene))
	assert.Equal(t, 0.0, st.Tilt)
	assert.Equal(t, 2, logger.count("ERROR"))

	// The next apply retries the tilt before attaching.
	eng.ClearFailures()
	c.Apply(request("light", core.ModeColumn, origin))

	st = c.State()
	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModeColumn, st.Layers[0].Mode)
	rec, _ := eng.Scene(st.Scene)
	assert.Equal(t, 45.0, rec.Tilt)
}

func TestTilt_FailureStillRendersFlatModes(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModeColumn, origin))
	ready(t, c, eng)

	eng.Fail(memory.OpSetTilt, errors.New("camera locked"))
	c.Apply(request("light", core.ModePoint, origin))

	st := c.State()
	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModePoint, st.Layers[0].Mode)
	assert.Equal(t, 45.0, st.Tilt)
}

func TestInitFailure_NoMapAndRetry(t *testing.T) {
	c, eng, logger := newTestController(t)
	eng.Fail(memory.OpCreate, errors.New("bad credentials"))

	assert.NotPanics(t, func() { c.Apply(request("light", core.ModePoint, origin)) })

	st := c.State()
	assert.Empty(t, st.Scene)
	assert.True(t, st.Pending)
	assert.Equal(t, 1, logger.count("ERROR"))

	eng.ClearFailures()
	c.Apply(request("light", core.ModeHeatmap, origin))
	ready(t, c, eng)

	st = c.State()
	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModeHeatmap, st.Layers[0].Mode)
}

func TestTeardownFailure_TreatedAsSuccess(t *testing.T) {
	c, eng, logger := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)

	eng.Fail(memory.OpRemoveLayer, errors.New("layer already gone"))
	eng.Fail(memory.OpDestroy, errors.New("handle invalid"))

	assert.NotPanics(t, c.Unmount)

	st := c.State()
	assert.Empty(t, st.Layers)
	assert.Empty(t, st.Scene)
	assert.Equal(t, 2, logger.count("WARN"))
}

func TestClearAll_FailureDoesNotBlockRebuild(t *testing.T) {
	c, eng, logger := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)

	eng.Fail(memory.OpRemoveLayer, errors.New("detach failed"))
	c.Apply(request("light", core.ModeColumn, origin))

	st := c.State()
	require.Len(t, st.Layers, 1)
	assert.Equal(t, core.ModeColumn, st.Layers[0].Mode)
	assert.Equal(t, 1, logger.count("WARN"))
}

func TestClearAll_ContinuesPastFailingLayer(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)

	s := c.scene
	// The unknown layer fails first; the real one must still be detached.
	c.layers.layers = append([]core.Layer{{ID: "missing", Mode: core.ModePoint}}, c.layers.layers...)
	c.layers.clearAll(c, s)

	assert.Equal(t, 0, c.layers.len())
	assert.Empty(t, engineLayers(t, eng, s.id))
	assert.Equal(t, 2, eng.CountCalls(memory.OpRemoveLayer))
}

func TestBuildFailure_LeavesEmptyMap(t *testing.T) {
	c, eng, logger := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)
	id := c.State().Scene

	bad := core.DataPoint{Lng: 0, Lat: 0, Value: math.NaN()}
	c.Apply(request("light", core.ModeColumn, bad))

	assert.Empty(t, c.State().Layers)
	assert.Empty(t, engineLayers(t, eng, id), "previous layer must not stay attached")
	assert.Equal(t, 1, logger.count("ERROR"))

	// The next valid update recovers.
	c.Apply(request("light", core.ModeColumn, origin))
	assert.Len(t, c.State().Layers, 1)
}

func TestBuildFailure_AggregatorPanics(t *testing.T) {
	c, eng, logger := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)

	req := request("light", core.ModeHeatmap, origin)
	req.Aggregate = func() []core.HeatmapCell { panic("aggregation exploded") }

	assert.NotPanics(t, func() { c.Apply(req) })
	assert.Empty(t, c.State().Layers)
	assert.Equal(t, 1, logger.count("ERROR"))
}

func TestBuildFailure_MissingAggregator(t *testing.T) {
	c, eng, _ := newTestController(t)
	req := request("light", core.ModeHeatmap, origin)
	req.Aggregate = nil
	c.Apply(req)
	ready(t, c, eng)

	assert.Empty(t, c.State().Layers)
	assert.Equal(t, 0, eng.CountCalls(memory.OpAddLayer))
}

func TestUnknownMode_LeavesEmptyMap(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)

	c.Apply(request("light", core.Mode("bars"), origin))
	assert.Empty(t, c.State().Layers)
}

func TestAddLayerFailure_LeavesEmptyMap(t *testing.T) {
	c, eng, logger := newTestController(t)
	eng.Fail(memory.OpAddLayer, errors.New("gpu lost"))
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)

	assert.Empty(t, c.State().Layers)
	assert.Equal(t, 1, logger.count("ERROR"))
}

func TestEmptyDataset_AttachesEmptyLayer(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModePoint))
	ready(t, c, eng)

	st := c.State()
	require.Len(t, st.Layers, 1)
	layers := engineLayers(t, eng, st.Scene)
	require.Len(t, layers, 1)
	assert.Empty(t, layers[0].Spec.Features)
}

func TestDataChange_RebuildsLayer(t *testing.T) {
	c, eng, _ := newTestController(t)
	c.Apply(request("light", core.ModePoint, origin))
	ready(t, c, eng)

	c.Apply(request("light", core.ModePoint, origin, core.DataPoint{Lng: 1, Lat: 1, Value: 90}))

	st := c.State()
	require.Len(t, st.Layers, 1)
	layers := engineLayers(t, eng, st.Scene)
	require.Len(t, layers, 1)
	assert.Len(t, layers[0].Spec.Features, 2)
	created, _ := eng.Stats()
	assert.Equal(t, 1, created)
}

func TestProperty_NeverMoreThanOneLayer(t *testing.T) {
	c, eng, _ := newTestController(t)
	rng := rand.New(rand.NewSource(42))
	styles := []string{"light", "dark", "normal"}
	modes := []core.Mode{core.ModePoint, core.ModeHeatmap, core.ModeColumn}

	createdSeen := 0
	lastStyle := ""
	for i := 0; i < 500; i++ {
		switch rng.Intn(4) {
		case 0, 1:
			style := styles[rng.Intn(len(styles))]
			n := rng.Intn(5)
			points := make([]core.DataPoint, n)
			for j := range points {
				points[j] = core.DataPoint{Lng: rng.Float64()*360 - 180, Lat: rng.Float64()*180 - 90, Value: rng.Float64() * 200}
			}
			c.Apply(request(style, modes[rng.Intn(len(modes))], points...))

			created, _ := eng.Stats()
			if lastStyle != "" && style == lastStyle {
				assert.Equal(t, createdSeen, created, "scene recreated without a style change at step %d", i)
			}
			createdSeen = created
			lastStyle = style
		case 2:
			if id := c.State().Scene; id != "" {
				eng.MarkReady(id)
			}
		case 3:
			c.Restyle(c.State().BaseStyle)
		}

		st := c.State()
		require.LessOrEqual(t, len(st.Layers), 1, "step %d", i)
		if st.Scene != "" {
			require.LessOrEqual(t, len(engineLayers(t, eng, st.Scene)), 1, "step %d", i)
			if !st.Ready {
				require.Empty(t, st.Layers, "layer attached before readiness at step %d", i)
			}
		}
		require.LessOrEqual(t, len(eng.Scenes()), 1, "step %d", i)
	}
}

func TestAutoReadyEngine(t *testing.T) {
	eng := memory.New(memory.WithAutoReady(time.Millisecond))
	c, err := New(eng, Options{Surface: "map", Logger: &testLogger{}})
	require.NoError(t, err)

	c.Apply(request("light", core.ModePoint, origin))
	c.Apply(request("light", core.ModeHeatmap, origin))

	require.Eventually(t, func() bool {
		return len(c.State().Layers) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, core.ModeHeatmap, c.State().Layers[0].Mode)

	c.Unmount()
	assert.Empty(t, eng.Scenes())
}

func TestConcurrentApply(t *testing.T) {
	eng := memory.New(memory.WithAutoReady(0))
	c, err := New(eng, Options{Surface: "map", Logger: &testLogger{}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mode := []core.Mode{core.ModePoint, core.ModeHeatmap, core.ModeColumn}[i%3]
			c.Apply(request("light", mode, origin))
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		st := c.State()
		return st.Ready && !st.Pending
	}, time.Second, time.Millisecond)

	st := c.State()
	assert.Len(t, st.Layers, 1)
	assert.Len(t, engineLayers(t, eng, st.Scene), 1)
	created, _ := eng.Stats()
	assert.Equal(t, 1, created)
}

func TestParseStylePolicy(t *testing.T) {
	p, err := ParseStylePolicy("")
	require.NoError(t, err)
	assert.Equal(t, StylePolicyRebuild, p)

	p, err = ParseStylePolicy("restyle")
	require.NoError(t, err)
	assert.Equal(t, StylePolicyRestyle, p)

	_, err = ParseStylePolicy("repaint")
	assert.Error(t, err)
}
