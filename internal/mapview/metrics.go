package mapview

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/carbonlab/mapviz/pkg/core"
)

const instrumentationName = "github.com/carbonlab/mapviz/internal/mapview"

func globalMeter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	scenesCreated   metric.Int64Counter
	scenesDestroyed metric.Int64Counter
	layersAttached  metric.Int64Counter
	layersDetached  metric.Int64Counter
	failures        metric.Int64Counter
	pendingReplaced metric.Int64Counter
	liveLayers      metric.Int64ObservableGauge

	registration metric.Registration
}

// newMetrics creates the controller instruments on m, or on the global OTel
// meter when m is nil. live is polled for the layer gauge.
func newMetrics(m metric.Meter, live func() int) (*metrics, error) {
	if m == nil {
		m = globalMeter()
	}
	out := &metrics{}

	var err error
	out.scenesCreated, err = m.Int64Counter(
		"mapview.scenes.created",
		metric.WithDescription("Scenes created"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scenes created counter: %w", err)
	}

	out.scenesDestroyed, err = m.Int64Counter(
		"mapview.scenes.destroyed",
		metric.WithDescription("Scenes destroyed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scenes destroyed counter: %w", err)
	}

	out.layersAttached, err = m.Int64Counter(
		"mapview.layers.attached",
		metric.WithDescription("Layers attached, by mode"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating layers attached counter: %w", err)
	}

	out.layersDetached, err = m.Int64Counter(
		"mapview.layers.detached",
		metric.WithDescription("Layers detached, by mode"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating layers detached counter: %w", err)
	}

	out.failures, err = m.Int64Counter(
		"mapview.engine.failures",
		metric.WithDescription("Recovered engine and build failures, by operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}

	out.pendingReplaced, err = m.Int64Counter(
		"mapview.pending.replaced",
		metric.WithDescription("Pending renders superseded before the scene was ready"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pending replaced counter: %w", err)
	}

	out.liveLayers, err = m.Int64ObservableGauge(
		"mapview.layers.live",
		metric.WithDescription("Layers currently attached"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating live layers gauge: %w", err)
	}

	out.registration, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.liveLayers, int64(live()))
			return nil
		},
		out.liveLayers,
	)
	if err != nil {
		return nil, fmt.Errorf("registering live layers callback: %w", err)
	}

	return out, nil
}

func (m *metrics) sceneCreated() {
	m.scenesCreated.Add(context.Background(), 1)
}

func (m *metrics) sceneDestroyed() {
	m.scenesDestroyed.Add(context.Background(), 1)
}

func (m *metrics) layerAttached(mode core.Mode) {
	m.layersAttached.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", string(mode))))
}

func (m *metrics) layerDetached(mode core.Mode) {
	m.layersDetached.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", string(mode))))
}

func (m *metrics) replaced(mode core.Mode) {
	m.pendingReplaced.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", string(mode))))
}

func (m *metrics) failure(op string) {
	m.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *metrics) close() {
	if m.registration != nil {
		_ = m.registration.Unregister()
	}
}
