package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/carbonlab/mapviz/internal/config"
	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/internal/engine/echarts"
	"github.com/carbonlab/mapviz/internal/engine/memory"
	"github.com/carbonlab/mapviz/internal/engine/websocket"
	"github.com/carbonlab/mapviz/internal/logging"
	"github.com/carbonlab/mapviz/internal/mapview"
)

// newEngine builds the configured rendering engine. The returned close
// function releases engine level resources and is never nil.
func (a *app) newEngine(cfg config.EngineConfig) (engine.Engine, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case "", "memory":
		a.logger.Info("Using in-memory engine", "readyDelay", cfg.Memory.ReadyDelay)
		return memory.New(memory.WithAutoReady(cfg.Memory.ReadyDelay)), noop, nil

	case "websocket":
		e := websocket.New(websocket.Config{
			URL:        cfg.WebSocket.URL,
			Secret:     cfg.WebSocket.Secret,
			AckTimeout: cfg.WebSocket.AckTimeout,
		}, a.logger)
		if err := e.Connect(); err != nil {
			return nil, nil, fmt.Errorf("connect to renderer %s: %w", cfg.WebSocket.URL, err)
		}
		a.logger.Info("Connected to remote renderer", "url", cfg.WebSocket.URL)
		return e, e.Close, nil

	case "echarts":
		e, err := echarts.New(echarts.Config{
			OutputDir:  cfg.ECharts.OutputDir,
			Width:      cfg.ECharts.Width,
			Height:     cfg.ECharts.Height,
			AssetsHost: cfg.ECharts.AssetsHost,
		}, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("Using HTML snapshot engine", "outputDir", cfg.ECharts.OutputDir)
		return e, noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine type %q", cfg.Type)
	}
}

// controllerLogger returns the logger handed to the controller: the slog
// logger by default, zerolog JSON lines when logFormat is "json".
func (a *app) controllerLogger() mapview.Logger {
	if viper.GetString("logFormat") != "json" {
		return a.logger
	}
	out := os.Stdout
	if a.logFile != nil {
		out = a.logFile
	}
	return logging.NewZerologAdapter(logging.NewZerolog(out, viper.GetString("logLevel")))
}

const mapviewMeterName = "github.com/carbonlab/mapviz/internal/mapview"

// newController wires an engine into a controller using the map section
// of the config.
func (a *app) newController(eng engine.Engine) (*mapview.Controller, error) {
	mc := config.GetMapConfig()
	policy, err := mapview.ParseStylePolicy(mc.StylePolicy)
	if err != nil {
		return nil, err
	}
	return mapview.New(eng, mapview.Options{
		Surface:     engine.Surface(mc.Surface),
		Viewport:    engine.Viewport{Center: mc.Center, Zoom: mc.Zoom},
		StylePolicy: policy,
		Render:      renderOptions(mc),
		Logger:      a.controllerLogger(),
		Meter:       a.otel.Meter(mapviewMeterName),
	})
}
