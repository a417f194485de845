package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/carbonlab/mapviz/internal/config"
	"github.com/carbonlab/mapviz/internal/dataset"
	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/internal/mapview"
	"github.com/carbonlab/mapviz/internal/render"
	"github.com/carbonlab/mapviz/pkg/core"
)

const settlePoll = 10 * time.Millisecond

// renderFlags selects the data and the visualization of one request.
type renderFlags struct {
	Experiment string
	Style      string
	Mode       string
	FromYear   int
	ToYear     int
	Timeout    time.Duration
}

func newRenderCommand(a *app) *cobra.Command {
	rf := &renderFlags{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one visualization of an experiment and print the resulting map state",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := core.ParseMode(rf.Mode)
			if err != nil {
				return err
			}
			style := rf.Style
			if style == "" {
				style = config.GetMapConfig().DefaultStyle
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			return a.withController(func(c *mapview.Controller, eng engine.Engine) error {
				req, err := loadRequest(cmd.Context(), store, rf.Experiment, core.VisualizationConfig{BaseStyle: style, Mode: mode}, dataset.Filter{FromYear: rf.FromYear, ToYear: rf.ToYear})
				if err != nil {
					return err
				}
				c.Apply(req)
				st, err := waitSettled(cmd.Context(), c, rf.Timeout)
				if err != nil {
					return err
				}
				a.recordState(cmd.Context(), cmd.Name(), 0, st)
				a.logger.InfoContext(cmd.Context(), "Map settled", "mode", mode, "style", style, "layers", len(st.Layers))
				return printState(cmd.OutOrStdout(), st, eng)
			})
		},
	}

	addRenderFlags(cmd, rf)
	return cmd
}

func addRenderFlags(cmd *cobra.Command, rf *renderFlags) {
	f := cmd.Flags()
	f.StringVar(&rf.Experiment, "experiment", "carbon-neutral-prediction", "experiment slug")
	f.StringVar(&rf.Style, "style", "", "base map style (default from config)")
	f.StringVar(&rf.Mode, "mode", string(core.ModePoint), "visualization mode (point, heatmap, column)")
	f.IntVar(&rf.FromYear, "from", 0, "first year to include")
	f.IntVar(&rf.ToYear, "to", 0, "last year to include")
	f.DurationVar(&rf.Timeout, "timeout", 10*time.Second, "how long to wait for the scene to settle")
}

// withController builds the engine and controller, runs fn and always
// unmounts and closes the engine afterwards.
func (a *app) withController(fn func(*mapview.Controller, engine.Engine) error) error {
	eng, closeEngine, err := a.newEngine(config.GetEngineConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEngine(); err != nil {
			a.logger.Warn("Closing engine failed", "error", err)
		}
	}()

	c, err := a.newController(eng)
	if err != nil {
		return err
	}
	defer c.Unmount()

	return fn(c, eng)
}

// loadRequest reads the experiment's points and pairs them with a lazy
// grid aggregator for heatmap mode.
func loadRequest(ctx context.Context, store *dataset.Store, slug string, cfg core.VisualizationConfig, f dataset.Filter) (mapview.Request, error) {
	points, err := store.Points(ctx, slug, f)
	if err != nil {
		return mapview.Request{}, err
	}
	return mapview.Request{
		Config:    cfg,
		Dataset:   points,
		Aggregate: dataset.Aggregator(points, config.GetDatasetConfig().CellSize),
	}, nil
}

// waitSettled polls until the scene is ready and nothing is pending.
func waitSettled(ctx context.Context, c *mapview.Controller, timeout time.Duration) (mapview.State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for {
		st := c.State()
		if st.Ready && !st.Pending {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("scene did not settle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

type stateReport struct {
	Scene     core.SceneID `json:"scene"`
	Epoch     uint64       `json:"epoch"`
	BaseStyle string       `json:"baseStyle"`
	Tilt      float64      `json:"tilt"`
	Layers    []core.Layer `json:"layers"`
	// Superseded counts requests replaced before the scene was ready.
	Superseded int    `json:"superseded"`
	Snapshot   string `json:"snapshot,omitempty"`
}

// snapshotter is implemented by engines that write a file per scene.
type snapshotter interface {
	Path(core.SceneID) string
}

func printState(w io.Writer, st mapview.State, eng engine.Engine) error {
	rep := stateReport{
		Scene:      st.Scene,
		Epoch:      st.Epoch,
		BaseStyle:  st.BaseStyle,
		Tilt:       st.Tilt,
		Layers:     st.Layers,
		Superseded: st.Superseded,
	}
	if rep.Layers == nil {
		rep.Layers = []core.Layer{}
	}
	if s, ok := eng.(snapshotter); ok {
		rep.Snapshot = s.Path(st.Scene)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func renderOptions(mc config.MapConfig) render.Options {
	opts := render.DefaultOptions()
	if mc.MaxValue > 0 {
		opts.MaxValue = mc.MaxValue
	}
	return opts
}
