package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/carbonlab/mapviz/internal/config"
	"github.com/carbonlab/mapviz/internal/dataset"
	"github.com/carbonlab/mapviz/internal/engine"
	"github.com/carbonlab/mapviz/internal/mapview"
	"github.com/carbonlab/mapviz/pkg/core"
)

// replayStep is one line of a replay script. Empty style and mode keep
// the previous values.
type replayStep struct {
	Style   string `json:"style"`
	Mode    string `json:"mode"`
	From    int    `json:"from"`
	To      int    `json:"to"`
	Restyle bool   `json:"restyle"` // change the style in place instead of applying
	Wait    bool   `json:"wait"`    // wait for the scene to settle before the next step
}

func newReplayCommand(a *app) *cobra.Command {
	var (
		experiment string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay [script.jsonl]",
		Short: "Apply a sequence of configuration changes read as JSON lines",
		Long: "Each input line is a JSON object such as\n" +
			`  {"style":"dark","mode":"heatmap","from":2030,"to":2040}` + "\n" +
			"Lines are applied in order without waiting unless \"wait\" is set, so\n" +
			"rapid changes exercise the pending-request buffer. Reads stdin without an argument.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open script: %w", err)
				}
				defer f.Close()
				in = f
			}
			steps, err := readSteps(in)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			return a.withController(func(c *mapview.Controller, eng engine.Engine) error {
				style := config.GetMapConfig().DefaultStyle
				mode := core.ModePoint
				for i, step := range steps {
					if step.Style != "" {
						style = step.Style
					}
					if step.Restyle {
						c.Restyle(style)
						a.recordState(cmd.Context(), cmd.Name(), i+1, c.State())
						continue
					}
					if step.Mode != "" {
						m, err := core.ParseMode(step.Mode)
						if err != nil {
							return fmt.Errorf("step %d: %w", i+1, err)
						}
						mode = m
					}
					req, err := loadRequest(cmd.Context(), store, experiment, core.VisualizationConfig{BaseStyle: style, Mode: mode}, dataset.Filter{FromYear: step.From, ToYear: step.To})
					if err != nil {
						return fmt.Errorf("step %d: %w", i+1, err)
					}
					c.Apply(req)
					if step.Wait {
						if _, err := waitSettled(cmd.Context(), c, timeout); err != nil {
							return fmt.Errorf("step %d: %w", i+1, err)
						}
					}
					a.recordState(cmd.Context(), cmd.Name(), i+1, c.State())
				}

				st, err := waitSettled(cmd.Context(), c, timeout)
				if err != nil {
					return err
				}
				a.recordState(cmd.Context(), cmd.Name(), len(steps)+1, st)
				a.logger.InfoContext(cmd.Context(), "Replay finished", "steps", len(steps), "superseded", st.Superseded)
				return printState(cmd.OutOrStdout(), st, eng)
			})
		},
	}

	cmd.Flags().StringVar(&experiment, "experiment", "carbon-neutral-prediction", "experiment slug")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the scene to settle")
	return cmd
}

func readSteps(r io.Reader) ([]replayStep, error) {
	var steps []replayStep
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var step replayStep
		if err := json.Unmarshal(raw, &step); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		steps = append(steps, step)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return steps, nil
}
