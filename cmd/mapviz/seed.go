package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carbonlab/mapviz/internal/config"
	"github.com/carbonlab/mapviz/internal/dataset"
	"github.com/carbonlab/mapviz/internal/geo"
)

func newSeedCommand(a *app) *cobra.Command {
	opts := dataset.SeedOptions{}
	var importPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a synthetic experiment dataset into the dataset store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var n int
			if importPath != "" {
				n, err = importPoints(cmd.Context(), store, opts.Slug, importPath)
			} else {
				n, err = store.Seed(cmd.Context(), opts)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d observations into %q\n", n, opts.Slug)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Slug, "experiment", "carbon-neutral-prediction", "experiment slug")
	f.IntVar(&opts.Points, "points", 500, "number of observations")
	f.IntVar(&opts.FromYear, "from", 2020, "first year")
	f.IntVar(&opts.ToYear, "to", 2060, "last year")
	f.Int64Var(&opts.Seed, "seed", 1, "random seed")
	f.StringVar(&importPath, "import", "", "read [[lng,lat,value],...] from this JSON file instead of generating points")
	return cmd
}

// importPoints appends the points of a JSON file to the experiment,
// creating it when needed.
func importPoints(ctx context.Context, store *dataset.Store, slug, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read import file: %w", err)
	}
	points, err := geo.ParsePoints(string(raw))
	if err != nil {
		return 0, err
	}
	if _, err := store.Experiment(ctx, slug); errors.Is(err, dataset.ErrNotFound) {
		if err := store.SaveExperiment(ctx, &dataset.Experiment{Slug: slug, Title: slug}); err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}
	if err := store.AddPoints(ctx, slug, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

func (a *app) openStore() (*dataset.Store, error) {
	dc := config.GetDatasetConfig()
	return dataset.Open(dataset.Config{Driver: dc.Driver, DSN: dc.DSN}, a.logger)
}
