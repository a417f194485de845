// Package dataset stores experiments and their geolocated observations and
// turns them into the points and heatmap cells the map controller renders.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/carbonlab/mapviz/internal/geo"
	"github.com/carbonlab/mapviz/pkg/core"
)

var (
	// ErrUnknownDriver is returned by Open for drivers other than sqlite and postgres.
	ErrUnknownDriver = errors.New("unknown dataset driver")
	// ErrNotFound is returned when an experiment slug does not exist.
	ErrNotFound = errors.New("experiment not found")
)

// Config selects the database.
type Config struct {
	Driver string // "sqlite" or "postgres"
	// DSN is a file path for sqlite (empty for in-memory) or a postgres
	// connection string.
	DSN string
}

// Store wraps the gorm connection.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	gcfg := &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file::memory:"
		}
		db, err = gorm.Open(sqlite.Open(dsn), gcfg)
		if err == nil {
			// A single connection keeps an in-memory database alive and
			// serializes sqlite writers.
			sqlDB, dbErr := db.DB()
			if dbErr != nil {
				return nil, fmt.Errorf("access sql interface: %w", dbErr)
			}
			sqlDB.SetMaxOpenConns(1)
		}
	case "postgres":
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		}), gcfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	log.Info("Dataset store ready", "driver", db.Dialector.Name())

	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveExperiment creates the experiment or updates the one with the same slug.
func (s *Store) SaveExperiment(ctx context.Context, exp *Experiment) error {
	if exp.Slug == "" {
		return errors.New("experiment slug is required")
	}
	if exp.Props == nil {
		exp.Props = datatypes.JSON("{}")
	}

	var existing Experiment
	err := s.db.WithContext(ctx).Where("slug = ?", exp.Slug).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Omit("Observations").Create(exp).Error; err != nil {
			return fmt.Errorf("create experiment %s: %w", exp.Slug, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("find experiment %s: %w", exp.Slug, err)
	}

	exp.ID = existing.ID
	exp.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Omit("Observations").Save(exp).Error; err != nil {
		return fmt.Errorf("update experiment %s: %w", exp.Slug, err)
	}
	return nil
}

// Experiment looks an experiment up by slug.
func (s *Store) Experiment(ctx context.Context, slug string) (*Experiment, error) {
	var exp Experiment
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&exp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find experiment %s: %w", slug, err)
	}
	return &exp, nil
}

// Experiments lists all experiments ordered by slug.
func (s *Store) Experiments(ctx context.Context) ([]Experiment, error) {
	var out []Experiment
	if err := s.db.WithContext(ctx).Order("slug").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	return out, nil
}

// AddPoints stores points as observations of the experiment. Points with
// invalid coordinates are rejected before anything is written.
func (s *Store) AddPoints(ctx context.Context, slug string, points []core.DataPoint) error {
	exp, err := s.Experiment(ctx, slug)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	rows := make([]Observation, 0, len(points))
	for i, p := range points {
		if err := geo.ValidateLngLat(p.Lng, p.Lat); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
		rows = append(rows, Observation{
			ExperimentID: exp.ID,
			Lng:          p.Lng,
			Lat:          p.Lat,
			Value:        p.Value,
			Year:         p.Year,
			Label:        p.Label,
		})
	}

	if err := s.db.WithContext(ctx).CreateInBatches(rows, 2000).Error; err != nil {
		return fmt.Errorf("insert observations: %w", err)
	}
	s.log.Debug("Observations stored", "experiment", slug, "count", len(rows))
	return nil
}

// Filter narrows the observations returned by Points. Zero bounds are open.
type Filter struct {
	FromYear int
	ToYear   int
}

// Points returns the experiment's observations matching f.
func (s *Store) Points(ctx context.Context, slug string, f Filter) ([]core.DataPoint, error) {
	exp, err := s.Experiment(ctx, slug)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Where("experiment_id = ?", exp.ID)
	if f.FromYear != 0 {
		q = q.Where("year >= ?", f.FromYear)
	}
	if f.ToYear != 0 {
		q = q.Where("year <= ?", f.ToYear)
	}

	var rows []Observation
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}

	out := make([]core.DataPoint, len(rows))
	for i, r := range rows {
		out[i] = core.DataPoint{Lng: r.Lng, Lat: r.Lat, Value: r.Value, Year: r.Year, Label: r.Label}
	}
	return out, nil
}

// DecodeProps decodes the experiment's free-form properties into v.
func (e *Experiment) DecodeProps(v any) error {
	if len(e.Props) == 0 {
		return nil
	}
	return json.Unmarshal(e.Props, v)
}
