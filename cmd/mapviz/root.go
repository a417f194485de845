package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carbonlab/mapviz/internal/config"
	"github.com/carbonlab/mapviz/internal/geo"
	"github.com/carbonlab/mapviz/internal/influx"
	"github.com/carbonlab/mapviz/internal/logging"
	"github.com/carbonlab/mapviz/internal/mapview"
	intOtel "github.com/carbonlab/mapviz/internal/otel"
)

// rootOptions holds global CLI flags.
type rootOptions struct {
	ConfigDir string
	LogLevel  string
	LogFormat string
	Engine    string
	Center    string
	LogToFile bool
}

// app carries what PersistentPreRunE initialized through the command tree.
type app struct {
	opts         *rootOptions
	slog         *logging.SlogManager
	logger       *slog.Logger
	otel         *intOtel.Provider
	gelf         *gelf.Writer
	influx       *influx.Writer
	logFile      *os.File
	otelFile     *os.File
	metricsFile  *os.File
	sessionStart time.Time
}

func newRootCommand() *cobra.Command {
	a := &app{opts: &rootOptions{}, slog: logging.NewSlogManager()}

	cmd := &cobra.Command{
		Use:     "mapviz",
		Short:   "Map visualization lifecycle manager",
		Version: fmt.Sprintf("%s (built: %s)", Version, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.opts.ConfigDir, "config-dir", "c", ".", "directory containing "+config.FileName)
	pf.StringVar(&a.opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&a.opts.LogFormat, "log-format", "", "controller log format (text, json)")
	pf.StringVarP(&a.opts.Engine, "engine", "e", "", "rendering engine (memory, websocket, echarts)")
	pf.StringVar(&a.opts.Center, "center", "", `initial map center as "lng,lat"`)
	pf.BoolVar(&a.opts.LogToFile, "log-file", false, "write logs to a file under logsDir instead of stdout")

	cmd.AddCommand(
		newSeedCommand(a),
		newRenderCommand(a),
		newReplayCommand(a),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	a.sessionStart = time.Now()

	configErr := config.Load(a.opts.ConfigDir)
	var notFound viper.ConfigFileNotFoundError
	if configErr != nil && !errors.As(configErr, &notFound) {
		return configErr
	}
	if err := a.applyFlags(cmd); err != nil {
		return err
	}

	otelCfg := config.GetOTelConfig()
	if a.opts.LogToFile || otelCfg.Enabled {
		if err := os.MkdirAll(viper.GetString("logsDir"), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
	}

	if a.opts.LogToFile {
		f, err := os.OpenFile(logging.LogFilePath(viper.GetString("logsDir"), cmd.Name(), a.sessionStart), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
	}

	var err error
	a.otel, err = a.newOTel(cmd.Name(), otelCfg)
	if err != nil {
		return err
	}

	gelfCfg := config.GetGELFConfig()
	var gelfErr error
	if gelfCfg.Address != "" {
		a.gelf, gelfErr = logging.DialGELF(gelfCfg.Address, gelfCfg.Facility)
	}

	session := a.sessionStart.Format("20060102_150405")
	logOpts := logging.Options{
		Level:        viper.GetString("logLevel"),
		Provider:     a.otel.LoggerProvider(),
		GELF:         a.gelf,
		GELFFacility: gelfCfg.Facility,
		Context: func() []slog.Attr {
			return []slog.Attr{slog.String("session", session)}
		},
	}
	if a.logFile != nil {
		logOpts.File = a.logFile
	}
	a.slog.Setup(logOpts)
	a.logger = a.slog.Logger()
	cmd.SetContext(logging.ContextWith(cmd.Context(), slog.String("command", cmd.Name())))

	if configErr != nil {
		a.logger.Warn("Config file not found, using defaults", "dir", a.opts.ConfigDir)
	}
	if gelfErr != nil {
		a.logger.Warn("Graylog sink disabled", "address", gelfCfg.Address, "error", gelfErr)
	}

	a.influx, err = a.connectInflux(cmd.Context(), config.GetInfluxConfig())
	if err != nil {
		a.logger.Warn("InfluxDB state writer disabled", "error", err)
	}
	return nil
}

// connectInflux returns a nil writer without error when influx is off.
func (a *app) connectInflux(ctx context.Context, cfg config.InfluxConfig) (*influx.Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return influx.Connect(ctx, influx.Config{
		Enabled:       true,
		URL:           cfg.URL,
		Token:         cfg.Token,
		Org:           cfg.Org,
		Bucket:        cfg.Bucket,
		BackupPath:    cfg.BackupPath,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, a.logger)
}

// recordState writes a controller snapshot to InfluxDB when enabled.
func (a *app) recordState(ctx context.Context, command string, step int, st mapview.State) {
	if a.influx == nil {
		return
	}
	if err := a.influx.WriteState(command, step, st, time.Now()); err != nil {
		a.logger.WarnContext(ctx, "Recording map state failed", "step", step, "error", err)
	}
}

// applyFlags lets explicitly set flags override the config file.
func (a *app) applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		viper.Set("logLevel", a.opts.LogLevel)
	}
	if flags.Changed("log-format") {
		viper.Set("logFormat", a.opts.LogFormat)
	}
	if flags.Changed("engine") {
		viper.Set("engine.type", a.opts.Engine)
	}
	if flags.Changed("center") {
		lng, lat, err := geo.LngLatFromString(a.opts.Center)
		if err != nil {
			return fmt.Errorf("--center %q: %w", a.opts.Center, err)
		}
		viper.Set("map.center", []float64{lng, lat})
	}
	return nil
}

func (a *app) newOTel(command string, cfg config.OTelConfig) (*intOtel.Provider, error) {
	if !cfg.Enabled {
		return intOtel.New(intOtel.Config{})
	}
	logsDir := viper.GetString("logsDir")
	f, err := os.OpenFile(
		logging.LogFilePath(logsDir, command+".otel", a.sessionStart),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		return nil, fmt.Errorf("open otel log file: %w", err)
	}
	mf, err := os.OpenFile(
		logging.LogFilePath(logsDir, command+".metrics", a.sessionStart),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open otel metrics file: %w", err)
	}
	p, err := intOtel.New(intOtel.Config{
		Enabled:        true,
		ServiceName:    cfg.ServiceName,
		BatchTimeout:   cfg.BatchTimeout,
		MetricInterval: cfg.MetricInterval,
		LogWriter:      f,
		MetricWriter:   mf,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
	})
	if err != nil {
		_ = f.Close()
		_ = mf.Close()
		return nil, fmt.Errorf("set up otel: %w", err)
	}
	a.otelFile = f
	a.metricsFile = mf
	return p, nil
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close influx: %w", err))
		}
	}
	a.slog.ReportSinkFailures()
	if err := a.slog.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.gelf != nil {
		if err := a.gelf.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gelf: %w", err))
		}
	}
	for _, f := range []*os.File{a.otelFile, a.metricsFile, a.logFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
