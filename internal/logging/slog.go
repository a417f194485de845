package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// osStdout is the console sink, replaced in tests.
var osStdout io.Writer = os.Stdout

// ServiceName is the instrumentation scope of the OTel bridge.
const ServiceName = "mapviz"

// SlogManager manages slog-based logging with optional OTel and GELF sinks.
type SlogManager struct {
	logger *slog.Logger
	fanout *Fanout

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// Options configures Setup.
type Options struct {
	// File receives the log when set; the console is used otherwise.
	File  io.Writer
	Level string
	// Format is "text" (default) or "json".
	Format string
	// Provider enables the OTel bridge when non-nil.
	Provider *sdklog.LoggerProvider
	// GELF adds a Graylog sink when non-nil.
	GELF         *gelf.Writer
	GELFFacility string
	// Context adds dynamic attributes to every record.
	Context ContextProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system with file or console output and
// optional OTel output.
func (m *SlogManager) Setup(opts Options) {
	lvl := parseLevel(opts.Level)
	m.logProvider = opts.Provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	out := opts.File
	if out == nil {
		out = osStdout
	}

	primary := Sink{Name: "console"}
	if opts.File != nil {
		primary.Name = "file"
	}
	if strings.EqualFold(opts.Format, "json") {
		primary.Handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		primary.Handler = slog.NewTextHandler(out, handlerOpts)
	}

	sinks := []Sink{primary}
	if opts.Provider != nil {
		sinks = append(sinks, Sink{Name: "otel", Handler: otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(opts.Provider))})
	}
	if opts.GELF != nil {
		sinks = append(sinks, Sink{Name: "gelf", Handler: NewGELFHandler(opts.GELF, opts.GELFFacility, lvl)})
	}

	m.fanout = NewFanout(sinks...)
	m.logger = slog.New(NewContextHandler(m.fanout, opts.Context))
	m.logger.Info("Logging initialized", "level", opts.Level, "format", opts.Format, "sinks", m.fanout.Names())
}

// SinkFailures returns per-sink counts of records a sink failed to take.
func (m *SlogManager) SinkFailures() map[string]int {
	if m.fanout == nil {
		return map[string]int{}
	}
	return m.fanout.Failures()
}

// ReportSinkFailures logs one warning per sink that dropped records. The
// warning itself still reaches the sinks that work.
func (m *SlogManager) ReportSinkFailures() {
	failures := m.SinkFailures()
	for _, name := range failedSinks(failures) {
		m.Logger().Warn("Log sink dropped records", "sink", name, "count", failures[name])
	}
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
