package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Sink is one named destination of the log fan-out: the console or log
// file, the OTel bridge, a GELF endpoint.
type Sink struct {
	Name    string
	Handler slog.Handler
}

// sinkFailures is shared by a Fanout and every handler derived from it
// through WithAttrs or WithGroup.
type sinkFailures struct {
	mu sync.Mutex
	n  map[string]int
}

func (f *sinkFailures) add(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n[name]++
}

// Fanout delivers every record to each sink that accepts its level. A
// failing sink does not keep the record from the others. slog.Logger
// discards Handle's error, so failures are also counted per sink.
type Fanout struct {
	sinks    []Sink
	failures *sinkFailures
}

// NewFanout builds a fan-out over sinks. Sinks without a handler are
// dropped.
func NewFanout(sinks ...Sink) *Fanout {
	valid := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.Handler != nil {
			valid = append(valid, s)
		}
	}
	return &Fanout{
		sinks:    valid,
		failures: &sinkFailures{n: make(map[string]int)},
	}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.Handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle returns the joined errors of the sinks that failed.
func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.Handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handler.Handle(ctx, r.Clone()); err != nil {
			f.failures.add(s.Name)
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) derive(fn func(slog.Handler) slog.Handler) *Fanout {
	sinks := make([]Sink, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = Sink{Name: s.Name, Handler: fn(s.Handler)}
	}
	return &Fanout{sinks: sinks, failures: f.failures}
}

// Names lists the sinks in delivery order.
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name
	}
	return names
}

// Failures returns the number of records each sink failed to take, for
// sinks that failed at least once.
func (f *Fanout) Failures() map[string]int {
	f.failures.mu.Lock()
	defer f.failures.mu.Unlock()
	out := make(map[string]int, len(f.failures.n))
	for name, n := range f.failures.n {
		out[name] = n
	}
	return out
}

// failedSinks returns the sink names with failures, sorted.
func failedSinks(failures map[string]int) []string {
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
