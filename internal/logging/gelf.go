package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// gelfWriter is the part of *gelf.Writer the handler needs.
type gelfWriter interface {
	WriteMessage(m *gelf.Message) error
}

// Syslog severities used by GELF's level field.
const (
	syslogError   int32 = 3
	syslogWarning int32 = 4
	syslogInfo    int32 = 6
	syslogDebug   int32 = 7
)

// GELFHandler sends each record to a Graylog input as a GELF message.
// Attributes become additional fields, "_" prefixed with groups joined by
// dots.
type GELFHandler struct {
	w        gelfWriter
	level    slog.Leveler
	host     string
	facility string
	extra    map[string]any
	prefix   string
}

// DialGELF opens a UDP GELF writer to addr ("host:port").
func DialGELF(addr, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("dial gelf %s: %w", addr, err)
	}
	if facility != "" {
		w.Facility = facility
	}
	return w, nil
}

// NewGELFHandler builds a handler writing to w at or above level.
func NewGELFHandler(w gelfWriter, facility string, level slog.Leveler) *GELFHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &GELFHandler{
		w:        w,
		level:    level,
		host:     host,
		facility: facility,
		extra:    map[string]any{},
	}
}

func (h *GELFHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *GELFHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.extra)+r.NumAttrs())
	for k, v := range h.extra {
		extra[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addGELFField(extra, h.prefix, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return h.w.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(ts.UnixNano()) / float64(time.Second),
		Level:    gelfLevel(r.Level),
		Facility: h.facility,
		Extra:    extra,
	})
}

func (h *GELFHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		addGELFField(c.extra, c.prefix, a)
	}
	return c
}

func (h *GELFHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix = h.prefix + name + "."
	return c
}

func (h *GELFHandler) clone() *GELFHandler {
	c := *h
	c.extra = make(map[string]any, len(h.extra))
	for k, v := range h.extra {
		c.extra[k] = v
	}
	return &c
}

// addGELFField flattens a into fields; GELF has no nested fields.
func addGELFField(fields map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			addGELFField(fields, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	// "_id" is reserved by Graylog.
	key := "_" + prefix + a.Key
	if key == "_id" {
		key = "_attr_id"
	}
	switch v.Kind() {
	case slog.KindInt64:
		fields[key] = v.Int64()
	case slog.KindUint64:
		fields[key] = v.Uint64()
	case slog.KindFloat64:
		fields[key] = v.Float64()
	case slog.KindBool:
		fields[key] = v.Bool()
	default:
		fields[key] = v.String()
	}
}

func gelfLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return syslogError
	case l >= slog.LevelWarn:
		return syslogWarning
	case l >= slog.LevelInfo:
		return syslogInfo
	default:
		return syslogDebug
	}
}
