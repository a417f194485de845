// Package influx writes controller snapshots to InfluxDB. When the server
// does not answer a ping at connect time, points go to a gzip backup file
// of line protocol instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/carbonlab/mapviz/internal/mapview"
)

// Measurement is the name of the points written by WriteState.
const Measurement = "mapview_state"

// ErrDisabled is returned by Connect when influx is switched off.
var ErrDisabled = errors.New("influx disabled")

// Config holds the InfluxDB settings.
type Config struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
	BatchSize  uint
	// FlushInterval is rounded down to milliseconds.
	FlushInterval time.Duration
}

// Writer sends points to one bucket, or to the backup file when the server
// was unreachable at connect time.
type Writer struct {
	mu     sync.Mutex
	client influxdb2.Client
	write  influxdb2_api.WriteAPI
	done   chan struct{}

	backupFile *os.File
	backup     *gzip.Writer

	log *slog.Logger
}

// Connect creates the client and pings the server. A failed ping switches
// to the backup file; with no backup path that is an error.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(cfg.BatchSize).
			SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())),
	)
	w := &Writer{log: log}

	running, err := client.Ping(ctx)
	if err != nil || !running {
		client.Close()
		if cfg.BackupPath == "" {
			return nil, fmt.Errorf("influx unreachable at %s and no backup path: %v", cfg.URL, err)
		}
		if ferr := os.MkdirAll(filepath.Dir(cfg.BackupPath), 0o755); ferr != nil {
			return nil, fmt.Errorf("error creating backup dir: %w", ferr)
		}
		f, ferr := os.OpenFile(cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr != nil {
			return nil, fmt.Errorf("error creating backup file: %w", ferr)
		}
		w.backupFile = f
		w.backup = gzip.NewWriter(f)
		log.Warn("InfluxDB unreachable, writing to backup file", "url", cfg.URL, "backupPath", cfg.BackupPath, "error", err)
		return w, nil
	}

	w.client = client
	w.write = client.WriteAPI(cfg.Org, cfg.Bucket)
	w.done = make(chan struct{})
	go func(errorsCh <-chan error) {
		defer close(w.done)
		for writeErr := range errorsCh {
			log.Error("Error sending data to InfluxDB", "bucket", cfg.Bucket, "error", writeErr)
		}
	}(w.write.Errors())

	log.Info("InfluxDB client initialized", "url", cfg.URL, "bucket", cfg.Bucket)
	return w, nil
}

// Backup reports whether points go to the backup file.
func (w *Writer) Backup() bool {
	return w.backup != nil
}

// WritePoint queues p for the server or appends it to the backup file.
func (w *Writer) WritePoint(p *influxdb2_write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.write != nil {
		w.write.WritePoint(p)
		return nil
	}
	if w.backup == nil {
		return errors.New("influx writer closed")
	}
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	if _, err := w.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteState records one controller snapshot. step is the replay step, or
// zero for a single render.
func (w *Writer) WriteState(command string, step int, st mapview.State, at time.Time) error {
	return w.WritePoint(StatePoint(command, step, st, at))
}

// StatePoint converts a controller snapshot to a point.
func StatePoint(command string, step int, st mapview.State, at time.Time) *influxdb2_write.Point {
	mode := "none"
	if len(st.Layers) > 0 {
		mode = string(st.Layers[0].Mode)
	}
	return influxdb2_write.NewPoint(
		Measurement,
		map[string]string{
			"command": command,
			"mode":    mode,
			"style":   st.BaseStyle,
		},
		map[string]interface{}{
			"layers":     len(st.Layers),
			"ready":      st.Ready,
			"pending":    st.Pending,
			"superseded": st.Superseded,
			"epoch":      int64(st.Epoch),
			"tilt":       st.Tilt,
			"step":       step,
		},
		at,
	)
}

// Flush sends or writes out everything queued so far.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.write != nil {
		w.write.Flush()
		return nil
	}
	if w.backup != nil {
		return w.backup.Flush()
	}
	return nil
}

// Close flushes and releases the client or the backup file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		w.write.Flush()
		w.client.Close()
		<-w.done
		w.client, w.write = nil, nil
		return nil
	}
	if w.backup == nil {
		return nil
	}
	err := errors.Join(w.backup.Close(), w.backupFile.Close())
	w.backup, w.backupFile = nil, nil
	return err
}
