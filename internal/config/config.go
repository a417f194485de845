// Package config loads mapviz.cfg.json through viper and exposes typed
// views of its sections.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "mapviz.cfg.json"

// MaxCellSize bounds dataset.cellSize in degrees. Larger cells put their
// centres outside WGS84 bounds.
const MaxCellSize = 180.0

// ErrInvalidConfig is returned by Load for values that fail validation.
var ErrInvalidConfig = errors.New("invalid config")

// MapConfig holds the controller settings.
type MapConfig struct {
	Surface      string     `json:"surface" mapstructure:"surface"`
	Center       [2]float64 `json:"center" mapstructure:"center"`
	Zoom         float64    `json:"zoom" mapstructure:"zoom"`
	DefaultStyle string     `json:"defaultStyle" mapstructure:"defaultStyle"`
	StylePolicy  string     `json:"stylePolicy" mapstructure:"stylePolicy"`
	MaxValue     float64    `json:"maxValue" mapstructure:"maxValue"`
}

// WebSocketConfig holds the remote renderer settings.
type WebSocketConfig struct {
	URL        string        `json:"url" mapstructure:"url"`
	Secret     string        `json:"secret" mapstructure:"secret"`
	AckTimeout time.Duration `json:"ackTimeout" mapstructure:"ackTimeout"`
}

// EChartsConfig holds the HTML snapshot engine settings.
type EChartsConfig struct {
	OutputDir  string `json:"outputDir" mapstructure:"outputDir"`
	Width      string `json:"width" mapstructure:"width"`
	Height     string `json:"height" mapstructure:"height"`
	AssetsHost string `json:"assetsHost" mapstructure:"assetsHost"`
}

// MemoryEngineConfig holds the in-memory engine settings.
type MemoryEngineConfig struct {
	ReadyDelay time.Duration `json:"readyDelay" mapstructure:"readyDelay"`
}

// EngineConfig selects and configures the rendering engine.
type EngineConfig struct {
	Type      string             `json:"type" mapstructure:"type"`
	Memory    MemoryEngineConfig `json:"memory" mapstructure:"memory"`
	WebSocket WebSocketConfig    `json:"websocket" mapstructure:"websocket"`
	ECharts   EChartsConfig      `json:"echarts" mapstructure:"echarts"`
}

// DatasetConfig selects the dataset database.
type DatasetConfig struct {
	Driver   string  `json:"driver" mapstructure:"driver"`
	DSN      string  `json:"dsn" mapstructure:"dsn"`
	CellSize float64 `json:"cellSize" mapstructure:"cellSize"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	// MetricInterval is how often controller metrics are exported.
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// GELFConfig holds the Graylog log sink settings. An empty address
// disables the sink.
type GELFConfig struct {
	Address  string `json:"address" mapstructure:"address"`
	Facility string `json:"facility" mapstructure:"facility"`
}

// InfluxConfig holds the InfluxDB state writer settings.
type InfluxConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	URL           string        `json:"url" mapstructure:"url"`
	Token         string        `json:"token" mapstructure:"token"`
	Org           string        `json:"org" mapstructure:"org"`
	Bucket        string        `json:"bucket" mapstructure:"bucket"`
	BackupPath    string        `json:"backupPath" mapstructure:"backupPath"`
	BatchSize     uint          `json:"batchSize" mapstructure:"batchSize"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// SetDefaults registers every default value. Load calls it; commands that
// run without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logFormat", "text")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("map.surface", "map-container")
	viper.SetDefault("map.center", []float64{108.9, 34.2})
	viper.SetDefault("map.zoom", 3)
	viper.SetDefault("map.defaultStyle", "light")
	viper.SetDefault("map.stylePolicy", "rebuild")
	viper.SetDefault("map.maxValue", 100)

	viper.SetDefault("engine.type", "memory")
	viper.SetDefault("engine.memory.readyDelay", "0s")
	viper.SetDefault("engine.websocket.url", "ws://localhost:8090/renderer")
	viper.SetDefault("engine.websocket.secret", "")
	viper.SetDefault("engine.websocket.ackTimeout", "10s")
	viper.SetDefault("engine.echarts.outputDir", "./snapshots")
	viper.SetDefault("engine.echarts.width", "900px")
	viper.SetDefault("engine.echarts.height", "900px")
	viper.SetDefault("engine.echarts.assetsHost", "")

	viper.SetDefault("dataset.driver", "sqlite")
	viper.SetDefault("dataset.dsn", "./mapviz.db")
	viper.SetDefault("dataset.cellSize", 1.0)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mapviz")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("gelf.address", "")
	viper.SetDefault("gelf.facility", "mapviz")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "carbonlab")
	viper.SetDefault("influx.bucket", "mapviz")
	viper.SetDefault("influx.backupPath", "./logs/mapviz_influx_backup.gz")
	viper.SetDefault("influx.batchSize", 100)
	viper.SetDefault("influx.flushInterval", "1s")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return validate()
}

func validate() error {
	if size := viper.GetFloat64("dataset.cellSize"); size <= 0 || size > MaxCellSize {
		return fmt.Errorf("%w: dataset.cellSize %g outside (0, %g]", ErrInvalidConfig, size, MaxCellSize)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetMapConfig returns the controller settings.
func GetMapConfig() MapConfig {
	cfg := MapConfig{
		Surface:      viper.GetString("map.surface"),
		Zoom:         viper.GetFloat64("map.zoom"),
		DefaultStyle: viper.GetString("map.defaultStyle"),
		StylePolicy:  viper.GetString("map.stylePolicy"),
		MaxValue:     viper.GetFloat64("map.maxValue"),
	}
	if center, ok := lngLat(viper.Get("map.center")); ok {
		cfg.Center = center
	}
	return cfg
}

// lngLat reads a [lng, lat] pair from a default ([]float64) or a decoded
// JSON array ([]interface{}).
func lngLat(v any) ([2]float64, bool) {
	var raw []any
	switch t := v.(type) {
	case []float64:
		for _, f := range t {
			raw = append(raw, f)
		}
	case []any:
		raw = t
	default:
		return [2]float64{}, false
	}
	if len(raw) != 2 {
		return [2]float64{}, false
	}
	lng, err := cast.ToFloat64E(raw[0])
	if err != nil {
		return [2]float64{}, false
	}
	lat, err := cast.ToFloat64E(raw[1])
	if err != nil {
		return [2]float64{}, false
	}
	return [2]float64{lng, lat}, true
}

// GetEngineConfig returns the engine settings.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		Type: viper.GetString("engine.type"),
		Memory: MemoryEngineConfig{
			ReadyDelay: viper.GetDuration("engine.memory.readyDelay"),
		},
		WebSocket: WebSocketConfig{
			URL:        viper.GetString("engine.websocket.url"),
			Secret:     viper.GetString("engine.websocket.secret"),
			AckTimeout: viper.GetDuration("engine.websocket.ackTimeout"),
		},
		ECharts: EChartsConfig{
			OutputDir:  viper.GetString("engine.echarts.outputDir"),
			Width:      viper.GetString("engine.echarts.width"),
			Height:     viper.GetString("engine.echarts.height"),
			AssetsHost: viper.GetString("engine.echarts.assetsHost"),
		},
	}
}

// GetDatasetConfig returns the dataset store settings.
func GetDatasetConfig() DatasetConfig {
	return DatasetConfig{
		Driver:   viper.GetString("dataset.driver"),
		DSN:      viper.GetString("dataset.dsn"),
		CellSize: viper.GetFloat64("dataset.cellSize"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetGELFConfig returns the Graylog sink settings.
func GetGELFConfig() GELFConfig {
	return GELFConfig{
		Address:  viper.GetString("gelf.address"),
		Facility: viper.GetString("gelf.facility"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:       viper.GetBool("influx.enabled"),
		URL:           viper.GetString("influx.url"),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Bucket:        viper.GetString("influx.bucket"),
		BackupPath:    viper.GetString("influx.backupPath"),
		BatchSize:     viper.GetUint("influx.batchSize"),
		FlushInterval: viper.GetDuration("influx.flushInterval"),
	}
}
