package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

// Config is the complete ppgd configuration.
type Config struct {
	InstanceID       string          `yaml:"instance_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	StatsIntervalS   int             `yaml:"stats_interval_s"`   // Periodic stats log interval in seconds (default: 5)
	Capture          CaptureConfig   `yaml:"capture"`
	Extractor        ExtractorConfig `yaml:"extractor"`
	Pipeline         PipelineConfig  `yaml:"pipeline"`
	Output           OutputConfig    `yaml:"output"`
	MQTT             MQTTConfig      `yaml:"mqtt"`
	Health           HealthConfig    `yaml:"health"`
}

// CaptureConfig selects the frame source and camera settings.
type CaptureConfig struct {
	Source     string  `yaml:"source"`      // synthetic, video
	VideoPath  string  `yaml:"video_path"`  // Required for source=video
	Width      int     `yaml:"width"`       // default 1280
	Height     int     `yaml:"height"`      // default 720
	FPS        int     `yaml:"fps"`         // default 60
	DurationS  int     `yaml:"duration_s"`  // Measurement length, default 30
	DeviceMode string  `yaml:"device_mode"` // luminance, chroma
	HeartRate  float64 `yaml:"heart_rate"`  // Synthetic pulse in bpm, default 72
	Realtime   bool    `yaml:"realtime"`    // Pace synthetic frames at fps
}

// ExtractorConfig tunes the region extractor.
type ExtractorConfig struct {
	RegionsPerRow int `yaml:"regions_per_row"` // default 3
}

// PipelineConfig tunes the worker pool.
type PipelineConfig struct {
	Workers            int `yaml:"workers"`              // 0 = host parallelism
	PoolCapacity       int `yaml:"pool_capacity"`        // 0 = 4 × workers
	DrainTimeoutMs     int `yaml:"drain_timeout_ms"`     // default 100
	BackpressureUnitMs int `yaml:"backpressure_unit_ms"` // default 10
}

// OutputConfig selects where session results go.
type OutputConfig struct {
	ResultsPath   string `yaml:"results_path"`   // JSON results, empty disables
	RecordingPath string `yaml:"recording_path"` // msgpack recording, empty disables
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string          `yaml:"broker"`
	ClientID string          `yaml:"client_id"`
	Payload  string          `yaml:"payload"` // json, msgpack
	Topics   MQTTTopics      `yaml:"topics"`
	QoS      map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names.
type MQTTTopics struct {
	Samples string `yaml:"samples"`
	Summary string `yaml:"summary"`
}

// HealthConfig configures the HTTP health server. An empty address
// disables it.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a validated configuration for a synthetic capture.
func Default() *Config {
	cfg := &Config{InstanceID: "ppg-local"}
	if err := Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Mode returns the parsed capture device mode.
func (c *Config) Mode() frame.DeviceMode {
	m, _ := frame.ParseDeviceMode(c.Capture.DeviceMode)
	return m
}

// Duration is the configured measurement length.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.Capture.DurationS) * time.Second
}

// ShutdownTimeout is the configured graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// StatsInterval is the periodic stats log interval.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalS) * time.Second
}

// DrainTimeout is the pipeline drain budget.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Pipeline.DrainTimeoutMs) * time.Millisecond
}

// BackpressureUnit is the pipeline producer delay unit.
func (c *Config) BackpressureUnit() time.Duration {
	return time.Duration(c.Pipeline.BackpressureUnitMs) * time.Millisecond
}
