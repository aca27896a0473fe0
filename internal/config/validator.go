package config

import (
	"fmt"
	"regexp"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Camera defaults used by the capture app.
const (
	DefaultWidth     = 1280
	DefaultHeight    = 720
	DefaultFPS       = 60
	DefaultDurationS = 30
	DefaultHeartRate = 72
)

// Validate checks the configuration and fills defaults in place.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.StatsIntervalS < 0 {
		return fmt.Errorf("stats_interval_s must be >= 0")
	}
	if cfg.StatsIntervalS == 0 {
		cfg.StatsIntervalS = 5
	}

	if err := validateCapture(&cfg.Capture); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	if cfg.Extractor.RegionsPerRow < 0 {
		return fmt.Errorf("extractor.regions_per_row must be >= 0")
	}
	if cfg.Extractor.RegionsPerRow == 0 {
		cfg.Extractor.RegionsPerRow = 3
	}

	if cfg.Pipeline.Workers < 0 || cfg.Pipeline.PoolCapacity < 0 {
		return fmt.Errorf("pipeline.workers and pipeline.pool_capacity must be >= 0")
	}
	if cfg.Pipeline.DrainTimeoutMs <= 0 {
		cfg.Pipeline.DrainTimeoutMs = 100
	}
	if cfg.Pipeline.BackpressureUnitMs <= 0 {
		cfg.Pipeline.BackpressureUnitMs = 10
	}

	return validateMQTT(cfg)
}

func validateCapture(c *CaptureConfig) error {
	switch c.Source {
	case "":
		c.Source = "synthetic"
	case "synthetic":
	case "video":
		if c.VideoPath == "" {
			return fmt.Errorf("video_path is required for source=video")
		}
	default:
		return fmt.Errorf("unknown source %q (must be 'synthetic' or 'video')", c.Source)
	}

	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("width and height must be > 0, got %dx%d", c.Width, c.Height)
	}
	if c.Source == "video" && c.Width%4 != 0 {
		return fmt.Errorf("width must be a multiple of 4 for video decoding, got %d", c.Width)
	}
	if c.Source == "video" && c.Height%2 != 0 {
		return fmt.Errorf("height must be even for video decoding, got %d", c.Height)
	}
	if c.FPS == 0 {
		c.FPS = DefaultFPS
	}
	if c.FPS < 0 {
		return fmt.Errorf("fps must be > 0")
	}
	if c.DurationS == 0 {
		c.DurationS = DefaultDurationS
	}
	if c.DurationS < 0 {
		return fmt.Errorf("duration_s must be > 0")
	}
	if c.HeartRate == 0 {
		c.HeartRate = DefaultHeartRate
	}

	if c.DeviceMode == "" {
		c.DeviceMode = frame.CombinedChroma.String()
	}
	if _, err := frame.ParseDeviceMode(c.DeviceMode); err != nil {
		return err
	}
	return nil
}

func validateMQTT(cfg *Config) error {
	m := &cfg.MQTT
	if m.Broker == "" {
		return nil
	}
	if m.ClientID == "" {
		m.ClientID = "ppgd-" + cfg.InstanceID
	}
	switch m.Payload {
	case "":
		m.Payload = "json"
	case "json", "msgpack":
	default:
		return fmt.Errorf("mqtt.payload must be 'json' or 'msgpack', got %q", m.Payload)
	}
	if m.Topics.Samples == "" {
		m.Topics.Samples = fmt.Sprintf("care/ppg/%s/samples", cfg.InstanceID)
	}
	if m.Topics.Summary == "" {
		m.Topics.Summary = fmt.Sprintf("care/ppg/%s/summary", cfg.InstanceID)
	}
	if m.QoS == nil {
		m.QoS = map[string]byte{
			"samples": 0,
			"summary": 1,
		}
	}
	for topic, qos := range m.QoS {
		if qos > 2 {
			return fmt.Errorf("mqtt.qos[%s] must be 0, 1 or 2, got %d", topic, qos)
		}
	}
	return nil
}
