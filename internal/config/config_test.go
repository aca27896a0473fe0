package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

func TestParseFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("instance_id: bench-01\n"))
	require.NoError(t, err)

	assert.Equal(t, "synthetic", cfg.Capture.Source)
	assert.Equal(t, 1280, cfg.Capture.Width)
	assert.Equal(t, 720, cfg.Capture.Height)
	assert.Equal(t, 60, cfg.Capture.FPS)
	assert.Equal(t, 30*time.Second, cfg.Duration())
	assert.Equal(t, frame.CombinedChroma, cfg.Mode())
	assert.Equal(t, 3, cfg.Extractor.RegionsPerRow)
	assert.Equal(t, 100*time.Millisecond, cfg.DrainTimeout())
	assert.Equal(t, 10*time.Millisecond, cfg.BackpressureUnit())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 5*time.Second, cfg.StatsInterval())
	assert.Empty(t, cfg.MQTT.Topics.Samples, "mqtt stays disabled without a broker")
}

func TestParseMQTTDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
instance_id: bench-01
mqtt:
  broker: localhost:1883
`))
	require.NoError(t, err)
	assert.Equal(t, "ppgd-bench-01", cfg.MQTT.ClientID)
	assert.Equal(t, "json", cfg.MQTT.Payload)
	assert.Equal(t, "care/ppg/bench-01/samples", cfg.MQTT.Topics.Samples)
	assert.Equal(t, "care/ppg/bench-01/summary", cfg.MQTT.Topics.Summary)
	assert.Equal(t, byte(1), cfg.MQTT.QoS["summary"])
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ppgd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instance_id: lab-2
capture:
  source: video
  video_path: /data/finger.mp4
  width: 640
  height: 480
  fps: 30
  device_mode: luminance
pipeline:
  workers: 2
output:
  results_path: out.json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "video", cfg.Capture.Source)
	assert.Equal(t, frame.LuminanceOnly, cfg.Mode())
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, "out.json", cfg.Output.ResultsPath)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing instance":   "capture: {width: 10}\n",
		"bad instance":       "instance_id: Bench_01\n",
		"unknown source":     "instance_id: a\ncapture: {source: rtsp}\n",
		"video without path": "instance_id: a\ncapture: {source: video}\n",
		"odd video width":    "instance_id: a\ncapture: {source: video, video_path: x.mp4, width: 642}\n",
		"odd video height":   "instance_id: a\ncapture: {source: video, video_path: x.mp4, width: 640, height: 479}\n",
		"bad mode":           "instance_id: a\ncapture: {device_mode: rgb}\n",
		"negative workers":   "instance_id: a\npipeline: {workers: -1}\n",
		"bad payload":        "instance_id: a\nmqtt: {broker: b, payload: xml}\n",
		"bad qos":            "instance_id: a\nmqtt: {broker: b, qos: {samples: 3}}\n",
		"not yaml":           "instance_id: [\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ppg-local", cfg.InstanceID)
	assert.Equal(t, "synthetic", cfg.Capture.Source)
}
