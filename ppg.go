package ppg

import (
	"context"
	"fmt"

	"github.com/e7canasta/orion-ppg/internal/collector"
	"github.com/e7canasta/orion-ppg/internal/extract"
	"github.com/e7canasta/orion-ppg/internal/frame"
	"github.com/e7canasta/orion-ppg/internal/pipeline"
	"github.com/e7canasta/orion-ppg/internal/pool"
)

// Frame is one camera sample. See internal/frame.
type Frame = frame.Frame

// DeviceMode selects how chroma is laid out and which statistics are
// extracted.
type DeviceMode = frame.DeviceMode

const (
	LuminanceOnly  = frame.LuminanceOnly
	CombinedChroma = frame.CombinedChroma

	PhoneModelAndroid = frame.PhoneModelAndroid
	PhoneModelIOS     = frame.PhoneModelIOS
)

// Sample is the per-frame result: {timestamp, signals, qualityWarning}.
type Sample = extract.Sample

// Region is one tile of the frame grid.
type Region = extract.Region

// Extractor computes samples from frames. Safe for concurrent use.
type Extractor = extract.Extractor

// ExtractorConfig configures Initialize's underlying extractor.
type ExtractorConfig = extract.Config

// Pool recycles frames of one geometry.
type Pool = pool.Pool

// Collector accumulates samples from concurrent workers.
type Collector = collector.Collector

// Pipeline runs extraction on a worker pool.
type Pipeline = pipeline.Pipeline

// PipelineConfig tunes a Pipeline. Zero values select defaults.
type PipelineConfig = pipeline.Config

// PipelineStats is a snapshot of pipeline counters.
type PipelineStats = pipeline.Stats

// Errors returned by the facade's operations.
var (
	ErrNotInitialized = extract.ErrNotInitialized
	ErrInvalidConfig  = extract.ErrInvalidConfig
	ErrFrameMismatch  = extract.ErrFrameMismatch
	ErrClosed         = pipeline.ErrClosed
)

// FromPhoneModel maps a recorded phone model identifier (1 Android,
// 2 iOS) to its device mode. Unknown identifiers map to zero, which
// Initialize rejects.
func FromPhoneModel(model int) DeviceMode {
	m, _ := frame.FromPhoneModel(model)
	return m
}

// Initialize builds an extractor for width×height frames with the default
// 3×3 region grid.
func Initialize(width, height int, mode DeviceMode) (*Extractor, error) {
	return extract.New(extract.Config{Width: width, Height: height, Mode: mode})
}

// NewExtractor builds an extractor from a full configuration.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	return extract.New(cfg)
}

// NewFrame allocates a frame sized for width×height in mode.
func NewFrame(width, height int, mode DeviceMode) *Frame {
	return frame.New(width, height, mode)
}

// NewPool creates a frame pool. capacity <= 0 selects 4 × host parallelism.
func NewPool(width, height int, mode DeviceMode, capacity int) *Pool {
	return pool.New(width, height, mode, capacity)
}

// NewCollector creates an empty collector. sizeHint preallocates storage.
func NewCollector(sizeHint int) *Collector {
	return collector.New(sizeHint)
}

// NewPipeline starts a pipeline feeding ext's samples into samples and
// returning frames to frames. frames may be nil; ext and samples may not.
//
// Cancelling ctx has the same effect as Cancel.
func NewPipeline(ctx context.Context, ext *Extractor, samples *Collector, frames *Pool, cfg PipelineConfig) (*Pipeline, error) {
	if ext == nil || samples == nil {
		return nil, fmt.Errorf("%w: pipeline needs an extractor and a collector", ErrInvalidConfig)
	}
	var recycler pipeline.Recycler
	if frames != nil {
		recycler = frames
	}
	return pipeline.New(ctx, ext, samples, recycler, cfg)
}
