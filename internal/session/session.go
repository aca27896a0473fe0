// Package session runs one PPG measurement end to end: a capture source
// feeds the extraction pipeline, samples are collected and fanned out to
// live consumers, and the sorted results are written when the source ends.
//
// Shutdown order on completion:
//  1. Source returns (exhausted, failed or cancelled)
//  2. Pipeline Complete (drain) or Cancel
//  3. Sample bus closed, live consumers stopped
//  4. Results and recording written, summary published, MQTT disconnected
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-ppg/internal/cadence"
	"github.com/e7canasta/orion-ppg/internal/capture"
	"github.com/e7canasta/orion-ppg/internal/codec"
	"github.com/e7canasta/orion-ppg/internal/collector"
	"github.com/e7canasta/orion-ppg/internal/config"
	"github.com/e7canasta/orion-ppg/internal/emitter"
	"github.com/e7canasta/orion-ppg/internal/extract"
	"github.com/e7canasta/orion-ppg/internal/pipeline"
	"github.com/e7canasta/orion-ppg/internal/pool"
	"github.com/e7canasta/orion-ppg/internal/samplebus"
)

// mqttBuffer is the bus channel depth for the MQTT emitter.
const mqttBuffer = 256

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("session: already run")

// Session owns every component of one measurement.
type Session struct {
	id      string
	cfg     *config.Config
	log     *slog.Logger
	workers int

	ext       *extract.Extractor
	frames    *pool.Pool
	collector *collector.Collector
	bus       *samplebus.Bus
	source    capture.Source
	emitter   *emitter.MQTTEmitter

	ran       atomic.Bool
	startedAt atomic.Int64
	pipe      atomic.Pointer[pipeline.Pipeline]
}

// New builds a session from a validated configuration. logger may be nil.
func New(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("session_id", id)

	ext, err := extract.New(extract.Config{
		Width:         cfg.Capture.Width,
		Height:        cfg.Capture.Height,
		Mode:          cfg.Mode(),
		RegionsPerRow: cfg.Extractor.RegionsPerRow,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	workers := cfg.Pipeline.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	capacity := cfg.Pipeline.PoolCapacity
	if capacity <= 0 {
		capacity = workers * pool.FramesPerWorker
	}
	frames := pool.New(cfg.Capture.Width, cfg.Capture.Height, cfg.Mode(), capacity)

	source, err := NewSource(cfg, frames, logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		id:        id,
		cfg:       cfg,
		log:       logger,
		workers:   workers,
		ext:       ext,
		frames:    frames,
		collector: collector.New(cfg.Capture.FPS * cfg.Capture.DurationS),
		bus:       samplebus.New(),
		source:    source,
	}
	if cfg.MQTT.Broker != "" {
		s.emitter = emitter.NewMQTTEmitter(cfg.MQTT, logger)
	}
	return s, nil
}

// NewSource builds the capture source named by cfg.Capture.Source.
func NewSource(cfg *config.Config, frames capture.FramePool, logger *slog.Logger) (capture.Source, error) {
	c := cfg.Capture
	total := c.FPS * c.DurationS
	switch c.Source {
	case "synthetic", "":
		return capture.NewSynthetic(capture.SyntheticConfig{
			Width:     c.Width,
			Height:    c.Height,
			Mode:      cfg.Mode(),
			FPS:       c.FPS,
			Frames:    total,
			HeartRate: c.HeartRate,
			Realtime:  c.Realtime,
			Logger:    logger,
		}, frames)
	case "video":
		return capture.NewVideoFile(capture.VideoConfig{
			Path:      c.VideoPath,
			Width:     c.Width,
			Height:    c.Height,
			Mode:      cfg.Mode(),
			FPS:       c.FPS,
			MaxFrames: total,
			Logger:    logger,
		}, frames)
	}
	return nil, fmt.Errorf("%w: unknown source %q", capture.ErrInvalidConfig, c.Source)
}

// ID is the session identifier, also stamped on recordings and logs.
func (s *Session) ID() string { return s.id }

// Bus is the live sample feed.
func (s *Session) Bus() *samplebus.Bus { return s.bus }

// Extractor is the session's configured extractor.
func (s *Session) Extractor() *extract.Extractor { return s.ext }

// Run performs the measurement and blocks until results are written.
//
// Cancelling ctx stops capture and cancels the pipeline; samples collected
// so far are still written and reported with Cancelled set. The returned
// error covers source failures and output failures, not cancellation.
func (s *Session) Run(ctx context.Context) (Report, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRun
	}
	started := time.Now()
	s.startedAt.Store(started.UnixNano())

	s.log.Info("session: starting",
		"instance_id", s.cfg.InstanceID,
		"source", s.source.Name(),
		"width", s.cfg.Capture.Width,
		"height", s.cfg.Capture.Height,
		"fps", s.cfg.Capture.FPS,
		"mode", s.cfg.Mode(),
		"regions", len(s.ext.Regions()),
		"workers", s.workers)

	var consumers sync.WaitGroup
	mqttCh := s.startEmitter(ctx, &consumers)

	pipe, err := pipeline.New(ctx, s.ext, tee{collector: s.collector, bus: s.bus}, s.frames, pipeline.Config{
		Workers:          s.workers,
		DrainTimeout:     s.cfg.DrainTimeout(),
		BackpressureUnit: s.cfg.BackpressureUnit(),
		Logger:           s.log,
	})
	if err != nil {
		s.stopConsumers(mqttCh, &consumers)
		return Report{}, fmt.Errorf("session: %w", err)
	}
	s.pipe.Store(pipe)

	statsCtx, stopStats := context.WithCancel(ctx)
	go s.logStats(statsCtx)

	srcErr := s.source.Run(ctx, pipe)
	stopStats()

	cancelled := ctx.Err() != nil
	drained := false
	switch {
	case cancelled:
		pipe.Cancel()
		srcErr = nil
	case srcErr != nil:
		s.log.Error("session: capture failed", "source", s.source.Name(), "error", srcErr)
		pipe.Cancel()
	default:
		drained = pipe.Complete()
	}
	<-pipe.Done()

	s.stopConsumers(mqttCh, &consumers)

	samples := s.collector.Snapshot()
	codec.SortByTimestamp(samples)

	report := s.report(samples, started, drained, cancelled)
	outErr := s.writeOutputs(samples, started)
	s.publishSummary(report)

	s.log.Info("session: finished",
		"samples", report.Samples,
		"frames", report.FramesCaptured,
		"quality_warnings", report.QualityWarnings,
		"failed", report.Failed,
		"discarded", report.Discarded,
		"sampling_rate_hz", report.Cadence.RateMean,
		"cadence_stable", report.Cadence.Stable,
		"drained", report.Drained,
		"cancelled", report.Cancelled,
		"duration", report.Duration)

	return report, errors.Join(srcErr, outErr)
}

// startEmitter connects MQTT and subscribes it to the bus. A failed
// connect is not fatal: the client keeps retrying and publishes are
// counted as errors meanwhile.
func (s *Session) startEmitter(ctx context.Context, wg *sync.WaitGroup) chan extract.Sample {
	if s.emitter == nil {
		return nil
	}
	if err := s.emitter.Connect(ctx); err != nil {
		s.log.Warn("session: mqtt unavailable, continuing without live publish", "error", err)
	}

	ch := make(chan extract.Sample, mqttBuffer)
	if err := s.bus.Subscribe("mqtt", ch); err != nil {
		s.log.Warn("session: mqtt subscription failed", "error", err)
		return nil
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.emitter.Run(context.WithoutCancel(ctx), ch)
	}()
	return ch
}

// stopConsumers closes the bus and waits for the emitter to publish what it
// already received.
func (s *Session) stopConsumers(mqttCh chan extract.Sample, wg *sync.WaitGroup) {
	s.bus.Close()
	if mqttCh != nil {
		close(mqttCh)
	}
	wg.Wait()
}

func (s *Session) writeOutputs(samples []extract.Sample, started time.Time) error {
	var errs []error
	if path := s.cfg.Output.ResultsPath; path != "" {
		if err := codec.WriteResultsFile(path, samples); err != nil {
			errs = append(errs, fmt.Errorf("session: results: %w", err))
		} else {
			s.log.Info("session: results written", "path", path, "samples", len(samples))
		}
	}
	if path := s.cfg.Output.RecordingPath; path != "" {
		if err := s.writeRecording(path, samples, started); err != nil {
			errs = append(errs, fmt.Errorf("session: recording: %w", err))
		} else {
			s.log.Info("session: recording written", "path", path, "samples", len(samples))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) writeRecording(path string, samples []extract.Sample, started time.Time) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := codec.NewEncoder(f, codec.Header{
		SessionID:     s.id,
		Width:         s.cfg.Capture.Width,
		Height:        s.cfg.Capture.Height,
		PhoneModel:    s.cfg.Mode().PhoneModel(),
		RegionsPerRow: s.cfg.Extractor.RegionsPerRow,
		StartedAt:     started.UTC(),
	})
	if err != nil {
		return err
	}
	for _, smp := range samples {
		if err := enc.Encode(smp); err != nil {
			return err
		}
	}
	return enc.Flush()
}

func (s *Session) publishSummary(r Report) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.PublishSummary(r); err != nil {
		s.log.Warn("session: summary publish failed", "error", err)
	}
	s.emitter.Disconnect()
}

func (s *Session) logStats(ctx context.Context) {
	interval := s.cfg.StatsInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pipe := s.pipe.Load()
			if pipe == nil {
				continue
			}
			ps := pipe.Stats()
			src := s.source.Stats()
			fs := s.frames.Stats()
			s.log.Info("session: stats",
				"state", ps.State,
				"frames", src.Frames,
				"processed", ps.Processed,
				"failed", ps.Failed,
				"backlog", ps.Backlog,
				"max_backlog", ps.MaxBacklog,
				"throttled_for", ps.ThrottledFor,
				"pool_free", fs.Free,
				"pool_allocated", fs.Allocated,
				"samples", s.collector.Count())
		}
	}
}

// tee hands every sample to the collector and the live bus.
type tee struct {
	collector *collector.Collector
	bus       *samplebus.Bus
}

func (t tee) Add(s extract.Sample) {
	t.collector.Add(s)
	t.bus.Publish(s)
}
