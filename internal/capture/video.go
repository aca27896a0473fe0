package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

// busPollInterval bounds how long shutdown waits on the bus.
const busPollInterval = 50 * time.Millisecond

// VideoConfig configures a recorded-video source.
type VideoConfig struct {
	Path      string
	Width     int // Output width, must be a multiple of 4 for packed NV12 rows
	Height    int
	Mode      frame.DeviceMode
	FPS       int
	MaxFrames int // 0 = whole file
	Logger    *slog.Logger
}

// VideoFile decodes a recorded finger video with GStreamer:
//
//	filesrc → decodebin → videoconvert → videoscale → videorate →
//	capsfilter(NV12, W×H, FPS) → appsink
//
// appsink does not drop: the streaming thread blocks in Enqueue while the
// pipeline applies backpressure, so every decoded frame is extracted.
type VideoFile struct {
	cfg    VideoConfig
	frames FramePool
	log    *slog.Logger
	c      counters

	errMu   sync.Mutex
	sinkErr error
}

// NewVideoFile validates cfg. The file is opened by Run.
func NewVideoFile(cfg VideoConfig, frames FramePool) (*VideoFile, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: video path is required", ErrInvalidConfig)
	}
	if err := validateGeometry(cfg.Width, cfg.Height, cfg.FPS, cfg.Mode); err != nil {
		return nil, err
	}
	if cfg.Width%4 != 0 {
		return nil, fmt.Errorf("%w: video width %d must be a multiple of 4", ErrInvalidConfig, cfg.Width)
	}
	// NV12 pads luma to an even row count, so the UV plane would not start
	// at width*height.
	if cfg.Height%2 != 0 {
		return nil, fmt.Errorf("%w: video height %d must be even", ErrInvalidConfig, cfg.Height)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &VideoFile{cfg: cfg, frames: frames, log: cfg.Logger}, nil
}

// Name implements Source.
func (v *VideoFile) Name() string { return "video" }

// Stats implements Source.
func (v *VideoFile) Stats() Stats { return v.c.snapshot(v.Name()) }

type videoElements struct {
	pipeline *gst.Pipeline
	decode   *gst.Element
	convert  *gst.Element
	appsink  *app.Sink
}

// Run implements Source.
func (v *VideoFile) Run(ctx context.Context, sink FrameSink) error {
	if _, err := os.Stat(v.cfg.Path); err != nil {
		return fmt.Errorf("capture: video input: %w", err)
	}

	elems, err := v.build()
	if err != nil {
		return err
	}
	defer func() {
		if err := elems.pipeline.SetState(gst.StateNull); err != nil {
			v.log.Warn("capture: failed to stop video pipeline", "error", err)
		}
	}()

	stop := make(chan struct{})
	var stopOnce sync.Once
	halt := func() { stopOnce.Do(func() { close(stop) }) }

	var seq uint64
	elems.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			ret := v.onSample(s, sink, seq)
			if ret == gst.FlowOK {
				seq++
				if v.cfg.MaxFrames > 0 && seq >= uint64(v.cfg.MaxFrames) {
					halt()
					return gst.FlowEOS
				}
				return ret
			}
			halt()
			return ret
		},
	})

	elems.decode.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		v.linkDecoded(srcPad, elems.convert)
	})

	v.c.start()
	defer v.c.stop()

	if err := elems.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("capture: failed to start video pipeline: %w", err)
	}
	v.log.Info("capture: video source started",
		"path", v.cfg.Path,
		"width", v.cfg.Width,
		"height", v.cfg.Height,
		"fps", v.cfg.FPS,
		"mode", v.cfg.Mode)

	if err := v.monitor(ctx, elems.pipeline, stop); err != nil {
		return err
	}
	return v.takeSinkErr()
}

func (v *VideoFile) build() (*videoElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("capture: failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("filesrc")
	if err != nil {
		return nil, fmt.Errorf("capture: failed to create filesrc: %w", err)
	}
	src.SetProperty("location", v.cfg.Path)

	decode, err := gst.NewElement("decodebin")
	if err != nil {
		return nil, fmt.Errorf("capture: failed to create decodebin: %w", err)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("capture: failed to create videoconvert: %w", err)
	}
	convert.SetProperty("n-threads", 0)
	convert.SetProperty("dither", 0)

	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("capture: failed to create videoscale: %w", err)
	}

	rate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("capture: failed to create videorate: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("capture: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(nv12Caps(v.cfg.Width, v.cfg.Height, v.cfg.FPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("capture: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 2)
	appsink.SetProperty("drop", false)

	if err := pipeline.AddMany(src, decode, convert, scale, rate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("capture: failed to add elements: %w", err)
	}
	if err := src.Link(decode); err != nil {
		return nil, fmt.Errorf("capture: failed to link filesrc: %w", err)
	}
	// decodebin pads appear once the stream type is known; see linkDecoded.
	if err := gst.ElementLinkMany(convert, scale, rate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("capture: failed to link video elements: %w", err)
	}

	return &videoElements{pipeline: pipeline, decode: decode, convert: convert, appsink: appsink}, nil
}

// linkDecoded links the first raw video pad of decodebin to videoconvert.
// Audio and further video pads are left unlinked.
func (v *VideoFile) linkDecoded(srcPad *gst.Pad, convert *gst.Element) {
	caps := srcPad.GetCurrentCaps()
	if caps == nil || !strings.HasPrefix(caps.String(), "video/") {
		v.log.Debug("capture: ignoring non-video pad", "pad", srcPad.GetName())
		return
	}

	sinkPad := convert.GetStaticPad("sink")
	if sinkPad == nil {
		v.log.Error("capture: videoconvert has no sink pad")
		return
	}
	if sinkPad.IsLinked() {
		return
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		v.log.Error("capture: failed to link decoded pad",
			"src_pad", srcPad.GetName(),
			"ret", ret)
		return
	}
	v.log.Debug("capture: decoded pad linked", "src_pad", srcPad.GetName())
}

// onSample copies one NV12 buffer into a pooled frame and enqueues it.
func (v *VideoFile) onSample(s *app.Sink, sink FrameSink, seq uint64) gst.FlowReturn {
	sample := s.PullSample()
	if sample == nil {
		v.log.Warn("capture: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		v.log.Warn("capture: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	data := mapInfo.Bytes()

	lumaSize := frame.LumaSize(v.cfg.Width, v.cfg.Height)
	if len(data) < lumaSize {
		v.log.Warn("capture: short video buffer, skipping frame",
			"bytes", len(data),
			"want", lumaSize)
		return gst.FlowOK
	}

	more, err := v.c.deliver(v.frames, sink, Timestamp(seq, v.cfg.FPS), data[:lumaSize], data[lumaSize:])
	if err != nil {
		v.setSinkErr(err)
		return gst.FlowError
	}
	if !more {
		v.log.Info("capture: sink closed, stopping", "source", v.Name(), "frames", v.c.frames.Load())
		return gst.FlowEOS
	}
	return gst.FlowOK
}

// monitor polls the pipeline bus until end of stream, an error, a stop from
// the sample callback, or ctx cancellation.
func (v *VideoFile) monitor(ctx context.Context, pipeline *gst.Pipeline, stop <-chan struct{}) error {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			v.log.Debug("capture: context cancelled, stopping video source")
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			v.log.Info("capture: end of video",
				"path", v.cfg.Path,
				"frames", v.c.frames.Load(),
				"uptime", v.Stats().Uptime)
			return nil

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyError(gerr.Error(), gerr.DebugString())
			v.log.Error("capture: video pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"path", v.cfg.Path,
				"frames", v.c.frames.Load())
			if err := v.takeSinkErr(); err != nil {
				return err
			}
			return fmt.Errorf("capture: video pipeline error [%s]: %s", category, gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, state := msg.ParseStateChanged()
				v.log.Debug("capture: video pipeline state changed", "from", old, "to", state)
			}
		}
	}
}

func (v *VideoFile) setSinkErr(err error) {
	v.errMu.Lock()
	defer v.errMu.Unlock()
	if v.sinkErr == nil {
		v.sinkErr = err
	}
}

func (v *VideoFile) takeSinkErr() error {
	v.errMu.Lock()
	defer v.errMu.Unlock()
	return v.sinkErr
}

func nv12Caps(width, height, fps int) string {
	return fmt.Sprintf("video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1", width, height, fps)
}
