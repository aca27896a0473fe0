// Package capture produces camera frames for the extraction pipeline.
//
// A Source fills pooled frames with NV12 images and hands them to a
// FrameSink, normally a *pipeline.Pipeline. Sources stop on their own when
// the input is exhausted, when the sink closes, or when ctx is cancelled.
//
//	Synthetic: generated finger-on-lens pulse, no external input
//	VideoFile: recorded finger video decoded by GStreamer
//
// Timestamps are derived from the frame sequence: seq*1000/fps ms, so a
// recorded file yields the same timestamps on every run.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-ppg/internal/frame"
	"github.com/e7canasta/orion-ppg/internal/pipeline"
)

// ErrInvalidConfig is returned by constructors for unusable settings.
var ErrInvalidConfig = errors.New("capture: invalid configuration")

// FrameSink accepts filled frames. Ownership passes on success; on error
// the source keeps the frame.
type FrameSink interface {
	Enqueue(f *frame.Frame) error
}

// FramePool supplies and takes back frame buffers.
type FramePool interface {
	Get() *frame.Frame
	Release(f *frame.Frame)
}

// Source is a producer of frames.
type Source interface {
	// Run blocks until the source is exhausted, the sink closes, or ctx is
	// cancelled. Exhaustion and a closed sink return nil; cancellation
	// returns ctx.Err().
	Run(ctx context.Context, sink FrameSink) error
	Stats() Stats
	Name() string
}

// Stats is a snapshot of source counters.
type Stats struct {
	Source    string        `json:"source"`
	Running   bool          `json:"running"`
	Frames    uint64        `json:"frames"`   // Frames accepted by the sink
	Rejected  uint64        `json:"rejected"` // Frames the sink refused
	Bytes     uint64        `json:"bytes"`    // NV12 bytes loaded
	Uptime    time.Duration `json:"uptime_ns"`
	LastStamp uint64        `json:"last_timestamp"`
}

// Timestamp is the capture time in ms of frame seq at fps.
func Timestamp(seq uint64, fps int) uint64 {
	return seq * 1000 / uint64(fps)
}

// counters is the shared bookkeeping of every source.
type counters struct {
	running   atomic.Bool
	frames    atomic.Uint64
	rejected  atomic.Uint64
	bytes     atomic.Uint64
	lastStamp atomic.Uint64
	startedAt atomic.Int64
}

func (c *counters) start() {
	c.startedAt.Store(time.Now().UnixNano())
	c.running.Store(true)
}

func (c *counters) stop() { c.running.Store(false) }

func (c *counters) snapshot(name string) Stats {
	st := Stats{
		Source:    name,
		Running:   c.running.Load(),
		Frames:    c.frames.Load(),
		Rejected:  c.rejected.Load(),
		Bytes:     c.bytes.Load(),
		LastStamp: c.lastStamp.Load(),
	}
	if at := c.startedAt.Load(); at != 0 {
		st.Uptime = time.Since(time.Unix(0, at))
	}
	return st
}

// deliver loads y/uv into a pooled frame and hands it to sink. It reports
// whether the source should keep going.
func (c *counters) deliver(frames FramePool, sink FrameSink, ts uint64, y, uv []byte) (bool, error) {
	f := frames.Get()
	if err := f.LoadNV12(ts, y, uv); err != nil {
		frames.Release(f)
		return false, fmt.Errorf("capture: load frame %d: %w", ts, err)
	}
	if err := sink.Enqueue(f); err != nil {
		frames.Release(f)
		c.rejected.Add(1)
		if errors.Is(err, pipeline.ErrClosed) {
			return false, nil
		}
		return false, fmt.Errorf("capture: enqueue frame %d: %w", ts, err)
	}
	c.frames.Add(1)
	c.bytes.Add(uint64(len(y) + len(uv)))
	c.lastStamp.Store(ts)
	return true, nil
}

func validateGeometry(width, height, fps int, mode frame.DeviceMode) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidConfig, width, height)
	}
	if fps <= 0 {
		return fmt.Errorf("%w: fps %d", ErrInvalidConfig, fps)
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: device mode %d", ErrInvalidConfig, mode)
	}
	return nil
}
