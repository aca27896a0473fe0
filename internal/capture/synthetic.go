package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

// SyntheticConfig configures a generated pulse recording.
type SyntheticConfig struct {
	Width     int
	Height    int
	Mode      frame.DeviceMode
	FPS       int
	Frames    int     // Total frames to produce
	HeartRate float64 // Pulse rate in bpm
	Realtime  bool    // Pace frames at FPS instead of as fast as the sink allows
	Logger    *slog.Logger
}

// Synthetic renders a finger pressed on the lens with the flash on: a bright,
// red-dominant image whose brightness follows a pulse waveform. A horizontal
// brightness gradient makes regions distinguishable.
type Synthetic struct {
	cfg    SyntheticConfig
	frames FramePool
	log    *slog.Logger
	c      counters

	y, uv []byte
	ramp  []float64
}

// NewSynthetic validates cfg and prepares the render buffers.
func NewSynthetic(cfg SyntheticConfig, frames FramePool) (*Synthetic, error) {
	if err := validateGeometry(cfg.Width, cfg.Height, cfg.FPS, cfg.Mode); err != nil {
		return nil, err
	}
	if cfg.Frames < 0 {
		return nil, fmt.Errorf("%w: frames %d", ErrInvalidConfig, cfg.Frames)
	}
	if cfg.HeartRate <= 0 {
		return nil, fmt.Errorf("%w: heart rate %.1f", ErrInvalidConfig, cfg.HeartRate)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Synthetic{
		cfg:    cfg,
		frames: frames,
		log:    cfg.Logger,
		y:      make([]byte, frame.LumaSize(cfg.Width, cfg.Height)),
		uv:     make([]byte, frame.ChromaSpan(cfg.Width, cfg.Height)),
		ramp:   make([]float64, cfg.Width),
	}
	for x := range s.ramp {
		s.ramp[x] = 8 * float64(x) / float64(cfg.Width)
	}
	return s, nil
}

// Name implements Source.
func (s *Synthetic) Name() string { return "synthetic" }

// Stats implements Source.
func (s *Synthetic) Stats() Stats { return s.c.snapshot(s.Name()) }

// Run implements Source.
func (s *Synthetic) Run(ctx context.Context, sink FrameSink) error {
	s.c.start()
	defer s.c.stop()

	var tick <-chan time.Time
	if s.cfg.Realtime {
		ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	s.log.Info("capture: synthetic source started",
		"width", s.cfg.Width,
		"height", s.cfg.Height,
		"fps", s.cfg.FPS,
		"frames", s.cfg.Frames,
		"heart_rate", s.cfg.HeartRate,
		"mode", s.cfg.Mode)

	for seq := 0; seq < s.cfg.Frames; seq++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		ts := Timestamp(uint64(seq), s.cfg.FPS)
		s.render(float64(ts) / 1000)
		more, err := s.c.deliver(s.frames, sink, ts, s.y, s.uv)
		if err != nil {
			return err
		}
		if !more {
			s.log.Info("capture: sink closed, stopping", "source", s.Name(), "frames", s.c.frames.Load())
			return nil
		}
	}

	s.log.Info("capture: synthetic source exhausted", "frames", s.c.frames.Load())
	return nil
}

// Pulse is the normalized pulse waveform at t seconds for hr bpm: a systolic
// peak with a smaller dicrotic wave, roughly in [-1, 1].
func Pulse(t, hr float64) float64 {
	phase := 2 * math.Pi * hr / 60 * t
	return 0.8*math.Sin(phase) + 0.2*math.Sin(2*phase+math.Pi/4)
}

func (s *Synthetic) render(t float64) {
	p := Pulse(t, s.cfg.HeartRate)
	w := s.cfg.Width

	row := s.y[:w]
	for x := range row {
		row[x] = clamp(150 + 10*p + s.ramp[x])
	}
	for off := w; off < len(s.y); off += w {
		copy(s.y[off:off+w], row)
	}

	u := clamp(118 - 3*p)
	v := clamp(170 + 6*p)
	for i := 0; i+1 < len(s.uv); i += 2 {
		s.uv[i] = u
		s.uv[i+1] = v
	}
	if len(s.uv)%2 == 1 {
		s.uv[len(s.uv)-1] = u
	}
}

func clamp(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(math.Round(v))
}
