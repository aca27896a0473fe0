// Package extract reduces a camera frame to per-region luminance and
// chrominance statistics.
//
// An Extractor is built once per capture configuration and is immutable
// afterwards, so one instance may be shared by any number of goroutines.
package extract

import (
	"fmt"
	"math"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

// DefaultRegionsPerRow is the grid size used by every capture device.
const DefaultRegionsPerRow = 3

// Config fixes the geometry and device mode of an Extractor.
type Config struct {
	Width         int
	Height        int
	Mode          frame.DeviceMode
	RegionsPerRow int // 0 means DefaultRegionsPerRow
}

// Sample is the signal vector extracted from one frame.
type Sample struct {
	Timestamp      uint64    `json:"timestamp" msgpack:"timestamp"`
	Signals        []float64 `json:"signals" msgpack:"signals"`
	QualityWarning bool      `json:"qualityWarning" msgpack:"qualityWarning"`
}

// Extractor computes Samples for frames of one fixed configuration.
type Extractor struct {
	cfg     Config
	regions []Region
}

// New validates cfg and precomputes the region layout.
func New(cfg Config) (*Extractor, error) {
	if cfg.RegionsPerRow == 0 {
		cfg.RegionsPerRow = DefaultRegionsPerRow
	}
	if cfg.RegionsPerRow < 0 {
		return nil, fmt.Errorf("%w: regions per row %d", ErrInvalidConfig, cfg.RegionsPerRow)
	}
	if cfg.Width < cfg.RegionsPerRow || cfg.Height < cfg.RegionsPerRow {
		return nil, fmt.Errorf("%w: %dx%d frame cannot hold a %dx%d grid",
			ErrInvalidConfig, cfg.Width, cfg.Height, cfg.RegionsPerRow, cfg.RegionsPerRow)
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: device mode %v", ErrInvalidConfig, cfg.Mode)
	}

	regions := Tile(cfg.Width, cfg.Height, cfg.RegionsPerRow)
	if err := checkTiling(regions, cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg, regions: regions}, nil
}

// Config returns the configuration the Extractor was built with.
func (e *Extractor) Config() Config { return e.cfg }

// Regions returns a copy of the region layout.
func (e *Extractor) Regions() []Region {
	out := make([]Region, len(e.regions))
	copy(out, e.regions)
	return out
}

// SignalLen is the length of every Sample.Signals produced by e: three
// slots per region plus three reserved trailing slots.
func (e *Extractor) SignalLen() int { return 3*len(e.regions) + 3 }

// ExtractOne runs the extractor on raw planes without a pooled Frame.
// LuminanceOnly takes one chroma plane (interleaved UV); CombinedChroma
// takes two (U, then V).
func (e *Extractor) ExtractOne(timestamp uint64, luminance []byte, chroma ...[]byte) (Sample, error) {
	if e == nil || len(e.regions) == 0 {
		return Sample{}, ErrNotInitialized
	}
	f := &frame.Frame{Luminance: luminance, Timestamp: timestamp}
	switch e.cfg.Mode {
	case frame.LuminanceOnly:
		if len(chroma) != 1 {
			return Sample{}, fmt.Errorf("%w: luminance mode takes 1 chroma plane, got %d", ErrFrameMismatch, len(chroma))
		}
		f.ChromaCombined = chroma[0]
	case frame.CombinedChroma:
		if len(chroma) != 2 {
			return Sample{}, fmt.Errorf("%w: chroma mode takes 2 chroma planes, got %d", ErrFrameMismatch, len(chroma))
		}
		f.ChromaU, f.ChromaV = chroma[0], chroma[1]
	}
	return e.Extract(f)
}

// Extract computes the Sample for f. It never retains f.
func (e *Extractor) Extract(f *frame.Frame) (Sample, error) {
	if e == nil || len(e.regions) == 0 {
		return Sample{}, ErrNotInitialized
	}
	if err := e.validate(f); err != nil {
		return Sample{}, err
	}

	signals := make([]float64, e.SignalLen())
	var q quality
	switch e.cfg.Mode {
	case frame.LuminanceOnly:
		q = e.luminanceOnly(f, signals)
	case frame.CombinedChroma:
		q = e.combinedChroma(f, signals)
	}

	return Sample{
		Timestamp:      f.Timestamp,
		Signals:        signals,
		QualityWarning: reportQuality && q.warning(e.cfg.Mode),
	}, nil
}

func (e *Extractor) validate(f *frame.Frame) error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrFrameMismatch)
	}
	w, h := e.cfg.Width, e.cfg.Height
	if want := frame.LumaSize(w, h); len(f.Luminance) != want {
		return fmt.Errorf("%w: luminance %d bytes, want %d for %dx%d", ErrFrameMismatch, len(f.Luminance), want, w, h)
	}

	span := frame.ChromaSpan(w, h)
	switch e.cfg.Mode {
	case frame.LuminanceOnly:
		if len(f.ChromaCombined) < span {
			return fmt.Errorf("%w: interleaved chroma %d bytes, want at least %d", ErrFrameMismatch, len(f.ChromaCombined), span)
		}
	case frame.CombinedChroma:
		if f.ChromaU == nil || f.ChromaV == nil {
			return fmt.Errorf("%w: split chroma planes missing", ErrFrameMismatch)
		}
		if got := len(f.ChromaU) + len(f.ChromaV); got < span {
			return fmt.Errorf("%w: split chroma %d+%d bytes, want at least %d", ErrFrameMismatch, len(f.ChromaU), len(f.ChromaV), span)
		}
	}
	return nil
}

// luminanceOnly fills signals[3r] with the mean luminance of region r.
func (e *Extractor) luminanceOnly(f *frame.Frame, signals []float64) quality {
	w := e.cfg.Width
	q := newQuality()
	for r, reg := range e.regions {
		var sum uint64
		for y := reg.Y; y < reg.Y+reg.Height; y++ {
			off := y*w + reg.X
			for _, px := range f.Luminance[off : off+reg.Width] {
				sum += uint64(px)
			}
		}
		mean := float64(sum) / float64(reg.Area())
		signals[3*r] = mean
		q.observe(mean)
	}
	return q
}

// combinedChroma fills luminance, U and V means for every region. Chroma is
// addressed at half resolution in an interleaved UVUV row of width bytes;
// indexes past the end of the U plane continue into the V plane.
func (e *Extractor) combinedChroma(f *frame.Frame, signals []float64) quality {
	w := e.cfg.Width
	u, v := f.ChromaU, f.ChromaV
	q := newQuality()
	for r, reg := range e.regions {
		var sumY, sumU, sumV, sqU uint64
		for y := reg.Y; y < reg.Y+reg.Height; y++ {
			lum := y * w
			crow := (y / 2) * w
			for x := reg.X; x < reg.X+reg.Width; x++ {
				idx := 2*(x/2) + crow
				cu := chromaAt(u, v, idx)
				cv := chromaAt(u, v, idx+1)
				sumY += uint64(f.Luminance[lum+x])
				sumU += cu
				sumV += cv
				sqU += cu * cu
			}
		}
		n := float64(reg.Area())
		meanU := float64(sumU) / n
		signals[3*r] = float64(sumY) / n
		signals[3*r+1] = meanU
		signals[3*r+2] = float64(sumV) / n

		q.observe(meanU)
		q.spread(math.Sqrt(float64(sqU)/n - meanU*meanU))
	}
	return q
}

func chromaAt(u, v []byte, idx int) uint64 {
	if idx < len(u) {
		return uint64(u[idx])
	}
	return uint64(v[idx-len(u)])
}
