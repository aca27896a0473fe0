package extract

import "github.com/e7canasta/orion-ppg/internal/frame"

// reportQuality gates the computed quality warning. Consumers of recorded
// sessions expect warnings never to fire, so it stays off.
const reportQuality = false

// Intensity windows observed in 60 fps captures.
const (
	lumaMaxIntensity   = 1100
	lumaMinIntensity   = 400
	chromaMaxIntensity = 150
	chromaMinIntensity = 10
	chromaMaxSpread    = 10
)

// quality tracks the spread of region means within one frame.
type quality struct {
	max, min  float64
	maxSpread float64
}

func newQuality() quality {
	return quality{max: 0, min: 100000}
}

func (q *quality) observe(mean float64) {
	if mean > q.max {
		q.max = mean
	}
	if mean < q.min {
		q.min = mean
	}
}

func (q *quality) spread(s float64) {
	if s > q.maxSpread {
		q.maxSpread = s
	}
}

// warning reports whether the frame falls outside the acceptable window for
// mode.
func (q quality) warning(mode frame.DeviceMode) bool {
	switch mode {
	case frame.LuminanceOnly:
		return !(q.max < lumaMaxIntensity && q.min > lumaMinIntensity)
	case frame.CombinedChroma:
		return !(q.maxSpread < chromaMaxSpread && q.max < chromaMaxIntensity && q.min > chromaMinIntensity)
	}
	return true
}
