// Package cadence measures the effective sampling rate of a PPG signal from
// its sample timestamps.
//
// Samples complete out of order, so timestamps are sorted before analysis.
// Downstream signal processing assumes a steady rate; Stats.Stable tells the
// caller whether that assumption holds for a session.
package cadence

import (
	"math"
	"slices"
	"time"
)

const (
	// rateStabilityThreshold is the maximum rate standard deviation as a
	// fraction of the mean rate. Example: 60 Hz mean → stable if stddev < 9 Hz.
	rateStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of the
	// mean interval. Example: 60 Hz (16.7ms) → stable if jitter < 3.3ms.
	jitterStabilityThreshold = 0.20

	// gapFactor marks an interval as a gap when it exceeds the nominal
	// interval by this factor.
	gapFactor = 1.5
)

// Stats summarizes sample timing.
type Stats struct {
	Samples  int           `json:"samples"`
	Span     time.Duration `json:"span"` // Last minus first timestamp
	RateMean float64       `json:"rate_mean_hz"`
	RateStd  float64       `json:"rate_stddev_hz"`
	RateMin  float64       `json:"rate_min_hz"`
	RateMax  float64       `json:"rate_max_hz"`

	JitterMean   time.Duration `json:"jitter_mean"`
	JitterStdDev time.Duration `json:"jitter_stddev"`
	JitterMax    time.Duration `json:"jitter_max"`

	// Duplicates counts samples sharing a timestamp with their predecessor.
	Duplicates int `json:"duplicates"`

	// Gaps and Missing are only filled when a nominal rate is given:
	// intervals longer than 1.5 nominal intervals, and the frames those
	// intervals are estimated to have lost.
	Gaps    int `json:"gaps"`
	Missing int `json:"missing"`

	Stable bool `json:"stable"`
}

// Analyze computes timing statistics from millisecond timestamps.
// nominalFPS is the configured capture rate; zero skips gap detection.
//
// The algorithm:
//  1. Sorts a copy of the timestamps
//  2. Mean rate = intervals / span
//  3. Instantaneous rate per interval, min/max/stddev around the mean
//  4. Jitter = |interval - mean interval|, mean/stddev/max
//  5. Stable = stddev < 15% of mean rate AND mean jitter < 20% of mean interval
func Analyze(timestamps []uint64, nominalFPS float64) Stats {
	n := len(timestamps)
	st := Stats{Samples: n}
	if n < 2 {
		return st
	}

	ts := slices.Clone(timestamps)
	slices.Sort(ts)

	spanMs := float64(ts[n-1] - ts[0])
	st.Span = time.Duration(ts[n-1]-ts[0]) * time.Millisecond
	if spanMs == 0 {
		st.Duplicates = n - 1
		return st
	}
	st.RateMean = float64(n-1) / (spanMs / 1000)
	meanInterval := spanMs / float64(n-1)

	var nominalInterval float64
	if nominalFPS > 0 {
		nominalInterval = 1000 / nominalFPS
	}

	rates := make([]float64, 0, n-1)
	jitters := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := float64(ts[i] - ts[i-1])
		jitters = append(jitters, math.Abs(interval-meanInterval))
		if interval == 0 {
			st.Duplicates++
			continue
		}
		rates = append(rates, 1000/interval)
		if nominalInterval > 0 && interval > gapFactor*nominalInterval {
			st.Gaps++
			st.Missing += int(math.Round(interval/nominalInterval)) - 1
		}
	}

	if len(rates) > 0 {
		st.RateMin, st.RateMax = slices.Min(rates), slices.Max(rates)
		var sq float64
		for _, r := range rates {
			d := r - st.RateMean
			sq += d * d
		}
		st.RateStd = math.Sqrt(sq / float64(len(rates)))
	}

	jMean, jStd, jMax := meanStdMax(jitters)
	st.JitterMean = msDuration(jMean)
	st.JitterStdDev = msDuration(jStd)
	st.JitterMax = msDuration(jMax)

	rateStable := st.RateStd < st.RateMean*rateStabilityThreshold
	jitterStable := jMean < meanInterval*jitterStabilityThreshold
	st.Stable = rateStable && jitterStable && st.Duplicates == 0
	return st
}

func meanStdMax(xs []float64) (mean, std, max float64) {
	if len(xs) == 0 {
		return 0, 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
		if x > max {
			max = x
		}
	}
	mean = sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs))), max
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
