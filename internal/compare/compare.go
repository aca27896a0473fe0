// Package compare checks two sample sequences for equality within a
// floating point tolerance.
//
// Samples are paired by position, so both sequences should be sorted by
// timestamp first.
package compare

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/e7canasta/orion-ppg/internal/extract"
)

// DefaultTolerance is the absolute signal difference still considered equal.
const DefaultTolerance = 1e-10

// FrameResult is the comparison of one sample pair.
type FrameResult struct {
	Index            int
	TimestampMatch   bool
	WarningMatch     bool
	SignalsMatch     bool
	SignalCountA     int
	SignalCountB     int
	DifferentIndices []int
	MaxDifference    float64
	Message          string
}

// Match reports whether every field of the pair matched.
func (f FrameResult) Match() bool {
	return f.TimestampMatch && f.WarningMatch && f.SignalsMatch
}

// Result is the comparison of two sequences.
type Result struct {
	Identical bool
	TotalA    int
	TotalB    int
	Matching  int
	Different int
	MaxDiff   float64
	Tolerance float64
	Frames    []FrameResult // One per compared pair
	Errors    []string
}

// Compare pairs a[i] with b[i] over the shorter sequence. A length mismatch
// is reported as an error and makes the result non-identical.
func Compare(a, b []extract.Sample, tolerance float64) Result {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	res := Result{TotalA: len(a), TotalB: len(b), Tolerance: tolerance}
	if len(a) != len(b) {
		res.Errors = append(res.Errors,
			fmt.Sprintf("frame count mismatch: first has %d frames, second has %d", len(a), len(b)))
	}

	n := min(len(a), len(b))
	res.Frames = make([]FrameResult, n)
	for i := 0; i < n; i++ {
		fr := compareFrame(a[i], b[i], i, tolerance)
		res.Frames[i] = fr
		res.MaxDiff = math.Max(res.MaxDiff, fr.MaxDifference)
		if fr.Match() {
			res.Matching++
		} else {
			res.Different++
		}
	}
	res.Identical = len(res.Errors) == 0 && res.Different == 0
	return res
}

func compareFrame(a, b extract.Sample, index int, tolerance float64) FrameResult {
	fr := FrameResult{
		Index:          index,
		TimestampMatch: a.Timestamp == b.Timestamp,
		WarningMatch:   a.QualityWarning == b.QualityWarning,
		SignalCountA:   len(a.Signals),
		SignalCountB:   len(b.Signals),
	}

	switch {
	case a.Signals == nil && b.Signals == nil:
		fr.SignalsMatch = true
	case a.Signals == nil || b.Signals == nil:
		fr.Message = "one sample has no signals"
	case len(a.Signals) != len(b.Signals):
		fr.Message = fmt.Sprintf("signal length mismatch: %d vs %d", len(a.Signals), len(b.Signals))
	default:
		fr.SignalsMatch = true
		for i := range a.Signals {
			x, y := a.Signals[i], b.Signals[i]
			if math.IsNaN(x) || math.IsNaN(y) {
				if !(math.IsNaN(x) && math.IsNaN(y)) {
					fr.SignalsMatch = false
					fr.DifferentIndices = append(fr.DifferentIndices, i)
				}
				continue
			}
			diff := math.Abs(x - y)
			fr.MaxDifference = math.Max(fr.MaxDifference, diff)
			if diff > tolerance {
				fr.SignalsMatch = false
				fr.DifferentIndices = append(fr.DifferentIndices, i)
			}
		}
	}
	return fr
}

// Write prints a human readable report listing at most limit differing
// frames.
func Write(w io.Writer, res Result, limit int) {
	if res.Identical {
		fmt.Fprintln(w, "FILES ARE IDENTICAL")
	} else {
		fmt.Fprintln(w, "FILES ARE DIFFERENT")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Total frames in file 1: %d\n", res.TotalA)
	fmt.Fprintf(w, "  Total frames in file 2: %d\n", res.TotalB)
	fmt.Fprintf(w, "  Matching frames: %d\n", res.Matching)
	fmt.Fprintf(w, "  Different frames: %d\n", res.Different)
	fmt.Fprintf(w, "  Max signal difference: %E\n", res.MaxDiff)
	fmt.Fprintf(w, "  Tolerance used: %E\n", res.Tolerance)

	if len(res.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}

	if res.Different == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Frame differences (showing first %d):\n", min(limit, res.Different))
	shown := 0
	for _, fr := range res.Frames {
		if fr.Match() {
			continue
		}
		if shown == limit {
			break
		}
		shown++
		fmt.Fprintf(w, "  Frame %d:\n", fr.Index)
		if !fr.TimestampMatch {
			fmt.Fprintln(w, "    - timestamp mismatch")
		}
		if !fr.WarningMatch {
			fmt.Fprintln(w, "    - quality warning mismatch")
		}
		if !fr.SignalsMatch {
			fmt.Fprintf(w, "    - signal mismatch (max diff: %E)\n", fr.MaxDifference)
			if len(fr.DifferentIndices) > 0 {
				fmt.Fprintf(w, "      different signal indices: %s\n", formatIndices(fr.DifferentIndices, 5))
			}
		}
		if fr.Message != "" {
			fmt.Fprintf(w, "    - %s\n", fr.Message)
		}
	}
	if res.Different > limit {
		fmt.Fprintf(w, "  ... and %d more different frames\n", res.Different-limit)
	}
}

func formatIndices(idx []int, max int) string {
	parts := make([]string, 0, max)
	for i, v := range idx {
		if i == max {
			break
		}
		parts = append(parts, fmt.Sprint(v))
	}
	s := strings.Join(parts, ", ")
	if len(idx) > max {
		s += "..."
	}
	return s
}
