// Package collector accumulates the samples produced by pipeline workers.
package collector

import (
	"sync"

	"github.com/e7canasta/orion-ppg/internal/extract"
)

// Collector is a thread-safe append-only store of samples.
//
// Samples arrive in completion order, which does not follow capture order
// when several workers run. Consumers needing temporal order sort by
// timestamp.
type Collector struct {
	mu       sync.Mutex
	samples  []extract.Sample
	warnings int
}

// New returns an empty collector. sizeHint preallocates room for the
// expected number of samples and may be zero.
func New(sizeHint int) *Collector {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Collector{samples: make([]extract.Sample, 0, sizeHint)}
}

// Add appends s.
func (c *Collector) Add(s extract.Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	if s.QualityWarning {
		c.warnings++
	}
	c.mu.Unlock()
}

// Count returns the number of samples added so far.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// QualityWarningCount returns how many added samples carried a warning.
func (c *Collector) QualityWarningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warnings
}

// Snapshot returns a copy of the samples added so far. Signal slices are
// shared with the stored samples; samples are immutable.
func (c *Collector) Snapshot() []extract.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]extract.Sample, len(c.samples))
	copy(out, c.samples)
	return out
}
