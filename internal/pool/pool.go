// Package pool recycles Frame buffers between the pipeline workers and the
// capture source.
//
// The free list is a buffered channel: Release parks a frame if there is
// room, Acquire takes one if there is any. Neither blocks. A race between
// the two may allocate a fresh frame instead of reusing one, which only
// costs an allocation.
package pool

import (
	"runtime"
	"sync/atomic"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

// FramesPerWorker sizes the default capacity relative to the worker count.
const FramesPerWorker = 4

// DefaultCapacity is the free-list capacity for the host's parallelism.
func DefaultCapacity() int { return runtime.NumCPU() * FramesPerWorker }

// Stats is a snapshot of pool counters.
type Stats struct {
	Capacity  int    // Maximum parked frames
	Free      int    // Currently parked frames
	Allocated uint64 // Frames built by Get because the list was empty
	Reused    uint64 // Frames handed out from the free list
	Released  uint64 // Frames parked by Release
	Discarded uint64 // Frames dropped by Release (pool full or wrong size)
}

// Pool is a bounded free list of frames of one geometry.
//
// Thread-safety: all methods are safe for concurrent use.
type Pool struct {
	width, height int
	mode          frame.DeviceMode
	free          chan *frame.Frame

	allocated atomic.Uint64
	reused    atomic.Uint64
	released  atomic.Uint64
	discarded atomic.Uint64
}

// New creates a pool for width×height frames in mode. capacity <= 0 selects
// DefaultCapacity.
func New(width, height int, mode frame.DeviceMode, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}
	return &Pool{
		width:  width,
		height: height,
		mode:   mode,
		free:   make(chan *frame.Frame, capacity),
	}
}

// Acquire returns a recycled frame, or (nil, false) when the caller must
// allocate a new one.
func (p *Pool) Acquire() (*frame.Frame, bool) {
	select {
	case f := <-p.free:
		p.reused.Add(1)
		f.Timestamp = 0
		return f, true
	default:
		return nil, false
	}
}

// Get returns a recycled frame or allocates a new one.
func (p *Pool) Get() *frame.Frame {
	if f, ok := p.Acquire(); ok {
		return f
	}
	p.allocated.Add(1)
	return frame.New(p.width, p.height, p.mode)
}

// Release hands f back to the pool. The caller must not use f afterwards.
// Frames of another geometry, or beyond capacity, are left to the garbage
// collector.
func (p *Pool) Release(f *frame.Frame) {
	if !f.Fits(p.width, p.height, p.mode) {
		p.discarded.Add(1)
		return
	}
	select {
	case p.free <- f:
		p.released.Add(1)
	default:
		p.discarded.Add(1)
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity:  cap(p.free),
		Free:      len(p.free),
		Allocated: p.allocated.Load(),
		Reused:    p.reused.Load(),
		Released:  p.released.Load(),
		Discarded: p.discarded.Load(),
	}
}
