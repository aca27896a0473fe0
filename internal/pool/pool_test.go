package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

func TestAcquireEmptyPoolSignalsAllocate(t *testing.T) {
	p := New(8, 8, frame.LuminanceOnly, 2)
	f, ok := p.Acquire()
	assert.False(t, ok)
	assert.Nil(t, f)

	f = p.Get()
	require.NotNil(t, f)
	assert.True(t, f.Fits(8, 8, frame.LuminanceOnly))
	assert.Equal(t, uint64(1), p.Stats().Allocated)
}

func TestReleaseThenAcquireRecycles(t *testing.T) {
	p := New(8, 8, frame.CombinedChroma, 2)
	f := p.Get()
	f.Timestamp = 99
	p.Release(f)

	got, ok := p.Acquire()
	require.True(t, ok)
	assert.Same(t, f, got)
	assert.Zero(t, got.Timestamp)

	st := p.Stats()
	assert.Equal(t, uint64(1), st.Released)
	assert.Equal(t, uint64(1), st.Reused)
}

func TestReleaseBeyondCapacityDiscards(t *testing.T) {
	p := New(4, 4, frame.LuminanceOnly, 2)
	for i := 0; i < 5; i++ {
		p.Release(frame.New(4, 4, frame.LuminanceOnly))
	}
	st := p.Stats()
	assert.Equal(t, 2, st.Free)
	assert.Equal(t, uint64(2), st.Released)
	assert.Equal(t, uint64(3), st.Discarded)
}

func TestReleaseRejectsIncompatibleFrames(t *testing.T) {
	p := New(4, 4, frame.LuminanceOnly, 2)
	p.Release(frame.New(6, 4, frame.LuminanceOnly))
	p.Release(frame.New(4, 4, frame.CombinedChroma))
	p.Release(nil)

	st := p.Stats()
	assert.Zero(t, st.Free)
	assert.Equal(t, uint64(3), st.Discarded)
}

func TestDefaultCapacity(t *testing.T) {
	p := New(4, 4, frame.LuminanceOnly, 0)
	assert.Equal(t, DefaultCapacity(), p.Stats().Capacity)
	assert.GreaterOrEqual(t, DefaultCapacity(), FramesPerWorker)
}

// TestConcurrentGetRelease exercises the free list from many goroutines.
// Reuse is not asserted: every frame handed out must simply fit.
func TestConcurrentGetRelease(t *testing.T) {
	p := New(16, 16, frame.LuminanceOnly, 4)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				f := p.Get()
				if !f.Fits(16, 16, frame.LuminanceOnly) {
					t.Errorf("pool handed out a frame of the wrong geometry")
					return
				}
				p.Release(f)
			}
		}()
	}
	wg.Wait()

	st := p.Stats()
	assert.Equal(t, uint64(1600), st.Allocated+st.Reused)
	assert.LessOrEqual(t, st.Free, 4)
}
