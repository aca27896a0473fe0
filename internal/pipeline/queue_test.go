package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	for i := 0; i < 3000; i++ {
		n, ok := q.push(&frame.Frame{Timestamp: uint64(i)})
		assert.True(t, ok)
		assert.Equal(t, i+1, n)
	}
	for i := 0; i < 3000; i++ {
		f, ok := q.pop()
		if !ok || f.Timestamp != uint64(i) {
			t.Fatalf("pop %d: got %v ok=%v", i, f, ok)
		}
	}
	assert.Zero(t, q.len())
}

func TestQueueCloseDrainsThenStops(t *testing.T) {
	q := newQueue()
	q.push(&frame.Frame{Timestamp: 1})
	q.close()

	_, ok := q.push(&frame.Frame{})
	assert.False(t, ok)

	f, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), f.Timestamp)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestQueueAbortWakesBlockedPop(t *testing.T) {
	q := newQueue()
	got := make(chan bool)
	go func() {
		_, ok := q.pop()
		got <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, q.abort())

	select {
	case ok := <-got:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake on abort")
	}
}

func TestQueueAbortReturnsLeftovers(t *testing.T) {
	q := newQueue()
	q.push(&frame.Frame{Timestamp: 1})
	q.push(&frame.Frame{Timestamp: 2})
	q.pop()

	left := q.abort()
	assert.Len(t, left, 1)
	assert.Equal(t, uint64(2), left[0].Timestamp)
	_, ok := q.pop()
	assert.False(t, ok)
}

func TestBackpressureDelay(t *testing.T) {
	unit := 10 * time.Millisecond
	assert.Zero(t, backpressureDelay(4, 4, unit))
	assert.Equal(t, 12500*time.Microsecond, backpressureDelay(5, 4, unit))
	assert.Equal(t, 40*time.Millisecond, backpressureDelay(16, 4, unit))
	assert.Zero(t, backpressureDelay(10, 0, unit))
}
