package pipeline

import (
	"sync"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

// compactThreshold bounds the dead prefix kept before the FIFO is shifted.
const compactThreshold = 1024

// queue is the unbounded multi-consumer ingress FIFO.
//
// Workers block in pop on a sync.Cond until a frame arrives, the queue is
// closed and empty, or the queue is aborted.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []*frame.Frame
	head    int
	closed  bool // No new pushes; pops drain the remainder
	aborted bool // Pops return immediately
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends f and returns the backlog including f. It fails once the
// queue is closed.
func (q *queue) push(f *frame.Frame) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, false
	}
	q.items = append(q.items, f)
	q.cond.Signal()
	return len(q.items) - q.head, true
}

// pop blocks until a frame is available. It returns false when the queue is
// aborted, or closed with nothing left.
func (q *queue) pop() (*frame.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed && !q.aborted {
		q.cond.Wait()
	}
	if q.aborted || q.head == len(q.items) {
		return nil, false
	}

	f := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && 2*q.head >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return f, true
}

// close rejects further pushes and wakes idle workers so they can exit once
// the remainder is drained.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// abort closes the queue, wakes every worker and returns the frames that
// were still queued.
func (q *queue) abort() []*frame.Frame {
	q.mu.Lock()
	q.closed = true
	q.aborted = true
	left := append([]*frame.Frame(nil), q.items[q.head:]...)
	clear(q.items)
	q.items = nil
	q.head = 0
	q.mu.Unlock()

	q.cond.Broadcast()
	return left
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
