package pipeline

import (
	"sync/atomic"
	"time"
)

type worker struct {
	id        string
	processed atomic.Uint64
	failed    atomic.Uint64
	lastNs    atomic.Int64 // Unix nanos of the last completed frame
}

// runWorker pops frames until the queue is drained or aborted.
//
// Per frame: extract → sink → recycle. An extraction error is logged and
// counted; the worker moves on. A result that completes after termination
// is dropped so no sample is emitted for an abandoned frame.
func (p *Pipeline) runWorker(w *worker) {
	defer p.wg.Done()

	for {
		f, ok := p.q.pop()
		if !ok {
			return
		}

		sample, err := p.ext.Extract(f)
		ts := f.Timestamp

		if p.terminated() {
			p.recycle(f)
			p.abandoned.Add(1)
			return
		}

		if err != nil {
			p.recycle(f)
			p.failed.Add(1)
			w.failed.Add(1)
			p.log.Warn("pipeline: frame extraction failed",
				"worker", w.id,
				"timestamp", ts,
				"error", err,
			)
			continue
		}

		p.sink.Add(sample)
		p.recycle(f)
		p.processed.Add(1)
		w.processed.Add(1)
		w.lastNs.Store(time.Now().UnixNano())
	}
}
