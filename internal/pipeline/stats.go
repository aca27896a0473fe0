package pipeline

import (
	"fmt"
	"time"
)

// State is the pipeline lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText renders the state by name in JSON stats.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Stats is a snapshot of pipeline counters.
//
// Counters are read independently, so a snapshot taken while workers run may
// be slightly inconsistent across fields.
type Stats struct {
	State   State `json:"state"`
	Workers int   `json:"workers"`

	Backlog    int `json:"backlog"`     // Frames queued now
	MaxBacklog int `json:"max_backlog"` // Largest backlog seen by Enqueue

	Enqueued  uint64 `json:"enqueued"`
	Processed uint64 `json:"processed"` // Samples handed to the sink
	Failed    uint64 `json:"failed"`    // Extraction errors
	Abandoned uint64 `json:"abandoned"` // Results dropped after termination
	Discarded uint64 `json:"discarded"` // Queued frames dropped at termination

	Throttled    uint64        `json:"throttled"`     // Enqueue calls delayed by backpressure
	ThrottledFor time.Duration `json:"throttled_for"` // Total producer delay

	PerWorker []WorkerStats `json:"per_worker"`
}

// WorkerStats tracks one extraction goroutine.
type WorkerStats struct {
	ID            string    `json:"id"`
	Processed     uint64    `json:"processed"`
	Failed        uint64    `json:"failed"`
	LastProcessed time.Time `json:"last_processed"` // Zero until the first sample
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	st := Stats{
		State:        p.State(),
		Workers:      len(p.workers),
		Backlog:      p.q.len(),
		MaxBacklog:   int(p.maxBacklog.Load()),
		Enqueued:     p.enqueued.Load(),
		Processed:    p.processed.Load(),
		Failed:       p.failed.Load(),
		Abandoned:    p.abandoned.Load(),
		Discarded:    p.discarded.Load(),
		Throttled:    p.throttled.Load(),
		ThrottledFor: time.Duration(p.throttleNs.Load()),
		PerWorker:    make([]WorkerStats, len(p.workers)),
	}
	for i, w := range p.workers {
		ws := WorkerStats{
			ID:        w.id,
			Processed: w.processed.Load(),
			Failed:    w.failed.Load(),
		}
		if ns := w.lastNs.Load(); ns != 0 {
			ws.LastProcessed = time.Unix(0, ns)
		}
		st.PerWorker[i] = ws
	}
	return st
}
