// Package pipeline runs frame extraction on a worker pool fed by a single
// capture producer.
//
// Lifecycle:
//
//	Created ──New──▶ Running ──Complete──▶ Draining ──▶ Terminated
//	                    └──────────Cancel / ctx done───────▲
//
// There is no way back from Terminated.
//
// Goroutine topology:
//   - N workers (N = host parallelism unless configured), spawned by New
//   - 1 watcher closing Done() once every worker has exited
//
// Thread-safety: every method is safe for concurrent use. Enqueue is meant
// for a single producer (the capture callback) but tolerates several.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-ppg/internal/extract"
	"github.com/e7canasta/orion-ppg/internal/frame"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultDrainTimeout     = 100 * time.Millisecond
	DefaultBackpressureUnit = 10 * time.Millisecond
)

var (
	// ErrClosed is returned by Enqueue once the pipeline stopped accepting
	// frames (draining or terminated).
	ErrClosed = errors.New("pipeline: closed to new frames")

	// ErrInvalidConfig is returned by New for missing collaborators.
	ErrInvalidConfig = errors.New("pipeline: invalid configuration")
)

// Extractor turns a frame into a sample. Implementations must be safe for
// concurrent use and must not retain the frame.
type Extractor interface {
	Extract(f *frame.Frame) (extract.Sample, error)
}

// Sink receives every produced sample. Implementations must be safe for
// concurrent use.
type Sink interface {
	Add(s extract.Sample)
}

// Recycler takes back frames once workers are done with them.
type Recycler interface {
	Release(f *frame.Frame)
}

// Config tunes the pipeline. Zero values select the defaults.
type Config struct {
	// Workers is the number of extraction goroutines (default runtime.NumCPU()).
	Workers int

	// DrainTimeout bounds how long Complete waits for queued work.
	DrainTimeout time.Duration

	// BackpressureUnit is the producer delay per queued frame per worker once
	// the backlog exceeds the worker count.
	BackpressureUnit time.Duration

	// Logger receives lifecycle and per-frame failure logs (default slog.Default()).
	Logger *slog.Logger
}

// Pipeline is the concurrent frame-processing engine.
type Pipeline struct {
	ext      Extractor
	sink     Sink
	recycler Recycler
	cfg      Config
	log      *slog.Logger

	q       *queue
	workers []*worker

	// --- Lifecycle ---

	stateMu   sync.Mutex   // Serializes transitions
	state     atomic.Int32 // State, readable without stateMu
	drained   atomic.Bool  // Complete's drain was the path that terminated
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool // Detaches the parent-context watcher; guarded by stateMu
	wg        sync.WaitGroup
	exited    chan struct{}

	// --- Counters ---

	enqueued   atomic.Uint64
	processed  atomic.Uint64
	failed     atomic.Uint64
	abandoned  atomic.Uint64
	discarded  atomic.Uint64
	throttled  atomic.Uint64
	throttleNs atomic.Int64
	maxBacklog atomic.Int64
}

// New starts a pipeline in the Running state.
//
// Cancelling ctx has the same effect as Cancel. recycler may be nil, in which
// case processed frames are left to the garbage collector.
func New(ctx context.Context, ext Extractor, sink Sink, recycler Recycler, cfg Config) (*Pipeline, error) {
	if ext == nil || sink == nil {
		return nil, fmt.Errorf("%w: extractor and sink are required", ErrInvalidConfig)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers %d", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.BackpressureUnit <= 0 {
		cfg.BackpressureUnit = DefaultBackpressureUnit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Pipeline{
		ext:      ext,
		sink:     sink,
		recycler: recycler,
		cfg:      cfg,
		log:      cfg.Logger,
		q:        newQueue(),
		exited:   make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.workers = make([]*worker, cfg.Workers)
	for i := range p.workers {
		w := &worker{id: fmt.Sprintf("worker-%d", i)}
		p.workers[i] = w
		p.wg.Add(1)
		go p.runWorker(w)
	}
	go func() {
		p.wg.Wait()
		close(p.exited)
	}()

	p.stateMu.Lock()
	p.state.Store(int32(StateRunning))
	p.stopWatch = context.AfterFunc(ctx, p.Cancel)
	p.stateMu.Unlock()

	p.log.Debug("pipeline: running",
		"workers", cfg.Workers,
		"drain_timeout", cfg.DrainTimeout,
		"backpressure_unit", cfg.BackpressureUnit,
	)
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Workers returns the number of extraction goroutines.
func (p *Pipeline) Workers() int { return len(p.workers) }

// Done is closed once every worker goroutine has exited.
func (p *Pipeline) Done() <-chan struct{} { return p.exited }

// Enqueue hands f to the workers.
//
// Backpressure: when the backlog after the push exceeds the worker count,
// the caller is held for BackpressureUnit × backlog / workers before
// Enqueue returns. Termination cuts the delay short.
//
// Ownership of f passes to the pipeline on success. On error (ErrClosed)
// the caller keeps it.
func (p *Pipeline) Enqueue(f *frame.Frame) error {
	if f == nil {
		return errors.New("pipeline: nil frame")
	}
	backlog, ok := p.q.push(f)
	if !ok {
		return fmt.Errorf("%w (state %s)", ErrClosed, p.State())
	}
	p.enqueued.Add(1)
	p.observeBacklog(backlog)

	if d := backpressureDelay(backlog, len(p.workers), p.cfg.BackpressureUnit); d > 0 {
		p.throttle(d)
	}
	return nil
}

// Complete closes the pipeline to new frames and waits up to DrainTimeout
// for the workers to finish queued and in-flight work, then terminates.
// It reports whether the drain finished before the timeout.
//
// Calls after the first return immediately with the recorded outcome.
func (p *Pipeline) Complete() bool {
	if !p.transition(StateRunning, StateDraining) {
		return p.drained.Load()
	}
	p.q.close()
	p.log.Debug("pipeline: draining", "backlog", p.q.len())

	timer := time.NewTimer(p.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-p.exited:
		// Workers also exit after a Cancel that raced the drain; only a
		// drain that reached Terminated first counts.
		p.drained.Store(p.terminate("drained"))
	case <-timer.C:
		p.log.Warn("pipeline: drain timed out, cancelling",
			"timeout", p.cfg.DrainTimeout,
			"backlog", p.q.len(),
		)
		p.terminate("drain timeout")
	}
	return p.drained.Load()
}

// Cancel terminates immediately: queued frames are discarded and results of
// frames in flight are dropped. It does not wait for workers; use Done.
// Cancelling a terminated pipeline is a no-op.
func (p *Pipeline) Cancel() {
	p.terminate("cancelled")
}

func (p *Pipeline) transition(from, to State) bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.State() != from {
		return false
	}
	p.state.Store(int32(to))
	return true
}

// terminate reports whether this call performed the transition.
func (p *Pipeline) terminate(reason string) bool {
	p.stateMu.Lock()
	if p.State() == StateTerminated {
		p.stateMu.Unlock()
		return false
	}
	p.state.Store(int32(StateTerminated))
	stopWatch := p.stopWatch
	p.stateMu.Unlock()

	p.cancel()
	stopWatch()

	dropped := p.q.abort()
	for _, f := range dropped {
		p.recycle(f)
	}
	p.discarded.Add(uint64(len(dropped)))

	p.log.Info("pipeline: terminated",
		"reason", reason,
		"enqueued", p.enqueued.Load(),
		"processed", p.processed.Load(),
		"failed", p.failed.Load(),
		"discarded", len(dropped),
	)
	return true
}

func (p *Pipeline) terminated() bool {
	return p.State() == StateTerminated
}

func (p *Pipeline) recycle(f *frame.Frame) {
	if p.recycler != nil {
		p.recycler.Release(f)
	}
}

// backpressureDelay is unit × backlog / workers once backlog exceeds workers.
func backpressureDelay(backlog, workers int, unit time.Duration) time.Duration {
	if workers <= 0 || backlog <= workers {
		return 0
	}
	return unit * time.Duration(backlog) / time.Duration(workers)
}

func (p *Pipeline) throttle(d time.Duration) {
	p.throttled.Add(1)
	start := time.Now()

	timer := time.NewTimer(d)
	select {
	case <-timer.C:
	case <-p.ctx.Done():
		timer.Stop()
	}
	p.throttleNs.Add(int64(time.Since(start)))
}

func (p *Pipeline) observeBacklog(n int) {
	for {
		cur := p.maxBacklog.Load()
		if int64(n) <= cur || p.maxBacklog.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}
