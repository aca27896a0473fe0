// Package samplebus fans produced samples out to live consumers.
//
// Publish never blocks: if a subscriber's channel is full the sample is
// dropped for that subscriber and counted. The authoritative record of a
// session is the collector; bus subscribers (MQTT, websocket viewers) only
// need the freshest samples.
//
// All methods are safe for concurrent use.
package samplebus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-ppg/internal/extract"
)

var (
	ErrClosed             = errors.New("samplebus: bus is closed")
	ErrSubscriberExists   = errors.New("samplebus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("samplebus: subscriber not found")
	ErrNilChannel         = errors.New("samplebus: nil channel provided")
)

// SubscriberStats tracks delivery to one subscriber.
type SubscriberStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64                     `json:"published"`
	Rejected    uint64                     `json:"rejected"` // Published after Close
	Subscribers map[string]SubscriberStats `json:"subscribers"`
}

type subscriber struct {
	ch      chan<- extract.Sample
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes samples to subscriber channels.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	closed    bool
	published atomic.Uint64
	rejected  atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]*subscriber)}
}

// Subscribe registers ch under id. The bus never closes ch.
func (b *Bus) Subscribe(id string, ch chan<- extract.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, exists := b.subs[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}
	b.subs[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes the subscriber registered under id. After it returns,
// no further sends happen on its channel.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subs, id)
	return nil
}

// Publish offers s to every subscriber without blocking. Publishing on a
// closed bus is counted as rejected.
func (b *Bus) Publish(s extract.Sample) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.rejected.Add(1)
		return
	}
	b.published.Add(1)

	for _, sub := range b.subs {
		select {
		case sub.ch <- s:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:   b.published.Load(),
		Rejected:    b.rejected.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subs)),
	}
	for id, sub := range b.subs {
		st.Subscribers[id] = SubscriberStats{
			Sent:    sub.sent.Load(),
			Dropped: sub.dropped.Load(),
		}
	}
	return st
}

// Close detaches every subscriber. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.subs = nil
}
