package samplebus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-ppg/internal/extract"
)

// TestPublishSubscribe verifies basic delivery.
func TestPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan extract.Sample, 4)
	if err := b.Subscribe("viewer", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	b.Publish(extract.Sample{Timestamp: 7})

	select {
	case s := <-ch:
		if s.Timestamp != 7 {
			t.Errorf("expected timestamp 7, got %d", s.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sample")
	}
}

// TestPublishNeverBlocks verifies a full subscriber drops instead of
// stalling the workers.
func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	defer b.Close()

	slow := make(chan extract.Sample, 1)
	fast := make(chan extract.Sample, 10)
	b.Subscribe("slow", slow)
	b.Subscribe("fast", fast)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(extract.Sample{Timestamp: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked")
	}

	st := b.Stats()
	if st.Published != 5 {
		t.Errorf("published = %d, want 5", st.Published)
	}
	if got := st.Subscribers["slow"]; got.Sent != 1 || got.Dropped != 4 {
		t.Errorf("slow stats = %+v, want sent 1 dropped 4", got)
	}
	if got := st.Subscribers["fast"]; got.Sent != 5 || got.Dropped != 0 {
		t.Errorf("fast stats = %+v, want sent 5 dropped 0", got)
	}
}

func TestSubscribeErrors(t *testing.T) {
	b := New()
	ch := make(chan extract.Sample, 1)

	if err := b.Subscribe("a", ch); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe("a", ch); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("duplicate subscribe: got %v", err)
	}
	if err := b.Subscribe("b", nil); !errors.Is(err, ErrNilChannel) {
		t.Errorf("nil channel: got %v", err)
	}
	if err := b.Unsubscribe("missing"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("unsubscribe missing: got %v", err)
	}
	if err := b.Unsubscribe("a"); err != nil {
		t.Errorf("unsubscribe: %v", err)
	}

	b.Publish(extract.Sample{})
	if len(ch) != 0 {
		t.Error("unsubscribed channel received a sample")
	}
}

func TestClosedBus(t *testing.T) {
	b := New()
	ch := make(chan extract.Sample, 1)
	b.Subscribe("a", ch)

	b.Close()
	b.Close()

	b.Publish(extract.Sample{})
	if len(ch) != 0 {
		t.Error("closed bus delivered a sample")
	}
	if err := b.Subscribe("b", ch); !errors.Is(err, ErrClosed) {
		t.Errorf("subscribe after close: got %v", err)
	}
	st := b.Stats()
	if st.Rejected != 1 || st.Published != 0 {
		t.Errorf("stats after close = %+v", st)
	}
}

func TestConcurrentPublish(t *testing.T) {
	b := New()
	defer b.Close()
	ch := make(chan extract.Sample, 1000)
	b.Subscribe("sink", ch)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				b.Publish(extract.Sample{})
			}
		}()
	}
	wg.Wait()

	st := b.Stats().Subscribers["sink"]
	if st.Sent+st.Dropped != 1000 {
		t.Errorf("sent+dropped = %d, want 1000", st.Sent+st.Dropped)
	}
}
