package collector

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/e7canasta/orion-ppg/internal/extract"
)

func TestAddCountAndWarnings(t *testing.T) {
	c := New(0)
	c.Add(extract.Sample{Timestamp: 1})
	c.Add(extract.Sample{Timestamp: 2, QualityWarning: true})
	c.Add(extract.Sample{Timestamp: 3})

	assert.Equal(t, 3, c.Count())
	assert.Equal(t, 1, c.QualityWarningCount())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New(4)
	c.Add(extract.Sample{Timestamp: 1})
	snap := c.Snapshot()
	c.Add(extract.Sample{Timestamp: 2})

	assert.Len(t, snap, 1)
	snap[0].Timestamp = 42
	assert.Equal(t, uint64(1), c.Snapshot()[0].Timestamp)
}

// TestConcurrentAdd checks no sample is lost or duplicated when many workers
// add at once.
func TestConcurrentAdd(t *testing.T) {
	const workers, perWorker = 8, 500
	c := New(0)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Add(extract.Sample{Timestamp: uint64(w*perWorker + i)})
			}
		}(w)
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Len(t, snap, workers*perWorker)
	sort.Slice(snap, func(i, j int) bool { return snap[i].Timestamp < snap[j].Timestamp })
	for i, s := range snap {
		if s.Timestamp != uint64(i) {
			t.Fatalf("sample %d has timestamp %d", i, s.Timestamp)
		}
	}
}
