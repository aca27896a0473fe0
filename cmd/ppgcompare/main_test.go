package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ppg/internal/codec"
	"github.com/e7canasta/orion-ppg/internal/extract"
)

func writeResults(t *testing.T, samples []extract.Sample) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, codec.WriteResultsFile(path, samples))
	return path
}

func TestRunExitCodes(t *testing.T) {
	base := []extract.Sample{
		{Timestamp: 33, Signals: []float64{2, 0, 0}},
		{Timestamp: 0, Signals: []float64{1, 0, 0}},
	}
	sorted := []extract.Sample{
		{Timestamp: 0, Signals: []float64{1, 0, 0}},
		{Timestamp: 33, Signals: []float64{2, 0, 0}},
	}
	changed := []extract.Sample{
		{Timestamp: 0, Signals: []float64{1, 0, 0}},
		{Timestamp: 33, Signals: []float64{2.5, 0, 0}},
	}
	a, b, c := writeResults(t, base), writeResults(t, sorted), writeResults(t, changed)

	var out, errOut bytes.Buffer
	assert.Equal(t, exitIdentical, run([]string{a, b}, &out, &errOut), "order does not matter")
	assert.Contains(t, out.String(), "FILES ARE IDENTICAL")

	out.Reset()
	assert.Equal(t, exitDifferent, run([]string{a, c}, &out, &errOut))
	assert.Contains(t, out.String(), "FILES ARE DIFFERENT")
	assert.Contains(t, out.String(), "Frame 1:")

	out.Reset()
	assert.Equal(t, exitIdentical, run([]string{"-tolerance", "1", a, c}, &out, &errOut))

	assert.Equal(t, exitError, run([]string{a}, &out, &errOut))
	assert.Equal(t, exitError, run([]string{a, filepath.Join(t.TempDir(), "missing.json")}, &out, &errOut))
}
