// Package codec reads and writes PPG samples and recorded video data.
//
// Three formats are supported:
//   - results JSON: an indented array of {timestamp, signals, qualityWarning}
//   - recordings: length-prefixed msgpack records (header, then samples)
//   - video data JSON: raw NV12 planes per frame, input of the batch converter
package codec

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/e7canasta/orion-ppg/internal/extract"
)

// WriteResults writes samples as an indented JSON array.
func WriteResults(w io.Writer, samples []extract.Sample) error {
	if samples == nil {
		samples = []extract.Sample{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(samples); err != nil {
		return fmt.Errorf("codec: encode results: %w", err)
	}
	return nil
}

// ReadResults parses a results JSON array.
func ReadResults(r io.Reader) ([]extract.Sample, error) {
	var samples []extract.Sample
	if err := json.NewDecoder(r).Decode(&samples); err != nil {
		return nil, fmt.Errorf("codec: decode results: %w", err)
	}
	return samples, nil
}

// WriteResultsFile writes samples to path, replacing any existing file.
func WriteResultsFile(path string, samples []extract.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("codec: create %s: %w", path, err)
	}
	if err := WriteResults(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadResultsFile parses the results JSON file at path.
func ReadResultsFile(path string) ([]extract.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codec: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadResults(f)
}

// SortByTimestamp orders samples by capture time in place. Samples with equal
// timestamps keep their relative order.
func SortByTimestamp(samples []extract.Sample) {
	slices.SortStableFunc(samples, func(a, b extract.Sample) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
}
