// Command ppgconvert extracts PPG samples from a recorded video data file.
//
// Usage:
//
//	ppgconvert [-out ppg_results.json] [-pipeline] [-workers N] [-sort] video_data.json
//
// Every recording is converted luminance-only, whatever its phone model; the
// model is only reported. Frames with missing planes or a luminance size
// mismatch are skipped with a warning. Results keep the input frame order
// unless -sort is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/e7canasta/orion-ppg/internal/cadence"
	"github.com/e7canasta/orion-ppg/internal/codec"
	"github.com/e7canasta/orion-ppg/internal/collector"
	"github.com/e7canasta/orion-ppg/internal/extract"
	"github.com/e7canasta/orion-ppg/internal/frame"
	"github.com/e7canasta/orion-ppg/internal/pipeline"
	"github.com/e7canasta/orion-ppg/internal/pool"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ppgconvert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "ppg_results.json", "Results file")
	usePipeline := fs.Bool("pipeline", false, "Extract through the concurrent pipeline")
	workers := fs.Int("workers", 0, "Pipeline workers (0 = host parallelism)")
	regions := fs.Int("regions", extract.DefaultRegionsPerRow, "Regions per row")
	sortOut := fs.Bool("sort", false, "Sort results by timestamp")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ppgconvert [flags] <video_data.json>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	start := time.Now()
	vd, err := codec.ReadVideoDataFile(fs.Arg(0))
	if err != nil {
		log.Error("convert: failed to read video data", "error", err)
		return 1
	}
	ext, err := extract.New(extract.Config{
		Width:         vd.Width,
		Height:        vd.Height,
		Mode:          frame.LuminanceOnly,
		RegionsPerRow: *regions,
	})
	if err != nil {
		log.Error("convert: failed to initialize extractor", "error", err)
		return 1
	}

	model := "unknown"
	if m, err := frame.FromPhoneModel(vd.PhoneModel); err == nil {
		model = m.String()
	}
	fmt.Fprintf(stdout, "Video: %dx%d, %d frames, phone model %d (%s), extracting %s\n",
		vd.Width, vd.Height, len(vd.Frames), vd.PhoneModel, model, frame.LuminanceOnly)

	var samples []extract.Sample
	if *usePipeline {
		samples = convertPipeline(vd, ext, *workers, log)
	} else {
		samples = convertSequential(vd, ext, log)
	}
	if *sortOut {
		codec.SortByTimestamp(samples)
	}

	if err := codec.WriteResultsFile(*out, samples); err != nil {
		log.Error("convert: failed to write results", "error", err)
		return 1
	}

	warnings := 0
	timestamps := make([]uint64, len(samples))
	for i, s := range samples {
		timestamps[i] = s.Timestamp
		if s.QualityWarning {
			warnings++
		}
	}
	cad := cadence.Analyze(timestamps, 0)

	fmt.Fprintf(stdout, "Total frames processed: %d\n", len(samples))
	fmt.Fprintf(stdout, "Skipped frames: %d\n", len(vd.Frames)-len(samples))
	fmt.Fprintf(stdout, "Quality warnings: %d\n", warnings)
	fmt.Fprintf(stdout, "Sampling rate: %.2f Hz (stable: %t)\n", cad.RateMean, cad.Stable)
	fmt.Fprintf(stdout, "Processing time: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(stdout, "Results written to %s\n", *out)
	return 0
}

// load validates one recorded frame and copies its luminance into f. UV must
// be present but its length is not checked.
func load(vd *codec.VideoData, i int, f *frame.Frame, log *slog.Logger) bool {
	vf := vd.Frames[i]
	y, _, err := vf.Planes()
	if err == nil {
		err = f.LoadLuminance(vf.Timestamp, y)
	}
	if err != nil {
		log.Warn("convert: skipping frame", "frame", i, "timestamp", vf.Timestamp, "error", err)
		return false
	}
	return true
}

func convertSequential(vd *codec.VideoData, ext *extract.Extractor, log *slog.Logger) []extract.Sample {
	f := frame.New(vd.Width, vd.Height, ext.Config().Mode)
	samples := make([]extract.Sample, 0, len(vd.Frames))
	for i := range vd.Frames {
		if !load(vd, i, f, log) {
			continue
		}
		s, err := ext.Extract(f)
		if err != nil {
			log.Warn("convert: extraction failed", "frame", i, "error", err)
			continue
		}
		samples = append(samples, s)
	}
	return samples
}

func convertPipeline(vd *codec.VideoData, ext *extract.Extractor, workers int, log *slog.Logger) []extract.Sample {
	frames := pool.New(vd.Width, vd.Height, ext.Config().Mode, 0)
	results := collector.New(len(vd.Frames))

	pipe, err := pipeline.New(context.Background(), ext, results, frames, pipeline.Config{
		Workers: workers,
		// Offline input has no frame deadline: wait for every queued frame.
		DrainTimeout: time.Minute,
		Logger:       log,
	})
	if err != nil {
		log.Error("convert: failed to start pipeline", "error", err)
		return nil
	}

	// Samples arrive in completion order; position restores input order.
	position := make(map[uint64]int, len(vd.Frames))
	for i := range vd.Frames {
		f := frames.Get()
		if !load(vd, i, f, log) {
			frames.Release(f)
			continue
		}
		if _, seen := position[f.Timestamp]; !seen {
			position[f.Timestamp] = i
		}
		if err := pipe.Enqueue(f); err != nil {
			frames.Release(f)
			log.Error("convert: pipeline closed early", "error", err)
			break
		}
	}
	if !pipe.Complete() {
		log.Warn("convert: pipeline drain timed out, results are partial")
	}

	st := pipe.Stats()
	log.Debug("convert: pipeline finished",
		"workers", st.Workers,
		"processed", st.Processed,
		"failed", st.Failed,
		"max_backlog", st.MaxBacklog,
		"throttled_for", st.ThrottledFor)
	samples := results.Snapshot()
	slices.SortStableFunc(samples, func(a, b extract.Sample) int {
		return position[a.Timestamp] - position[b.Timestamp]
	})
	return samples
}
