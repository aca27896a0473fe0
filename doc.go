// Package ppg extracts a pseudo-photoplethysmography signal from camera
// frames of a finger pressed on the lens.
//
// # Overview
//
// Each frame is tiled into an n×n grid of regions (default 3×3). For every
// region the extractor computes mean luminance and, on devices with split
// chroma planes, mean U and V. The resulting Sample carries 3 values per
// region plus 3 trailing zeros and the capture timestamp.
//
//	camera → Pool.Get → Frame.LoadNV12 → Pipeline.Enqueue
//	                                        │ N workers
//	                                        ▼
//	                         Extractor.Extract → Collector.Add
//	                                        │
//	                                        ▼
//	                              Pool.Release(frame)
//
// # Device modes
//
//   - LuminanceOnly: the luminance statistic only; chroma slots are zero
//   - CombinedChroma: luminance, U and V per region from split planes
//
// # Basic Usage
//
//	ext, err := ppg.Initialize(1280, 720, ppg.FromPhoneModel(ppg.PhoneModelAndroid))
//	if err != nil {
//	    return err
//	}
//	frames := ppg.NewPool(1280, 720, ext.Config().Mode, 0)
//	samples := ppg.NewCollector(1800)
//
//	pipe, err := ppg.NewPipeline(ctx, ext, samples, frames, ppg.PipelineConfig{})
//	if err != nil {
//	    return err
//	}
//	for img := range camera {
//	    f := frames.Get()
//	    if err := f.LoadNV12(img.Millis, img.Y, img.UV); err != nil {
//	        frames.Release(f)
//	        continue
//	    }
//	    if err := pipe.Enqueue(f); err != nil {
//	        frames.Release(f)
//	        break
//	    }
//	}
//	pipe.Complete()
//	results := samples.Snapshot() // unordered; sort by Timestamp
//
// # Concurrency
//
// The extractor is read-only after Initialize and safe for concurrent use.
// Pipeline, Pool and Collector are internally synchronized. Samples come out
// of the pipeline in completion order, not capture order.
//
// # Lifecycle
//
// A pipeline is Running from construction. Complete stops intake and waits
// up to the drain timeout for queued frames; Cancel drops them. Both are
// idempotent and end in Terminated, from which there is no way back.
package ppg
