package session

import (
	"time"

	"github.com/e7canasta/orion-ppg/internal/cadence"
	"github.com/e7canasta/orion-ppg/internal/capture"
	"github.com/e7canasta/orion-ppg/internal/emitter"
	"github.com/e7canasta/orion-ppg/internal/extract"
	"github.com/e7canasta/orion-ppg/internal/health"
	"github.com/e7canasta/orion-ppg/internal/pipeline"
	"github.com/e7canasta/orion-ppg/internal/pool"
	"github.com/e7canasta/orion-ppg/internal/samplebus"
)

// Report summarizes a finished session. It is also the MQTT summary payload.
type Report struct {
	SessionID  string    `json:"session_id"`
	InstanceID string    `json:"instance_id"`
	Source     string    `json:"source"`
	Mode       string    `json:"mode"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Regions    int       `json:"regions"`
	StartedAt  time.Time `json:"started_at"`

	Duration        time.Duration `json:"duration_ns"`
	FramesCaptured  uint64        `json:"frames_captured"`
	Samples         int           `json:"samples"`
	QualityWarnings int           `json:"quality_warnings"`
	Failed          uint64        `json:"failed"`    // Extraction errors
	Discarded       uint64        `json:"discarded"` // Frames dropped unprocessed at termination
	Abandoned       uint64        `json:"abandoned"` // Results dropped after termination
	Drained         bool          `json:"drained"`
	Cancelled       bool          `json:"cancelled"`

	Cadence cadence.Stats `json:"cadence"`
}

func (s *Session) report(samples []extract.Sample, started time.Time, drained, cancelled bool) Report {
	timestamps := make([]uint64, len(samples))
	warnings := 0
	for i, smp := range samples {
		timestamps[i] = smp.Timestamp
		if smp.QualityWarning {
			warnings++
		}
	}

	r := Report{
		SessionID:       s.id,
		InstanceID:      s.cfg.InstanceID,
		Source:          s.source.Name(),
		Mode:            s.cfg.Mode().String(),
		Width:           s.cfg.Capture.Width,
		Height:          s.cfg.Capture.Height,
		Regions:         len(s.ext.Regions()),
		StartedAt:       started.UTC(),
		Duration:        time.Since(started),
		FramesCaptured:  s.source.Stats().Frames,
		Samples:         len(samples),
		QualityWarnings: warnings,
		Drained:         drained,
		Cancelled:       cancelled,
		Cadence:         cadence.Analyze(timestamps, float64(s.cfg.Capture.FPS)),
	}
	if pipe := s.pipe.Load(); pipe != nil {
		ps := pipe.Stats()
		r.Failed = ps.Failed
		r.Discarded = ps.Discarded
		r.Abandoned = ps.Abandoned
	}
	return r
}

// Snapshot is the live view served on /stats.
type Snapshot struct {
	SessionID       string          `json:"session_id"`
	Pipeline        *pipeline.Stats `json:"pipeline,omitempty"`
	Pool            pool.Stats      `json:"pool"`
	Capture         capture.Stats   `json:"capture"`
	Bus             samplebus.Stats `json:"bus"`
	Samples         int             `json:"samples"`
	QualityWarnings int             `json:"quality_warnings"`
	MQTT            *emitter.Stats  `json:"mqtt,omitempty"`
}

// Stats returns a Snapshot. It implements health.Provider.
func (s *Session) Stats() any {
	snap := Snapshot{
		SessionID:       s.id,
		Pool:            s.frames.Stats(),
		Capture:         s.source.Stats(),
		Bus:             s.bus.Stats(),
		Samples:         s.collector.Count(),
		QualityWarnings: s.collector.QualityWarningCount(),
	}
	if pipe := s.pipe.Load(); pipe != nil {
		ps := pipe.Stats()
		snap.Pipeline = &ps
	}
	if s.emitter != nil {
		es := s.emitter.Stats()
		snap.MQTT = &es
	}
	return snap
}

// Status implements health.Provider. A session is unhealthy until its
// pipeline runs and after it terminates, degraded while MQTT is configured
// but disconnected.
func (s *Session) Status() health.Status {
	st := health.Status{
		Status:        health.StatusUnhealthy,
		SessionID:     s.id,
		State:         "idle",
		SourceRunning: s.source.Stats().Running,
	}
	if at := s.startedAt.Load(); at != 0 {
		st.UptimeSeconds = int64(time.Since(time.Unix(0, at)).Seconds())
	}
	if s.emitter != nil {
		connected := s.emitter.Stats().Connected
		st.MQTTConnected = &connected
	}

	pipe := s.pipe.Load()
	if pipe == nil {
		return st
	}
	state := pipe.State()
	st.State = state.String()
	if state == pipeline.StateRunning || state == pipeline.StateDraining {
		st.Status = health.StatusHealthy
		if st.MQTTConnected != nil && !*st.MQTTConnected {
			st.Status = health.StatusDegraded
		}
	}
	return st
}
