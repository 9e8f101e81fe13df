// Package diagnostics is the OSD-adjacent performance reporting layer: it
// tracks decode/render timing the sync scheduler and decode loops don't
// themselves keep history of, and merges it with the engine's own
// frame_drops_early/late counters into one report a host UI can surface.
package diagnostics

import (
	"sync"
	"time"

	"mediaengine/pkg/engine"
)

// rollingAverage is a fixed-window moving average of durations.
type rollingAverage struct {
	samples    []time.Duration
	maxSamples int
	sum        time.Duration
	index      int
	filled     bool
	mu         sync.RWMutex
}

func newRollingAverage(windowSize int) *rollingAverage {
	return &rollingAverage{samples: make([]time.Duration, windowSize), maxSamples: windowSize}
}

func (r *rollingAverage) Add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled {
		r.sum -= r.samples[r.index]
	}
	r.samples[r.index] = d
	r.sum += d
	r.index++
	if r.index >= r.maxSamples {
		r.index = 0
		r.filled = true
	}
}

func (r *rollingAverage) Average() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := r.index
	if r.filled {
		count = r.maxSamples
	}
	if count == 0 {
		return 0
	}
	return r.sum / time.Duration(count)
}

// Monitor tracks rolling decode/render timing for the duration of one
// playback session.
type Monitor struct {
	decodeTimes *rollingAverage
	renderTimes *rollingAverage
	startedAt   time.Time
}

// Report is a point-in-time merge of timing history and the engine's own
// drop counters.
type Report struct {
	AvgDecodeMs     float64
	AvgRenderMs     float64
	FrameDropsEarly int64
	FrameDropsLate  int64
	UptimeSeconds   int64
	Healthy         bool
}

// NewMonitor builds a monitor with the given rolling-average window, e.g.
// 120 samples for a 2-second window at 60fps.
func NewMonitor(windowSize int) *Monitor {
	return &Monitor{
		decodeTimes: newRollingAverage(windowSize),
		renderTimes: newRollingAverage(windowSize),
		startedAt:   time.Now(),
	}
}

// RecordDecode records the wall time one decodeOne call took.
func (m *Monitor) RecordDecode(d time.Duration) { m.decodeTimes.Add(d) }

// RecordRender records the wall time one frame presentation took (scaling
// plus the PresentRGBA upload and draw).
func (m *Monitor) RecordRender(d time.Duration) { m.renderTimes.Add(d) }

// Report merges the rolling averages with snap's drop counters. A session
// is considered healthy when the average decode time plus the average
// render time stays under a 30fps frame budget; the drop counters are
// reported but do not affect Healthy.
func (m *Monitor) Report(snap engine.Snapshot) Report {
	avgDecode := m.decodeTimes.Average()
	avgRender := m.renderTimes.Average()
	const frameBudget = 33 * time.Millisecond

	return Report{
		AvgDecodeMs:     float64(avgDecode.Microseconds()) / 1000.0,
		AvgRenderMs:     float64(avgRender.Microseconds()) / 1000.0,
		FrameDropsEarly: snap.FrameDropsEarly,
		FrameDropsLate:  snap.FrameDropsLate,
		UptimeSeconds:   int64(time.Since(m.startedAt).Seconds()),
		Healthy:         avgDecode+avgRender < frameBudget,
	}
}
