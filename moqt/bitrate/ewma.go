// Package bitrate turns byte counters into sending rates and decides when a
// rate has moved far enough from its trend to be worth reporting.
package bitrate

import "time"

// ShiftDetector reports whether a rate sample departs from the recent trend.
type ShiftDetector interface {
	Detect(rate float64) bool
}

var _ ShiftDetector = (*EWMAShiftDetector)(nil)

// NewEWMAShiftDetector creates a detector that smooths samples with weight
// alpha and flags samples outside average*(1±threshold). The first minSamples
// samples only seed the average.
func NewEWMAShiftDetector(alpha, threshold float64, minSamples int) *EWMAShiftDetector {
	return &EWMAShiftDetector{
		alpha:      alpha,
		threshold:  threshold,
		minSamples: minSamples,
	}
}

// EWMAShiftDetector is a ShiftDetector over an exponentially weighted moving
// average. It is not safe for concurrent use.
type EWMAShiftDetector struct {
	alpha      float64
	average    float64
	threshold  float64
	minSamples int
}

func (d *EWMAShiftDetector) Detect(rate float64) bool {
	if d.minSamples > 0 {
		d.minSamples--
		d.average = rate
		return false
	}

	d.average = d.alpha*rate + (1-d.alpha)*d.average

	upper := d.average * (1 + d.threshold)
	lower := d.average * (1 - d.threshold)
	return rate > upper || rate < lower
}

// Average returns the smoothed rate.
func (d *EWMAShiftDetector) Average() float64 {
	return d.average
}

// Meter converts a monotonically increasing byte count into bits per second.
// It is not safe for concurrent use.
type Meter struct {
	total   uint64
	at      time.Time
	started bool
}

// Sample records the byte count total observed at now and returns the rate
// since the previous sample. The first sample, and samples that do not move
// the clock forward, return false.
func (m *Meter) Sample(total uint64, now time.Time) (float64, bool) {
	if !m.started {
		m.total, m.at, m.started = total, now, true
		return 0, false
	}

	elapsed := now.Sub(m.at)
	if elapsed <= 0 {
		return 0, false
	}

	var delta uint64
	if total > m.total {
		delta = total - m.total
	}
	m.total, m.at = total, now

	return float64(delta*8) / elapsed.Seconds(), true
}
