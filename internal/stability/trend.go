package stability

import (
	"math"
	"time"
)

// Trend tracks stability based on the slope of the buffered readings.
//
// The reading is considered stable when the least-squares slope over
// the buffer is within ±tolerance of zero, and finished when the buffer
// is full and stable, or the timeout has elapsed.
type Trend struct {
	bufferSize int
	tolerance  float64
	timeout    time.Duration

	samples []sample
	stats   Stats

	clock   func() time.Time
	started time.Time
}

// NewTrend creates a trend detector.
//
// Parameters:
//   - bufferSize: Number of samples to retain; oldest dropped on overflow.
//   - tolerance: Maximum |slope| (units/s) still considered stable.
//   - timeout: Maximum time to monitor; zero means never time out.
func NewTrend(bufferSize int, tolerance float64, timeout time.Duration) *Trend {
	t := &Trend{
		bufferSize: bufferSize,
		tolerance:  math.Abs(tolerance),
		timeout:    timeout,
		clock:      time.Now,
	}
	t.started = t.clock()
	return t
}

// AddPoint ingests one sample, dropping the oldest when the buffer is
// full, and recomputes the diagnostic stats.
func (t *Trend) AddPoint(value float64) {
	t.samples = append(t.samples, sample{at: t.clock(), value: value})
	if len(t.samples) > t.bufferSize {
		t.samples = t.samples[1:]
	}
	t.stats = summarise(t.samples)
}

// IsStable reports whether the buffered slope is within ±tolerance.
func (t *Trend) IsStable() bool {
	return len(t.samples) > 0 &&
		-t.tolerance < t.stats.Slope && t.stats.Slope < t.tolerance
}

// IsBufferFull reports whether the buffer has filled.
func (t *Trend) IsBufferFull() bool {
	return len(t.samples) >= t.bufferSize
}

// IsTimedOut reports whether the monitoring timeout has elapsed.
func (t *Trend) IsTimedOut() bool {
	return t.timeout > 0 && t.clock().Sub(t.started) > t.timeout
}

// IsFinished reports whether the wait can end: the buffer is full and
// the reading stable, or the detector timed out.
func (t *Trend) IsFinished() bool {
	return (t.IsBufferFull() && t.IsStable()) || t.IsTimedOut()
}

// Stats returns the last-computed diagnostic triple.
func (t *Trend) Stats() Stats {
	return t.stats
}
