package stability

import "time"

// Timer tracks how long a reading has remained within a stability
// width, without bounding how many samples it keeps.
//
// Whenever a new sample pushes the window's max−min spread to or beyond
// the stability threshold, the window collapses to just that sample, so
// the stable duration measures an unbroken run rather than a moving
// average. The detector is finished once the unbroken run has lasted
// the required duration, or the timeout has elapsed.
type Timer struct {
	duration  time.Duration
	stability float64
	timeout   time.Duration

	samples []sample
	stats   Stats

	clock   func() time.Time
	started time.Time
}

// NewTimer creates a stability timer.
//
// Parameters:
//   - duration: How long the reading must stay stable before the timer
//     reports finished.
//   - stability: The largest max−min spread still considered stable.
//   - timeout: Maximum time to wait for stability; zero means never
//     time out.
func NewTimer(duration time.Duration, stability float64, timeout time.Duration) *Timer {
	t := &Timer{
		duration:  duration,
		stability: stability,
		timeout:   timeout,
		clock:     time.Now,
	}
	t.started = t.clock()
	return t
}

// AddPoint ingests one sample. If the enlarged window is no longer
// within the stability threshold, the window collapses to the newest
// sample and the stable-duration clock restarts.
func (t *Timer) AddPoint(value float64) {
	t.samples = append(t.samples, sample{at: t.clock(), value: value})
	t.stats = summarise(t.samples)
	if !t.IsStable() {
		t.samples = t.samples[len(t.samples)-1:]
		t.stats = summarise(t.samples)
	}
}

// IsStable reports whether the window's spread is below the stability
// threshold.
func (t *Timer) IsStable() bool {
	return len(t.samples) > 0 && t.stats.Max-t.stats.Min < t.stability
}

// StableTime returns how long the reading has been continuously stable.
// Returns -1 when no samples have been accepted.
func (t *Timer) StableTime() time.Duration {
	if len(t.samples) == 0 {
		return -1
	}
	return t.samples[len(t.samples)-1].at.Sub(t.samples[0].at)
}

// IsTimedOut reports whether the timeout elapsed by the time of the
// most recent sample.
func (t *Timer) IsTimedOut() bool {
	if t.timeout <= 0 || len(t.samples) == 0 {
		return false
	}
	return t.samples[len(t.samples)-1].at.Sub(t.started) >= t.timeout
}

// IsFinished reports whether the reading has remained stable for the
// required duration, or the detector timed out.
func (t *Timer) IsFinished() bool {
	return t.StableTime() >= t.duration || t.IsTimedOut()
}

// Stats returns the last-computed diagnostic triple for the current
// (post-reset) window.
func (t *Timer) Stats() Stats {
	return t.stats
}
