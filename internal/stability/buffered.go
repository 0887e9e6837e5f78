package stability

import "time"

// BufferedTimer tracks stability over a fixed-size sliding buffer of
// the most recent readings.
//
// The reading is considered stable when the buffer's max−min spread is
// below the stability threshold, and finished when the buffer is full
// and stable, or the timeout has elapsed.
type BufferedTimer struct {
	stability  float64
	bufferSize int
	timeout    time.Duration

	samples []sample
	stats   Stats

	clock   func() time.Time
	started time.Time
}

// NewBufferedTimer creates a buffered stability timer.
//
// Parameters:
//   - stability: The largest max−min spread still considered stable.
//   - bufferSize: Number of samples to retain; oldest dropped on overflow.
//   - timeout: Maximum time to wait for stability; zero means never
//     time out.
func NewBufferedTimer(stability float64, bufferSize int, timeout time.Duration) *BufferedTimer {
	b := &BufferedTimer{
		stability:  stability,
		bufferSize: bufferSize,
		timeout:    timeout,
		clock:      time.Now,
	}
	b.started = b.clock()
	return b
}

// AddPoint ingests one sample, dropping the oldest when the buffer is
// full, and recomputes the diagnostic stats.
func (b *BufferedTimer) AddPoint(value float64) {
	b.samples = append(b.samples, sample{at: b.clock(), value: value})
	if len(b.samples) > b.bufferSize {
		b.samples = b.samples[1:]
	}
	b.stats = summarise(b.samples)
}

// IsStable reports whether the buffer's spread is below the stability
// threshold.
func (b *BufferedTimer) IsStable() bool {
	return len(b.samples) > 0 && b.stats.Max-b.stats.Min < b.stability
}

// IsBufferFull reports whether the buffer has filled.
func (b *BufferedTimer) IsBufferFull() bool {
	return len(b.samples) >= b.bufferSize
}

// IsTimedOut reports whether the timeout elapsed by the time of the
// most recent sample.
func (b *BufferedTimer) IsTimedOut() bool {
	if b.timeout <= 0 || len(b.samples) == 0 {
		return false
	}
	return b.samples[len(b.samples)-1].at.Sub(b.started) >= b.timeout
}

// IsFinished reports whether the wait can end: the buffer is full and
// the reading stable, or the detector timed out.
func (b *BufferedTimer) IsFinished() bool {
	return (b.IsBufferFull() && b.IsStable()) || b.IsTimedOut()
}

// Stats returns the last-computed diagnostic triple.
func (b *BufferedTimer) Stats() Stats {
	return b.stats
}
