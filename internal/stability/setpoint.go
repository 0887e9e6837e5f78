package stability

import (
	"math"
	"time"
)

// Setpoint tracks stability based on proximity of the buffered readings
// to a target value.
//
// The reading is considered stable when the buffer's observed [min,max]
// range lies entirely within setpoint ± tolerance, and finished when
// the buffer is full and stable, or the timeout has elapsed.
type Setpoint struct {
	bufferSize int
	lower      float64
	upper      float64
	timeout    time.Duration

	samples []sample
	stats   Stats

	clock   func() time.Time
	started time.Time
}

// NewSetpoint creates a setpoint detector.
//
// Parameters:
//   - bufferSize: Number of samples to retain; oldest dropped on overflow.
//   - setpoint: The target value for the reading.
//   - tolerance: Maximum deviation from the setpoint still considered stable.
//   - timeout: Maximum time to monitor; zero means never time out.
func NewSetpoint(bufferSize int, setpoint, tolerance float64, timeout time.Duration) *Setpoint {
	s := &Setpoint{
		bufferSize: bufferSize,
		lower:      setpoint - math.Abs(tolerance),
		upper:      setpoint + math.Abs(tolerance),
		timeout:    timeout,
		clock:      time.Now,
	}
	s.started = s.clock()
	return s
}

// AddPoint ingests one sample, dropping the oldest when the buffer is
// full, and recomputes the diagnostic stats.
func (s *Setpoint) AddPoint(value float64) {
	s.samples = append(s.samples, sample{at: s.clock(), value: value})
	if len(s.samples) > s.bufferSize {
		s.samples = s.samples[1:]
	}
	s.stats = summarise(s.samples)
}

// IsStable reports whether every buffered value lies within the band.
func (s *Setpoint) IsStable() bool {
	return len(s.samples) > 0 &&
		s.lower < s.stats.Min && s.stats.Max < s.upper
}

// IsBufferFull reports whether the buffer has filled.
func (s *Setpoint) IsBufferFull() bool {
	return len(s.samples) >= s.bufferSize
}

// IsTimedOut reports whether the monitoring timeout has elapsed.
func (s *Setpoint) IsTimedOut() bool {
	return s.timeout > 0 && s.clock().Sub(s.started) > s.timeout
}

// IsFinished reports whether the wait can end: the buffer is full and
// the reading stable, or the detector timed out.
func (s *Setpoint) IsFinished() bool {
	return (s.IsBufferFull() && s.IsStable()) || s.IsTimedOut()
}

// Stats returns the last-computed diagnostic triple.
func (s *Setpoint) Stats() Stats {
	return s.stats
}
