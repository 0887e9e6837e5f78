package stability

import "time"

// Detector is the interface shared by all convergence detectors.
//
// Samples are accepted in arrival order; no interpolation or
// resampling is performed.
type Detector interface {
	// AddPoint ingests one sample, timestamped at the moment of the call.
	AddPoint(value float64)

	// IsStable reports whether the current samples satisfy the
	// detector's stability test.
	IsStable() bool

	// IsFinished reports whether the wait for stability can end, either
	// because stability has been reached or because the detector has
	// timed out.
	IsFinished() bool

	// IsTimedOut reports whether the detector's timeout has elapsed.
	// Always false for detectors constructed without a timeout.
	IsTimedOut() bool

	// Stats returns the last-computed max, min, and slope for
	// diagnostics.
	Stats() Stats
}

// Stats holds the diagnostic triple recomputed on every sample.
type Stats struct {
	Max   float64
	Min   float64
	Slope float64 // units per second
}

// sample is one timestamped reading.
type sample struct {
	at    time.Time
	value float64
}

// summarise recomputes max, min, and the least-squares slope from the
// current sample contents. Fewer than two samples, or samples spanning
// zero time, yield a slope of zero.
func summarise(samples []sample) Stats {
	if len(samples) == 0 {
		return Stats{}
	}

	stats := Stats{Max: samples[0].value, Min: samples[0].value}
	var sumT, sumV float64
	t0 := samples[0].at
	for _, s := range samples {
		if s.value > stats.Max {
			stats.Max = s.value
		}
		if s.value < stats.Min {
			stats.Min = s.value
		}
		sumT += s.at.Sub(t0).Seconds()
		sumV += s.value
	}

	if len(samples) < 2 {
		return stats
	}

	n := float64(len(samples))
	meanT := sumT / n
	meanV := sumV / n

	var covTV, varT float64
	for _, s := range samples {
		dt := s.at.Sub(t0).Seconds() - meanT
		covTV += dt * (s.value - meanV)
		varT += dt * dt
	}
	if varT > 0 {
		stats.Slope = covTV / varT
	}
	return stats
}
