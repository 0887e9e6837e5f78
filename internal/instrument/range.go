package instrument

import (
	"fmt"
	"math"
)

// rangeTolerance is the magnitude below which a span or step is
// treated as zero when expanding scan ranges.
const rangeTolerance = 1e-10

// Range is one (start, stop, step) triple of a scan profile.
type Range struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Step  float64 `json:"step"`
}

// ExpandRanges expands an ordered list of range triples into a single
// ordered setpoint sequence. Each triple contributes values from start
// toward stop inclusive, advancing by step; triples apply in list
// order with no reordering or deduplication.
//
// A triple whose span or step is within tolerance of zero contributes
// just its start value. A step whose sign contradicts the direction of
// (stop − start) is a configuration error.
//
// Returns:
//   - []float64: The expanded setpoints.
//   - error: ErrInvalidRange for a wrong-signed step.
func ExpandRanges(ranges []Range) ([]float64, error) {
	var setpoints []float64
	for i, r := range ranges {
		span := r.Stop - r.Start
		if math.Abs(span) < rangeTolerance || math.Abs(r.Step) < rangeTolerance {
			setpoints = append(setpoints, r.Start)
			continue
		}
		if math.Signbit(r.Step) != math.Signbit(span) {
			return nil, fmt.Errorf("%w: triple %d: step %g moves away from stop (start %g, stop %g)",
				ErrInvalidRange, i, r.Step, r.Start, r.Stop)
		}
		setpoints = append(setpoints, expandTriple(r.Start, r.Stop, r.Step)...)
	}
	return setpoints, nil
}

// expandTriple walks from start toward stop by step, inclusive of the
// final value. A partial last step still visits stop, so the endpoint
// is never dropped by floating-point drift.
func expandTriple(start, stop, step float64) []float64 {
	var values []float64
	for {
		next := start + float64(len(values))*step
		if step > 0 && next >= stop {
			break
		}
		if step < 0 && next <= stop {
			break
		}
		values = append(values, next)
	}
	if math.Abs(values[len(values)-1]-stop) > rangeTolerance {
		values = append(values, stop)
	}
	return values
}
