package instrument

import (
	"errors"
	"math"
	"testing"
)

// ─── Range Expansion ─────────────────────────────────────────────────────────

func TestExpandRanges(t *testing.T) {
	tests := []struct {
		name   string
		ranges []Range
		want   []float64
	}{
		{
			name:   "simple ascending",
			ranges: []Range{{Start: 0, Stop: 1, Step: 0.5}},
			want:   []float64{0, 0.5, 1},
		},
		{
			name:   "descending",
			ranges: []Range{{Start: 1, Stop: 0, Step: -0.5}},
			want:   []float64{1, 0.5, 0},
		},
		{
			name:   "partial final step still reaches stop",
			ranges: []Range{{Start: 0, Stop: 1, Step: 0.4}},
			want:   []float64{0, 0.4, 0.8, 1},
		},
		{
			name:   "zero span collapses to start",
			ranges: []Range{{Start: 2.5, Stop: 2.5, Step: 0.1}},
			want:   []float64{2.5},
		},
		{
			name:   "zero step collapses to start",
			ranges: []Range{{Start: 2.5, Stop: 5.0, Step: 0}},
			want:   []float64{2.5},
		},
		{
			name: "triples concatenate in order without deduplication",
			ranges: []Range{
				{Start: 0, Stop: 1, Step: 0.5},
				{Start: 1, Stop: 0, Step: -0.5},
			},
			want: []float64{0, 0.5, 1, 1, 0.5, 0},
		},
		{
			name:   "drift never drops the endpoint",
			ranges: []Range{{Start: 0, Stop: 0.9, Step: 0.3}},
			want:   []float64{0, 0.3, 0.6, 0.9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandRanges(tt.ranges)
			if err != nil {
				t.Fatalf("ExpandRanges() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ExpandRanges() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("setpoint[%d] = %g, want %g", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExpandRangesWrongSignStep(t *testing.T) {
	_, err := ExpandRanges([]Range{{Start: 0, Stop: 1, Step: -0.5}})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}

	_, err = ExpandRanges([]Range{{Start: 5, Stop: 1, Step: 0.5}})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestExpandRangesEmpty(t *testing.T) {
	got, err := ExpandRanges(nil)
	if err != nil {
		t.Fatalf("ExpandRanges(nil) error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ExpandRanges(nil) = %v, want empty", got)
	}
}
