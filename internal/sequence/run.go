package sequence

import (
	"context"
	"sync"
	"sync/atomic"
)

// Run is the live handle for one executing sequence. The engine
// returns it from Start; the API and the MQTT bridge use it to signal
// or cancel the run and to read its current record.
type Run struct {
	id       string
	sequence string

	cancel context.CancelFunc
	done   chan struct{}
	signal atomic.Bool

	mu     sync.RWMutex
	record RunRecord
}

// ID returns the run's unique identifier.
func (r *Run) ID() string { return r.id }

// SequenceName returns the name of the sequence being run.
func (r *Run) SequenceName() string { return r.sequence }

// Interrupt raises the run's interrupt signal. The signal is observed
// between loop passes by LoopUntilSignal nodes, which consume it and
// complete normally; it never pre-empts a running action.
func (r *Run) Interrupt() {
	r.signal.Store(true)
}

// takeSignal consumes the interrupt signal if raised. One raise stops
// one LoopUntilSignal; a nested signal loop needs its own raise.
func (r *Run) takeSignal() bool {
	return r.signal.CompareAndSwap(true, false)
}

// Cancel aborts the run. Cancellation is cooperative: it is observed
// at sequence-child, loop-pass and scan-setpoint boundaries, never
// inside a running instrument call.
func (r *Run) Cancel() {
	r.cancel()
}

// Done is closed when the run has finished and its record is final.
func (r *Run) Done() <-chan struct{} { return r.done }

// Record returns a snapshot of the run's current record.
func (r *Run) Record() RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.record
	if rec.Failures != nil {
		rec.Failures = append([]NodeFailure(nil), rec.Failures...)
	}
	return rec
}

func (r *Run) setRecord(rec RunRecord) {
	r.mu.Lock()
	r.record = rec
	r.mu.Unlock()
}
