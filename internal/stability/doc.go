// Package stability provides convergence detectors that decide when a
// noisy, slowly-settling instrument reading has settled enough for a
// sequence to proceed.
//
// Four interchangeable detectors share the Detector interface:
//
//   - Trend: sliding buffer; stable when the least-squares slope over
//     the buffer is within ±tolerance of zero.
//   - Setpoint: sliding buffer; stable when every buffered value lies
//     within setpoint ± tolerance.
//   - Timer: unbounded self-resetting window; stable when the window's
//     max−min spread is below the stability threshold, finished once an
//     unbroken stable run lasts the required duration.
//   - BufferedTimer: sliding buffer; stable when the buffer's max−min
//     spread is below the stability threshold.
//
// All detectors recompute max, min, and slope from the current sample
// contents on every addition — there is no incremental bookkeeping to
// drift out of sync with the buffer.
//
// A timeout of zero means the detector never times out: callers wait
// indefinitely for stability.
//
// Detectors are not safe for concurrent use; each belongs to exactly
// one gate inside one executing scan.
package stability
