// Package sequence provides the action-execution engine for labflow.
//
// A sequence is a tree of composable operations against laboratory
// instruments: leaves invoke one named instrument operation each, and
// containers apply an execution semantics to their children — strict
// order (Sequence), repetition across a numeric range (Scan), four
// loop variants, and independent branches with a join barrier
// (Concurrent). Scans may gate progress on a stability detector so a
// physical quantity settles before the next setpoint.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                     │
//	│  Registers sequences, starts runs, persists records     │
//	│  ┌──────────────┐    ┌──────────────┐                 │
//	│  │    binder    │───▶│  Repository  │                 │
//	│  │(validation.go)│   │(repository.go)│                │
//	│  └──────────────┘    └──────────────┘                 │
//	│        │                                               │
//	│        ▼                                               │
//	│  ┌──────────────────────────────────────────────┐     │
//	│  │  Execution (exec.go)                          │     │
//	│  │  1. Instantiate live nodes from specs         │     │
//	│  │  2. Resolve + coerce inputs per leaf          │     │
//	│  │  3. Invoke instrument operations by name      │     │
//	│  │  4. Write outputs to data bins                │     │
//	│  │  5. Gate scans on stability detectors         │     │
//	│  │  6. Join concurrent branches, aggregate       │     │
//	│  └──────────────────────────────────────────────┘     │
//	└────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - NodeSpec: Immutable template for one tree node
//   - Sequence: Named, ready-to-run specification tree
//   - Run: Live handle for one execution (signal, cancel, inspect)
//   - RunRecord: Audit record of a run
//   - Engine: Orchestrator owning registry, repository and observers
//
// # Error Model
//
// Configuration errors (unknown operations, input name mismatches,
// malformed scan ranges) are detected when a spec tree is bound to
// live nodes, before any instrument is touched, and carry the node
// path. Coercion and instrument-call failures are fatal to the
// enclosing container, fail-fast. Stability timeouts are degraded
// progress, logged and continued. Concurrent branch failures are
// aggregated after all branches finish or miss their join timeout.
//
// # Concurrency
//
// One control goroutine drives Sequence/Scan/Loop execution;
// Concurrent containers add one goroutine per branch, each owning its
// own subtree and instruments. Branches must not share instruments or
// write overlapping bin names; the engine does not arbitrate either.
// Interrupts and cancellation are observed only at loop-pass and
// scan-setpoint boundaries, never inside a running instrument call.
package sequence
