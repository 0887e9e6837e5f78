package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/labflow-core/internal/databin"
	"github.com/nerrad567/labflow-core/internal/expr"
	"github.com/nerrad567/labflow-core/internal/instrument"
	"github.com/nerrad567/labflow-core/internal/progress"
	"github.com/nerrad567/labflow-core/internal/stability"
)

// runtime carries the per-run execution state: collaborators, the run
// handle, and the failure/count accumulators. One control goroutine
// drives the tree; Concurrent containers add one goroutine per branch,
// so the accumulators are mutex-guarded.
type runtime struct {
	instruments *instrument.Registry
	bins        *databin.Store
	monitors    *progress.Registry
	binder      *binder
	logger      Logger
	run         *Run

	pollInterval time.Duration
	joinTimeout  time.Duration
	clock        func() time.Time

	mu        sync.Mutex
	completed int
	failed    int
	failures  []NodeFailure
}

func (rt *runtime) recordCompleted() {
	rt.mu.Lock()
	rt.completed++
	rt.mu.Unlock()
}

func (rt *runtime) recordFailure(f NodeFailure) {
	rt.mu.Lock()
	if !f.Abandoned {
		rt.failed++
	}
	rt.failures = append(rt.failures, f)
	rt.mu.Unlock()
}

// snapshot returns a consistent copy of the accumulators. An abandoned
// branch may still be running when the run finalises, so readers must
// go through here rather than touch the fields directly.
func (rt *runtime) snapshot() (completed, failed int, failures []NodeFailure) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.completed, rt.failed, append([]NodeFailure(nil), rt.failures...)
}

// exec dispatches a live node to its kind's execution semantics.
func (rt *runtime) exec(ctx context.Context, n *node) error {
	switch n.spec.Kind {
	case KindAction:
		return rt.runAction(ctx, n, nil)
	case KindSequence:
		return rt.runSequence(ctx, n)
	case KindScan:
		return rt.runScan(ctx, n)
	case KindConcurrent:
		return rt.runConcurrent(ctx, n)
	default:
		return rt.runLoop(ctx, n)
	}
}

// ─── Leaf Action ─────────────────────────────────────────────────────────────

// templateContext resolves an action's template: parameters bind to
// the action's own formatted inputs first, then fall through to the
// run's parameter bins; constants and columns come from the bins.
type templateContext struct {
	bins   *databin.Store
	params map[string]string
}

func (c templateContext) Constant(name string) (string, bool) { return c.bins.Constant(name) }
func (c templateContext) Column(name string) (string, bool)   { return c.bins.Column(name) }
func (c templateContext) Parameter(name string) (string, bool) {
	if v, ok := c.params[name]; ok {
		return v, true
	}
	return c.bins.Parameter(name)
}

// runAction executes one leaf: resolve and coerce every input, invoke
// the operation exactly once, write declared outputs to bins, and
// update the node's status monitor. overrides supplies pre-coerced
// values that bypass expression resolution (used by Scan for the
// setpoint input).
func (rt *runtime) runAction(ctx context.Context, n *node, overrides map[string]any) error {
	n.state = StateRunning
	mon := rt.monitors.Monitor(monitorName(n.spec))

	args, formatted, err := rt.resolveInputs(n, overrides)
	if err != nil {
		return rt.failNode(n, err)
	}

	message := expr.Resolve(n.op.Spec.Template, templateContext{bins: rt.bins, params: formatted})
	if message == expr.NotFound || message == "" {
		message = describe(n.spec)
	}
	mon.Update(message)

	outputs, err := rt.instruments.Invoke(ctx, n.spec.Instrument, n.spec.Operation, args)
	if err != nil {
		return rt.failNode(n, err)
	}

	for i, ref := range n.spec.Outputs {
		if ref.Name == "" {
			continue
		}
		rt.bins.Set(ref, n.op.Spec.Outputs[i].FormatValue(outputs[i]))
	}

	mon.Post("")
	n.state = StateCompleted
	rt.recordCompleted()
	return nil
}

// resolveInputs produces the coerced argument map and the formatted
// values used for template substitution. Sources in priority order:
// override, bound expression, declared default.
func (rt *runtime) resolveInputs(n *node, overrides map[string]any) (map[string]any, map[string]string, error) {
	args := make(map[string]any, len(n.op.Spec.Inputs))
	formatted := make(map[string]string, len(n.op.Spec.Inputs))

	for _, in := range n.op.Spec.Inputs {
		var raw any
		switch {
		case overrides != nil && overrides[in.Name] != nil:
			raw = overrides[in.Name]
		case n.spec.Inputs[in.Name] != "":
			resolved := expr.Resolve(n.spec.Inputs[in.Name], rt.bins)
			if resolved == expr.NotFound {
				return nil, nil, fmt.Errorf("%w: input %q: %q",
					ErrUnresolvedInput, in.Name, n.spec.Inputs[in.Name])
			}
			raw = resolved
		default:
			raw = in.Default
		}

		coerced, err := in.Coerce(raw)
		if err != nil {
			return nil, nil, err
		}
		args[in.Name] = coerced
		formatted[in.Name] = in.FormatValue(coerced)
	}
	return args, formatted, nil
}

func (rt *runtime) failNode(n *node, err error) error {
	n.state = StateFailed
	rt.recordFailure(NodeFailure{
		Path:       n.path,
		Instrument: n.spec.Instrument,
		Operation:  n.spec.Operation,
		ErrorMsg:   err.Error(),
	})
	rt.logger.Error("action failed", "run_id", rt.run.ID(), "path", n.path, "error", err)
	return fmt.Errorf("%s: %w", n.path, err)
}

func monitorName(spec NodeSpec) string {
	if spec.Monitor != "" {
		return spec.Monitor
	}
	return "main"
}

// ─── Sequence ────────────────────────────────────────────────────────────────

// runSequence runs children strictly in declaration order. A child
// failure aborts the remaining siblings; cancellation is observed
// between children only.
func (rt *runtime) runSequence(ctx context.Context, n *node) error {
	n.state = StateRunning
	for _, child := range n.children {
		if err := ctx.Err(); err != nil {
			n.state = StateFailed
			return err
		}
		if err := rt.exec(ctx, child); err != nil {
			n.state = StateFailed
			return err
		}
	}
	n.state = StateCompleted
	return nil
}

// ─── Loops ───────────────────────────────────────────────────────────────────

// runLoop drives all four loop variants through the shared
// NotStarted → Iterating → Completed machine. The termination test
// runs before each pass, so a pass already underway always finishes;
// children are re-instantiated per pass since specs are stateless
// templates. A child failure is fatal to the loop.
func (rt *runtime) runLoop(ctx context.Context, n *node) error {
	n.state = StateRunning
	started := rt.clock()
	pass := 0

	for {
		if err := ctx.Err(); err != nil {
			n.state = StateFailed
			return err
		}

		done, err := rt.loopFinished(n, pass, started)
		if err != nil {
			n.state = StateFailed
			rt.recordFailure(NodeFailure{Path: n.path, ErrorMsg: err.Error()})
			return fmt.Errorf("%s: %w", n.path, err)
		}
		if done {
			break
		}

		for _, childSpec := range n.spec.Children {
			child, bindErr := rt.binder.bind(childSpec, n.path)
			if bindErr != nil {
				// An instrument deregistered mid-run can fail a
				// rebind that succeeded at start; report it like any
				// other node failure so the record names the cause.
				n.state = StateFailed
				rt.recordFailure(NodeFailure{Path: n.path, ErrorMsg: bindErr.Error()})
				return bindErr
			}
			if execErr := rt.exec(ctx, child); execErr != nil {
				n.state = StateFailed
				return execErr
			}
		}
		pass++
	}

	n.state = StateCompleted
	return nil
}

// loopFinished evaluates the kind-specific termination test.
func (rt *runtime) loopFinished(n *node, pass int, started time.Time) (bool, error) {
	switch n.spec.Kind {
	case KindLoopCount:
		return pass >= n.spec.Count, nil
	case KindLoopDuration:
		return rt.clock().Sub(started) >= n.spec.Duration, nil
	case KindLoopWhile:
		keep, err := expr.EvaluateBool(n.spec.Condition, rt.bins)
		if err != nil {
			return false, fmt.Errorf("evaluating condition %q: %w", n.spec.Condition, err)
		}
		return !keep, nil
	default: // KindLoopSignal
		return rt.run.takeSignal(), nil
	}
}

// ─── Scan ────────────────────────────────────────────────────────────────────

// runScan visits the expanded setpoints in list order. Each setpoint
// is bound into a fresh instance of the single child action; when a
// gate is configured, the scan then polls the gate's source operation
// and feeds readings into a fresh detector until it reports finished.
// Cancellation is observed at setpoint boundaries.
func (rt *runtime) runScan(ctx context.Context, n *node) error {
	n.state = StateRunning
	childSpec := n.spec.Children[0]

	for _, setpoint := range n.setpoints {
		if err := ctx.Err(); err != nil {
			n.state = StateFailed
			return err
		}

		value, err := n.scanInput.Coerce(setpoint)
		if err != nil {
			n.state = StateFailed
			rt.recordFailure(NodeFailure{Path: n.path, ErrorMsg: err.Error()})
			return fmt.Errorf("%s: %w", n.path, err)
		}

		child, bindErr := rt.binder.bind(childSpec, n.path)
		if bindErr != nil {
			n.state = StateFailed
			rt.recordFailure(NodeFailure{Path: n.path, ErrorMsg: bindErr.Error()})
			return bindErr
		}
		if execErr := rt.runAction(ctx, child, map[string]any{n.spec.ScanInput: value}); execErr != nil {
			n.state = StateFailed
			return execErr
		}

		if n.spec.Gate != nil {
			if gateErr := rt.waitForStability(ctx, n, setpoint); gateErr != nil {
				n.state = StateFailed
				return gateErr
			}
		}
	}

	n.state = StateCompleted
	return nil
}

// waitForStability polls the gate's source operation at the configured
// interval, feeding each reading into the detector, until the detector
// reports finished. A timeout finish without stability is degraded
// progress: it is logged as a warning and the scan continues.
func (rt *runtime) waitForStability(ctx context.Context, n *node, setpoint float64) error {
	gate := n.spec.Gate
	detector := newDetector(gate.Detector, setpoint)

	interval := gate.Interval
	if interval <= 0 {
		interval = rt.pollInterval
	}

	args, err := gateSourceArgs(rt.instruments, gate.Source)
	if err != nil {
		rt.recordFailure(NodeFailure{
			Path:       n.path,
			Instrument: gate.Source.Instrument,
			Operation:  gate.Source.Operation,
			ErrorMsg:   err.Error(),
		})
		return fmt.Errorf("%s: gate: %w", n.path, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		outputs, err := rt.instruments.Invoke(ctx, gate.Source.Instrument, gate.Source.Operation, args)
		if err != nil {
			rt.recordFailure(NodeFailure{
				Path:       n.path,
				Instrument: gate.Source.Instrument,
				Operation:  gate.Source.Operation,
				ErrorMsg:   err.Error(),
			})
			return fmt.Errorf("%s: gate: %w", n.path, err)
		}
		reading, err := asFloat(outputs[gate.Source.Output])
		if err != nil {
			rt.recordFailure(NodeFailure{
				Path:       n.path,
				Instrument: gate.Source.Instrument,
				Operation:  gate.Source.Operation,
				ErrorMsg:   err.Error(),
			})
			return fmt.Errorf("%s: gate: %w", n.path, err)
		}

		detector.AddPoint(reading)
		if detector.IsFinished() {
			if detector.IsTimedOut() && !detector.IsStable() {
				stats := detector.Stats()
				rt.logger.Warn("stability gate timed out, continuing",
					"run_id", rt.run.ID(),
					"path", n.path,
					"setpoint", setpoint,
					"min", stats.Min,
					"max", stats.Max,
					"slope", stats.Slope,
				)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// gateSourceArgs builds the polled operation's arguments from its
// declared defaults. Bind-time validation guarantees every input has
// one.
func gateSourceArgs(reg *instrument.Registry, src SourceSpec) (map[string]any, error) {
	op, err := reg.Lookup(src.Instrument, src.Operation)
	if err != nil {
		return nil, err
	}
	args := make(map[string]any, len(op.Spec.Inputs))
	for _, in := range op.Spec.Inputs {
		coerced, coerceErr := in.Coerce(in.Default)
		if coerceErr != nil {
			return nil, coerceErr
		}
		args[in.Name] = coerced
	}
	return args, nil
}

// newDetector constructs the detector a gate uses for one setpoint.
// Setpoint detectors target the scan's current setpoint.
func newDetector(spec DetectorSpec, setpoint float64) stability.Detector {
	switch spec.Kind {
	case DetectTrend:
		return stability.NewTrend(spec.BufferSize, spec.Tolerance, spec.Timeout)
	case DetectSetpoint:
		return stability.NewSetpoint(spec.BufferSize, setpoint, spec.Tolerance, spec.Timeout)
	case DetectTimer:
		return stability.NewTimer(spec.Duration, spec.Stability, spec.Timeout)
	default:
		return stability.NewBufferedTimer(spec.Stability, spec.BufferSize, spec.Timeout)
	}
}

func asFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("gate reading %v (%T) is not numeric", value, value)
	}
}

// ─── Concurrent ──────────────────────────────────────────────────────────────

// runConcurrent spawns one execution thread per child and joins them
// all before returning. Branch failures are aggregated, never
// cancelling siblings; a branch missing its join timeout is marked
// abandoned and left to finish on its own rather than killed.
func (rt *runtime) runConcurrent(ctx context.Context, n *node) error {
	n.state = StateRunning

	results := make([]chan error, len(n.children))
	for i, child := range n.children {
		ch := make(chan error, 1)
		results[i] = ch
		go func(c *node, out chan<- error) {
			err := rt.exec(ctx, c)
			// A branch owns its subtree's node states. If the join
			// barrier gave up on this branch, record the abandonment
			// here rather than let the joiner write a state the
			// still-running branch would race against.
			if c.abandoned.Load() {
				c.state = StateAbandoned
			}
			out <- err
		}(child, ch)
	}

	failed := 0
	abandoned := 0
	for i, ch := range results {
		child := n.children[i]
		if joinErr := rt.joinThread(ch); joinErr != nil {
			if joinErr == errJoinTimeout {
				child.abandoned.Store(true)
				abandoned++
				rt.recordFailure(NodeFailure{
					Path:      child.path,
					ErrorMsg:  "branch did not finish within join timeout",
					Abandoned: true,
				})
				rt.logger.Warn("concurrent branch abandoned",
					"run_id", rt.run.ID(), "path", child.path, "timeout", rt.joinTimeout)
			} else {
				failed++
			}
		}
	}

	if failed > 0 {
		n.state = StateFailed
		return fmt.Errorf("%s: %d of %d branches failed", n.path, failed, len(n.children))
	}
	if abandoned > 0 {
		rt.logger.Warn("concurrent container degraded",
			"run_id", rt.run.ID(), "path", n.path, "abandoned", abandoned)
	}
	n.state = StateCompleted
	return nil
}

var errJoinTimeout = fmt.Errorf("join timeout")

// joinThread waits for one branch result, up to the configured join
// timeout. A zero timeout waits indefinitely.
func (rt *runtime) joinThread(ch <-chan error) error {
	if rt.joinTimeout <= 0 {
		return <-ch
	}
	timer := time.NewTimer(rt.joinTimeout)
	defer timer.Stop()
	select {
	case err := <-ch:
		return err
	case <-timer.C:
		return errJoinTimeout
	}
}
