package sequence

import (
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/labflow-core/internal/expr"
	"github.com/nerrad567/labflow-core/internal/instrument"
)

// node is a live tree node instantiated from a NodeSpec for one run.
// Bind-time lookups (operation handles, expanded setpoints) are cached
// here so execution never repeats them.
type node struct {
	spec  NodeSpec
	path  string
	state State

	// abandoned is set by a Concurrent join barrier that timed out
	// waiting for this branch. The branch goroutine reads it when it
	// eventually finishes; only that goroutine writes state.
	abandoned atomic.Bool

	// Leaf: resolved operation handle.
	op instrument.Operation

	// Scan: expanded setpoints and the child input they bind into.
	setpoints []float64
	scanInput instrument.ParameterSpec

	children []*node
}

// binder instantiates and validates specification trees against an
// instrument registry. All configuration errors surface here, before
// any instrument is touched.
type binder struct {
	instruments *instrument.Registry
}

// bind instantiates a live node tree from a spec, validating as it
// descends. The returned errors are ConfigErrors carrying node paths.
func (b *binder) bind(spec NodeSpec, parentPath string) (*node, error) {
	path := spec.Name
	if parentPath != "" {
		path = parentPath + "/" + spec.Name
	}
	if spec.Name == "" {
		return nil, configErrorf(parentPath, "node has no name")
	}

	n := &node{spec: spec, path: path, state: StateNotStarted}

	switch spec.Kind {
	case KindAction:
		if err := b.bindAction(n); err != nil {
			return nil, err
		}
	case KindSequence, KindConcurrent:
		if len(spec.Children) == 0 {
			return nil, configErrorf(path, "%s has no children", spec.Kind)
		}
	case KindScan:
		if err := b.bindScan(n); err != nil {
			return nil, err
		}
	case KindLoopCount:
		if spec.Count <= 0 {
			return nil, configErrorf(path, "loop count %d must be positive", spec.Count)
		}
		if len(spec.Children) == 0 {
			return nil, configErrorf(path, "loop has no children")
		}
	case KindLoopDuration:
		if spec.Duration <= 0 {
			return nil, configErrorf(path, "loop duration %v must be positive", spec.Duration)
		}
		if len(spec.Children) == 0 {
			return nil, configErrorf(path, "loop has no children")
		}
	case KindLoopWhile:
		if spec.Condition == "" {
			return nil, configErrorf(path, "loop has no condition")
		}
		if len(spec.Children) == 0 {
			return nil, configErrorf(path, "loop has no children")
		}
	case KindLoopSignal:
		if len(spec.Children) == 0 {
			return nil, configErrorf(path, "loop has no children")
		}
	default:
		return nil, configErrorf(path, "unrecognised node kind %q", spec.Kind)
	}

	for _, childSpec := range spec.Children {
		child, err := b.bind(childSpec, path)
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
	}
	return n, nil
}

// bindAction resolves a leaf's operation and cross-checks its inputs:
// every bound input name must be declared by the operation, and every
// declared input must be satisfiable from a binding or a default.
func (b *binder) bindAction(n *node) error {
	spec := n.spec
	if len(spec.Children) != 0 {
		return configErrorf(n.path, "action cannot have children")
	}

	op, err := b.instruments.Lookup(spec.Instrument, spec.Operation)
	if err != nil {
		return configErrorf(n.path, "%v", err)
	}
	n.op = op

	for name := range spec.Inputs {
		if _, ok := op.Spec.Input(name); !ok {
			return configErrorf(n.path, "operation %s.%s has no input %q",
				spec.Instrument, spec.Operation, name)
		}
	}
	for _, in := range op.Spec.Inputs {
		if _, bound := spec.Inputs[in.Name]; !bound && in.Default == nil {
			return configErrorf(n.path, "input %q has no binding and no default", in.Name)
		}
	}

	if len(spec.Outputs) > len(op.Spec.Outputs) {
		return configErrorf(n.path, "%d output bins for %d operation outputs",
			len(spec.Outputs), len(op.Spec.Outputs))
	}
	for _, ref := range spec.Outputs {
		if ref.Name == "" {
			continue // discarded output
		}
		if ref.Kind != "" && ref.Kind != "column" && ref.Kind != "parameter" {
			return configErrorf(n.path, "unrecognised bin kind %q", ref.Kind)
		}
	}
	return nil
}

// bindScan validates the scan's single child, expands its ranges, and
// checks that the gate's source operation is invocable from defaults
// alone.
func (b *binder) bindScan(n *node) error {
	spec := n.spec
	if len(spec.Children) != 1 {
		return configErrorf(n.path, "scan requires exactly one child, got %d", len(spec.Children))
	}
	child := spec.Children[0]
	if child.Kind != KindAction {
		return configErrorf(n.path, "scan child must be an action, got %s", child.Kind)
	}
	if spec.ScanInput == "" {
		return configErrorf(n.path, "scan has no scan input name")
	}

	op, err := b.instruments.Lookup(child.Instrument, child.Operation)
	if err != nil {
		return configErrorf(n.path, "%v", err)
	}
	in, ok := op.Spec.Input(spec.ScanInput)
	if !ok {
		return configErrorf(n.path, "operation %s.%s has no input %q",
			child.Instrument, child.Operation, spec.ScanInput)
	}
	if t := in.CoercionType(); t != instrument.CoerceFloat && t != instrument.CoerceInt {
		return configErrorf(n.path, "scan input %q is not numeric", spec.ScanInput)
	}
	n.scanInput = in

	ranges := spec.Ranges
	if len(ranges) == 0 {
		ranges = in.Ranges
	}
	if len(ranges) == 0 {
		return configErrorf(n.path, "scan has no ranges and input %q declares none", spec.ScanInput)
	}
	setpoints, err := instrument.ExpandRanges(ranges)
	if err != nil {
		return configErrorf(n.path, "%v", err)
	}
	n.setpoints = setpoints

	if spec.Gate != nil {
		if err := b.bindGate(n.path, spec.Gate); err != nil {
			return err
		}
	}
	return nil
}

// bindGate checks a stability gate's detector parameters and its
// polled source operation.
func (b *binder) bindGate(path string, gate *GateSpec) error {
	d := gate.Detector
	switch d.Kind {
	case DetectTrend, DetectSetpoint, DetectBufferedTimer:
		if d.BufferSize <= 0 {
			return configErrorf(path, "gate buffer size %d must be positive", d.BufferSize)
		}
	case DetectTimer:
		if d.Duration <= 0 {
			return configErrorf(path, "gate duration %v must be positive", d.Duration)
		}
	default:
		return configErrorf(path, "unrecognised detector kind %q", d.Kind)
	}
	switch d.Kind {
	case DetectTrend, DetectSetpoint:
		if d.Tolerance <= 0 {
			return configErrorf(path, "gate tolerance %g must be positive", d.Tolerance)
		}
	case DetectTimer, DetectBufferedTimer:
		if d.Stability <= 0 {
			return configErrorf(path, "gate stability threshold %g must be positive", d.Stability)
		}
	}

	op, err := b.instruments.Lookup(gate.Source.Instrument, gate.Source.Operation)
	if err != nil {
		return configErrorf(path, "gate source: %v", err)
	}
	if gate.Source.Output < 0 || gate.Source.Output >= len(op.Spec.Outputs) {
		return configErrorf(path, "gate source output %d out of range for %s.%s",
			gate.Source.Output, gate.Source.Instrument, gate.Source.Operation)
	}
	for _, in := range op.Spec.Inputs {
		if in.Default == nil {
			return configErrorf(path, "gate source input %q has no default", in.Name)
		}
	}
	return nil
}

// validateInputExpressions checks bound input expressions for marker
// syntax errors the resolver would only report at run time.
func validateInputExpressions(spec NodeSpec, parentPath string) error {
	path := spec.Name
	if parentPath != "" {
		path = parentPath + "/" + spec.Name
	}
	for name, raw := range spec.Inputs {
		for _, marker := range []string{expr.MarkConstant, expr.MarkColumn, expr.MarkParameter} {
			if hasUnmatchedMarker(raw, marker) {
				return configErrorf(path, "input %q: unmatched %s( in %q", name, marker, raw)
			}
		}
	}
	for _, child := range spec.Children {
		if err := validateInputExpressions(child, path); err != nil {
			return err
		}
	}
	return nil
}

func hasUnmatchedMarker(s, marker string) bool {
	open := marker + "("
	for i := 0; i+len(open) <= len(s); i++ {
		if s[i:i+len(open)] == open {
			if expr.FindClosing(s, i+len(open)) < 0 {
				return true
			}
		}
	}
	return false
}

// describe returns a short human label for a node, used in logs.
func describe(spec NodeSpec) string {
	if spec.Kind == KindAction {
		return fmt.Sprintf("%s (%s.%s)", spec.Name, spec.Instrument, spec.Operation)
	}
	return fmt.Sprintf("%s (%s)", spec.Name, spec.Kind)
}
