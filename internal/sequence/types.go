package sequence

import (
	"time"

	"github.com/nerrad567/labflow-core/internal/databin"
	"github.com/nerrad567/labflow-core/internal/instrument"
)

// NodeKind identifies the execution semantics of a tree node.
type NodeKind string

const (
	// KindAction is a leaf: one instrument operation invocation.
	KindAction NodeKind = "action"

	// KindSequence runs children strictly in declaration order, fail-fast.
	KindSequence NodeKind = "sequence"

	// KindScan repeats its single child action across an expanded
	// setpoint range, optionally gated on stability.
	KindScan NodeKind = "scan"

	// KindLoopCount repeats its children a fixed number of passes.
	KindLoopCount NodeKind = "loop_count"

	// KindLoopDuration repeats its children until a wall-clock budget
	// elapses, checked before each new pass only.
	KindLoopDuration NodeKind = "loop_duration"

	// KindLoopWhile repeats its children while a condition expression
	// over current bins evaluates true, re-evaluated before each pass.
	KindLoopWhile NodeKind = "loop_while"

	// KindLoopSignal repeats its children until the run's interrupt
	// signal is observed, checked between passes only.
	KindLoopSignal NodeKind = "loop_signal"

	// KindConcurrent runs each child on its own execution thread with
	// a join barrier at exit.
	KindConcurrent NodeKind = "concurrent"
)

// NodeSpec is the immutable template for one tree node. Specs are
// declared once per sequence and instantiated into live nodes per run;
// loop containers re-instantiate their child specs on every pass.
type NodeSpec struct {
	Kind NodeKind `json:"kind"`
	Name string   `json:"name"`

	// Leaf fields.
	Instrument string            `json:"instrument,omitempty"`
	Operation  string            `json:"operation,omitempty"`
	Inputs     map[string]string `json:"inputs,omitempty"`  // input name → literal or marker expression
	Outputs    []databin.Ref     `json:"outputs,omitempty"` // positional against the operation's outputs; empty name discards
	Monitor    string            `json:"monitor,omitempty"` // status monitor name, default "main"

	// Scan fields.
	ScanInput string             `json:"scan_input,omitempty"`
	Ranges    []instrument.Range `json:"ranges,omitempty"`
	Gate      *GateSpec          `json:"gate,omitempty"`

	// Loop fields.
	Count     int           `json:"count,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Condition string        `json:"condition,omitempty"`

	// Container children, in declaration order.
	Children []NodeSpec `json:"children,omitempty"`
}

// GateSpec configures the stability gate a Scan applies after each
// setpoint: which operation to poll, how often, and which detector
// decides that the reading has settled.
type GateSpec struct {
	Detector DetectorSpec  `json:"detector"`
	Source   SourceSpec    `json:"source"`
	Interval time.Duration `json:"interval,omitempty"` // default from engine config
}

// SourceSpec names the instrument operation a stability gate polls,
// and which of its outputs carries the reading.
type SourceSpec struct {
	Instrument string `json:"instrument"`
	Operation  string `json:"operation"`
	Output     int    `json:"output"`
}

// DetectorKind selects one of the stability detector variants.
type DetectorKind string

const (
	DetectTrend         DetectorKind = "trend"
	DetectSetpoint      DetectorKind = "setpoint"
	DetectTimer         DetectorKind = "timer"
	DetectBufferedTimer DetectorKind = "buffered_timer"
)

// DetectorSpec holds the union of detector parameters. Which fields
// apply depends on Kind; a Setpoint detector targets the scan's
// current setpoint, so it carries no target of its own. A zero
// Timeout means wait indefinitely.
type DetectorSpec struct {
	Kind       DetectorKind  `json:"kind"`
	BufferSize int           `json:"buffer_size,omitempty"`
	Tolerance  float64       `json:"tolerance,omitempty"`
	Stability  float64       `json:"stability,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// Sequence is a named, ready-to-run specification tree.
type Sequence struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Constants   map[string]string `json:"constants,omitempty"`
	Root        NodeSpec          `json:"root"`
}

// State is the lifecycle state of a live node.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"

	// StateAbandoned marks a concurrent branch that missed its join
	// timeout. The branch is left running rather than killed, since
	// forcing an in-flight instrument call to stop is unsafe.
	StateAbandoned State = "abandoned"
)

// RunStatus represents the state of a run record.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"   // Some actions failed or were abandoned, run continued
	StatusFailed    RunStatus = "failed"    // No action completed, or bind failed
	StatusCancelled RunStatus = "cancelled" // Context cancelled mid-run
)

// RunRecord tracks a single execution of a sequence.
type RunRecord struct {
	ID            string     `json:"id"`
	Sequence      string     `json:"sequence"`
	TriggerSource string     `json:"trigger_source"` // api, mqtt, schedule
	Status        RunStatus  `json:"status"`
	TriggeredAt   time.Time  `json:"triggered_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	// Action counts. Loops and scans invoke leaves repeatedly, so
	// completed and failed count invocations and can exceed total.
	ActionsTotal     int `json:"actions_total"` // leaf specs declared in the tree
	ActionsCompleted int `json:"actions_completed"`
	ActionsFailed    int `json:"actions_failed"`

	// Failure details (populated when actions fail or branches are abandoned)
	Failures []NodeFailure `json:"failures,omitempty"`

	// Total run duration in milliseconds
	DurationMS *int `json:"duration_ms,omitempty"`
}

// NodeFailure records details of a failed action or abandoned branch.
type NodeFailure struct {
	Path       string `json:"path"`
	Instrument string `json:"instrument,omitempty"`
	Operation  string `json:"operation,omitempty"`
	ErrorMsg   string `json:"error_message"`

	// Abandoned distinguishes a branch that missed its join timeout
	// from one that actually failed.
	Abandoned bool `json:"abandoned,omitempty"`
}

// countActions returns the number of leaf specs declared in a tree.
// Each leaf counts once regardless of how many times a loop or scan
// will invoke it.
func countActions(spec NodeSpec) int {
	if spec.Kind == KindAction {
		return 1
	}
	n := 0
	for _, child := range spec.Children {
		n += countActions(child)
	}
	return n
}

// CountActions returns the number of leaf action specs declared under
// this node. Useful for reporting sequence size without executing it.
func (s NodeSpec) CountActions() int { return countActions(s) }
