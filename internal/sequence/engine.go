package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/labflow-core/internal/databin"
	"github.com/nerrad567/labflow-core/internal/instrument"
	"github.com/nerrad567/labflow-core/internal/progress"
)

// Logger defines the logging interface used by the engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broadcaster receives run lifecycle events for fan-out to websocket
// clients or other live listeners. May be nil.
type Broadcaster interface {
	RunEvent(event string, record RunRecord)
}

// BinObserver receives every data-bin write of a run, tagged with the
// run ID. The InfluxDB recorder attaches here.
type BinObserver func(runID string, ref databin.Ref, value string)

// StatusObserver receives status monitor traffic of a run: transient
// updates (posted false) and durable history entries (posted true).
// The MQTT status bridge attaches here.
type StatusObserver func(runID, monitor, message string, posted bool)

// Engine executes named sequences against an instrument registry.
//
// A run instantiates the sequence's specification tree into live
// nodes, validates it, executes the root, and persists a RunRecord
// through the repository. Bins, status monitors and the interrupt
// signal are all scoped to the run.
//
// Thread Safety: all public methods are safe for concurrent use.
type Engine struct {
	instruments *instrument.Registry
	repo        Repository
	logger      Logger

	broadcaster    Broadcaster
	binObserver    BinObserver
	statusObserver StatusObserver

	pollInterval time.Duration
	joinTimeout  time.Duration
	clock        func() time.Time

	mu        sync.RWMutex
	sequences map[string]Sequence
	active    map[string]*Run
}

// defaultPollInterval paces stability-gate polling when neither the
// gate nor the configuration sets one.
const defaultPollInterval = 250 * time.Millisecond

// defaultJoinTimeout bounds how long a Concurrent container waits for
// each branch before abandoning it.
const defaultJoinTimeout = 5 * time.Minute

// NewEngine creates a sequence engine.
//
// Parameters:
//   - instruments: Registry the runs invoke operations through
//   - repo: Repository for persisting run records
func NewEngine(instruments *instrument.Registry, repo Repository) *Engine {
	return &Engine{
		instruments:  instruments,
		repo:         repo,
		logger:       noopLogger{},
		pollInterval: defaultPollInterval,
		joinTimeout:  defaultJoinTimeout,
		clock:        time.Now,
		sequences:    make(map[string]Sequence),
		active:       make(map[string]*Run),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// SetBroadcaster attaches a lifecycle event broadcaster.
func (e *Engine) SetBroadcaster(b Broadcaster) { e.broadcaster = b }

// SetBinObserver attaches an observer for all run bin writes.
func (e *Engine) SetBinObserver(fn BinObserver) { e.binObserver = fn }

// SetStatusObserver attaches an observer for all run status traffic.
func (e *Engine) SetStatusObserver(fn StatusObserver) { e.statusObserver = fn }

// SetPollInterval sets the default stability-gate polling interval.
func (e *Engine) SetPollInterval(d time.Duration) {
	if d > 0 {
		e.pollInterval = d
	}
}

// SetJoinTimeout sets the per-branch join timeout for Concurrent
// containers. Zero disables the timeout.
func (e *Engine) SetJoinTimeout(d time.Duration) { e.joinTimeout = d }

// AddSequence registers a named sequence for later runs, replacing
// any previous one with the same name.
func (e *Engine) AddSequence(seq Sequence) {
	e.mu.Lock()
	e.sequences[seq.Name] = seq
	e.mu.Unlock()
}

// Sequences returns the registered sequences, sorted by name so the
// catalogue lists in a stable order.
func (e *Engine) Sequences() []Sequence {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Sequence, 0, len(e.sequences))
	for _, seq := range e.sequences {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches a named sequence asynchronously and returns its run
// handle. Bind-time validation happens before Start returns, so
// configuration errors surface immediately; execution then proceeds
// in the background until completion, failure, or cancellation.
//
// Returns:
//   - *Run: Handle for signalling, cancelling, and inspecting the run.
//   - error: ErrSequenceNotFound, or a ConfigError from validation.
func (e *Engine) Start(ctx context.Context, name, triggerSource string) (*Run, error) {
	e.mu.RLock()
	seq, ok := e.sequences[name]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrSequenceNotFound
	}
	return e.start(ctx, seq, triggerSource)
}

// Execute runs a sequence synchronously and returns its final record.
// Used by tests and by callers that want to block.
func (e *Engine) Execute(ctx context.Context, seq Sequence, triggerSource string) (RunRecord, error) {
	run, err := e.start(ctx, seq, triggerSource)
	if err != nil {
		return RunRecord{}, err
	}
	<-run.Done()
	return run.Record(), nil
}

func (e *Engine) start(ctx context.Context, seq Sequence, triggerSource string) (*Run, error) {
	record := RunRecord{
		ID:            uuid.NewString(),
		Sequence:      seq.Name,
		TriggerSource: triggerSource,
		Status:        StatusPending,
		TriggeredAt:   e.clock().UTC(),
		ActionsTotal:  countActions(seq.Root),
	}

	if createErr := e.repo.Create(ctx, &record); createErr != nil {
		e.logger.Error("failed to create run record", "error", createErr)
		// Keep going: running the sequence matters more than the audit row.
	}

	if err := validateInputExpressions(seq.Root, ""); err != nil {
		e.finishFailedBind(ctx, &record, err)
		return nil, err
	}
	b := &binder{instruments: e.instruments}
	root, err := b.bind(seq.Root, "")
	if err != nil {
		e.finishFailedBind(ctx, &record, err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		id:       record.ID,
		sequence: seq.Name,
		cancel:   cancel,
		done:     make(chan struct{}),
		record:   record,
	}

	e.mu.Lock()
	e.active[run.id] = run
	e.mu.Unlock()

	go e.drive(runCtx, run, seq, root, b, record)
	return run, nil
}

// drive executes a bound tree to completion and finalises the record.
func (e *Engine) drive(ctx context.Context, run *Run, seq Sequence, root *node, b *binder, record RunRecord) {
	defer run.cancel()
	defer close(run.done)
	defer func() {
		e.mu.Lock()
		delete(e.active, run.id)
		e.mu.Unlock()
	}()

	bins := e.newBins(run, seq)
	monitors := progress.NewRegistry()
	e.wireStatus(run, monitors, seq.Root)

	rt := &runtime{
		instruments:  e.instruments,
		bins:         bins,
		monitors:     monitors,
		binder:       b,
		logger:       e.logger,
		run:          run,
		pollInterval: e.pollInterval,
		joinTimeout:  e.joinTimeout,
		clock:        e.clock,
	}

	started := e.clock().UTC()
	record.StartedAt = &started
	record.Status = StatusRunning
	run.setRecord(record)
	e.broadcast("run.started", record)

	e.logger.Info("run started",
		"run_id", run.id,
		"sequence", seq.Name,
		"trigger", record.TriggerSource,
		"actions", record.ActionsTotal,
	)

	execErr := rt.exec(ctx, root)

	// An abandoned branch may still be appending to the accumulators,
	// so finalise from a locked snapshot.
	completed, failed, failures := rt.snapshot()

	completedAt := e.clock().UTC()
	record.CompletedAt = &completedAt
	duration := int(completedAt.Sub(started).Milliseconds())
	record.DurationMS = &duration
	record.ActionsCompleted = completed
	record.ActionsFailed = failed
	record.Failures = failures

	switch {
	case ctx.Err() != nil:
		record.Status = StatusCancelled
	case execErr != nil && completed == 0:
		record.Status = StatusFailed
	case execErr != nil || len(failures) > 0:
		record.Status = StatusPartial
	default:
		record.Status = StatusCompleted
	}

	run.setRecord(record)
	if updateErr := e.repo.Update(context.WithoutCancel(ctx), &record); updateErr != nil {
		e.logger.Error("failed to update run record", "run_id", run.id, "error", updateErr)
	}

	e.logger.Info("run finished",
		"run_id", run.id,
		"sequence", seq.Name,
		"status", record.Status,
		"completed", record.ActionsCompleted,
		"failed", record.ActionsFailed,
		"duration_ms", duration,
	)
	e.broadcast("run.finished", record)
}

// newBins builds the run's bin store: constants first, then the
// engine-wide observer tagged with the run ID.
func (e *Engine) newBins(run *Run, seq Sequence) *databin.Store {
	bins := databin.NewStore()
	bins.SetConstant("run id", run.id)
	bins.SetConstant("sequence", seq.Name)
	bins.SetConstant("date", e.clock().UTC().Format("2006-01-02"))
	for name, value := range seq.Constants {
		bins.SetConstant(name, value)
	}
	if e.binObserver != nil {
		bins.Subscribe(func(ref databin.Ref, value string) {
			e.binObserver(run.id, ref, value)
		})
	}
	return bins
}

// wireStatus pre-creates every monitor named in the tree and attaches
// the engine's status observer to each.
func (e *Engine) wireStatus(run *Run, monitors *progress.Registry, spec NodeSpec) {
	if e.statusObserver == nil {
		return
	}
	names := map[string]bool{"main": true}
	collectMonitors(spec, names)
	for name := range names {
		mon := monitors.Monitor(name)
		mon.OnUpdate(func(monitor, message string) {
			e.statusObserver(run.id, monitor, message, false)
		})
		mon.OnPost(func(monitor string, entry progress.Entry) {
			e.statusObserver(run.id, monitor, entry.Message, true)
		})
	}
}

func collectMonitors(spec NodeSpec, names map[string]bool) {
	if spec.Kind == KindAction {
		names[monitorName(spec)] = true
	}
	for _, child := range spec.Children {
		collectMonitors(child, names)
	}
}

func (e *Engine) finishFailedBind(ctx context.Context, record *RunRecord, bindErr error) {
	now := e.clock().UTC()
	record.CompletedAt = &now
	record.Status = StatusFailed
	record.Failures = []NodeFailure{{Path: pathOf(bindErr), ErrorMsg: bindErr.Error()}}
	if err := e.repo.Update(ctx, record); err != nil {
		e.logger.Error("failed to update run record", "run_id", record.ID, "error", err)
	}
	e.logger.Error("run rejected by validation", "run_id", record.ID, "error", bindErr)
}

func pathOf(err error) string {
	var cfg *ConfigError
	if errors.As(err, &cfg) {
		return cfg.Path
	}
	return ""
}

// Interrupt raises the interrupt signal on an active run.
// Returns ErrRunNotFound if the run is not active.
func (e *Engine) Interrupt(runID string) error {
	e.mu.RLock()
	run, ok := e.active[runID]
	e.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}
	run.Interrupt()
	e.logger.Info("run interrupted", "run_id", runID)
	return nil
}

// Cancel aborts an active run at its next boundary.
// Returns ErrRunNotFound if the run is not active.
func (e *Engine) Cancel(runID string) error {
	e.mu.RLock()
	run, ok := e.active[runID]
	e.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}
	run.Cancel()
	e.logger.Info("run cancelled", "run_id", runID)
	return nil
}

// ActiveRun returns the live handle of an active run, if any.
func (e *Engine) ActiveRun(runID string) (*Run, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.active[runID]
	return run, ok
}

// GetRun returns a run record: the live snapshot for an active run,
// the repository row otherwise.
func (e *Engine) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	if run, ok := e.ActiveRun(runID); ok {
		rec := run.Record()
		return &rec, nil
	}
	return e.repo.GetByID(ctx, runID)
}

// ListRuns returns recent run records, newest first.
func (e *Engine) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	return e.repo.List(ctx, limit)
}

func (e *Engine) broadcast(event string, record RunRecord) {
	if e.broadcaster != nil {
		e.broadcaster.RunEvent(event, record)
	}
}
