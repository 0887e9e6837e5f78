package instrument

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
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

// Registry holds the instruments available to a running experiment,
// keyed by name. Runs address hardware exclusively through the
// registry, so swapping a bench instrument for a simulated one is a
// registration change rather than a sequence change.
//
// All public methods are thread-safe.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]Instrument
	logger      Logger
}

// NewRegistry creates an empty instrument registry.
func NewRegistry() *Registry {
	return &Registry{
		instruments: make(map[string]Instrument),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds an instrument to the registry. Every operation the
// instrument exposes is validated before the registration takes
// effect, so a malformed operation spec is caught at startup rather
// than mid-run.
//
// Returns ErrExists if an instrument with the same name is already
// registered, or ErrInvalidSpec if any operation fails validation.
func (r *Registry) Register(inst Instrument) error {
	name := inst.Name()
	if name == "" {
		return fmt.Errorf("%w: instrument name is empty", ErrInvalidSpec)
	}

	for _, op := range inst.Operations() {
		if err := ValidateOperation(op); err != nil {
			return fmt.Errorf("instrument %q: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instruments[name]; ok {
		return fmt.Errorf("%w: instrument %q", ErrExists, name)
	}
	r.instruments[name] = inst

	r.logger.Info("instrument registered", "name", name, "operations", len(inst.Operations()))
	return nil
}

// Deregister removes an instrument from the registry.
// Returns ErrNotFound if no instrument with the name is registered.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instruments[name]; !ok {
		return fmt.Errorf("%w: instrument %q", ErrNotFound, name)
	}
	delete(r.instruments, name)

	r.logger.Info("instrument deregistered", "name", name)
	return nil
}

// Get retrieves an instrument by name.
// Returns ErrNotFound if no instrument with the name is registered.
func (r *Registry) Get(name string) (Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instruments[name]
	if !ok {
		return nil, fmt.Errorf("%w: instrument %q", ErrNotFound, name)
	}
	return inst, nil
}

// Lookup resolves an instrument/operation pair in one step.
// Returns ErrNotFound for an unknown instrument and
// ErrOperationNotFound for an unknown operation.
func (r *Registry) Lookup(instrument, operation string) (Operation, error) {
	inst, err := r.Get(instrument)
	if err != nil {
		return Operation{}, err
	}
	op, ok := inst.Operation(operation)
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s.%s", ErrOperationNotFound, instrument, operation)
	}
	return op, nil
}

// Invoke looks up and runs a named operation with already-coerced
// arguments. It is the single call site through which every action in
// a run reaches hardware.
//
// Returns:
//   - []any: The operation's output values, positionally matching its
//     output specs.
//   - error: Lookup errors, or whatever the operation itself returns.
func (r *Registry) Invoke(ctx context.Context, instrument, operation string, args map[string]any) ([]any, error) {
	op, err := r.Lookup(instrument, operation)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("invoking operation", "instrument", instrument, "operation", operation)
	outputs, err := op.Run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", instrument, operation, err)
	}

	if len(outputs) != len(op.Spec.Outputs) {
		return nil, fmt.Errorf("%s.%s: returned %d outputs, want %d",
			instrument, operation, len(outputs), len(op.Spec.Outputs))
	}
	return outputs, nil
}

// Names returns the registered instrument names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.instruments))
	for name := range r.instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered instruments.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
