package instrument

import (
	"context"
	"errors"
	"testing"
)

// testInstrument builds a minimal two-operation instrument used across
// the registry and validation tests.
func testInstrument(name string) *OperationSet {
	setVoltage := Operation{
		Spec: OperationSpec{
			Name: "set voltage",
			Inputs: []ParameterSpec{
				{Name: "voltage", Format: "%.3f", Default: 0.0},
			},
			Template: "Set output voltage to $(voltage) V.",
		},
		ArgNames: []string{"voltage"},
		Run: func(ctx context.Context, args map[string]any) ([]any, error) {
			return nil, nil
		},
	}
	readVoltage := Operation{
		Spec: OperationSpec{
			Name: "read voltage",
			Outputs: []ParameterSpec{
				{Name: "voltage", Format: "%.3f"},
			},
			Template: "Read the output voltage.",
		},
		Run: func(ctx context.Context, args map[string]any) ([]any, error) {
			return []any{4.2}, nil
		},
	}
	return NewOperationSet(name, setVoltage, readVoltage)
}

// ─── Registration ────────────────────────────────────────────────────────────

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(testInstrument("source")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", reg.Count())
	}

	if err := reg.Register(testInstrument("source")); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate Register() error = %v, want ErrExists", err)
	}
}

func TestRegistryRegisterRejectsInvalidOperation(t *testing.T) {
	bad := NewOperationSet("broken", Operation{
		Spec: OperationSpec{
			Name:     "set",
			Template: "Set to $(missing).",
		},
		Run: func(ctx context.Context, args map[string]any) ([]any, error) {
			return nil, nil
		},
	})

	reg := NewRegistry()
	if err := reg.Register(bad); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("Register() error = %v, want ErrInvalidSpec", err)
	}
	if reg.Count() != 0 {
		t.Fatal("invalid instrument must not be registered")
	}
}

func TestRegistryDeregister(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(testInstrument("source")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Deregister("source"); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}
	if err := reg.Deregister("source"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Deregister() error = %v, want ErrNotFound", err)
	}
}

// ─── Lookup and Invocation ───────────────────────────────────────────────────

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(testInstrument("source")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	op, err := reg.Lookup("source", "read voltage")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if op.Spec.Name != "read voltage" {
		t.Errorf("Lookup() returned %q", op.Spec.Name)
	}

	if _, err := reg.Lookup("missing", "read voltage"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown instrument error = %v, want ErrNotFound", err)
	}
	if _, err := reg.Lookup("source", "missing"); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("unknown operation error = %v, want ErrOperationNotFound", err)
	}
}

func TestRegistryInvoke(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(testInstrument("source")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outputs, err := reg.Invoke(context.Background(), "source", "read voltage", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(outputs) != 1 || outputs[0] != 4.2 {
		t.Fatalf("Invoke() = %v, want [4.2]", outputs)
	}
}

func TestRegistryInvokeOutputArityMismatch(t *testing.T) {
	short := NewOperationSet("meter", Operation{
		Spec: OperationSpec{
			Name: "read pair",
			Outputs: []ParameterSpec{
				{Name: "x", Format: "%.3e"},
				{Name: "y", Format: "%.3e"},
			},
		},
		Run: func(ctx context.Context, args map[string]any) ([]any, error) {
			return []any{1.0}, nil
		},
	})

	reg := NewRegistry()
	if err := reg.Register(short); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := reg.Invoke(context.Background(), "meter", "read pair", nil); err == nil {
		t.Fatal("expected output arity error")
	}
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"cryostat", "source", "meter"} {
		if err := reg.Register(testInstrument(name)); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}

	names := reg.Names()
	want := []string{"cryostat", "meter", "source"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}
