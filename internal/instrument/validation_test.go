package instrument

import (
	"context"
	"errors"
	"testing"
)

func validOperation() Operation {
	return Operation{
		Spec: OperationSpec{
			Name: "set field",
			Inputs: []ParameterSpec{
				{Name: "field", Format: "%.4f", Default: 0.0},
				{Name: "rate", Format: "%.2f", Default: 0.1},
			},
			Template: "Ramp field to $(field) T at $(rate) T/min.",
		},
		ArgNames: []string{"field", "rate"},
		Run: func(ctx context.Context, args map[string]any) ([]any, error) {
			return nil, nil
		},
	}
}

func TestValidateOperation(t *testing.T) {
	if err := ValidateOperation(validOperation()); err != nil {
		t.Fatalf("ValidateOperation() error = %v", err)
	}
}

func TestValidateOperationRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Operation)
	}{
		{
			name:   "empty name",
			mutate: func(op *Operation) { op.Spec.Name = "" },
		},
		{
			name: "duplicate input",
			mutate: func(op *Operation) {
				op.Spec.Inputs = append(op.Spec.Inputs, ParameterSpec{Name: "field", Format: "%f"})
				op.ArgNames = append(op.ArgNames, "field")
			},
		},
		{
			name:   "template references unknown input",
			mutate: func(op *Operation) { op.Spec.Template = "Ramp to $(setpoint)." },
		},
		{
			name:   "argument names miss an input",
			mutate: func(op *Operation) { op.ArgNames = []string{"field"} },
		},
		{
			name:   "argument name not a declared input",
			mutate: func(op *Operation) { op.ArgNames = []string{"field", "ramp"} },
		},
		{
			name:   "default fails its own coercion",
			mutate: func(op *Operation) { op.Spec.Inputs[0].Default = "fast" },
		},
		{
			name: "format without conversion verb",
			mutate: func(op *Operation) {
				op.Spec.Inputs[0].Format = "tesla"
			},
		},
		{
			name: "scan input with non-numeric format",
			mutate: func(op *Operation) {
				op.Spec.Inputs[0].Format = "%s"
				op.Spec.Inputs[0].Default = nil
				op.Spec.Inputs[0].Ranges = []Range{{Start: 0, Stop: 1, Step: 0.5}}
			},
		},
		{
			name:   "nil implementation",
			mutate: func(op *Operation) { op.Run = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := validOperation()
			tt.mutate(&op)
			if err := ValidateOperation(op); !errors.Is(err, ErrInvalidSpec) {
				t.Fatalf("ValidateOperation() error = %v, want ErrInvalidSpec", err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"source", "set voltage", "lock-in 2", "T_sample"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) error = %v", name, err)
		}
	}
	for _, name := range []string{"", "9volts", "a/b", "x(y)", "a$b"} {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) expected error", name)
		}
	}
}
