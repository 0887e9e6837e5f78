package instrument

import (
	"errors"
	"testing"
)

// ─── Coercion Type Derivation ────────────────────────────────────────────────

func TestCoercionType(t *testing.T) {
	tests := []struct {
		format string
		want   CoercionType
	}{
		{"%.6e", CoerceFloat},
		{"%.3f", CoerceFloat},
		{"%g", CoerceFloat},
		{"%d", CoerceInt},
		{"%4d", CoerceInt},
		{"%s", CoerceString},
		{"", CoerceString},
		{"no verb here", CoerceString},
	}

	for _, tt := range tests {
		p := ParameterSpec{Name: "x", Format: tt.format}
		if got := p.CoercionType(); got != tt.want {
			t.Errorf("CoercionType(%q) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

// ─── Value Coercion ──────────────────────────────────────────────────────────

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		spec  ParameterSpec
		value any
		want  any
	}{
		{
			name:  "float from string",
			spec:  ParameterSpec{Name: "v", Format: "%.3e"},
			value: "1.5",
			want:  1.5,
		},
		{
			name:  "float from exponent string",
			spec:  ParameterSpec{Name: "v", Format: "%.3e"},
			value: "1e3",
			want:  1000.0,
		},
		{
			name:  "float from int",
			spec:  ParameterSpec{Name: "v", Format: "%f"},
			value: 2,
			want:  2.0,
		},
		{
			name:  "int from exponent string",
			spec:  ParameterSpec{Name: "n", Format: "%d"},
			value: "1e3",
			want:  1000,
		},
		{
			name:  "string passthrough",
			spec:  ParameterSpec{Name: "mode", Format: "%s"},
			value: "AC",
			want:  "AC",
		},
		{
			name:  "string from number",
			spec:  ParameterSpec{Name: "mode"},
			value: 7,
			want:  "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Coerce(tt.value)
			if err != nil {
				t.Fatalf("Coerce(%v) error = %v", tt.value, err)
			}
			if got != tt.want {
				t.Errorf("Coerce(%v) = %v (%T), want %v (%T)", tt.value, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestCoerceInvalid(t *testing.T) {
	p := ParameterSpec{Name: "voltage", Format: "%.3f"}
	_, err := p.Coerce("not a number")
	if err == nil {
		t.Fatal("expected error for unparseable float")
	}

	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidInputError, got %T", err)
	}
	if invalid.Field != "voltage" {
		t.Errorf("Field = %q, want %q", invalid.Field, "voltage")
	}
}

func TestCoerceAllowedSet(t *testing.T) {
	p := ParameterSpec{
		Name:    "coupling",
		Format:  "%s",
		Allowed: []string{"AC", "DC"},
	}

	if _, err := p.Coerce("AC"); err != nil {
		t.Fatalf("Coerce(AC) error = %v", err)
	}
	if _, err := p.Coerce("GND"); err == nil {
		t.Fatal("expected error for value outside allowed set")
	}
}

func TestFormatValue(t *testing.T) {
	p := ParameterSpec{Name: "v", Format: "%.3e"}
	if got := p.FormatValue(1500.0); got != "1.500e+03" {
		t.Errorf("FormatValue(1500.0) = %q, want %q", got, "1.500e+03")
	}

	bare := ParameterSpec{Name: "v"}
	if got := bare.FormatValue(1.5); got != "1.5" {
		t.Errorf("FormatValue without format = %q, want %q", got, "1.5")
	}
}
