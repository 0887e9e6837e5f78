package instrument

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CoercionType is the Go type a parameter's values are coerced to,
// derived from the parameter's format specifier.
type CoercionType int

const (
	CoerceString CoercionType = iota
	CoerceFloat
	CoerceInt
)

// formatVerb extracts the trailing verb letter from a printf-style
// format specifier, e.g. "%.3e" → 'e'.
var formatVerb = regexp.MustCompile(`%[-+0 #]{0,3}\d*\.?\d*([a-zA-Z])`)

// ParameterSpec describes one named, typed input or output of an
// operation: the unit of data flow between an action and its caller.
//
// A spec with a non-nil Ranges slice is scan-capable: its value is an
// ordered list of (start, stop, step) triples rather than a scalar.
type ParameterSpec struct {
	// Name is a short identifier-safe token used for template
	// substitution and argument binding.
	Name string `json:"name"`

	// Description is a short phrase shown to operators.
	Description string `json:"description"`

	// Format is a printf-style specifier controlling both display
	// formatting and coercion, e.g. "%.6e" or "%d".
	Format string `json:"format"`

	// Default is the value used when the caller binds none.
	Default any `json:"default,omitempty"`

	// Allowed restricts values to this set when non-nil.
	Allowed []string `json:"allowed,omitempty"`

	// Ranges marks a scan-capable parameter and supplies its default
	// scan profile.
	Ranges []Range `json:"ranges,omitempty"`
}

// CoercionType derives the parameter's value type from its format verb:
// e/E/f/g/G → float, d/i/u → int, anything else → string.
func (p ParameterSpec) CoercionType() CoercionType {
	m := formatVerb.FindStringSubmatch(p.Format)
	if m == nil {
		return CoerceString
	}
	switch m[1] {
	case "e", "E", "f", "g", "G":
		return CoerceFloat
	case "d", "i", "u":
		return CoerceInt
	default:
		return CoerceString
	}
}

// Coerce converts a raw value to the parameter's declared type.
//
// Returns:
//   - any: float64, int, or string according to CoercionType.
//   - error: An *InvalidInputError when the value cannot be converted
//     or is outside the allowed set.
func (p ParameterSpec) Coerce(value any) (any, error) {
	coerced, err := p.coerce(value)
	if err != nil {
		return nil, &InvalidInputError{Field: p.Name, Value: value, Err: err}
	}
	if p.Allowed != nil {
		formatted := p.FormatValue(coerced)
		allowed := false
		for _, a := range p.Allowed {
			if a == formatted {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, &InvalidInputError{
				Field: p.Name,
				Value: value,
				Err:   fmt.Errorf("not in allowed set %v", p.Allowed),
			}
		}
	}
	return coerced, nil
}

func (p ParameterSpec) coerce(value any) (any, error) {
	switch p.CoercionType() {
	case CoerceFloat:
		return toFloat(value)
	case CoerceInt:
		return toInt(value)
	default:
		return fmt.Sprintf("%v", value), nil
	}
}

// FormatValue renders a coerced value per the parameter's format
// specifier, falling back to a plain rendering when no specifier is
// set.
func (p ParameterSpec) FormatValue(value any) string {
	if p.Format == "" {
		return fmt.Sprintf("%v", value)
	}
	return fmt.Sprintf(p.Format, value)
}

// IsScan reports whether the parameter carries a scan profile.
func (p ParameterSpec) IsScan() bool {
	return p.Ranges != nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", value)
	}
}

// toInt converts through float so exponent-form strings like "1e3"
// still coerce, matching the way operators type numbers.
func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as int", v)
		}
		return int(f), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

// OperationFunc performs one instrument operation. Arguments arrive
// keyed by input parameter name, already coerced; the return slice
// must match the operation's declared outputs in order.
type OperationFunc func(ctx context.Context, args map[string]any) ([]any, error)

// OperationSpec is the immutable template describing one invocable
// instrument operation.
type OperationSpec struct {
	// Name is a unique identifier-safe token within the instrument.
	Name string `json:"name"`

	// Description is a short phrase indicating what the operation does.
	Description string `json:"description"`

	// Inputs are the parameters passed to the operation.
	Inputs []ParameterSpec `json:"inputs,omitempty"`

	// Outputs are the parameters the operation fills in.
	Outputs []ParameterSpec `json:"outputs,omitempty"`

	// Template is a human-readable string with $(name) placeholders for
	// input values, e.g. "Set output voltage to $(voltage) V.".
	Template string `json:"template,omitempty"`
}

// Input returns the input spec with the given name.
func (s OperationSpec) Input(name string) (ParameterSpec, bool) {
	for _, in := range s.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return ParameterSpec{}, false
}

// Operation couples an OperationSpec with the function that performs
// it. ArgNames declares the function's expected argument names; they
// are cross-checked against the spec's inputs at registration.
type Operation struct {
	Spec     OperationSpec
	ArgNames []string
	Run      OperationFunc
}

// Instrument exposes a set of named, typed operations.
type Instrument interface {
	// Name returns the instrument's unique name.
	Name() string

	// Operations returns the declared operations in registration order.
	Operations() []Operation

	// Operation looks up one operation by name.
	Operation(name string) (Operation, bool)
}
