package instrument

import (
	"fmt"
	"regexp"

	"github.com/nerrad567/labflow-core/internal/expr"
)

// namePattern constrains instrument, operation and parameter names.
// Names appear inside marker expressions and MQTT topics, so the
// delimiter and wildcard characters are excluded.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 _.-]*$`)

// ValidateName checks that a name is usable as an instrument,
// operation or parameter identifier.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidSpec)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name %q contains invalid characters", ErrInvalidSpec, name)
	}
	return nil
}

// ValidateOperation checks an operation's spec for internal
// consistency. It is called at registration time so that malformed
// specs surface at startup, never mid-run.
//
// The checks are:
//   - operation and parameter names are well-formed and unique
//   - every input's default, if set, passes its own coercion
//   - every template placeholder names a declared input
//   - ArgNames covers exactly the declared input names
func ValidateOperation(op Operation) error {
	if err := ValidateName(op.Spec.Name); err != nil {
		return fmt.Errorf("operation: %w", err)
	}

	inputs := make(map[string]bool, len(op.Spec.Inputs))
	for _, in := range op.Spec.Inputs {
		if err := validateParameter(in); err != nil {
			return fmt.Errorf("operation %q: %w", op.Spec.Name, err)
		}
		if inputs[in.Name] {
			return fmt.Errorf("%w: operation %q: duplicate input %q",
				ErrInvalidSpec, op.Spec.Name, in.Name)
		}
		inputs[in.Name] = true
	}

	outputs := make(map[string]bool, len(op.Spec.Outputs))
	for _, out := range op.Spec.Outputs {
		if err := ValidateName(out.Name); err != nil {
			return fmt.Errorf("operation %q: output: %w", op.Spec.Name, err)
		}
		if outputs[out.Name] {
			return fmt.Errorf("%w: operation %q: duplicate output %q",
				ErrInvalidSpec, op.Spec.Name, out.Name)
		}
		outputs[out.Name] = true
	}

	for _, ref := range expr.NamesOfKind(op.Spec.Template, expr.MarkParameter) {
		if !inputs[ref] {
			return fmt.Errorf("%w: operation %q: template references unknown input %q",
				ErrInvalidSpec, op.Spec.Name, ref)
		}
	}

	if len(op.ArgNames) != len(op.Spec.Inputs) {
		return fmt.Errorf("%w: operation %q: %d argument names for %d inputs",
			ErrInvalidSpec, op.Spec.Name, len(op.ArgNames), len(op.Spec.Inputs))
	}
	for _, arg := range op.ArgNames {
		if !inputs[arg] {
			return fmt.Errorf("%w: operation %q: argument %q is not a declared input",
				ErrInvalidSpec, op.Spec.Name, arg)
		}
	}

	if op.Run == nil {
		return fmt.Errorf("%w: operation %q: no implementation", ErrInvalidSpec, op.Spec.Name)
	}
	return nil
}

// validateParameter checks a single parameter spec: name, format
// string, default value and range triples.
func validateParameter(spec ParameterSpec) error {
	if err := ValidateName(spec.Name); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if spec.Format != "" && !formatVerb.MatchString(spec.Format) {
		return fmt.Errorf("%w: input %q: format %q has no conversion verb",
			ErrInvalidSpec, spec.Name, spec.Format)
	}
	if spec.Default != nil {
		if _, err := spec.Coerce(spec.Default); err != nil {
			return fmt.Errorf("%w: input %q: default: %v", ErrInvalidSpec, spec.Name, err)
		}
	}
	if spec.IsScan() {
		// Range inputs must carry a numeric verb so expanded setpoints
		// have a formatting rule.
		if t := spec.CoercionType(); t != CoerceFloat && t != CoerceInt {
			return fmt.Errorf("%w: input %q: scan input has non-numeric format %q",
				ErrInvalidSpec, spec.Name, spec.Format)
		}
	}
	return nil
}
