package expr

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

var (
	// ErrUnresolved is returned when an expression references a name
	// that does not exist in any bin namespace.
	ErrUnresolved = errors.New("expr: unresolved reference")

	// ErrInvalidExpression is returned when a resolved expression cannot
	// be parsed or evaluated.
	ErrInvalidExpression = errors.New("expr: invalid expression")
)

// EvaluateBool resolves all markers in expression and evaluates the
// result as a boolean. Used by conditional loops, whose predicates are
// expressions over current bin values, e.g. "$(temp) < 4.2".
func EvaluateBool(expression string, ctx Context) (bool, error) {
	value, err := evaluate(expression, ctx)
	if err != nil {
		return false, err
	}
	value, err = convert.Convert(value, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean: %w", ErrInvalidExpression, expression, err)
	}
	return value.True(), nil
}

// EvaluateNumber resolves all markers in expression and evaluates the
// result as a float64.
func EvaluateNumber(expression string, ctx Context) (float64, error) {
	value, err := evaluate(expression, ctx)
	if err != nil {
		return 0, err
	}
	value, err = convert.Convert(value, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric: %w", ErrInvalidExpression, expression, err)
	}
	result, _ := value.AsBigFloat().Float64()
	return result, nil
}

// evaluate substitutes markers, then parses and evaluates the remaining
// literal expression with HCL syntax.
func evaluate(expression string, ctx Context) (cty.Value, error) {
	resolved := Resolve(expression, ctx)
	if resolved == NotFound {
		return cty.NilVal, fmt.Errorf("%w in %q", ErrUnresolved, expression)
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(resolved), "expr", hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%w: %q: %s", ErrInvalidExpression, expression, diags.Error())
	}
	value, diags := parsed.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%w: %q: %s", ErrInvalidExpression, expression, diags.Error())
	}
	return value, nil
}
