// Package expr provides template substitution and expression evaluation
// for sequence parameters and loop conditions.
//
// Templates carry three independent marker namespaces:
//
//	@(name)  constant   — fixed values supplied at run construction
//	#(name)  column     — most recent value written to a data column
//	$(name)  parameter  — most recent value written to a parameter slot
//
// The same name may exist in more than one namespace without collision.
// Marker names may contain balanced parentheses; the closing delimiter
// is located by depth-counted scanning, not first-match. An unmatched
// opening delimiter or an unknown name resolves to the NotFound
// sentinel rather than an error — callers must check for it.
//
// # Condition evaluation
//
// EvaluateBool and EvaluateNumber first resolve all markers, then parse
// the remaining literal expression with HCL syntax and convert the
// result via go-cty. This gives loop conditions full arithmetic and
// comparison support ("$(temp) < 4.2 && #(field) >= 0.5") without a
// bespoke parser.
//
// # Thread Safety
//
// All functions are pure; safety is determined by the supplied Context
// implementation.
package expr
