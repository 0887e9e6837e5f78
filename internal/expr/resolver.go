package expr

import "strings"

// Marker prefixes for the three bin namespaces.
const (
	MarkConstant  = "@"
	MarkColumn    = "#"
	MarkParameter = "$"
)

// NotFound is the sentinel returned when a template cannot be resolved,
// either because an opening delimiter is never closed or because a
// referenced name does not exist in its namespace. It is deliberately
// not valid in any downstream expression so that unchecked uses fail
// loudly at evaluation time.
const NotFound = "<NOT FOUND>"

// Context supplies current values for the three marker namespaces.
// Each lookup returns the formatted value and whether the name exists.
type Context interface {
	Constant(name string) (string, bool)
	Column(name string) (string, bool)
	Parameter(name string) (string, bool)
}

// FindClosing locates the parenthesis closing the group that starts
// immediately before position start. Nested parentheses are tracked by
// depth so marker names may contain balanced inner groups.
//
// Parameters:
//   - expression: The string to scan.
//   - start: Index of the first character after the opening parenthesis.
//
// Returns:
//   - int: Index of the matching ')' or -1 if the group never closes.
func FindClosing(expression string, start int) int {
	depth := 1
	for i := start; i < len(expression); i++ {
		switch expression[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// NamesOfKind extracts every marker name of one namespace from an
// expression, in order of appearance.
//
// Parameters:
//   - expression: The template to scan.
//   - marker: One of MarkConstant, MarkColumn, MarkParameter.
//
// Returns:
//   - []string: Names found; nil when the expression has none.
func NamesOfKind(expression, marker string) []string {
	var names []string
	match := marker + "("
	index := 0
	for index < len(expression) {
		pos := strings.Index(expression[index:], match)
		if pos < 0 {
			return names
		}
		open := index + pos + len(match)
		end := FindClosing(expression, open)
		if end < 0 {
			return names
		}
		names = append(names, expression[open:end])
		index = end
	}
	return names
}

// Names extracts all marker names from an expression, grouped by
// namespace.
//
// Returns:
//   - constants, columns, parameters: Names per namespace, in order of
//     appearance.
func Names(expression string) (constants, columns, parameters []string) {
	constants = NamesOfKind(expression, MarkConstant)
	columns = NamesOfKind(expression, MarkColumn)
	parameters = NamesOfKind(expression, MarkParameter)
	return constants, columns, parameters
}

// Resolve substitutes the current value of every marker in template.
// A template containing no markers is returned unchanged. If any marker
// is unterminated, or any referenced name is missing from its
// namespace, Resolve returns NotFound.
func Resolve(template string, ctx Context) string {
	resolved, ok := resolveKind(template, MarkConstant, ctx.Constant)
	if !ok {
		return NotFound
	}
	resolved, ok = resolveKind(resolved, MarkColumn, ctx.Column)
	if !ok {
		return NotFound
	}
	resolved, ok = resolveKind(resolved, MarkParameter, ctx.Parameter)
	if !ok {
		return NotFound
	}
	return resolved
}

// resolveKind substitutes every marker of a single namespace. The
// second return is false when a marker is unterminated or a name is
// unknown.
func resolveKind(template, marker string, lookup func(string) (string, bool)) (string, bool) {
	match := marker + "("
	if !strings.Contains(template, match) {
		return template, true
	}

	var out strings.Builder
	index := 0
	for index < len(template) {
		pos := strings.Index(template[index:], match)
		if pos < 0 {
			out.WriteString(template[index:])
			break
		}
		out.WriteString(template[index : index+pos])
		open := index + pos + len(match)
		end := FindClosing(template, open)
		if end < 0 {
			return "", false
		}
		value, ok := lookup(template[open:end])
		if !ok {
			return "", false
		}
		out.WriteString(value)
		index = end + 1
	}
	return out.String(), true
}
