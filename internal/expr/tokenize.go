package expr

import "strings"

// Tokenize splits a string at a delimiter while respecting grouping
// constructions: a delimiter inside quotes or inside (), [], {} depth
// does not split the token.
//
// If the string begins with an opening group character, the matching
// closing character terminates the token list and everything after it
// is returned as the remainder. Otherwise the whole string is consumed.
//
// Parameters:
//   - s: The string to split.
//   - delimiter: The byte at which to split (typically ',').
//
// Returns:
//   - []string: Tokens, each trimmed of surrounding whitespace.
//   - string: The unconsumed remainder after the group closes.
func Tokenize(s string, delimiter byte) ([]string, string) {
	var (
		tokens []string
		token  strings.Builder

		doubleQuote bool
		singleQuote bool
		paren       int
		brace       int
		bracket     int
	)

	// A string that does not itself open a group is treated as if it
	// were wrapped in one, so the scan consumes it entirely.
	switch {
	case len(s) == 0:
		return []string{""}, ""
	case s[0] == '(' || s[0] == '[' || s[0] == '{' || s[0] == '"' || s[0] == '\'':
	default:
		paren++
	}

	level := func() int {
		n := paren + brace + bracket
		if doubleQuote {
			n++
		}
		if singleQuote {
			n++
		}
		return n
	}

	index := 0
	for index < len(s) {
		ch := s[index]
		if ch == delimiter && level() == 1 {
			tokens = append(tokens, strings.TrimSpace(token.String()))
			token.Reset()
			index++
			continue
		}

		switch ch {
		case ')':
			paren--
		case ']':
			bracket--
		case '}':
			brace--
		}

		if level() > 1 || (level() > 0 && ch != delimiter) {
			token.WriteByte(ch)
		}

		switch ch {
		case '(':
			paren++
		case '[':
			bracket++
		case '{':
			brace++
		case '"':
			doubleQuote = !doubleQuote
		case '\'':
			singleQuote = !singleQuote
		}

		index++
		if level() == 0 {
			break
		}
	}

	tokens = append(tokens, strings.TrimSpace(token.String()))
	return tokens, s[index:]
}
