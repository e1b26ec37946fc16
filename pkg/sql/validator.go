// Package sql holds lightweight textual SQL helpers: statement validation,
// table and column reference extraction, and parameter screening. Nothing in
// here builds a parse tree.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyQuery indicates the query has no statement text.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// ValidateAndNormalize trims the query, strips one trailing semicolon, and
// rejects empty input or input with more than one statement. Semicolons
// inside string literals, quoted identifiers and comments are ignored.
func ValidateAndNormalize(query string) (string, error) {
	normalized := stripTrailingSemicolon(strings.TrimSpace(query))
	if strings.TrimSpace(StripComments(normalized)) == "" {
		return "", ErrEmptyQuery
	}
	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// lexState tracks whether a scanner is inside a literal or comment.
type lexState int

const (
	stateNormal lexState = iota
	stateSingleQuote
	stateDoubleQuote
	stateBacktick
	stateLineComment
	stateBlockComment
)

// scan walks query and calls visit for every byte that sits outside string
// literals, quoted identifiers and comments. visit returns false to stop.
func scan(query string, visit func(i int) bool) {
	state := stateNormal
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch state {
		case stateNormal:
			switch {
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '`':
				state = stateBacktick
			case c == '-' && i+1 < len(query) && query[i+1] == '-':
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(query) && query[i+1] == '*':
				state = stateBlockComment
				i++
			default:
				if !visit(i) {
					return
				}
			}
		case stateSingleQuote:
			if c == '\\' {
				i++
			} else if c == '\'' {
				// '' re-enters on the next byte, which keeps us inside the literal.
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if c == '`' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(query) && query[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}
}

func hasSemicolonOutsideStrings(query string) bool {
	found := false
	scan(query, func(i int) bool {
		if query[i] == ';' {
			found = true
			return false
		}
		return true
	})
	return found
}

// stripTrailingSemicolon removes one trailing semicolon and surrounding whitespace.
func stripTrailingSemicolon(query string) string {
	query = strings.TrimRight(query, " \t\n\r")
	if strings.HasSuffix(query, ";") {
		query = strings.TrimRight(strings.TrimSuffix(query, ";"), " \t\n\r")
	}
	return query
}

// StripComments removes -- and /* */ comments, keeping literals intact.
func StripComments(query string) string {
	var b strings.Builder
	b.Grow(len(query))

	state := stateNormal
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch state {
		case stateNormal:
			switch {
			case c == '-' && i+1 < len(query) && query[i+1] == '-':
				state = stateLineComment
				i++
				continue
			case c == '/' && i+1 < len(query) && query[i+1] == '*':
				state = stateBlockComment
				b.WriteByte(' ')
				i++
				continue
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '`':
				state = stateBacktick
			}
			b.WriteByte(c)
		case stateSingleQuote:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(query) {
				i++
				b.WriteByte(query[i])
			} else if c == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote, stateBacktick:
			b.WriteByte(c)
			if (state == stateDoubleQuote && c == '"') || (state == stateBacktick && c == '`') {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				b.WriteByte('\n')
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(query) && query[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return b.String()
}

// StripLiterals removes comments and replaces every single-quoted string
// literal with ?, so keyword and identifier heuristics never match inside data.
func StripLiterals(query string) string {
	query = StripComments(query)

	var b strings.Builder
	b.Grow(len(query))
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if inString {
			if c == '\\' {
				i++
				continue
			}
			if c == '\'' {
				if i+1 < len(query) && query[i+1] == '\'' {
					i++
					continue
				}
				inString = false
				b.WriteByte('?')
			}
			continue
		}
		if c == '\'' {
			inString = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Normalize collapses whitespace and lower-cases the query so textually
// equivalent statements compare equal.
func Normalize(query string) string {
	query = stripTrailingSemicolon(strings.TrimSpace(StripComments(query)))
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// StatementKind returns the lower-cased leading keyword ("select", "insert",
// "with", ...) or "" for empty input.
func StatementKind(query string) string {
	fields := strings.Fields(StripComments(query))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimLeft(fields[0], "("))
}
