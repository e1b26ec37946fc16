package sql

import (
	"regexp"
	"strings"
)

// ParsedColumn is one item of a SELECT list.
type ParsedColumn struct {
	Name string // column name or alias, lower-cased
	Expr string // expression as written
}

var (
	selectKeyword    = regexp.MustCompile(`(?i)\bselect\b`)
	selectListEnd    = regexp.MustCompile(`(?i)\b(from|where|group\s+by|order\s+by|limit|union|intersect|except)\b`)
	distinctModifier = regexp.MustCompile(`(?i)^(distinct|all)\b\s*`)
	explicitAlias    = regexp.MustCompile(`(?i)\s+as\s+([A-Za-z_][\w$]*|"[^"]+"|` + "`[^`]+`" + `)\s*$`)
	functionCall     = regexp.MustCompile(`^([A-Za-z_]\w*)\s*\(`)
	nonWord          = regexp.MustCompile(`[^\w]`)
)

// selectList returns the text between the first top-level SELECT and the
// clause that ends its column list.
func selectList(query string) (string, bool) {
	query = StripLiterals(query)
	loc := selectKeyword.FindStringIndex(query)
	if loc == nil {
		return "", false
	}
	rest := query[loc[1]:]

	// Only a keyword at parenthesis depth 0 ends the list.
	depth := 0
	end := len(rest)
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth != 0 {
				continue
			}
			if m := selectListEnd.FindStringIndex(rest[i:]); m != nil && m[0] == 0 && (i == 0 || !isWordByte(rest[i-1])) {
				end = i
			}
		}
		if end != len(rest) {
			break
		}
	}

	list := strings.TrimSpace(rest[:end])
	return distinctModifier.ReplaceAllString(list, ""), true
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// ParseSelectColumns extracts the items of the first SELECT list. It handles
// plain, qualified, aliased and function columns. A bare * or t.* item is
// returned with Name "*". Non-SELECT statements return nil.
func ParseSelectColumns(query string) []ParsedColumn {
	list, ok := selectList(query)
	if !ok || list == "" {
		return nil
	}

	var result []ParsedColumn
	for _, item := range splitTopLevel(list) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		result = append(result, parseColumnExpression(item))
	}
	return result
}

// SelectsStar reports whether the first SELECT list contains * or t.*.
func SelectsStar(query string) bool {
	for _, col := range ParseSelectColumns(query) {
		if col.Name == "*" {
			return true
		}
	}
	return false
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(list string) []string {
	var parts []string
	var current strings.Builder
	depth := 0

	for _, ch := range list {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, current.String())
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// parseColumnExpression names a single SELECT item:
//   - "name" and "u.name" become name
//   - "name AS customer_name" and "COUNT(*) total" use the alias
//   - "COUNT(*)" becomes count
func parseColumnExpression(expr string) ParsedColumn {
	if expr == "*" || strings.HasSuffix(expr, ".*") {
		return ParsedColumn{Name: "*", Expr: expr}
	}

	if m := explicitAlias.FindStringSubmatch(expr); m != nil {
		return ParsedColumn{Name: strings.ToLower(strings.Trim(m[1], "\"`")), Expr: expr}
	}

	// Implicit alias: a trailing bare word after a balanced expression.
	if strings.Count(expr, "(") == strings.Count(expr, ")") {
		parts := strings.Fields(expr)
		if len(parts) > 1 {
			last := parts[len(parts)-1]
			if !strings.ContainsAny(last, "()") && !isReserved(strings.ToLower(last)) {
				return ParsedColumn{Name: strings.ToLower(last), Expr: expr}
			}
		}
	}

	return ParsedColumn{Name: extractColumnName(expr), Expr: expr}
}

func extractColumnName(expr string) string {
	if m := functionCall.FindStringSubmatch(expr); m != nil {
		return strings.ToLower(m[1])
	}
	if strings.HasPrefix(strings.ToLower(expr), "case") {
		return "case_result"
	}
	if i := strings.LastIndex(expr, "."); i != -1 {
		expr = expr[i+1:]
	}
	name := strings.Trim(strings.TrimSpace(expr), "`\"[]")
	return strings.ToLower(nonWord.ReplaceAllString(name, ""))
}
