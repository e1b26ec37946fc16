package sql

import (
	"regexp"
	"strings"
)

// identifier matches a plain or quoted name, optionally schema-qualified.
const identifier = `(?:"[^"]+"|` + "`[^`]+`" + `|\[[^\]]+\]|[A-Za-z_][\w$]*)`

var (
	tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE)\s+(` + identifier + `(?:\.` + identifier + `)?)`)
	sourceRef       = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|UPDATE)\s+(` + identifier + `(?:\.` + identifier + `)?)`)
	aliasAfter      = regexp.MustCompile(`(?i)^\s+(?:AS\s+)?([A-Za-z_]\w*)`)
)

var reserved = map[string]bool{
	"select": true, "from": true, "where": true, "join": true, "inner": true, "left": true,
	"right": true, "full": true, "outer": true, "cross": true, "natural": true, "on": true,
	"using": true, "group": true, "order": true, "by": true, "having": true, "limit": true,
	"offset": true, "fetch": true, "union": true, "intersect": true, "except": true,
	"and": true, "or": true, "not": true, "null": true, "is": true, "in": true, "like": true,
	"ilike": true, "between": true, "exists": true, "true": true, "false": true, "as": true,
	"case": true, "when": true, "then": true, "else": true, "end": true, "set": true,
	"values": true, "lateral": true, "window": true, "returning": true, "distinct": true,
	"all": true, "any": true, "some": true, "asc": true, "desc": true, "with": true,
	"interval": true, "escape": true, "similar": true, "for": true, "into": true, "update": true,
	"delete": true, "insert": true, "current_date": true, "current_timestamp": true,
}

func isReserved(word string) bool {
	return reserved[word]
}

// unquote strips identifier quoting from each part of a dotted name.
func unquote(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = strings.Trim(p, "\"`[]")
	}
	return strings.Join(parts, ".")
}

// ExtractTables returns the lower-cased table names referenced by FROM,
// JOIN, INTO, UPDATE and DELETE FROM clauses, in first-seen order.
// Schema qualifiers are preserved.
func ExtractTables(query string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(StripLiterals(query), -1)
	seen := make(map[string]bool)
	tables := []string{}

	for _, m := range matches {
		name := strings.ToLower(unquote(m[1]))
		if isReserved(name) {
			continue
		}
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	return tables
}

// TableRef is a table reference with its optional alias.
type TableRef struct {
	Name  string
	Alias string
}

// TableRefs returns every FROM/JOIN/UPDATE table reference with its alias,
// both lower-cased.
func TableRefs(query string) []TableRef {
	stripped := StripLiterals(query)

	var refs []TableRef
	for _, loc := range sourceRef.FindAllStringSubmatchIndex(stripped, -1) {
		name := strings.ToLower(unquote(stripped[loc[2]:loc[3]]))
		if isReserved(name) {
			continue
		}
		ref := TableRef{Name: name}
		if m := aliasAfter.FindStringSubmatch(stripped[loc[1]:]); m != nil && !isReserved(strings.ToLower(m[1])) {
			ref.Alias = strings.ToLower(m[1])
		}
		refs = append(refs, ref)
	}
	return refs
}
