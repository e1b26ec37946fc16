package sql

import (
	"regexp"
	"strings"
)

// ColumnRef is a column mentioned in a predicate, with the table name or
// alias that qualified it ("" when unqualified).
type ColumnRef struct {
	Qualifier string
	Column    string
	Clause    string // "where" or "join"
}

var (
	whereClause = regexp.MustCompile(`(?is)\bwhere\b(.*?)(?:\bgroup\s+by\b|\border\s+by\b|\bhaving\b|\blimit\b|\boffset\b|\bunion\b|\breturning\b|\bfor\s+update\b|$)`)
	onClause    = regexp.MustCompile(`(?is)\bon\b(.*?)(?:\b(?:inner|left|right|full|cross|natural)\b|\bjoin\b|\bwhere\b|\bgroup\s+by\b|\border\s+by\b|\blimit\b|$)`)
	columnToken = regexp.MustCompile(`(?:([A-Za-z_]\w*)\.)?([A-Za-z_]\w*)(\s*\()?`)
)

// PredicateColumns returns the columns referenced in WHERE and JOIN ... ON
// clauses. Function names, keywords and literals are skipped. A column is
// reported once per clause kind even if mentioned several times.
func PredicateColumns(query string) []ColumnRef {
	stripped := StripLiterals(query)

	var refs []ColumnRef
	seen := make(map[ColumnRef]bool)
	collect := func(segment, clause string) {
		for _, m := range columnToken.FindAllStringSubmatchIndex(segment, -1) {
			// Skip tokens glued to a preceding identifier character or digit.
			if m[0] > 0 && (isWordByte(segment[m[0]-1]) || segment[m[0]-1] == '.') {
				continue
			}
			if m[6] != -1 {
				continue // function call
			}
			column := strings.ToLower(segment[m[4]:m[5]])
			if isReserved(column) {
				continue
			}
			ref := ColumnRef{Column: column, Clause: clause}
			if m[2] != -1 {
				ref.Qualifier = strings.ToLower(segment[m[2]:m[3]])
			}
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}

	for _, m := range onClause.FindAllStringSubmatch(stripped, -1) {
		collect(m[1], "join")
	}
	for _, m := range whereClause.FindAllStringSubmatch(stripped, -1) {
		collect(withoutSubqueries(m[1]), "where")
	}
	return refs
}

// withoutSubqueries blanks out parenthesized groups that start with SELECT.
func withoutSubqueries(segment string) string {
	var b strings.Builder
	depth := 0
	skipDepth := -1
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if c == '(' {
			depth++
			if skipDepth == -1 && strings.HasPrefix(strings.ToLower(strings.TrimSpace(segment[i+1:])), "select") {
				skipDepth = depth
			}
		}
		if skipDepth == -1 {
			b.WriteByte(c)
		}
		if c == ')' {
			if depth == skipDepth {
				skipDepth = -1
				b.WriteByte(' ')
			}
			depth--
		}
	}
	return b.String()
}

var (
	andKeyword      = regexp.MustCompile(`(?i)\band\b`)
	betweenAnd      = regexp.MustCompile(`(?is)\bbetween\b.*?\band\b`)
	joinKeyword     = regexp.MustCompile(`(?i)\bjoin\b`)
	subquery        = regexp.MustCompile(`(?i)\(\s*select\b`)
	aggregateCall   = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max|array_agg|string_agg|group_concat|bool_and|bool_or|stddev|variance)\s*\(`)
	distinctKeyword = regexp.MustCompile(`(?i)\bselect\s+distinct\b`)
	orderBy         = regexp.MustCompile(`(?i)\border\s+by\b`)
	groupBy         = regexp.MustCompile(`(?i)\bgroup\s+by\b`)
	whereKeyword    = regexp.MustCompile(`(?i)\bwhere\b`)
	limitClause     = regexp.MustCompile(`(?i)\b(limit\s+\d+|top\s*\(?\s*\d+|fetch\s+(first|next))\b`)
	countSelect     = regexp.MustCompile(`(?i)^\s*select\s+count\s*\(`)
)

// Features is the set of textual features used to score a query.
type Features struct {
	WhereConditions int
	JoinCount       int
	SubqueryCount   int
	HasAggregation  bool
	HasDistinct     bool
	HasOrderBy      bool
	HasGroupBy      bool
	HasWhere        bool
	HasLimit        bool
	IsCount         bool
}

// ExtractFeatures scans query text, ignoring literals and comments.
// WhereConditions counts predicates in the outer WHERE clause as AND-count + 1,
// not counting the AND of a BETWEEN.
func ExtractFeatures(query string) Features {
	stripped := StripLiterals(query)

	f := Features{
		JoinCount:      len(joinKeyword.FindAllStringIndex(stripped, -1)),
		SubqueryCount:  len(subquery.FindAllStringIndex(stripped, -1)),
		HasAggregation: aggregateCall.MatchString(stripped),
		HasDistinct:    distinctKeyword.MatchString(stripped),
		HasOrderBy:     orderBy.MatchString(stripped),
		HasGroupBy:     groupBy.MatchString(stripped),
		HasWhere:       whereKeyword.MatchString(stripped),
		HasLimit:       limitClause.MatchString(stripped),
		IsCount:        countSelect.MatchString(stripped),
	}

	if m := whereClause.FindStringSubmatch(stripped); m != nil {
		clause := betweenAnd.ReplaceAllString(withoutSubqueries(m[1]), "between")
		if strings.TrimSpace(clause) != "" {
			f.WhereConditions = len(andKeyword.FindAllStringIndex(clause, -1)) + 1
		}
	}
	return f
}
