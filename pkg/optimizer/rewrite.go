package optimizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/sql"
)

// DefaultRowLimit is appended to unbounded SELECTs by SuggestRewrite.
const DefaultRowLimit = 1000

// Estimated gain per heuristic, summed and capped at 100.
const (
	gainDistinct = 15
	gainStar     = 10
	gainWhere    = 20
	gainLimit    = 20
)

var (
	leadingDistinct = regexp.MustCompile(`(?i)^(\s*select\s+)distinct\s+`)
	leadingStar     = regexp.MustCompile(`(?i)^(\s*select\s+(?:distinct\s+)?)\*`)
	leadingSelect   = regexp.MustCompile(`(?i)^(\s*select\s+(?:distinct\s+)?)`)
)

// SuggestRewrite applies textual heuristics to a query: redundant DISTINCT,
// SELECT *, a missing WHERE clause on a known table and a missing row limit
// on non-COUNT queries. schema may be nil; then only the schema-free hints
// fire. The row limit uses TOP for sqlserver and LIMIT otherwise.
func SuggestRewrite(query string, schema *models.DatabaseSchema) models.RewriteSuggestion {
	original := strings.TrimSpace(query)
	suggested := strings.TrimRight(strings.TrimSuffix(original, ";"), " \t\r\n")

	result := models.RewriteSuggestion{
		OriginalSQL:  original,
		SuggestedSQL: suggested,
		Improvements: []string{},
		Confidence:   confidenceFor(0),
	}

	kind := sql.StatementKind(query)
	if kind != "select" {
		return result
	}

	// Comments are dropped so an appended LIMIT cannot land inside a trailing one.
	suggested = strings.TrimRight(strings.TrimSuffix(strings.TrimSpace(sql.StripComments(original)), ";"), " \t\r\n")

	f := sql.ExtractFeatures(query)
	tables := knownTables(query, schema)
	gain := 0

	if f.HasDistinct {
		switch {
		case f.HasGroupBy:
			suggested = leadingDistinct.ReplaceAllString(suggested, "${1}")
			result.Improvements = append(result.Improvements, "Remove DISTINCT: GROUP BY already returns one row per group")
			gain += gainDistinct
		case len(tables) == 1 && selectsPrimaryKey(query, tables[0]):
			suggested = leadingDistinct.ReplaceAllString(suggested, "${1}")
			result.Improvements = append(result.Improvements, fmt.Sprintf("Remove DISTINCT: the primary key of %s is selected, so rows are already unique", tables[0].QualifiedName()))
			gain += gainDistinct
		}
	}

	if sql.SelectsStar(query) {
		if cols := sql.ParseSelectColumns(query); len(cols) == 1 && cols[0].Expr == "*" && len(tables) == 1 && len(tables[0].Columns) > 0 {
			names := make([]string, len(tables[0].Columns))
			for i, c := range tables[0].Columns {
				names[i] = c.Name
			}
			suggested = leadingStar.ReplaceAllString(suggested, "${1}"+strings.Join(names, ", "))
			result.Improvements = append(result.Improvements, fmt.Sprintf("Replace SELECT * with the explicit columns of %s", tables[0].QualifiedName()))
		} else {
			result.Improvements = append(result.Improvements, "Select only the columns you need instead of SELECT *")
		}
		gain += gainStar
	}

	if !f.HasWhere && len(tables) > 0 {
		result.Improvements = append(result.Improvements, fmt.Sprintf("Add a WHERE clause to avoid reading every row of %s", tables[0].QualifiedName()))
		gain += gainWhere
	}

	if !f.HasLimit && !f.IsCount {
		if schema != nil && schema.Engine == models.EngineTypeMSSQL {
			suggested = leadingSelect.ReplaceAllString(suggested, fmt.Sprintf("${1}TOP %d ", DefaultRowLimit))
			result.Improvements = append(result.Improvements, fmt.Sprintf("Add TOP %d to bound the result set", DefaultRowLimit))
		} else {
			suggested = fmt.Sprintf("%s LIMIT %d", suggested, DefaultRowLimit)
			result.Improvements = append(result.Improvements, fmt.Sprintf("Add LIMIT %d to bound the result set", DefaultRowLimit))
		}
		gain += gainLimit
	}

	if gain > 100 {
		gain = 100
	}
	result.SuggestedSQL = suggested
	result.PerformanceGain = gain
	result.Confidence = confidenceFor(len(result.Improvements))
	return result
}

func confidenceFor(fired int) string {
	switch {
	case fired >= 3:
		return "high"
	case fired == 2:
		return "medium"
	default:
		return "low"
	}
}

// knownTables resolves the tables a query references against schema.
func knownTables(query string, schema *models.DatabaseSchema) []*models.Table {
	if schema == nil {
		return nil
	}
	var tables []*models.Table
	for _, name := range sql.ExtractTables(query) {
		if t := schema.FindTable(name); t != nil {
			tables = append(tables, t)
		}
	}
	return tables
}

// selectsPrimaryKey reports whether every primary key column of t appears in
// the SELECT list.
func selectsPrimaryKey(query string, t *models.Table) bool {
	if !t.HasPrimaryKey() {
		return false
	}
	selected := make(map[string]bool)
	for _, c := range sql.ParseSelectColumns(query) {
		selected[c.Name] = true
	}
	for _, pk := range t.PrimaryKey.Columns {
		if !selected[strings.ToLower(pk)] {
			return false
		}
	}
	return true
}
