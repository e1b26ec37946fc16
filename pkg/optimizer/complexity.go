// Package optimizer analyzes query text, execution plans and query history:
// complexity classification, performance scoring, index recommendations,
// plan bottlenecks, slow-query alerts and rewrite hints. Apart from
// SlowQueryMonitor every function here is pure.
package optimizer

import (
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/sql"
)

// Complexity weights
const (
	weightColumn      = 0.5
	weightWhere       = 1.0
	weightJoin        = 2.0
	weightSubquery    = 3.0
	weightAggregation = 2.0
	weightDistinct    = 1.0
	weightOrderBy     = 1.0
	weightGroupBy     = 2.0
)

// Complexity class upper bounds (inclusive)
const (
	simpleMax  = 3.0
	mediumMax  = 7.0
	complexMax = 12.0
)

// AnalyzeComplexity scores a query from its text. The SELECT list item count,
// outer WHERE predicates, joins and subqueries are weighted and aggregation,
// DISTINCT, ORDER BY and GROUP BY add fixed amounts.
func AnalyzeComplexity(query string) models.QueryComplexity {
	f := sql.ExtractFeatures(query)

	c := models.QueryComplexity{
		ColumnCount:     len(sql.ParseSelectColumns(query)),
		WhereConditions: f.WhereConditions,
		JoinCount:       f.JoinCount,
		SubqueryCount:   f.SubqueryCount,
		HasAggregation:  f.HasAggregation,
		HasDistinct:     f.HasDistinct,
		HasOrderBy:      f.HasOrderBy,
		HasGroupBy:      f.HasGroupBy,
	}

	score := float64(c.ColumnCount)*weightColumn +
		float64(c.WhereConditions)*weightWhere +
		float64(c.JoinCount)*weightJoin +
		float64(c.SubqueryCount)*weightSubquery
	if c.HasAggregation {
		score += weightAggregation
	}
	if c.HasDistinct {
		score += weightDistinct
	}
	if c.HasOrderBy {
		score += weightOrderBy
	}
	if c.HasGroupBy {
		score += weightGroupBy
	}

	c.Score = score
	c.Class = ClassifyScore(score)
	return c
}

// ClassifyScore maps a complexity score to its class.
func ClassifyScore(score float64) string {
	switch {
	case score <= simpleMax:
		return models.ComplexitySimple
	case score <= mediumMax:
		return models.ComplexityMedium
	case score <= complexMax:
		return models.ComplexityComplex
	default:
		return models.ComplexityVeryComplex
	}
}

// PerformanceScore rates an execution from 0 to 100: 100 minus a time
// penalty and a complexity penalty.
func PerformanceScore(executionMs float64, complexityClass string) int {
	score := 100

	switch {
	case executionMs > 5000:
		score -= 40
	case executionMs > 1000:
		score -= 20
	case executionMs > 100:
		score -= 10
	}

	switch complexityClass {
	case models.ComplexityMedium:
		score -= 5
	case models.ComplexityComplex:
		score -= 15
	case models.ComplexityVeryComplex:
		score -= 25
	}

	return clampScore(score)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Annotate sets the complexity and performance score of a history entry.
func Annotate(entry *models.QueryHistoryEntry) {
	c := AnalyzeComplexity(entry.SQL)
	score := PerformanceScore(entry.ExecutionTimeMs, c.Class)
	entry.Complexity = &c
	entry.PerformanceScore = &score
}
