package optimizer

import (
	"math"
	"sort"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

const (
	topTablesLimit      = 10
	slowestQueriesLimit = 5
)

// Analyze aggregates a database's history. Entries without a complexity
// annotation are classified on the fly; entries without a score are scored.
func Analyze(databaseID string, history []models.QueryHistoryEntry, slowThresholdMs float64) models.PerformanceAnalytics {
	a := models.PerformanceAnalytics{
		DatabaseID: databaseID,
		ComplexityDistribution: map[string]int{
			models.ComplexitySimple:      0,
			models.ComplexityMedium:      0,
			models.ComplexityComplex:     0,
			models.ComplexityVeryComplex: 0,
		},
		TopTables:      []models.TableUsage{},
		SlowestQueries: []models.QuerySummary{},
	}
	if len(history) == 0 {
		return a
	}

	var totalMs, totalScore float64
	var failed int
	durations := make([]float64, 0, len(history))
	tableCounts := make(map[string]int)

	for _, e := range history {
		totalMs += e.ExecutionTimeMs
		durations = append(durations, e.ExecutionTimeMs)
		if e.Failed() {
			failed++
		}
		if slowThresholdMs > 0 && e.ExecutionTimeMs > slowThresholdMs {
			a.SlowQueryCount++
		}

		var class string
		if e.Complexity != nil {
			class = e.Complexity.Class
		} else {
			class = AnalyzeComplexity(e.SQL).Class
		}
		a.ComplexityDistribution[class]++

		if e.PerformanceScore != nil {
			totalScore += float64(*e.PerformanceScore)
		} else {
			totalScore += float64(PerformanceScore(e.ExecutionTimeMs, class))
		}

		for _, t := range e.Tables {
			tableCounts[t]++
		}
	}

	n := float64(len(history))
	a.TotalQueries = len(history)
	a.AvgExecutionTimeMs = totalMs / n
	a.AvgPerformanceScore = totalScore / n
	a.ErrorRate = float64(failed) / n
	a.P95ExecutionTimeMs = percentile(durations, 0.95)

	for t, c := range tableCounts {
		a.TopTables = append(a.TopTables, models.TableUsage{Table: t, Count: c})
	}
	sort.Slice(a.TopTables, func(i, j int) bool {
		if a.TopTables[i].Count != a.TopTables[j].Count {
			return a.TopTables[i].Count > a.TopTables[j].Count
		}
		return a.TopTables[i].Table < a.TopTables[j].Table
	})
	if len(a.TopTables) > topTablesLimit {
		a.TopTables = a.TopTables[:topTablesLimit]
	}

	slowest := make([]models.QueryHistoryEntry, len(history))
	copy(slowest, history)
	sort.SliceStable(slowest, func(i, j int) bool {
		return slowest[i].ExecutionTimeMs > slowest[j].ExecutionTimeMs
	})
	for i := 0; i < len(slowest) && i < slowestQueriesLimit; i++ {
		a.SlowestQueries = append(a.SlowestQueries, models.QuerySummary{
			SQL:             slowest[i].SQL,
			ExecutionTimeMs: slowest[i].ExecutionTimeMs,
			Timestamp:       slowest[i].Timestamp,
		})
	}

	return a
}

// percentile uses the nearest-rank method. values is sorted in place.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	rank := int(math.Ceil(p * float64(len(values))))
	if rank < 1 {
		rank = 1
	}
	return values[rank-1]
}
