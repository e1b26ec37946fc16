package optimizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// Severity penalties subtracted from a profile score.
var severityPenalty = map[string]int{
	models.SeverityCritical: 30,
	models.SeverityHigh:     20,
	models.SeverityMedium:   10,
	models.SeverityLow:      5,
}

var recommendations = map[string]string{
	models.BottleneckFullTableScan: "Add an index on the columns used in WHERE and JOIN conditions so the planner can avoid scanning the whole table",
	models.BottleneckSort:          "Add an index matching the ORDER BY columns or reduce the rows being sorted",
	models.BottleneckNestedLoop:    "Make sure join columns are indexed on the inner side of the nested loop",
	models.BottleneckTemporary:     "Reduce intermediate result size, or index GROUP BY / DISTINCT columns to avoid temporary storage",
	models.BottleneckSlowExecution: "Review the plan for scans and sorts, add a LIMIT, or narrow the WHERE clause",
}

// planMarker is a textual signal in a rendered plan.
type planMarker struct {
	bottleneck  string
	severity    string
	description string
	pattern     *regexp.Regexp
}

// Patterns cover postgres (EXPLAIN JSON), mysql (EXPLAIN FORMAT=JSON),
// sqlite (EXPLAIN QUERY PLAN details) and sqlserver (showplan text).
var planMarkers = []planMarker{
	{
		bottleneck:  models.BottleneckFullTableScan,
		severity:    models.SeverityHigh,
		description: "Plan scans an entire table",
		pattern:     regexp.MustCompile(`(?im)seq scan|full table scan|"access_type":\s*"all"|\btable scan\b|clustered index scan|^\W*scan\s`),
	},
	{
		bottleneck:  models.BottleneckSort,
		severity:    models.SeverityMedium,
		description: "Plan sorts rows explicitly",
		pattern:     regexp.MustCompile(`(?im)"node type":\s*"(?:incremental )?sort"|using_filesort"?:\s*true|using filesort|temp b-tree for order by|\bsort\(|^[\s>-]*sort\b`),
	},
	{
		bottleneck:  models.BottleneckNestedLoop,
		severity:    models.SeverityLow,
		description: "Plan joins with a nested loop",
		pattern:     regexp.MustCompile(`(?i)nested loop|"nested_loop"`),
	},
	{
		bottleneck:  models.BottleneckTemporary,
		severity:    models.SeverityMedium,
		description: "Plan materializes intermediate results in temporary storage",
		pattern:     regexp.MustCompile(`(?i)using_temporary_table"?:\s*true|using temporary|temp b-tree for (?:group by|distinct)|"node type":\s*"materialize"|table spool|"temp written blocks":\s*[1-9]`),
	},
}

// PlanText renders an engine plan for textual scanning. Strings pass through,
// byte slices are converted, and anything else is marshaled to JSON.
func PlanText(plan any) string {
	switch p := plan.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	case fmt.Stringer:
		return p.String()
	}
	b, err := json.Marshal(plan)
	if err != nil {
		return fmt.Sprintf("%v", plan)
	}
	return string(b)
}

// DetectBottlenecks scans plan text for scan, sort, join and temporary
// storage markers. Each bottleneck type is reported at most once.
func DetectBottlenecks(plan any) []models.Bottleneck {
	text := PlanText(plan)
	var found []models.Bottleneck
	if strings.TrimSpace(text) == "" {
		return found
	}
	for _, m := range planMarkers {
		if m.pattern.MatchString(text) {
			found = append(found, newBottleneck(m.bottleneck, m.severity, m.description))
		}
	}
	return found
}

func newBottleneck(kind, severity, description string) models.Bottleneck {
	return models.Bottleneck{
		Type:           kind,
		Severity:       severity,
		Description:    description,
		Recommendation: recommendations[kind],
	}
}

// AnalyzeProfile combines plan bottlenecks with timing against thresholdMs.
// Exceeding the threshold is a high severity bottleneck; exceeding five
// times the threshold is critical.
func AnalyzeProfile(query string, plan any, executionMs, thresholdMs float64) models.PerformanceProfile {
	bottlenecks := DetectBottlenecks(plan)

	isSlow := thresholdMs > 0 && executionMs > thresholdMs
	if isSlow {
		severity := models.SeverityHigh
		if executionMs > thresholdMs*5 {
			severity = models.SeverityCritical
		}
		bottlenecks = append(bottlenecks, newBottleneck(
			models.BottleneckSlowExecution,
			severity,
			fmt.Sprintf("Execution took %.0fms, above the %.0fms slow-query threshold", executionMs, thresholdMs),
		))
	}

	score := 100
	recs := []string{}
	for _, b := range bottlenecks {
		score -= severityPenalty[b.Severity]
		recs = append(recs, b.Recommendation)
	}
	if bottlenecks == nil {
		bottlenecks = []models.Bottleneck{}
	}

	return models.PerformanceProfile{
		SQL:             query,
		ExecutionTimeMs: executionMs,
		IsSlow:          isSlow,
		Bottlenecks:     bottlenecks,
		Recommendations: recs,
		Score:           clampScore(score),
		Complexity:      AnalyzeComplexity(query),
	}
}
