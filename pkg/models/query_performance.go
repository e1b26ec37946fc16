package models

import "time"

// Impact and severity levels
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"

	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Bottleneck types reported by profile analysis.
const (
	BottleneckFullTableScan = "full_table_scan"
	BottleneckSort          = "sort_operation"
	BottleneckNestedLoop    = "nested_loop"
	BottleneckTemporary     = "temporary_storage"
	BottleneckSlowExecution = "slow_execution"
)

// IndexRecommendation suggests a single-column index backed by query history usage.
type IndexRecommendation struct {
	Schema     string   `json:"schema"`
	Table      string   `json:"table"`
	Columns    []string `json:"columns"`
	UsageCount int      `json:"usage_count"`
	Impact     string   `json:"impact"`
	Reason     string   `json:"reason"`
	SQL        string   `json:"sql"`
}

// Bottleneck is one problem detected in an execution plan or timing.
type Bottleneck struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// PerformanceProfile is the result of analyzing one query's plan and timing.
type PerformanceProfile struct {
	SQL             string          `json:"sql"`
	ExecutionTimeMs float64         `json:"execution_time_ms"`
	IsSlow          bool            `json:"is_slow"`
	Bottlenecks     []Bottleneck    `json:"bottlenecks"`
	Recommendations []string        `json:"recommendations"`
	Score           int             `json:"score"`
	Complexity      QueryComplexity `json:"complexity"`
}

// SlowQueryAlert aggregates repeated slow executions of the same query text.
type SlowQueryAlert struct {
	QueryHash       string    `json:"query_hash"`
	DatabaseID      string    `json:"database_id"`
	SQL             string    `json:"sql"`
	Frequency       int       `json:"frequency"`
	MaxExecutionMs  float64   `json:"max_execution_ms"`
	LastExecutionMs float64   `json:"last_execution_ms"`
	ThresholdMs     float64   `json:"threshold_ms"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
}

// RewriteSuggestion holds heuristic rewrite hints for a query.
type RewriteSuggestion struct {
	OriginalSQL     string   `json:"original_sql"`
	SuggestedSQL    string   `json:"suggested_sql"`
	Improvements    []string `json:"improvements"`
	PerformanceGain int      `json:"performance_gain"`
	Confidence      string   `json:"confidence"`
}

// QuerySummary is a compact view of a history entry used in analytics.
type QuerySummary struct {
	SQL             string    `json:"sql"`
	ExecutionTimeMs float64   `json:"execution_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// PerformanceAnalytics aggregates query history for one database.
type PerformanceAnalytics struct {
	DatabaseID             string         `json:"database_id"`
	TotalQueries           int            `json:"total_queries"`
	AvgExecutionTimeMs     float64        `json:"avg_execution_time_ms"`
	P95ExecutionTimeMs     float64        `json:"p95_execution_time_ms"`
	SlowQueryCount         int            `json:"slow_query_count"`
	ErrorRate              float64        `json:"error_rate"`
	AvgPerformanceScore    float64        `json:"avg_performance_score"`
	ComplexityDistribution map[string]int `json:"complexity_distribution"`
	TopTables              []TableUsage   `json:"top_tables"`
	SlowestQueries         []QuerySummary `json:"slowest_queries"`
}

// TableUsage counts how often a table appears in tracked queries.
type TableUsage struct {
	Table string `json:"table"`
	Count int    `json:"count"`
}
