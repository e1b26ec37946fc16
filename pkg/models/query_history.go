package models

import (
	"time"

	"github.com/google/uuid"
)

// Complexity classes
const (
	ComplexitySimple      = "simple"
	ComplexityMedium      = "medium"
	ComplexityComplex     = "complex"
	ComplexityVeryComplex = "very_complex"
)

// QueryHistoryEntry records one tracked query execution.
type QueryHistoryEntry struct {
	ID               uuid.UUID        `json:"id"`
	DatabaseID       string           `json:"database_id"`
	Timestamp        time.Time        `json:"timestamp"`
	SQL              string           `json:"sql"`
	Tables           []string         `json:"tables"`
	ExecutionTimeMs  float64          `json:"execution_time_ms"`
	RowCount         int64            `json:"row_count"`
	Error            *string          `json:"error,omitempty"`
	Complexity       *QueryComplexity `json:"complexity,omitempty"`
	PerformanceScore *int             `json:"performance_score,omitempty"`
}

// Failed reports whether the execution ended in an error.
func (e *QueryHistoryEntry) Failed() bool {
	return e.Error != nil
}

// QueryStats aggregates the current history of one database.
type QueryStats struct {
	TotalQueries       int            `json:"total_queries"`
	AvgExecutionTimeMs float64        `json:"avg_execution_time_ms"`
	ErrorCount         int            `json:"error_count"`
	TableUsage         map[string]int `json:"table_usage"`
}

// QueryComplexity is the textual complexity profile of a query.
type QueryComplexity struct {
	ColumnCount     int     `json:"column_count"`
	WhereConditions int     `json:"where_conditions"`
	JoinCount       int     `json:"join_count"`
	SubqueryCount   int     `json:"subquery_count"`
	HasAggregation  bool    `json:"has_aggregation"`
	HasDistinct     bool    `json:"has_distinct"`
	HasOrderBy      bool    `json:"has_order_by"`
	HasGroupBy      bool    `json:"has_group_by"`
	Score           float64 `json:"score"`
	Class           string  `json:"class"`
}
