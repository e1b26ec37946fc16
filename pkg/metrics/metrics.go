// Package metrics exposes Prometheus instruments for cache and query activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheLookups    *prometheus.CounterVec
	Introspections  *prometheus.CounterVec
	PersistFailures prometheus.Counter
	QueriesExecuted *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	SlowQueries     *prometheus.CounterVec
	ToolCalls       *prometheus.CounterVec
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbintel_schema_cache_lookups_total", Help: "Schema cache lookups by result (memory_hit, disk_hit, expired, miss).",
		}, []string{"database_id", "result"}),
		Introspections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbintel_introspections_total", Help: "Schema introspections by outcome.",
		}, []string{"database_id", "result"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dbintel_schema_cache_persist_failures_total", Help: "Failed background writes of cache entries to disk.",
		}),
		QueriesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbintel_queries_total", Help: "Queries executed by outcome.",
		}, []string{"database_id", "result"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbintel_query_duration_seconds",
			Help:    "Query execution time.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
		}, []string{"database_id"}),
		SlowQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbintel_slow_queries_total", Help: "Queries exceeding the slow-query threshold.",
		}, []string{"database_id"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dbintel_mcp_tool_calls_total", Help: "MCP tool calls by tool and outcome (success, tool_error, error).",
		}, []string{"tool", "result"}),
	}
}

// CacheLookup records a cache lookup result.
func (m *Metrics) CacheLookup(databaseID, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(databaseID, result).Inc()
}

// Introspection records an introspection outcome.
func (m *Metrics) Introspection(databaseID string, err error) {
	if m == nil {
		return
	}
	m.Introspections.WithLabelValues(databaseID, outcome(err)).Inc()
}

// PersistFailure records a failed background persist.
func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// Query records one query execution.
func (m *Metrics) Query(databaseID string, executionMs float64, err error) {
	if m == nil {
		return
	}
	m.QueriesExecuted.WithLabelValues(databaseID, outcome(err)).Inc()
	m.QueryDuration.WithLabelValues(databaseID).Observe(executionMs / 1000)
}

// SlowQuery records a query that exceeded the slow-query threshold.
func (m *Metrics) SlowQuery(databaseID string) {
	if m == nil {
		return
	}
	m.SlowQueries.WithLabelValues(databaseID).Inc()
}

// ToolCall records one MCP tool invocation.
func (m *Metrics) ToolCall(tool, result string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
