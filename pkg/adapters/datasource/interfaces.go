package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// DefaultMaxRows caps rows returned by Query when the connection config
// does not set its own limit.
const DefaultMaxRows = 1000

// Adapter is an engine-specific connection to one configured database.
// Implementations own their connection pool and must be closed when done.
type Adapter interface {
	// Introspect reads the structure of the database, applying opts.
	Introspect(ctx context.Context, opts models.IntrospectionOptions) (*models.DatabaseSchema, error)

	// Query runs sql with positional params. A zero timeout means no
	// deadline beyond ctx.
	Query(ctx context.Context, sql string, params []any, timeout time.Duration) (*QueryResult, error)

	// Explain returns the engine's execution plan for sql without running it.
	Explain(ctx context.Context, sql string, params []any) (*ExplainResult, error)

	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Version returns the server version string.
	Version(ctx context.Context) (string, error)

	// Type returns the engine type (models.EngineType*).
	Type() string

	// Close releases the connection pool.
	Close() error
}

// QueryResult contains the results of a SQL statement.
type QueryResult struct {
	Columns         []string         `json:"columns"`
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"row_count"`
	ExecutionTimeMs float64          `json:"execution_time_ms"`
	AffectedRows    int64            `json:"affected_rows"`
	Truncated       bool             `json:"truncated,omitempty"`
}

// ExplainResult holds an engine-shaped plan and a human readable rendering.
// Plan is decoded JSON for postgres and mysql, a row list for sqlite and
// showplan text for sqlserver.
type ExplainResult struct {
	Plan          any    `json:"plan"`
	FormattedPlan string `json:"formatted_plan"`
}

// ConnectionConfig describes how to reach one configured database.
type ConnectionConfig struct {
	ID       string
	Type     string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Path is the database file for sqlite (":memory:" allowed).
	Path    string
	Options map[string]string
	MaxRows int
}

// RowLimit returns MaxRows, or DefaultMaxRows when unset.
func (c ConnectionConfig) RowLimit() int {
	if c.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return c.MaxRows
}
