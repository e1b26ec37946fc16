// Package mysql implements the datasource adapter for MySQL and MariaDB
// using go-sql-driver.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// Adapter provides MySQL connectivity over a database/sql pool.
type Adapter struct {
	databaseID string
	config     *Config
	db         *sql.DB
	logger     *zap.Logger
}

// NewAdapter opens a pool for cfg and verifies it with a ping.
func NewAdapter(ctx context.Context, databaseID string, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	connector, err := mysql.NewConnector(driverConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("configure mysql: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}

	return &Adapter{
		databaseID: databaseID,
		config:     cfg,
		db:         db,
		logger:     logger.Named("mysql").With(zap.String("database_id", databaseID)),
	}, nil
}

func (a *Adapter) Type() string {
	return models.EngineTypeMySQL
}

// TestConnection pings the server and checks the session database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB sql.NullString
	if err := a.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if !strings.EqualFold(currentDB.String, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB.String)
	}
	return nil
}

func (a *Adapter) Version(ctx context.Context) (string, error) {
	var version string
	if err := a.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	return "MySQL " + version, nil
}

// Query runs sql with ? placeholders.
func (a *Adapter) Query(ctx context.Context, query string, params []any, timeout time.Duration) (*datasource.QueryResult, error) {
	ctx, cancel := datasource.WithTimeout(ctx, timeout)
	defer cancel()
	return datasource.RunSQL(ctx, a.db, query, params, a.config.MaxRows)
}

// Explain runs EXPLAIN FORMAT=JSON. Plan is the decoded document and
// FormattedPlan lists one line per table access.
func (a *Adapter) Explain(ctx context.Context, query string, params []any) (*datasource.ExplainResult, error) {
	var raw string
	if err := a.db.QueryRowContext(ctx, "EXPLAIN FORMAT=JSON "+query, params...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("EXPLAIN failed: %w", err)
	}

	var plan any
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse EXPLAIN output: %w", err)
	}
	return &datasource.ExplainResult{Plan: plan, FormattedPlan: formatPlan(plan)}, nil
}

// formatPlan walks the JSON plan and renders every "table" node, noting
// filesort and temporary table flags on the enclosing operation.
func formatPlan(plan any) string {
	var lines []string
	var walk func(node any, depth int)
	walk = func(node any, depth int) {
		switch n := node.(type) {
		case map[string]any:
			indent := strings.Repeat("  ", depth)
			if n["using_filesort"] == true {
				lines = append(lines, indent+"Using filesort")
			}
			if n["using_temporary_table"] == true {
				lines = append(lines, indent+"Using temporary")
			}
			if t, ok := n["table"].(map[string]any); ok {
				lines = append(lines, indent+describeTable(t))
			}
			keys := make([]string, 0, len(n))
			for k := range n {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if k == "table" {
					walk(n[k], depth+1)
					continue
				}
				walk(n[k], depth)
			}
		case []any:
			for _, child := range n {
				walk(child, depth)
			}
		}
	}
	walk(plan, 0)
	return strings.Join(lines, "\n")
}

func describeTable(t map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "table %v", t["table_name"])
	if access, ok := t["access_type"]; ok {
		fmt.Fprintf(&b, " access=%v", access)
	}
	if key, ok := t["key"]; ok {
		fmt.Fprintf(&b, " key=%v", key)
	}
	if rows, ok := t["rows_examined_per_scan"]; ok {
		fmt.Fprintf(&b, " rows=%v", rows)
	}
	return b.String()
}

// each runs query and hands every row to scan.
func (a *Adapter) each(ctx context.Context, what, query string, scan func(*sql.Rows) error) error {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan %s: %w", what, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", what, err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

var _ datasource.Adapter = (*Adapter)(nil)
