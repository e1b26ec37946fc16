package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// Adapter provides PostgreSQL connectivity over a pgx pool.
type Adapter struct {
	databaseID string
	config     *Config
	pool       *pgxpool.Pool
	logger     *zap.Logger
}

// NewAdapter opens a pool for cfg. The pool connects lazily; use
// TestConnection to verify credentials.
func NewAdapter(ctx context.Context, databaseID string, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &Adapter{
		databaseID: databaseID,
		config:     cfg,
		pool:       pool,
		logger:     logger.Named("postgres").With(zap.String("database_id", databaseID)),
	}, nil
}

func (a *Adapter) Type() string {
	return models.EngineTypePostgres
}

// TestConnection checks server connectivity, database access, and that the
// session landed on the configured database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if a.pool == nil {
		return apperrors.ErrNotConnected
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}
	return nil
}

func (a *Adapter) Version(ctx context.Context) (string, error) {
	if a.pool == nil {
		return "", apperrors.ErrNotConnected
	}
	var version string
	if err := a.pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	return version, nil
}

// Query runs sql with $1, $2... placeholders. Row-returning statements are
// capped at the configured row limit.
func (a *Adapter) Query(ctx context.Context, sql string, params []any, timeout time.Duration) (*datasource.QueryResult, error) {
	if a.pool == nil {
		return nil, apperrors.ErrNotConnected
	}
	ctx, cancel := datasource.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, err := a.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	result := &datasource.QueryResult{
		Columns: make([]string, len(fieldDescs)),
		Rows:    make([]map[string]any, 0),
	}
	for i, fd := range fieldDescs {
		result.Columns[i] = fd.Name
	}

	for rows.Next() {
		if len(result.Rows) >= a.config.MaxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(map[string]any, len(values))
		for i, col := range result.Columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	result.ExecutionTimeMs = datasource.ElapsedMs(start)
	if len(fieldDescs) == 0 {
		result.AffectedRows = rows.CommandTag().RowsAffected()
	}
	return result, nil
}

// normalizeValue converts pgx values that do not serialize cleanly.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return v
}

// Explain returns the JSON plan from EXPLAIN (FORMAT JSON). The statement
// is planned, not executed.
func (a *Adapter) Explain(ctx context.Context, sql string, params []any) (*datasource.ExplainResult, error) {
	if a.pool == nil {
		return nil, apperrors.ErrNotConnected
	}

	var raw string
	if err := a.pool.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql, params...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("EXPLAIN failed: %w", err)
	}

	var plan any
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("decode EXPLAIN output: %w", err)
	}

	return &datasource.ExplainResult{
		Plan:          plan,
		FormattedPlan: formatPlan(plan),
	}, nil
}

// formatPlan renders a JSON plan as an indented node tree, similar to
// EXPLAIN's text format.
func formatPlan(plan any) string {
	var b strings.Builder
	var walk func(node map[string]any, depth int)
	walk = func(node map[string]any, depth int) {
		indent := strings.Repeat("  ", depth)
		if depth > 0 {
			indent += "->  "
		}
		line := fmt.Sprint(node["Node Type"])
		if rel, ok := node["Relation Name"].(string); ok {
			line += " on " + rel
		}
		if idx, ok := node["Index Name"].(string); ok {
			line += " using " + idx
		}
		if cost, ok := node["Total Cost"].(float64); ok {
			line += fmt.Sprintf("  (cost=%.2f rows=%v)", cost, node["Plan Rows"])
		}
		b.WriteString(indent + line + "\n")

		children, _ := node["Plans"].([]any)
		for _, child := range children {
			if m, ok := child.(map[string]any); ok {
				walk(m, depth+1)
			}
		}
	}

	entries, _ := plan.([]any)
	for _, entry := range entries {
		if m, ok := entry.(map[string]any); ok {
			if root, ok := m["Plan"].(map[string]any); ok {
				walk(root, 0)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Close releases the pool.
func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

var _ datasource.Adapter = (*Adapter)(nil)
