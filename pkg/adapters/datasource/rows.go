package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlutil "github.com/ekaya-inc/ekaya-dbintel/pkg/sql"
)

// rowReturning lists statement kinds that produce a result set.
var rowReturning = map[string]bool{
	"select":   true,
	"with":     true,
	"show":     true,
	"pragma":   true,
	"explain":  true,
	"values":   true,
	"describe": true,
	"desc":     true,
	"table":    true,
}

// ReturnsRows reports whether query is expected to produce a result set
// rather than an affected-row count.
func ReturnsRows(query string) bool {
	return rowReturning[sqlutil.StatementKind(query)]
}

// WithTimeout derives a context bounded by timeout. A non-positive timeout
// returns ctx unchanged with a no-op cancel.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// ElapsedMs returns the milliseconds since start as a float.
func ElapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// ScanRows drains rows into column-keyed maps, keeping at most limit rows.
// Byte slices are returned as strings so results serialize as text.
func ScanRows(rows *sql.Rows, limit int) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	for rows.Next() {
		if limit > 0 && len(result.Rows) >= limit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// RunSQL executes query on db, scanning results for row-returning
// statements and reporting affected rows otherwise.
func RunSQL(ctx context.Context, db *sql.DB, query string, params []any, limit int) (*QueryResult, error) {
	start := time.Now()

	if !ReturnsRows(query) {
		res, err := db.ExecContext(ctx, query, params...)
		if err != nil {
			return nil, fmt.Errorf("failed to execute statement: %w", err)
		}
		affected, _ := res.RowsAffected()
		return &QueryResult{
			Columns:         []string{},
			Rows:            []map[string]any{},
			AffectedRows:    affected,
			ExecutionTimeMs: ElapsedMs(start),
		}, nil
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result, err := ScanRows(rows, limit)
	if err != nil {
		return nil, err
	}
	result.ExecutionTimeMs = ElapsedMs(start)
	return result, nil
}
