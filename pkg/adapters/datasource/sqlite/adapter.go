// Package sqlite implements the datasource adapter for SQLite files using
// the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// SchemaName is the synthetic schema every SQLite table is reported under.
const SchemaName = "main"

const memoryPath = ":memory:"

// Adapter provides SQLite connectivity.
type Adapter struct {
	databaseID string
	path       string
	maxRows    int
	db         *sql.DB
	logger     *zap.Logger
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        models.EngineTypeSQLite,
			DisplayName: "SQLite",
			Description: "Open a local SQLite database file",
		},
		Factory: func(ctx context.Context, c datasource.ConnectionConfig, logger *zap.Logger) (datasource.Adapter, error) {
			path := c.Path
			if path == "" {
				path = c.Database
			}
			if path == "" {
				return nil, fmt.Errorf("path is required")
			}
			return Open(ctx, c.ID, path, c.RowLimit(), logger)
		},
	})
}

// normalizePath strips common SQLite URI prefixes.
func normalizePath(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	return strings.TrimPrefix(path, "file:")
}

// Open opens the database at path with foreign key enforcement enabled.
// An in-memory database is pinned to a single connection so every query
// sees the same data.
func Open(ctx context.Context, databaseID, path string, maxRows int, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path = normalizePath(path)

	dsn := path
	if path != memoryPath {
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite enable foreign keys: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	if maxRows <= 0 {
		maxRows = datasource.DefaultMaxRows
	}
	return &Adapter{
		databaseID: databaseID,
		path:       path,
		maxRows:    maxRows,
		db:         db,
		logger:     logger.Named("sqlite").With(zap.String("database_id", databaseID)),
	}, nil
}

func (a *Adapter) Type() string {
	return models.EngineTypeSQLite
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var one int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

func (a *Adapter) Version(ctx context.Context) (string, error) {
	var version string
	if err := a.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	return "SQLite " + version, nil
}

// Query runs sql with ? placeholders.
func (a *Adapter) Query(ctx context.Context, query string, params []any, timeout time.Duration) (*datasource.QueryResult, error) {
	ctx, cancel := datasource.WithTimeout(ctx, timeout)
	defer cancel()
	return datasource.RunSQL(ctx, a.db, query, params, a.maxRows)
}

// Explain returns EXPLAIN QUERY PLAN rows. Plan is a list of
// {id, parent, detail} maps; FormattedPlan indents each step under its parent.
func (a *Adapter) Explain(ctx context.Context, query string, params []any) (*datasource.ExplainResult, error) {
	type step struct {
		id, parent int64
		detail     string
	}
	var steps []step

	err := a.each(ctx, "EXPLAIN QUERY PLAN "+query, params, func(rows *sql.Rows) error {
		var s step
		var notUsed int64
		if err := rows.Scan(&s.id, &s.parent, &notUsed, &s.detail); err != nil {
			return err
		}
		steps = append(steps, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("EXPLAIN failed: %w", err)
	}

	depth := make(map[int64]int)
	plan := make([]map[string]any, 0, len(steps))
	lines := make([]string, 0, len(steps))
	for _, s := range steps {
		d := 0
		if s.parent != 0 {
			d = depth[s.parent] + 1
		}
		depth[s.id] = d
		plan = append(plan, map[string]any{"id": s.id, "parent": s.parent, "detail": s.detail})
		lines = append(lines, strings.Repeat("  ", d)+s.detail)
	}

	return &datasource.ExplainResult{Plan: plan, FormattedPlan: strings.Join(lines, "\n")}, nil
}

// each runs query and hands every row to scan, closing the rows before it
// returns. Catalog reads must not overlap on a single-connection pool.
func (a *Adapter) each(ctx context.Context, query string, params []any, scan func(*sql.Rows) error) error {
	rows, err := a.db.QueryContext(ctx, query, params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

var _ datasource.Adapter = (*Adapter)(nil)
