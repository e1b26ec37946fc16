// Package mssql implements the datasource adapter for Microsoft SQL Server
// and Azure SQL Database.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// Adapter provides SQL Server connectivity with SQL or Azure AD service
// principal authentication.
type Adapter struct {
	databaseID string
	config     *Config
	db         *sql.DB
	logger     *zap.Logger
}

// NewAdapter opens a pool for cfg and tests it immediately.
func NewAdapter(ctx context.Context, databaseID string, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	driver, dsn := connectionString(cfg)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Adapter{
		databaseID: databaseID,
		config:     cfg,
		db:         db,
		logger:     logger.Named("mssql").With(zap.String("database_id", databaseID)),
	}, nil
}

func (a *Adapter) Type() string {
	return models.EngineTypeMSSQL
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}
	return nil
}

// Version returns the first line of @@VERSION.
func (a *Adapter) Version(ctx context.Context) (string, error) {
	var version string
	if err := a.db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&version); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	first, _, _ := strings.Cut(version, "\n")
	return strings.TrimSpace(first), nil
}

// Query runs sql with @p1, @p2 placeholders.
func (a *Adapter) Query(ctx context.Context, query string, params []any, timeout time.Duration) (*datasource.QueryResult, error) {
	ctx, cancel := datasource.WithTimeout(ctx, timeout)
	defer cancel()
	return datasource.RunSQL(ctx, a.db, query, params, a.config.MaxRows)
}

// Explain collects the SHOWPLAN_TEXT operator tree. SHOWPLAN is a session
// setting, so the statement runs on a dedicated connection that is switched
// back before it returns to the pool.
func (a *Adapter) Explain(ctx context.Context, query string, params []any) (*datasource.ExplainResult, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_TEXT ON"); err != nil {
		return nil, fmt.Errorf("enable showplan: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SET SHOWPLAN_TEXT OFF"); err != nil {
			a.logger.Warn("failed to disable showplan", zap.Error(err))
		}
	}()

	lines, err := showplanLines(ctx, conn, query, params)
	if err != nil {
		return nil, fmt.Errorf("EXPLAIN failed: %w", err)
	}
	return &datasource.ExplainResult{Plan: lines, FormattedPlan: strings.Join(lines, "\n")}, nil
}

// showplanLines reads every result set after the first, which echoes the
// statement text.
func showplanLines(ctx context.Context, conn *sql.Conn, query string, params []any) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []string{}
	for set := 0; ; set++ {
		for rows.Next() {
			var text string
			if err := rows.Scan(&text); err != nil {
				return nil, err
			}
			if set > 0 {
				lines = append(lines, strings.TrimRight(text, " \r\n"))
			}
		}
		if !rows.NextResultSet() {
			break
		}
	}
	return lines, rows.Err()
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
