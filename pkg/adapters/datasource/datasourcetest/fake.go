// Package datasourcetest provides an in-memory datasource.Adapter for tests.
package datasourcetest

import (
	"context"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// Adapter is a scriptable datasource.Adapter. Zero values behave as a
// healthy, empty database.
type Adapter struct {
	mu sync.Mutex

	Engine          string
	Schema          *models.DatabaseSchema
	IntrospectErr   error
	IntrospectDelay time.Duration
	QueryFunc       func(sql string, params []any) (*datasource.QueryResult, error)
	ExplainPlan     any
	ExplainErr      error
	PingErr         error
	VersionString   string

	introspectCalls int
	pingCalls       int
	queries         []string
	closed          bool
}

// New returns a fake adapter of the given engine serving schema.
func New(engine string, schema *models.DatabaseSchema) *Adapter {
	return &Adapter{Engine: engine, Schema: schema, VersionString: engine + " test"}
}

func (a *Adapter) Introspect(ctx context.Context, opts models.IntrospectionOptions) (*models.DatabaseSchema, error) {
	a.mu.Lock()
	a.introspectCalls++
	delay, err, schema := a.IntrospectDelay, a.IntrospectErr, a.Schema
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return &models.DatabaseSchema{Engine: a.Engine, Schemas: []models.SchemaMetadata{}}, nil
	}
	out := *schema
	out.Schemas = append([]models.SchemaMetadata(nil), schema.Schemas...)
	return &out, nil
}

func (a *Adapter) Query(ctx context.Context, sql string, params []any, timeout time.Duration) (*datasource.QueryResult, error) {
	a.mu.Lock()
	a.queries = append(a.queries, sql)
	fn := a.QueryFunc
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(sql, params)
	}
	return &datasource.QueryResult{Columns: []string{}, Rows: []map[string]any{}}, nil
}

func (a *Adapter) Explain(ctx context.Context, sql string, params []any) (*datasource.ExplainResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ExplainErr != nil {
		return nil, a.ExplainErr
	}
	return &datasource.ExplainResult{Plan: a.ExplainPlan, FormattedPlan: "fake plan"}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pingCalls++
	return a.PingErr
}

func (a *Adapter) Version(ctx context.Context) (string, error) {
	return a.VersionString, nil
}

func (a *Adapter) Type() string {
	return a.Engine
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// SetPingErr changes the health check result.
func (a *Adapter) SetPingErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PingErr = err
}

// IntrospectCalls returns how many times Introspect ran.
func (a *Adapter) IntrospectCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.introspectCalls
}

// PingCalls returns how many times TestConnection ran.
func (a *Adapter) PingCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pingCalls
}

// Queries returns the SQL passed to Query, in order.
func (a *Adapter) Queries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.queries...)
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

var _ datasource.Adapter = (*Adapter)(nil)
