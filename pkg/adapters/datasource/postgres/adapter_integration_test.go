//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/optimizer"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/testhelpers"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	db := testhelpers.GetTestDB(t)
	db.Exec(t,
		`CREATE SCHEMA IF NOT EXISTS shop`,
		`CREATE TABLE IF NOT EXISTS shop.users (id serial PRIMARY KEY, email varchar(255) NOT NULL UNIQUE, status text)`,
		`CREATE TABLE IF NOT EXISTS shop.orders (
			id bigserial PRIMARY KEY,
			user_id int NOT NULL REFERENCES shop.users(id) ON DELETE CASCADE,
			total numeric(10,2),
			created_at timestamptz DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS orders_user_created ON shop.orders (user_id, created_at)`,
		`COMMENT ON TABLE shop.users IS 'registered customers'`,
		`CREATE OR REPLACE VIEW shop.active_users AS SELECT id, email FROM shop.users WHERE status = 'active'`,
		`INSERT INTO shop.users (email, status) VALUES ('a@x.com', 'active'), ('b@x.com', 'inactive') ON CONFLICT DO NOTHING`,
	)

	a, err := NewAdapter(context.Background(), "it", &Config{
		Host: db.Host, Port: db.Port, User: db.User, Password: db.Password, Database: db.Database,
		SSLMode: "disable", MaxRows: 1000,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAdapter_Integration_Introspect(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.TestConnection(ctx))

	schema, err := a.Introspect(ctx, models.IntrospectionOptions{IncludeViews: true, IncludeSchemas: []string{"shop"}})
	require.NoError(t, err)
	assert.Equal(t, models.EngineTypePostgres, schema.Engine)

	users := schema.FindTable("shop.users")
	require.NotNil(t, users)
	require.True(t, users.HasPrimaryKey())
	assert.Equal(t, []string{"id"}, users.PrimaryKey.Columns)
	assert.True(t, users.Column("id").IsAutoIncrement)
	require.NotNil(t, users.Column("email").MaxLength)
	assert.Equal(t, int64(255), *users.Column("email").MaxLength)
	require.NotNil(t, users.Comment)
	assert.Equal(t, "registered customers", *users.Comment)

	orders := schema.FindTable("shop.orders")
	require.NotNil(t, orders)
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "users", orders.ForeignKeys[0].TargetTable)
	assert.Equal(t, "CASCADE", orders.ForeignKeys[0].OnDelete)
	assert.True(t, orders.IsIndexed("user_id"))

	view := schema.FindTable("shop.active_users")
	require.NotNil(t, view)
	assert.Equal(t, models.TableKindView, view.Kind)

	noViews, err := a.Introspect(ctx, models.IntrospectionOptions{IncludeSchemas: []string{"shop"}})
	require.NoError(t, err)
	assert.Nil(t, noViews.FindTable("shop.active_users"))
}

func TestAdapter_Integration_QueryAndExplain(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	res, err := a.Query(ctx, "SELECT id, email FROM shop.users WHERE status = $1", []any{"active"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "email"}, res.Columns)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, "a@x.com", res.Rows[0]["email"])

	upd, err := a.Query(ctx, "UPDATE shop.users SET status = status WHERE status = 'inactive'", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), upd.AffectedRows)

	_, err = a.Query(ctx, "SELECT pg_sleep(2)", nil, 50*time.Millisecond)
	assert.Error(t, err, "timeout cancels the statement")

	explain, err := a.Explain(ctx, "SELECT * FROM shop.users", nil)
	require.NoError(t, err)
	assert.Contains(t, explain.FormattedPlan, "Seq Scan on users")
	assert.NotEmpty(t, optimizer.DetectBottlenecks(explain.Plan))

	version, err := a.Version(ctx)
	require.NoError(t, err)
	assert.Contains(t, version, "PostgreSQL 16")
}
