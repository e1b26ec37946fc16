package datasource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

func feedShop(b *SchemaBuilder) {
	b.AddTable(TableMetadata{Schema: "public", Name: "users"})
	b.AddTable(TableMetadata{Schema: "public", Name: "orders"})
	b.AddTable(TableMetadata{Schema: "public", Name: "active_users", Kind: models.TableKindView})
	b.AddTable(TableMetadata{Schema: "audit", Name: "events"})

	b.AddColumn(ColumnMetadata{Schema: "public", Table: "users", Position: 2, Column: models.Column{Name: "email", DataType: "text"}})
	b.AddColumn(ColumnMetadata{Schema: "public", Table: "users", Position: 1, Column: models.Column{Name: "id", DataType: "integer"}})
	b.AddColumn(ColumnMetadata{Schema: "public", Table: "orders", Position: 1, Column: models.Column{Name: "id", DataType: "integer"}})
	b.AddColumn(ColumnMetadata{Schema: "public", Table: "orders", Position: 2, Column: models.Column{Name: "user_id", DataType: "integer"}})
	b.AddColumn(ColumnMetadata{Schema: "public", Table: "orders", Position: 3, Column: models.Column{Name: "tenant_id", DataType: "integer"}})
	b.AddColumn(ColumnMetadata{Schema: "nowhere", Table: "ghost", Position: 1, Column: models.Column{Name: "x"}})

	b.AddIndexColumn(IndexMetadata{Schema: "public", Table: "users", Name: "users_pkey", Column: "id", Position: 1, IsPrimary: true})
	b.AddIndexColumn(IndexMetadata{Schema: "public", Table: "orders", Name: "orders_pkey", Column: "id", Position: 1, IsPrimary: true})
	b.AddIndexColumn(IndexMetadata{Schema: "public", Table: "orders", Name: "orders_user_tenant", Column: "tenant_id", Position: 2})
	b.AddIndexColumn(IndexMetadata{Schema: "public", Table: "orders", Name: "orders_user_tenant", Column: "user_id", Position: 1})

	b.AddForeignKeyColumn(ForeignKeyMetadata{Schema: "public", Table: "orders", Name: "orders_user_fk", Column: "user_id", TargetTable: "users", TargetColumn: "id", Position: 1, OnDelete: "CASCADE"})
}

func TestSchemaBuilder_AssemblesTables(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b := NewSchemaBuilder(models.EngineTypePostgres, models.DefaultIntrospectionOptions())
	feedShop(b)

	s := b.Build("shop", at)

	assert.Equal(t, "shop", s.DatabaseID)
	assert.Equal(t, models.EngineTypePostgres, s.Engine)
	assert.Equal(t, at, s.IntrospectedAt)
	require.Len(t, s.Schemas, 2)
	assert.Equal(t, "audit", s.Schemas[0].Name)
	assert.Equal(t, "public", s.Schemas[1].Name)

	public := s.Schemas[1].Tables
	require.Len(t, public, 3)
	assert.Equal(t, []string{"active_users", "orders", "users"}, []string{public[0].Name, public[1].Name, public[2].Name})
	assert.Equal(t, models.TableKindView, public[0].Kind)

	users := s.FindTable("public.users")
	require.NotNil(t, users)
	assert.Equal(t, "id", users.Columns[0].Name, "columns follow ordinal position")
	require.True(t, users.HasPrimaryKey())
	assert.Equal(t, []string{"id"}, users.PrimaryKey.Columns)
	assert.True(t, users.PrimaryKey.IsUnique)

	orders := s.FindTable("orders")
	require.NotNil(t, orders)
	require.Len(t, orders.Indexes, 1)
	assert.Equal(t, []string{"user_id", "tenant_id"}, orders.Indexes[0].Columns)
	require.Len(t, orders.ForeignKeys, 1)
	fk := orders.ForeignKeys[0]
	assert.Equal(t, "public", fk.TargetSchema, "empty target schema defaults to source schema")
	assert.Equal(t, []string{"user_id"}, fk.Columns)
	assert.Equal(t, []string{"id"}, fk.TargetColumns)
	assert.Equal(t, "CASCADE", fk.OnDelete)

	events := s.FindTable("audit.events")
	require.NotNil(t, events)
	assert.NotNil(t, events.Columns)
	assert.Empty(t, events.Columns)
}

func TestSchemaBuilder_Filters(t *testing.T) {
	tests := []struct {
		name   string
		opts   models.IntrospectionOptions
		tables []string
	}{
		{
			name:   "views excluded",
			opts:   models.IntrospectionOptions{IncludeViews: false},
			tables: []string{"audit.events", "public.orders", "public.users"},
		},
		{
			name:   "include schemas",
			opts:   models.IntrospectionOptions{IncludeViews: true, IncludeSchemas: []string{"PUBLIC"}},
			tables: []string{"public.active_users", "public.orders", "public.users"},
		},
		{
			name:   "exclude schemas",
			opts:   models.IntrospectionOptions{IncludeViews: true, ExcludeSchemas: []string{"public"}},
			tables: []string{"audit.events"},
		},
		{
			name:   "max tables keeps first in order",
			opts:   models.IntrospectionOptions{IncludeViews: true, MaxTables: 2},
			tables: []string{"audit.events", "public.active_users"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewSchemaBuilder(models.EngineTypePostgres, tt.opts)
			feedShop(b)
			s := b.Build("shop", time.Time{})

			var got []string
			for _, table := range s.AllTables() {
				got = append(got, table.QualifiedName())
			}
			assert.Equal(t, tt.tables, got)
		})
	}
}

func TestSchemaBuilder_EmptyDatabase(t *testing.T) {
	s := NewSchemaBuilder(models.EngineTypeSQLite, models.DefaultIntrospectionOptions()).Build("empty", time.Time{})

	assert.NotNil(t, s.Schemas)
	assert.Zero(t, s.TableCount())
}

func TestSchemaBuilder_DuplicateTableIgnored(t *testing.T) {
	b := NewSchemaBuilder(models.EngineTypeMySQL, models.DefaultIntrospectionOptions())
	b.AddTable(TableMetadata{Schema: "app", Name: "users"})
	b.AddTable(TableMetadata{Schema: "APP", Name: "USERS"})

	assert.Equal(t, 1, b.Build("app", time.Time{}).TableCount())
}
