package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema() *DatabaseSchema {
	return &DatabaseSchema{
		Schemas: []SchemaMetadata{
			{Name: "public", Tables: []Table{
				{Schema: "public", Name: "users",
					Columns:    []Column{{Name: "id"}, {Name: "Email"}},
					PrimaryKey: &Index{Name: "users_pkey", Columns: []string{"id"}, IsUnique: true, IsPrimary: true},
					Indexes:    []Index{{Name: "users_email_status", Columns: []string{"email", "status"}}}},
			}},
			{Name: "audit", Tables: []Table{
				{Schema: "audit", Name: "users"},
				{Schema: "audit", Name: "events"},
			}},
		},
	}
}

func TestDatabaseSchema_FindTable(t *testing.T) {
	s := sampleSchema()

	assert.Equal(t, 3, s.TableCount())
	assert.Len(t, s.AllTables(), 3)

	require.NotNil(t, s.FindTable("users"))
	assert.Equal(t, "public", s.FindTable("users").Schema, "unqualified names resolve in schema order")
	assert.Equal(t, "audit", s.FindTable("AUDIT.Users").Schema)
	assert.Nil(t, s.FindTable("missing"))
	assert.Nil(t, s.FindTable("public.events"))
}

func TestTable_Helpers(t *testing.T) {
	users := sampleSchema().FindTable("public.users")
	require.NotNil(t, users)

	assert.Equal(t, "public.users", users.QualifiedName())
	require.NotNil(t, users.Column("email"))
	assert.Equal(t, "Email", users.Column("email").Name)
	assert.Nil(t, users.Column("nope"))

	assert.True(t, users.HasPrimaryKey())
	assert.True(t, users.IsIndexed("id"))
	assert.True(t, users.IsIndexed("EMAIL"))
	assert.False(t, users.IsIndexed("status"), "only leading index columns count")

	events := sampleSchema().FindTable("events")
	assert.False(t, events.HasPrimaryKey())
	assert.False(t, events.IsIndexed("id"))
}

func TestQualifiedNames(t *testing.T) {
	assert.Equal(t, "orders", QualifiedName("", "orders"))
	assert.Equal(t, "shop.orders", QualifiedName("shop", "orders"))

	schema, table := SplitQualifiedName("db.shop.orders")
	assert.Equal(t, "db.shop", schema)
	assert.Equal(t, "orders", table)

	schema, table = SplitQualifiedName("orders")
	assert.Empty(t, schema)
	assert.Equal(t, "orders", table)
}

func TestRelationship_KeyAndReverse(t *testing.T) {
	r := Relationship{
		SourceSchema: "public", SourceTable: "Orders", SourceColumns: []string{"user_id"},
		TargetSchema: "public", TargetTable: "users", TargetColumns: []string{"id"},
		Kind: RelationshipKindForeignKey,
	}
	assert.Equal(t, "public.orders.user_id->public.users.id", r.Key())

	rev := r.Reverse()
	assert.Equal(t, "users", rev.SourceTable)
	assert.Equal(t, []string{"user_id"}, rev.TargetColumns)
	assert.Equal(t, r.Key(), rev.Reverse().Key())
}

func TestCacheEntry_Expiry(t *testing.T) {
	cachedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := &CacheEntry{CachedAt: cachedAt, TTLMinutes: 60}

	assert.Equal(t, cachedAt.Add(time.Hour), e.ExpiresAt())
	assert.False(t, e.IsExpired(cachedAt.Add(time.Hour)), "expiry is strictly after the TTL")
	assert.True(t, e.IsExpired(cachedAt.Add(time.Hour+time.Millisecond)))
}
