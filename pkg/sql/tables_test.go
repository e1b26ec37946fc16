package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTables(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{"simple select", "SELECT * FROM users", []string{"users"}},
		{"join", "SELECT * FROM users u JOIN orders o ON u.id = o.user_id", []string{"users", "orders"}},
		{"schema qualified", "select * from Sales.Orders join public.users on 1=1", []string{"sales.orders", "public.users"}},
		{"insert", "INSERT INTO audit_log (msg) VALUES ('x')", []string{"audit_log"}},
		{"update", "UPDATE accounts SET balance = 0 WHERE id = 1", []string{"accounts"}},
		{"delete", "DELETE FROM sessions WHERE expires_at < now()", []string{"sessions"}},
		{"quoted", `SELECT * FROM "public"."Order Items"`, []string{"public.order items"}},
		{"deduplicated", "SELECT * FROM users WHERE id IN (SELECT user_id FROM users)", []string{"users"}},
		{"keyword in literal ignored", "SELECT * FROM users WHERE note = 'copied from backups'", []string{"users"}},
		{"no tables", "SELECT 1", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractTables(tt.sql))
		})
	}
}

func TestTableRefs(t *testing.T) {
	refs := TableRefs("SELECT * FROM users u JOIN orders AS o ON u.id = o.user_id LEFT JOIN payments ON payments.order_id = o.id WHERE u.id = 1")

	assert.Equal(t, []TableRef{
		{Name: "users", Alias: "u"},
		{Name: "orders", Alias: "o"},
		{Name: "payments"},
	}, refs)
}

func TestPredicateColumns(t *testing.T) {
	refs := PredicateColumns("SELECT * FROM users u JOIN orders o ON u.id = o.user_id WHERE o.status = 'open' AND created_at > NOW() ORDER BY o.id")

	assert.Equal(t, []ColumnRef{
		{Qualifier: "u", Column: "id", Clause: "join"},
		{Qualifier: "o", Column: "user_id", Clause: "join"},
		{Qualifier: "o", Column: "status", Clause: "where"},
		{Column: "created_at", Clause: "where"},
	}, refs)
}

func TestPredicateColumns_SkipsSubqueriesAndKeywords(t *testing.T) {
	refs := PredicateColumns("SELECT * FROM users WHERE email IS NOT NULL AND id IN (SELECT user_id FROM orders WHERE total > 10)")

	assert.Equal(t, []ColumnRef{
		{Column: "email", Clause: "where"},
		{Column: "id", Clause: "where"},
	}, refs)
}

func TestExtractFeatures(t *testing.T) {
	f := ExtractFeatures(`SELECT DISTINCT u.id, COUNT(o.id)
		FROM users u
		JOIN orders o ON o.user_id = u.id
		JOIN payments p ON p.order_id = o.id
		WHERE u.created_at BETWEEN '2024-01-01' AND '2024-12-31'
		  AND u.id IN (SELECT user_id FROM vip WHERE tier = 'gold' AND active)
		GROUP BY u.id
		ORDER BY 2 DESC`)

	assert.Equal(t, 2, f.JoinCount)
	assert.Equal(t, 1, f.SubqueryCount)
	assert.Equal(t, 2, f.WhereConditions)
	assert.True(t, f.HasAggregation)
	assert.True(t, f.HasDistinct)
	assert.True(t, f.HasGroupBy)
	assert.True(t, f.HasOrderBy)
	assert.True(t, f.HasWhere)
	assert.False(t, f.HasLimit)
	assert.False(t, f.IsCount)
}

func TestExtractFeatures_SimpleAndCount(t *testing.T) {
	f := ExtractFeatures("SELECT * FROM t")
	assert.Equal(t, Features{}, f)

	f = ExtractFeatures("select count(*) from t where a = 1 limit 5")
	assert.True(t, f.IsCount)
	assert.True(t, f.HasLimit)
	assert.Equal(t, 1, f.WhereConditions)
}
