package relationships

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

func rel(source, sourceCol, target, targetCol string) models.Relationship {
	return models.Relationship{
		SourceSchema:  "public",
		SourceTable:   source,
		SourceColumns: []string{sourceCol},
		TargetSchema:  "public",
		TargetTable:   target,
		TargetColumns: []string{targetCol},
		Kind:          models.RelationshipKindForeignKey,
	}
}

func TestFindJoinPaths_DirectRelationship(t *testing.T) {
	rels := []models.Relationship{rel("orders", "user_id", "users", "id")}

	paths := FindJoinPaths([]string{"users", "orders"}, rels, DefaultMaxDepth)

	require.Len(t, paths, 1)
	assert.Equal(t, 1, paths[0].Length)
	assert.Equal(t, []string{"public.users", "public.orders"}, paths[0].Tables)
	assert.Equal(t, "FROM public.users JOIN public.orders ON public.users.id = public.orders.user_id", paths[0].SQL)
}

func TestFindJoinPaths_NoPathReturnsEmpty(t *testing.T) {
	rels := []models.Relationship{
		rel("b", "a_id", "a", "id"),
		rel("y", "z_id", "z", "id"),
	}

	paths := FindJoinPaths([]string{"a", "z"}, rels, DefaultMaxDepth)

	require.NotNil(t, paths)
	assert.Empty(t, paths)
}

func TestFindJoinPaths_RespectsMaxDepth(t *testing.T) {
	// a - b - c - d - e : a to e needs 4 hops
	rels := []models.Relationship{
		rel("b", "a_id", "a", "id"),
		rel("c", "b_id", "b", "id"),
		rel("d", "c_id", "c", "id"),
		rel("e", "d_id", "d", "id"),
	}

	assert.Empty(t, FindJoinPaths([]string{"a", "e"}, rels, 3))

	paths := FindJoinPaths([]string{"a", "e"}, rels, 4)
	require.Len(t, paths, 1)
	assert.Equal(t, 4, paths[0].Length)
}

func TestFindJoinPaths_ReturnsAllMinimalPaths(t *testing.T) {
	// Two disjoint two-hop routes from orders to products, plus a longer one.
	rels := []models.Relationship{
		rel("order_items", "order_id", "orders", "id"),
		rel("order_items", "product_id", "products", "id"),
		rel("wishlist", "order_id", "orders", "id"),
		rel("wishlist", "product_id", "products", "id"),
		rel("orders", "user_id", "users", "id"),
		rel("reviews", "user_id", "users", "id"),
		rel("reviews", "product_id", "products", "id"),
	}

	paths := FindJoinPaths([]string{"orders", "products"}, rels, 3)

	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, 2, p.Length)
	}
}

func TestFindJoinPaths_SharedIntermediateKeepsEveryMinimalPath(t *testing.T) {
	// a reaches d through b or c; d then leads to e.
	rels := []models.Relationship{
		rel("b", "a_id", "a", "id"),
		rel("c", "a_id", "a", "id"),
		rel("d", "b_id", "b", "id"),
		rel("d", "c_id", "c", "id"),
		rel("e", "d_id", "d", "id"),
	}

	paths := FindJoinPaths([]string{"a", "e"}, rels, 5)

	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, 3, p.Length)
	}
}

func TestFindJoinPaths_UnreachableGoalInDenseGraph(t *testing.T) {
	var rels []models.Relationship
	for i := 0; i < 10; i++ {
		for j := i + 1; j < 10; j++ {
			rels = append(rels, rel(fmt.Sprintf("t%d", i), fmt.Sprintf("t%d_id", j), fmt.Sprintf("t%d", j), "id"))
		}
	}
	rels = append(rels, rel("island_a", "island_b_id", "island_b", "id"))

	done := make(chan []JoinPath, 1)
	go func() { done <- FindJoinPaths([]string{"t0", "island_a"}, rels, 12) }()

	select {
	case paths := <-done:
		assert.Empty(t, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("join path search did not finish")
	}
}

func TestFindJoinPaths_UsesOnlyFirstTwoTables(t *testing.T) {
	rels := []models.Relationship{
		rel("orders", "user_id", "users", "id"),
		rel("payments", "order_id", "orders", "id"),
	}

	paths := FindJoinPaths([]string{"users", "orders", "payments"}, rels, 3)

	require.Len(t, paths, 1)
	assert.Equal(t, []string{"public.users", "public.orders"}, paths[0].Tables)
}

func TestFindJoinPaths_UnknownAndDegenerateInputs(t *testing.T) {
	rels := []models.Relationship{rel("orders", "user_id", "users", "id")}

	assert.Empty(t, FindJoinPaths([]string{"users"}, rels, 3))
	assert.Empty(t, FindJoinPaths([]string{"users", "ghosts"}, rels, 3))
	assert.Empty(t, FindJoinPaths([]string{"users", "USERS"}, rels, 3))
}

func TestFindJoinPaths_QualifiedAndCaseInsensitiveNames(t *testing.T) {
	rels := []models.Relationship{rel("orders", "user_id", "users", "id")}

	paths := FindJoinPaths([]string{"PUBLIC.Users", "orders"}, rels, 0)

	require.Len(t, paths, 1)
	assert.Equal(t, 1, paths[0].Length)
}

func TestTableGraph_FindConnectedComponents(t *testing.T) {
	schema := &models.DatabaseSchema{Schemas: []models.SchemaMetadata{{
		Name: "public",
		Tables: []models.Table{
			{Schema: "public", Name: "users"},
			{Schema: "public", Name: "orders"},
			{Schema: "public", Name: "order_items"},
			{Schema: "public", Name: "audit_log"},
		},
	}}}
	rels := []models.Relationship{
		rel("orders", "user_id", "users", "id"),
		rel("order_items", "order_id", "orders", "id"),
	}

	g := NewTableGraphFromSchema(schema, rels)
	components, islands := g.FindConnectedComponents()

	require.Len(t, components, 1)
	assert.Equal(t, 3, components[0].Size)
	assert.Equal(t, []string{"public.order_items", "public.orders", "public.users"}, components[0].Tables)
	assert.Equal(t, []string{"public.audit_log"}, islands)
}
