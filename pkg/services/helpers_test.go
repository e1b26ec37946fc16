package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource/datasourcetest"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/cache"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/optimizer"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/tracker"
)

// stubProvider serves fake adapters by database id.
type stubProvider struct {
	adapters map[string]*datasourcetest.Adapter
	err      error
}

func (p *stubProvider) Get(ctx context.Context, cfg datasource.ConnectionConfig) (datasource.Adapter, error) {
	if p.err != nil {
		return nil, p.err
	}
	a, ok := p.adapters[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("no adapter for %s", cfg.ID)
	}
	return a, nil
}

func pk(name string, cols ...string) *models.Index {
	return &models.Index{Name: name, Columns: cols, IsUnique: true, IsPrimary: true}
}

func cols(names ...string) []models.Column {
	out := make([]models.Column, len(names))
	for i, n := range names {
		out[i] = models.Column{Name: n, DataType: "integer"}
	}
	return out
}

// shopSchema declares orders.user_id as a foreign key; order_items links to
// orders and products by naming only. active_users is an unrelated view.
func shopSchema() *models.DatabaseSchema {
	return &models.DatabaseSchema{
		Engine: models.EngineTypePostgres,
		Schemas: []models.SchemaMetadata{
			{
				Name: "public",
				Tables: []models.Table{
					{Schema: "public", Name: "active_users", Kind: models.TableKindView, Columns: cols("id", "email")},
					{Schema: "public", Name: "order_items", Kind: models.TableKindTable, Columns: cols("order_id", "product_id", "quantity")},
					{
						Schema: "public", Name: "orders", Kind: models.TableKindTable,
						Columns:    cols("id", "user_id", "status"),
						PrimaryKey: pk("orders_pkey", "id"),
						ForeignKeys: []models.ForeignKey{{
							Name: "orders_user_id_fkey", Columns: []string{"user_id"},
							TargetSchema: "public", TargetTable: "users", TargetColumns: []string{"id"},
						}},
					},
					{Schema: "public", Name: "products", Kind: models.TableKindTable, Columns: cols("id", "sku"), PrimaryKey: pk("products_pkey", "id")},
					{Schema: "public", Name: "users", Kind: models.TableKindTable, Columns: cols("id", "email"), PrimaryKey: pk("users_pkey", "id")},
				},
			},
			{
				Name: "audit",
				Tables: []models.Table{
					{Schema: "audit", Name: "events", Kind: models.TableKindTable, Columns: cols("id", "payload"), PrimaryKey: pk("events_pkey", "id")},
				},
			},
		},
	}
}

type fixture struct {
	adapter  *datasourcetest.Adapter
	provider *stubProvider
	clock    *clockwork.FakeClock
	cache    *cache.SchemaCache
	tracker  *tracker.QueryTracker
	slow     *optimizer.SlowQueryMonitor
	ds       DatasourceService
	schemas  SchemaService
	queries  QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClock()

	adapter := datasourcetest.New(models.EngineTypePostgres, shopSchema())
	provider := &stubProvider{adapters: map[string]*datasourcetest.Adapter{"shop": adapter}}

	schemaCache, err := cache.New(cache.Config{Dir: t.TempDir(), DefaultTTLMinutes: 60}, logger, cache.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = schemaCache.Close() })

	qt := tracker.New(100, logger, tracker.WithClock(clock), tracker.WithAnnotator(optimizer.Annotate))
	slow := optimizer.NewSlowQueryMonitor(1000, clock)

	ds := NewDatasourceService([]Database{
		{
			Connection:    datasource.ConnectionConfig{ID: "shop", Type: models.EngineTypePostgres, Host: "db", Database: "shop", Password: "secret"},
			Introspection: models.DefaultIntrospectionOptions(),
		},
		{
			Connection:      datasource.ConnectionConfig{ID: "offline", Type: models.EngineTypeMySQL, Host: "gone", Database: "x"},
			CacheTTLMinutes: 5,
		},
	}, provider, logger)
	schemas := NewSchemaService(ds, schemaCache, nil, logger)
	queries := NewQueryService(QueryConfig{}, ds, schemas, qt, slow, nil, logger)

	return &fixture{
		adapter:  adapter,
		provider: provider,
		clock:    clock,
		cache:    schemaCache,
		tracker:  qt,
		slow:     slow,
		ds:       ds,
		schemas:  schemas,
		queries:  queries,
	}
}
