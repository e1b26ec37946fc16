package datasource_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource/datasourcetest"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/retry"
)

// openCounter hands out fresh fake adapters and records each open.
type openCounter struct {
	mu       sync.Mutex
	opened   []*datasourcetest.Adapter
	failures int
}

func (o *openCounter) factory(ctx context.Context, cfg datasource.ConnectionConfig, logger *zap.Logger) (datasource.Adapter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures > 0 {
		o.failures--
		return nil, errors.New("connection refused")
	}
	a := datasourcetest.New(cfg.Type, nil)
	o.opened = append(o.opened, a)
	return a, nil
}

func (o *openCounter) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func newManager(t *testing.T, o *openCounter, clock clockwork.Clock) *datasource.ConnectionManager {
	t.Helper()
	m := datasource.NewConnectionManager(
		datasource.ConnectionManagerConfig{TTLMinutes: 5},
		zaptest.NewLogger(t),
		datasource.WithAdapterFactory(o.factory),
		datasource.WithManagerClock(clock),
		datasource.WithRetryConfig(&retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}),
	)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

var shopConfig = datasource.ConnectionConfig{ID: "shop", Type: models.EngineTypePostgres}

func TestConnectionManager_ReusesHealthyAdapter(t *testing.T) {
	o := &openCounter{}
	m := newManager(t, o, clockwork.NewFakeClock())
	ctx := context.Background()

	a1, err := m.Get(ctx, shopConfig)
	require.NoError(t, err)
	a2, err := m.Get(ctx, shopConfig)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, 1, o.count())
	assert.Equal(t, 1, a1.(*datasourcetest.Adapter).PingCalls(), "reuse pings once")

	stats := m.Stats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ConnectionsByType[models.EngineTypePostgres])
}

func TestConnectionManager_SeparateAdaptersPerDatabase(t *testing.T) {
	o := &openCounter{}
	m := newManager(t, o, clockwork.NewFakeClock())
	ctx := context.Background()

	a1, err := m.Get(ctx, shopConfig)
	require.NoError(t, err)
	a2, err := m.Get(ctx, datasource.ConnectionConfig{ID: "crm", Type: models.EngineTypeMySQL})
	require.NoError(t, err)

	assert.NotSame(t, a1, a2)
	assert.Equal(t, 2, m.Stats().TotalConnections)
}

func TestConnectionManager_RecreatesUnhealthyAdapter(t *testing.T) {
	o := &openCounter{}
	m := newManager(t, o, clockwork.NewFakeClock())
	ctx := context.Background()

	first, err := m.Get(ctx, shopConfig)
	require.NoError(t, err)
	first.(*datasourcetest.Adapter).SetPingErr(errors.New("server closed the connection unexpectedly"))

	second, err := m.Get(ctx, shopConfig)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, first.(*datasourcetest.Adapter).Closed())
	assert.Equal(t, 2, o.count())
}

func TestConnectionManager_RetriesOpen(t *testing.T) {
	o := &openCounter{failures: 2}
	m := newManager(t, o, clockwork.NewFakeClock())

	a, err := m.Get(context.Background(), shopConfig)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestConnectionManager_OpenFailsAfterRetries(t *testing.T) {
	o := &openCounter{failures: 10}
	m := newManager(t, o, clockwork.NewFakeClock())

	_, err := m.Get(context.Background(), shopConfig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres adapter for shop")
	assert.Zero(t, m.Stats().TotalConnections)
}

func TestConnectionManager_CleansUpIdleAdapters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	o := &openCounter{}
	m := newManager(t, o, clock)

	a, err := m.Get(context.Background(), shopConfig)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	m.PerformCleanup()
	assert.Equal(t, 1, m.Stats().TotalConnections, "not idle long enough")

	clock.Advance(2 * time.Minute)
	m.PerformCleanup()
	assert.Zero(t, m.Stats().TotalConnections)
	assert.True(t, a.(*datasourcetest.Adapter).Closed())
}

func TestConnectionManager_Remove(t *testing.T) {
	o := &openCounter{}
	m := newManager(t, o, clockwork.NewFakeClock())

	a, err := m.Get(context.Background(), shopConfig)
	require.NoError(t, err)

	m.Remove("shop")
	m.Remove("missing")

	assert.True(t, a.(*datasourcetest.Adapter).Closed())
	assert.Zero(t, m.Stats().TotalConnections)
}

func TestConnectionManager_CloseIsIdempotent(t *testing.T) {
	o := &openCounter{}
	m := newManager(t, o, clockwork.NewFakeClock())

	a, err := m.Get(context.Background(), shopConfig)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.True(t, a.(*datasourcetest.Adapter).Closed())

	_, err = m.Get(context.Background(), shopConfig)
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestConnectionManager_ConcurrentGetOpensOnce(t *testing.T) {
	o := &openCounter{}
	m := newManager(t, o, clockwork.NewFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Get(context.Background(), shopConfig)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, o.count())
}
