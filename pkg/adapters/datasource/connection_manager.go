package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	healthCheckTimeout          = 5 * time.Second
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes int
}

// ConnectionManagerOption customizes a ConnectionManager.
type ConnectionManagerOption func(*ConnectionManager)

// WithAdapterFactory replaces the registry lookup used to open adapters.
func WithAdapterFactory(f Factory) ConnectionManagerOption {
	return func(m *ConnectionManager) { m.open = f }
}

// WithManagerClock sets the clock used for idle tracking.
func WithManagerClock(c clockwork.Clock) ConnectionManagerOption {
	return func(m *ConnectionManager) { m.clock = c }
}

// WithRetryConfig sets the backoff used for connects and health pings.
func WithRetryConfig(cfg *retry.Config) ConnectionManagerOption {
	return func(m *ConnectionManager) { m.retry = cfg }
}

// ConnectionManager keeps one live adapter per database id, health-checks
// it before reuse, and closes adapters idle longer than the TTL.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*managedAdapter // key: database id
	ttl         time.Duration
	open        Factory
	clock       clockwork.Clock
	retry       *retry.Config
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

type managedAdapter struct {
	adapter  Adapter
	lastUsed time.Time
	mu       sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger, opts ...ConnectionManagerOption) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &ConnectionManager{
		connections: make(map[string]*managedAdapter),
		ttl:         time.Duration(cfg.TTLMinutes) * time.Minute,
		open:        NewAdapter,
		clock:       clockwork.NewRealClock(),
		retry:       retry.DefaultConfig(),
		stopChan:    make(chan struct{}),
		logger:      logger.Named("connection-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.cleanupExpiredConnections()
	return m
}

// Get returns the live adapter for cfg.ID, opening one if needed. The
// returned adapter is shared and must not be closed by the caller.
func (m *ConnectionManager) Get(ctx context.Context, cfg ConnectionConfig) (Adapter, error) {
	m.mu.RLock()
	managed, exists := m.connections[cfg.ID]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, apperrors.ErrNotConnected
	}

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := retry.Do(healthCtx, m.retry, func() error {
			return managed.adapter.TestConnection(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("database_id", cfg.ID),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeIf(cfg.ID, managed)
			return m.create(ctx, cfg)
		}

		managed.lastUsed = m.clock.Now()
		managed.mu.Unlock()
		return managed.adapter, nil
	}

	return m.create(ctx, cfg)
}

// create opens a new adapter with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) create(ctx context.Context, cfg ConnectionConfig) (Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, apperrors.ErrNotConnected
	}

	// Another goroutine may have opened it while we waited for the lock.
	if managed, exists := m.connections[cfg.ID]; exists {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = m.clock.Now()
		return managed.adapter, nil
	}

	adapter, err := retry.DoWithResult(ctx, m.retry, func() (Adapter, error) {
		return m.open(ctx, cfg, m.logger)
	})
	if err != nil {
		m.logger.Error("failed to open adapter after retries",
			zap.String("database_id", cfg.ID),
			zap.String("type", cfg.Type),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("open %s adapter for %s: %w", cfg.Type, cfg.ID, err)
	}

	m.connections[cfg.ID] = &managedAdapter{
		adapter:  adapter,
		lastUsed: m.clock.Now(),
	}

	m.logger.Info("opened adapter",
		zap.String("database_id", cfg.ID),
		zap.String("type", cfg.Type),
		zap.Int("total_connections", len(m.connections)),
	)
	return adapter, nil
}

// Remove closes and forgets the adapter for id, if any.
func (m *ConnectionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(id)
}

// removeIf removes id only if it still maps to managed, so a concurrent
// recreation is not thrown away.
func (m *ConnectionManager) removeIf(id string, managed *managedAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections[id] == managed {
		m.closeLocked(id)
	}
}

// closeLocked closes and deletes one connection. Caller holds m.mu.
func (m *ConnectionManager) closeLocked(id string) {
	managed, exists := m.connections[id]
	if !exists {
		return
	}
	if err := managed.adapter.Close(); err != nil {
		m.logger.Warn("failed to close adapter",
			zap.String("database_id", id),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
	delete(m.connections, id)
	m.logger.Debug("removed connection", zap.String("database_id", id))
}

func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := m.clock.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Lock order is manager then connection.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := m.clock.Now()
	var expired []string
	for id, managed := range m.connections {
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > m.ttl {
			expired = append(expired, id)
			m.logger.Debug("marking connection for cleanup",
				zap.String("database_id", id),
				zap.Duration("idle", idle),
				zap.Duration("ttl", m.ttl),
			)
		}
	}

	for _, id := range expired {
		m.closeLocked(id)
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all adapters and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true
	close(m.stopChan)

	for id := range m.connections {
		m.closeLocked(id)
	}
	m.logger.Info("connection manager closed")
	return nil
}

// Stats returns statistics about the connection manager.
func (m *ConnectionManager) Stats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.clock.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}
	for _, managed := range m.connections {
		stats.ConnectionsByType[managed.adapter.Type()]++

		managed.mu.Lock()
		idle := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}
	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
