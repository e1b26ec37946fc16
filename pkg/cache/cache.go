// Package cache keeps introspected schemas in memory and on disk with
// per-database expiry, a content version, and a per-database refresh lock.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/relationships"
)

// DefaultTTLMinutes applies when neither the caller nor the config supplies a TTL.
const DefaultTTLMinutes = 60

// Config configures a SchemaCache.
type Config struct {
	Dir               string
	DefaultTTLMinutes int
}

// Option customizes a SchemaCache.
type Option func(*SchemaCache)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *SchemaCache) { c.clock = clock }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *SchemaCache) { c.metrics = m }
}

// SchemaCache owns the cache entry of every database id. Memory is
// authoritative for the process lifetime; disk survives restarts.
//
// Memory items carry the entry TTL and drop out once it passes. Staleness
// reported to callers is still judged against clock, so an expired entry
// stays visible to Status through its disk copy.
//
// Lock order: storeMu before mu.
type SchemaCache struct {
	defaultTTL int
	store      *fileStore
	locks      *keyedLock
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	logger     *zap.Logger

	items *ttlcache.Cache[string, *models.CacheEntry]
	// mu serializes writes to items so disk promotion never replaces a newer Set.
	mu sync.Mutex

	// storeMu serializes disk access with memory promotion and clears.
	storeMu sync.Mutex
	pending sync.WaitGroup
}

// New creates the cache directory and returns a ready cache. Failing to
// prepare the directory is fatal.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*SchemaCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: cache directory is required", apperrors.ErrCache)
	}
	store, err := newFileStore(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare cache directory %s: %v", apperrors.ErrCache, cfg.Dir, err)
	}

	ttl := cfg.DefaultTTLMinutes
	if ttl <= 0 {
		ttl = DefaultTTLMinutes
	}

	items := ttlcache.New[string, *models.CacheEntry](
		ttlcache.WithDisableTouchOnHit[string, *models.CacheEntry](),
	)

	c := &SchemaCache{
		defaultTTL: ttl,
		store:      store,
		locks:      newKeyedLock(),
		clock:      clockwork.NewRealClock(),
		logger:     logger.Named("schema-cache"),
		items:      items,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DefaultTTL returns the TTL in minutes used when Set is given none.
func (c *SchemaCache) DefaultTTL() int {
	return c.defaultTTL
}

// Get returns the live entry for databaseID. Expired entries are reported as
// absent and left in place. Disk entries are promoted to memory only when
// still valid. The returned entry must be treated as read-only.
func (c *SchemaCache) Get(databaseID string) (*models.CacheEntry, bool) {
	now := c.clock.Now()

	if entry, ok := c.memory(databaseID); ok {
		return c.memoryHit(databaseID, entry, now)
	}

	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	// A concurrent Get or Set may have filled memory while we waited.
	if entry, ok := c.memory(databaseID); ok {
		return c.memoryHit(databaseID, entry, now)
	}

	rec, err := c.store.read(databaseID)
	if err != nil {
		c.logger.Warn("Ignoring unreadable cache file",
			zap.String("database_id", databaseID),
			zap.Error(err))
		c.metrics.CacheLookup(databaseID, "miss")
		return nil, false
	}
	if rec == nil {
		c.metrics.CacheLookup(databaseID, "miss")
		return nil, false
	}

	entry := rec.entry()
	if entry.IsExpired(now) {
		c.metrics.CacheLookup(databaseID, "expired")
		return nil, false
	}

	// Set does not take storeMu, so it may have landed after the disk read.
	// Promote only into an empty slot; a present entry is at least as new.
	c.mu.Lock()
	if current, ok := c.memory(databaseID); ok {
		c.mu.Unlock()
		return c.memoryHit(databaseID, current, now)
	}
	c.items.Set(databaseID, entry, remainingTTL(entry, now))
	c.mu.Unlock()

	c.metrics.CacheLookup(databaseID, "disk_hit")
	return entry, true
}

func (c *SchemaCache) memory(databaseID string) (*models.CacheEntry, bool) {
	item := c.items.Get(databaseID)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (c *SchemaCache) memoryHit(databaseID string, entry *models.CacheEntry, now time.Time) (*models.CacheEntry, bool) {
	if entry.IsExpired(now) {
		c.metrics.CacheLookup(databaseID, "expired")
		return nil, false
	}
	c.metrics.CacheLookup(databaseID, "memory_hit")
	return entry, true
}

// remainingTTL is the memory lifetime left for a live entry.
func remainingTTL(entry *models.CacheEntry, now time.Time) time.Duration {
	if left := entry.ExpiresAt().Sub(now); left > 0 {
		return left
	}
	return time.Nanosecond
}

// Set builds relationships and the content version for schema and replaces
// the entry for databaseID. ttlMinutes <= 0 uses the default TTL. The memory
// copy is visible on return; the disk write happens in the background and
// its failure is only logged.
func (c *SchemaCache) Set(databaseID string, schema *models.DatabaseSchema, ttlMinutes int) *models.CacheEntry {
	if ttlMinutes <= 0 {
		ttlMinutes = c.defaultTTL
	}

	snapshot := *schema
	snapshot.Schemas = append([]models.SchemaMetadata(nil), schema.Schemas...)
	snapshot.DatabaseID = databaseID
	snapshot.Version = ComputeVersion(&snapshot)

	entry := &models.CacheEntry{
		Schema:        &snapshot,
		Relationships: relationships.Build(&snapshot),
		CachedAt:      c.clock.Now(),
		TTLMinutes:    ttlMinutes,
	}

	c.mu.Lock()
	c.items.Set(databaseID, entry, time.Duration(ttlMinutes)*time.Minute)
	c.mu.Unlock()

	c.logger.Debug("Cached schema",
		zap.String("database_id", databaseID),
		zap.String("version", snapshot.Version),
		zap.Int("tables", snapshot.TableCount()),
		zap.Int("relationships", len(entry.Relationships)),
		zap.Int("ttl_minutes", ttlMinutes))

	c.pending.Add(1)
	go c.persist(databaseID)

	return entry
}

// persist writes whatever entry is current for databaseID. An entry cleared
// before the write runs is not resurrected on disk.
func (c *SchemaCache) persist(databaseID string) {
	defer c.pending.Done()

	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	entry, ok := c.memory(databaseID)
	if !ok {
		return
	}

	if err := c.store.write(databaseID, entry); err != nil {
		c.metrics.PersistFailure()
		c.logger.Warn("Failed to persist schema cache entry",
			zap.String("database_id", databaseID),
			zap.Error(err))
	}
}

// AcquireIntrospectionLock blocks until the caller holds the refresh lock for
// databaseID or ctx is done. The returned release func is safe to call more
// than once. Holders should re-check the cache before introspecting.
func (c *SchemaCache) AcquireIntrospectionLock(ctx context.Context, databaseID string) (func(), error) {
	release, err := c.locks.acquire(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("acquire introspection lock for %s: %w", databaseID, err)
	}
	return release, nil
}

// Clear removes the memory and disk entries for databaseID.
func (c *SchemaCache) Clear(databaseID string) error {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	c.mu.Lock()
	c.items.Delete(databaseID)
	c.mu.Unlock()

	if err := c.store.remove(databaseID); err != nil {
		return fmt.Errorf("%w: remove cache file for %s: %v", apperrors.ErrCache, databaseID, err)
	}
	c.logger.Info("Cleared schema cache", zap.String("database_id", databaseID))
	return nil
}

// ClearAll removes every memory and disk entry.
func (c *SchemaCache) ClearAll() error {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	c.mu.Lock()
	c.items.DeleteAll()
	c.mu.Unlock()

	if err := c.store.removeAll(); err != nil {
		return fmt.Errorf("%w: remove cache files: %v", apperrors.ErrCache, err)
	}
	c.logger.Info("Cleared all schema cache entries")
	return nil
}

// Status reports the cache state of one database. Unknown ids report
// Exists=false.
func (c *SchemaCache) Status(databaseID string) models.CacheStatus {
	now := c.clock.Now()

	entry, inMemory := c.memory(databaseID)
	if !inMemory {
		c.storeMu.Lock()
		rec, err := c.store.read(databaseID)
		c.storeMu.Unlock()
		if err != nil || rec == nil {
			return models.CacheStatus{DatabaseID: databaseID, TTLMinutes: c.defaultTTL}
		}
		entry = rec.entry()
	}

	cachedAt := entry.CachedAt
	return models.CacheStatus{
		DatabaseID:        databaseID,
		Exists:            true,
		InMemory:          inMemory,
		CachedAt:          &cachedAt,
		AgeSeconds:        int64(now.Sub(entry.CachedAt) / time.Second),
		TTLMinutes:        entry.TTLMinutes,
		Expired:           entry.IsExpired(now),
		Version:           entry.Schema.Version,
		TableCount:        entry.Schema.TableCount(),
		RelationshipCount: len(entry.Relationships),
	}
}

// StatusAll reports every database currently in memory or on disk, sorted by id.
func (c *SchemaCache) StatusAll() ([]models.CacheStatus, error) {
	known := make(map[string]struct{})

	for _, id := range c.items.Keys() {
		known[id] = struct{}{}
	}

	c.storeMu.Lock()
	ids, err := c.store.list()
	c.storeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: list cache files: %v", apperrors.ErrCache, err)
	}
	for _, id := range ids {
		known[id] = struct{}{}
	}

	sorted := make([]string, 0, len(known))
	for id := range known {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	statuses := make([]models.CacheStatus, 0, len(sorted))
	for _, id := range sorted {
		statuses = append(statuses, c.Status(id))
	}
	return statuses, nil
}

// Flush waits for background disk writes to finish.
func (c *SchemaCache) Flush() {
	c.pending.Wait()
}

// Close flushes pending writes.
func (c *SchemaCache) Close() error {
	c.Flush()
	return nil
}
