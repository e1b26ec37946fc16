package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/cache"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/relationships"
)

// GetSchemaOptions controls a schema request. Filters apply to the returned
// copy only; the cached entry always holds the full introspection.
type GetSchemaOptions struct {
	ForceRefresh bool
	IncludeViews bool
	Schemas      []string
	Tables       []string
}

// SchemaResult is a (possibly filtered) view of a cache entry.
type SchemaResult struct {
	Schema        *models.DatabaseSchema `json:"schema"`
	Relationships []models.Relationship  `json:"relationships"`
	CachedAt      time.Time              `json:"cached_at"`
	TTLMinutes    int                    `json:"ttl_minutes"`
	FromCache     bool                   `json:"from_cache"`
}

// RelationshipGraph summarizes how tables connect.
type RelationshipGraph struct {
	DatabaseID    string                             `json:"database_id"`
	Relationships []models.Relationship              `json:"relationships"`
	Components    []relationships.ConnectedComponent `json:"components"`
	Islands       []string                           `json:"islands"`
}

// SchemaService serves schemas through the cache, introspecting on a miss.
type SchemaService interface {
	// GetSchema returns the cached schema or introspects it. Concurrent
	// misses for one database introspect once.
	GetSchema(ctx context.Context, databaseID string, opts GetSchemaOptions) (*SchemaResult, error)

	// GetCachedSchema reads the cache only. A missing or expired entry is
	// apperrors.ErrNotFound, as is a table filter that matches nothing.
	GetCachedSchema(databaseID, schemaName, tableName string) (*SchemaResult, error)

	// SuggestJoins finds the shortest join paths between the first two tables.
	SuggestJoins(ctx context.Context, databaseID string, tables []string, maxDepth int) ([]relationships.JoinPath, error)

	// RelationshipGraph reports connected components and isolated tables.
	RelationshipGraph(ctx context.Context, databaseID string) (*RelationshipGraph, error)

	// CacheStatus reports one database, or every known one when databaseID is empty.
	CacheStatus(databaseID string) ([]models.CacheStatus, error)

	// ClearCache clears one database, or all when databaseID is empty.
	ClearCache(databaseID string) error
}

type schemaService struct {
	datasources DatasourceService
	cache       *cache.SchemaCache
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewSchemaService creates a new schema service with dependencies.
func NewSchemaService(
	datasources DatasourceService,
	schemaCache *cache.SchemaCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) SchemaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &schemaService{
		datasources: datasources,
		cache:       schemaCache,
		metrics:     m,
		logger:      logger.Named("schema-service"),
	}
}

func (s *schemaService) GetSchema(ctx context.Context, databaseID string, opts GetSchemaOptions) (*SchemaResult, error) {
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return nil, err
	}

	if !opts.ForceRefresh {
		if entry, ok := s.cache.Get(databaseID); ok {
			return filterEntry(entry, opts, true), nil
		}
	}

	release, err := s.cache.AcquireIntrospectionLock(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Another caller may have refreshed while we waited.
	if !opts.ForceRefresh {
		if entry, ok := s.cache.Get(databaseID); ok {
			return filterEntry(entry, opts, true), nil
		}
	}

	entry, err := s.introspect(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	return filterEntry(entry, opts, false), nil
}

// introspect must be called with the database's introspection lock held.
func (s *schemaService) introspect(ctx context.Context, databaseID string) (*models.CacheEntry, error) {
	start := time.Now()

	adapter, db, err := s.datasources.Adapter(ctx, databaseID)
	if err != nil {
		s.metrics.Introspection(databaseID, err)
		return nil, err
	}

	schema, err := adapter.Introspect(ctx, db.Introspection)
	s.metrics.Introspection(databaseID, err)
	if err != nil {
		s.logger.Error("Schema introspection failed",
			zap.String("database_id", databaseID),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to introspect %s: %w", databaseID, err)
	}

	entry := s.cache.Set(databaseID, schema, db.CacheTTLMinutes)
	s.logger.Info("Refreshed schema",
		zap.String("database_id", databaseID),
		zap.Int("tables", entry.Schema.TableCount()),
		zap.Int("relationships", len(entry.Relationships)),
		zap.Duration("elapsed", time.Since(start)))
	return entry, nil
}

func (s *schemaService) GetCachedSchema(databaseID, schemaName, tableName string) (*SchemaResult, error) {
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return nil, err
	}
	entry, ok := s.cache.Get(databaseID)
	if !ok {
		return nil, fmt.Errorf("%w: no cached schema for %s", apperrors.ErrNotFound, databaseID)
	}

	opts := GetSchemaOptions{IncludeViews: true}
	if schemaName != "" {
		opts.Schemas = []string{schemaName}
	}
	if tableName != "" {
		opts.Tables = []string{tableName}
	}
	result := filterEntry(entry, opts, true)
	if tableName != "" && result.Schema.TableCount() == 0 {
		return nil, fmt.Errorf("%w: table %s in %s", apperrors.ErrNotFound, tableName, databaseID)
	}
	return result, nil
}

func (s *schemaService) SuggestJoins(ctx context.Context, databaseID string, tables []string, maxDepth int) ([]relationships.JoinPath, error) {
	result, err := s.GetSchema(ctx, databaseID, GetSchemaOptions{IncludeViews: true})
	if err != nil {
		return nil, err
	}
	g := relationships.NewTableGraphFromSchema(result.Schema, result.Relationships)
	return g.FindJoinPaths(tables, maxDepth), nil
}

func (s *schemaService) RelationshipGraph(ctx context.Context, databaseID string) (*RelationshipGraph, error) {
	result, err := s.GetSchema(ctx, databaseID, GetSchemaOptions{IncludeViews: true})
	if err != nil {
		return nil, err
	}
	g := relationships.NewTableGraphFromSchema(result.Schema, result.Relationships)
	components, islands := g.FindConnectedComponents()
	relationships.LogConnectivity(len(result.Relationships), components, islands, s.logger.With(zap.String("database_id", databaseID)))

	if components == nil {
		components = []relationships.ConnectedComponent{}
	}
	if islands == nil {
		islands = []string{}
	}
	return &RelationshipGraph{
		DatabaseID:    databaseID,
		Relationships: result.Relationships,
		Components:    components,
		Islands:       islands,
	}, nil
}

func (s *schemaService) CacheStatus(databaseID string) ([]models.CacheStatus, error) {
	if databaseID == "" {
		return s.cache.StatusAll()
	}
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return nil, err
	}
	return []models.CacheStatus{s.cache.Status(databaseID)}, nil
}

func (s *schemaService) ClearCache(databaseID string) error {
	if databaseID == "" {
		return s.cache.ClearAll()
	}
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return err
	}
	return s.cache.Clear(databaseID)
}

// filterEntry returns a view of entry restricted by opts. Without filters
// the cached schema is shared, so callers must not mutate it.
func filterEntry(entry *models.CacheEntry, opts GetSchemaOptions, fromCache bool) *SchemaResult {
	result := &SchemaResult{
		Schema:        entry.Schema,
		Relationships: entry.Relationships,
		CachedAt:      entry.CachedAt,
		TTLMinutes:    entry.TTLMinutes,
		FromCache:     fromCache,
	}
	if opts.IncludeViews && len(opts.Schemas) == 0 && len(opts.Tables) == 0 {
		return result
	}

	filtered := *entry.Schema
	filtered.Schemas = make([]models.SchemaMetadata, 0, len(entry.Schema.Schemas))
	kept := make(map[string]bool)
	for _, sm := range entry.Schema.Schemas {
		if len(opts.Schemas) > 0 && !containsFold(opts.Schemas, sm.Name) {
			continue
		}
		tables := make([]models.Table, 0, len(sm.Tables))
		for _, t := range sm.Tables {
			if !opts.IncludeViews && t.Kind == models.TableKindView {
				continue
			}
			if len(opts.Tables) > 0 && !containsFold(opts.Tables, t.Name) && !containsFold(opts.Tables, t.QualifiedName()) {
				continue
			}
			tables = append(tables, t)
			kept[strings.ToLower(t.QualifiedName())] = true
		}
		if len(tables) > 0 || len(opts.Tables) == 0 {
			filtered.Schemas = append(filtered.Schemas, models.SchemaMetadata{Name: sm.Name, Tables: tables})
		}
	}

	rels := make([]models.Relationship, 0, len(entry.Relationships))
	for _, r := range entry.Relationships {
		if kept[strings.ToLower(models.QualifiedName(r.SourceSchema, r.SourceTable))] ||
			kept[strings.ToLower(models.QualifiedName(r.TargetSchema, r.TargetTable))] {
			rels = append(rels, r)
		}
	}

	result.Schema = &filtered
	result.Relationships = rels
	return result
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
