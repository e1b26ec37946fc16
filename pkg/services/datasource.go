package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// Database is one configured database reachable by id.
type Database struct {
	Connection      datasource.ConnectionConfig
	CacheTTLMinutes int // 0 uses the cache default
	Introspection   models.IntrospectionOptions
}

// DatabaseInfo is the client-facing description of a configured database.
// Credentials are never included.
type DatabaseInfo struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Path     string `json:"path,omitempty"`
}

// ConnectionTestResult reports a connectivity check.
type ConnectionTestResult struct {
	DatabaseID string  `json:"database_id"`
	Type       string  `json:"type"`
	Connected  bool    `json:"connected"`
	Version    string  `json:"version,omitempty"`
	LatencyMs  float64 `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
}

// AdapterProvider hands out live adapters keyed by connection id.
// *datasource.ConnectionManager satisfies it.
type AdapterProvider interface {
	Get(ctx context.Context, cfg datasource.ConnectionConfig) (datasource.Adapter, error)
}

// DatasourceService resolves configured databases and their adapters.
type DatasourceService interface {
	// Lookup returns the configuration of id, or apperrors.ErrNotFound.
	Lookup(id string) (Database, error)

	// Adapter returns a live adapter for id.
	Adapter(ctx context.Context, id string) (datasource.Adapter, Database, error)

	// List describes every configured database, sorted by id.
	List() []DatabaseInfo

	// TestConnection pings the database and reads its version.
	TestConnection(ctx context.Context, id string) (*ConnectionTestResult, error)
}

type datasourceService struct {
	databases map[string]Database
	adapters  AdapterProvider
	logger    *zap.Logger
}

// NewDatasourceService creates a service over a fixed set of databases.
func NewDatasourceService(databases []Database, adapters AdapterProvider, logger *zap.Logger) DatasourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[string]Database, len(databases))
	for _, db := range databases {
		byID[db.Connection.ID] = db
	}
	return &datasourceService{
		databases: byID,
		adapters:  adapters,
		logger:    logger.Named("datasource-service"),
	}
}

func (s *datasourceService) Lookup(id string) (Database, error) {
	db, ok := s.databases[id]
	if !ok {
		return Database{}, fmt.Errorf("%w: database %q is not configured", apperrors.ErrNotFound, id)
	}
	return db, nil
}

func (s *datasourceService) Adapter(ctx context.Context, id string) (datasource.Adapter, Database, error) {
	db, err := s.Lookup(id)
	if err != nil {
		return nil, Database{}, err
	}
	adapter, err := s.adapters.Get(ctx, db.Connection)
	if err != nil {
		return nil, Database{}, fmt.Errorf("failed to connect to %s: %w", id, err)
	}
	return adapter, db, nil
}

func (s *datasourceService) List() []DatabaseInfo {
	infos := make([]DatabaseInfo, 0, len(s.databases))
	for id, db := range s.databases {
		c := db.Connection
		infos = append(infos, DatabaseInfo{
			ID:       id,
			Type:     c.Type,
			Host:     c.Host,
			Port:     c.Port,
			Database: c.Database,
			Path:     c.Path,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// TestConnection reports connectivity failures in the result rather than as
// an error; only an unknown id is an error.
func (s *datasourceService) TestConnection(ctx context.Context, id string) (*ConnectionTestResult, error) {
	db, err := s.Lookup(id)
	if err != nil {
		return nil, err
	}

	result := &ConnectionTestResult{DatabaseID: id, Type: db.Connection.Type}
	start := time.Now()
	defer func() { result.LatencyMs = datasource.ElapsedMs(start) }()

	adapter, err := s.adapters.Get(ctx, db.Connection)
	if err == nil {
		err = adapter.TestConnection(ctx)
	}
	if err != nil {
		result.Error = logging.SanitizeError(err)
		s.logger.Warn("Connection test failed",
			zap.String("database_id", id),
			zap.String("error", result.Error))
		return result, nil
	}

	result.Connected = true
	if version, err := adapter.Version(ctx); err == nil {
		result.Version = version
	}
	return result, nil
}
