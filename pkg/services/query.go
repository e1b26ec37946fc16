package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/optimizer"
	sqlutil "github.com/ekaya-inc/ekaya-dbintel/pkg/sql"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/tracker"
)

// DefaultQueryTimeout bounds Execute when the caller passes no timeout.
const DefaultQueryTimeout = 30 * time.Second

// QueryConfig tunes query execution.
type QueryConfig struct {
	DefaultTimeout time.Duration
}

// QueryService executes queries and reports on their history.
type QueryService interface {
	// Execute validates and runs a single statement, then records it in the
	// history and the slow-query monitor.
	Execute(ctx context.Context, databaseID, query string, params []any, timeout time.Duration) (*datasource.QueryResult, error)

	// Explain returns the engine's execution plan without running the query.
	Explain(ctx context.Context, databaseID, query string, params []any) (*datasource.ExplainResult, error)

	// Profile explains and runs a read query, then scores plan and timing.
	Profile(ctx context.Context, databaseID, query string, params []any) (*models.PerformanceProfile, error)

	History(databaseID string, limit int) ([]models.QueryHistoryEntry, error)
	Stats(databaseID string) (models.QueryStats, error)

	// ClearHistory clears one database, or all when databaseID is empty.
	// Slow-query alerts are cleared with the history.
	ClearHistory(databaseID string) error

	Analytics(databaseID string) (models.PerformanceAnalytics, error)
	IndexRecommendations(ctx context.Context, databaseID string) ([]models.IndexRecommendation, error)
	SlowQueryAlerts(databaseID string) ([]models.SlowQueryAlert, error)
	SuggestRewrite(ctx context.Context, databaseID, query string) (models.RewriteSuggestion, error)
}

type queryService struct {
	datasources DatasourceService
	schemas     SchemaService
	tracker     *tracker.QueryTracker
	slow        *optimizer.SlowQueryMonitor
	metrics     *metrics.Metrics
	timeout     time.Duration
	logger      *zap.Logger
}

// NewQueryService creates a new query service with dependencies.
func NewQueryService(
	cfg QueryConfig,
	datasources DatasourceService,
	schemas SchemaService,
	queryTracker *tracker.QueryTracker,
	slow *optimizer.SlowQueryMonitor,
	m *metrics.Metrics,
	logger *zap.Logger,
) QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &queryService{
		datasources: datasources,
		schemas:     schemas,
		tracker:     queryTracker,
		slow:        slow,
		metrics:     m,
		timeout:     timeout,
		logger:      logger.Named("query-service"),
	}
}

// prepare validates the statement and screens string parameters.
func prepare(query string, params []any) (string, error) {
	normalized, err := sqlutil.ValidateAndNormalize(query)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidQuery, err)
	}
	if hits := sqlutil.CheckParameters(params); len(hits) > 0 {
		return "", fmt.Errorf("%w: %s", apperrors.ErrSuspiciousParameter, hits[0].Error())
	}
	return normalized, nil
}

func (s *queryService) Execute(ctx context.Context, databaseID, query string, params []any, timeout time.Duration) (*datasource.QueryResult, error) {
	normalized, err := prepare(query, params)
	if err != nil {
		return nil, err
	}
	adapter, _, err := s.datasources.Adapter(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = s.timeout
	}

	start := time.Now()
	result, err := adapter.Query(ctx, normalized, params, timeout)
	s.record(databaseID, normalized, start, result, err)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return result, nil
}

// record tracks a finished execution. It runs after the outcome is known
// and never alters it.
func (s *queryService) record(databaseID, query string, start time.Time, result *datasource.QueryResult, queryErr error) {
	executionMs := datasource.ElapsedMs(start)
	var rowCount int64
	if result != nil {
		if result.ExecutionTimeMs > 0 {
			executionMs = result.ExecutionTimeMs
		}
		rowCount = int64(result.RowCount)
		if result.AffectedRows > 0 {
			rowCount = result.AffectedRows
		}
	}

	s.tracker.Track(databaseID, query, executionMs, rowCount, queryErr)
	s.metrics.Query(databaseID, executionMs, queryErr)

	if alert, slow := s.slow.Record(databaseID, query, executionMs); slow {
		s.metrics.SlowQuery(databaseID)
		s.logger.Warn("Slow query",
			zap.String("database_id", databaseID),
			zap.String("query_hash", alert.QueryHash),
			zap.Float64("execution_ms", executionMs),
			zap.Int("frequency", alert.Frequency),
			zap.String("sql", logging.SanitizeQuery(query)))
	}
	if queryErr != nil {
		s.logger.Debug("Query failed",
			zap.String("database_id", databaseID),
			zap.String("sql", logging.SanitizeQuery(query)),
			zap.String("error", logging.SanitizeError(queryErr)))
	}
}

func (s *queryService) Explain(ctx context.Context, databaseID, query string, params []any) (*datasource.ExplainResult, error) {
	normalized, err := prepare(query, params)
	if err != nil {
		return nil, err
	}
	adapter, _, err := s.datasources.Adapter(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	explain, err := adapter.Explain(ctx, normalized, params)
	if err != nil {
		return nil, fmt.Errorf("failed to explain query: %w", err)
	}
	return explain, nil
}

// Profile only runs statements that return rows so profiling never modifies data.
func (s *queryService) Profile(ctx context.Context, databaseID, query string, params []any) (*models.PerformanceProfile, error) {
	normalized, err := prepare(query, params)
	if err != nil {
		return nil, err
	}
	if !datasource.ReturnsRows(normalized) {
		return nil, fmt.Errorf("%w: only read queries can be profiled", apperrors.ErrInvalidQuery)
	}

	explain, err := s.Explain(ctx, databaseID, normalized, params)
	if err != nil {
		return nil, err
	}
	result, err := s.Execute(ctx, databaseID, normalized, params, 0)
	if err != nil {
		return nil, err
	}

	plan := explain.FormattedPlan + "\n" + optimizer.PlanText(explain.Plan)
	profile := optimizer.AnalyzeProfile(normalized, plan, result.ExecutionTimeMs, s.slow.ThresholdMs())
	return &profile, nil
}

func (s *queryService) History(databaseID string, limit int) ([]models.QueryHistoryEntry, error) {
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return nil, err
	}
	return s.tracker.History(databaseID, limit), nil
}

func (s *queryService) Stats(databaseID string) (models.QueryStats, error) {
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return models.QueryStats{}, err
	}
	return s.tracker.Stats(databaseID), nil
}

func (s *queryService) ClearHistory(databaseID string) error {
	if databaseID == "" {
		s.tracker.ClearAll()
		s.slow.ClearAll()
		return nil
	}
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return err
	}
	s.tracker.Clear(databaseID)
	s.slow.Clear(databaseID)
	return nil
}

func (s *queryService) Analytics(databaseID string) (models.PerformanceAnalytics, error) {
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return models.PerformanceAnalytics{}, err
	}
	return optimizer.Analyze(databaseID, s.tracker.History(databaseID, 0), s.slow.ThresholdMs()), nil
}

func (s *queryService) IndexRecommendations(ctx context.Context, databaseID string) ([]models.IndexRecommendation, error) {
	schema, err := s.schemas.GetSchema(ctx, databaseID, GetSchemaOptions{IncludeViews: true})
	if err != nil {
		return nil, err
	}
	return optimizer.RecommendIndexes(s.tracker.History(databaseID, 0), schema.Schema), nil
}

func (s *queryService) SlowQueryAlerts(databaseID string) ([]models.SlowQueryAlert, error) {
	if _, err := s.datasources.Lookup(databaseID); err != nil {
		return nil, err
	}
	return s.slow.Alerts(databaseID), nil
}

// SuggestRewrite uses the cached schema when one can be loaded; without it
// only the schema-free heuristics apply.
func (s *queryService) SuggestRewrite(ctx context.Context, databaseID, query string) (models.RewriteSuggestion, error) {
	normalized, err := prepare(query, nil)
	if err != nil {
		return models.RewriteSuggestion{}, err
	}

	var schema *models.DatabaseSchema
	result, err := s.schemas.GetSchema(ctx, databaseID, GetSchemaOptions{IncludeViews: true})
	switch {
	case err == nil:
		schema = result.Schema
	case errors.Is(err, apperrors.ErrNotFound):
		return models.RewriteSuggestion{}, err
	default:
		s.logger.Warn("Rewrite suggestion without schema",
			zap.String("database_id", databaseID),
			zap.String("error", logging.SanitizeError(err)))
	}
	return optimizer.SuggestRewrite(normalized, schema), nil
}
