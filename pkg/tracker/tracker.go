// Package tracker records recent query executions per database in a bounded
// FIFO history.
package tracker

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/sql"
)

// DefaultHistorySize is the per-database history bound.
const DefaultHistorySize = 100

// Annotator fills derived fields (complexity, score) on a new entry before it
// is stored.
type Annotator func(entry *models.QueryHistoryEntry)

// Option customizes a QueryTracker.
type Option func(*QueryTracker)

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(t *QueryTracker) { t.clock = clock }
}

// WithAnnotator sets the annotator applied to each tracked entry.
func WithAnnotator(a Annotator) Option {
	return func(t *QueryTracker) { t.annotate = a }
}

// QueryTracker owns one history per database id. Histories never share state.
type QueryTracker struct {
	size     int
	clock    clockwork.Clock
	annotate Annotator
	logger   *zap.Logger

	mu        sync.RWMutex
	histories map[string]*history
}

// New creates a tracker keeping at most size entries per database
// (DefaultHistorySize when size <= 0).
func New(size int, logger *zap.Logger, opts ...Option) *QueryTracker {
	if size <= 0 {
		size = DefaultHistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &QueryTracker{
		size:      size,
		clock:     clockwork.NewRealClock(),
		logger:    logger.Named("query-tracker"),
		histories: make(map[string]*history),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track appends an execution to the database's history, evicting the oldest
// entry once the bound is exceeded. queryErr is the execution error, if any.
func (t *QueryTracker) Track(databaseID, query string, executionMs float64, rowCount int64, queryErr error) models.QueryHistoryEntry {
	entry := models.QueryHistoryEntry{
		ID:              uuid.New(),
		DatabaseID:      databaseID,
		Timestamp:       t.clock.Now(),
		SQL:             query,
		Tables:          sql.ExtractTables(query),
		ExecutionTimeMs: executionMs,
		RowCount:        rowCount,
	}
	if queryErr != nil {
		msg := queryErr.Error()
		entry.Error = &msg
	}
	if t.annotate != nil {
		t.annotate(&entry)
	}

	t.mu.Lock()
	h, ok := t.histories[databaseID]
	if !ok {
		h = newHistory(t.size)
		t.histories[databaseID] = h
	}
	h.push(entry)
	t.mu.Unlock()

	t.logger.Debug("Tracked query",
		zap.String("database_id", databaseID),
		zap.Float64("execution_ms", executionMs),
		zap.Int64("rows", rowCount),
		zap.Bool("failed", queryErr != nil))

	return entry
}

// History returns the most recent limit entries in insertion order, or all
// of them when limit <= 0. The slice is a copy.
func (t *QueryTracker) History(databaseID string, limit int) []models.QueryHistoryEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.histories[databaseID]
	if !ok {
		return []models.QueryHistoryEntry{}
	}
	return h.last(limit)
}

// Stats aggregates the current history of a database.
func (t *QueryTracker) Stats(databaseID string) models.QueryStats {
	entries := t.History(databaseID, 0)

	stats := models.QueryStats{TableUsage: make(map[string]int)}
	var total float64
	for _, e := range entries {
		stats.TotalQueries++
		total += e.ExecutionTimeMs
		if e.Failed() {
			stats.ErrorCount++
		}
		for _, table := range e.Tables {
			stats.TableUsage[table]++
		}
	}
	if stats.TotalQueries > 0 {
		stats.AvgExecutionTimeMs = total / float64(stats.TotalQueries)
	}
	return stats
}

// Clear empties one database's history.
func (t *QueryTracker) Clear(databaseID string) {
	t.mu.Lock()
	delete(t.histories, databaseID)
	t.mu.Unlock()
}

// ClearAll empties every history.
func (t *QueryTracker) ClearAll() {
	t.mu.Lock()
	t.histories = make(map[string]*history)
	t.mu.Unlock()
}

// history is a fixed-capacity ring buffer.
type history struct {
	entries []models.QueryHistoryEntry
	start   int
	count   int
}

func newHistory(size int) *history {
	return &history{entries: make([]models.QueryHistoryEntry, size)}
}

func (h *history) push(e models.QueryHistoryEntry) {
	idx := (h.start + h.count) % len(h.entries)
	h.entries[idx] = e
	if h.count < len(h.entries) {
		h.count++
		return
	}
	h.start = (h.start + 1) % len(h.entries)
}

func (h *history) last(limit int) []models.QueryHistoryEntry {
	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.QueryHistoryEntry, 0, n)
	for i := h.count - n; i < h.count; i++ {
		out = append(out, h.entries[(h.start+i)%len(h.entries)])
	}
	return out
}
