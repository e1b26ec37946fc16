package optimizer

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/sql"
)

// DefaultSlowQueryThresholdMs is used when no threshold is configured.
const DefaultSlowQueryThresholdMs = 1000

// QueryHash returns a stable identifier for query text. Whitespace, case and
// comments do not change the hash.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(sql.Normalize(query)))
	return hex.EncodeToString(sum[:8])
}

// SlowQueryMonitor aggregates slow executions per database, one alert per
// distinct query text.
type SlowQueryMonitor struct {
	thresholdMs float64
	clock       clockwork.Clock

	mu     sync.Mutex
	alerts map[string]map[string]*models.SlowQueryAlert
}

// NewSlowQueryMonitor creates a monitor. thresholdMs <= 0 uses
// DefaultSlowQueryThresholdMs; a nil clock uses the wall clock.
func NewSlowQueryMonitor(thresholdMs float64, clock clockwork.Clock) *SlowQueryMonitor {
	if thresholdMs <= 0 {
		thresholdMs = DefaultSlowQueryThresholdMs
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SlowQueryMonitor{
		thresholdMs: thresholdMs,
		clock:       clock,
		alerts:      make(map[string]map[string]*models.SlowQueryAlert),
	}
}

// ThresholdMs returns the slow-query threshold.
func (m *SlowQueryMonitor) ThresholdMs() float64 {
	return m.thresholdMs
}

// Record registers an execution. Executions at or under the threshold are
// ignored and return false. A repeated slow query updates its existing alert.
func (m *SlowQueryMonitor) Record(databaseID, query string, executionMs float64) (models.SlowQueryAlert, bool) {
	if executionMs <= m.thresholdMs {
		return models.SlowQueryAlert{}, false
	}

	hash := QueryHash(query)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	byHash, ok := m.alerts[databaseID]
	if !ok {
		byHash = make(map[string]*models.SlowQueryAlert)
		m.alerts[databaseID] = byHash
	}

	alert, ok := byHash[hash]
	if !ok {
		alert = &models.SlowQueryAlert{
			QueryHash:   hash,
			DatabaseID:  databaseID,
			SQL:         query,
			ThresholdMs: m.thresholdMs,
			FirstSeen:   now,
		}
		byHash[hash] = alert
	}
	alert.Frequency++
	alert.LastExecutionMs = executionMs
	alert.LastSeen = now
	if executionMs > alert.MaxExecutionMs {
		alert.MaxExecutionMs = executionMs
	}

	return *alert, true
}

// Alerts returns a copy of a database's alerts, most frequent first, then
// slowest first.
func (m *SlowQueryMonitor) Alerts(databaseID string) []models.SlowQueryAlert {
	m.mu.Lock()
	out := make([]models.SlowQueryAlert, 0, len(m.alerts[databaseID]))
	for _, a := range m.alerts[databaseID] {
		out = append(out, *a)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		if out[i].MaxExecutionMs != out[j].MaxExecutionMs {
			return out[i].MaxExecutionMs > out[j].MaxExecutionMs
		}
		return out[i].QueryHash < out[j].QueryHash
	})
	return out
}

// Clear drops a database's alerts.
func (m *SlowQueryMonitor) Clear(databaseID string) {
	m.mu.Lock()
	delete(m.alerts, databaseID)
	m.mu.Unlock()
}

// ClearAll drops every alert.
func (m *SlowQueryMonitor) ClearAll() {
	m.mu.Lock()
	m.alerts = make(map[string]map[string]*models.SlowQueryAlert)
	m.mu.Unlock()
}
