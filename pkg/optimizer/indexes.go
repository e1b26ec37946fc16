package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/sql"
)

// Index recommendation thresholds, in number of queries referencing a column.
const (
	MinIndexUsage     = 3
	highImpactUsage   = 10
	mediumImpactUsage = 5
)

type columnKey struct {
	table  *models.Table
	column string
}

// RecommendIndexes counts, per table column, how many history entries use it
// in a WHERE or JOIN ... ON predicate, and recommends a single-column index for
// every column used at least MinIndexUsage times that is not already the
// leading column of the primary key or of an existing index. Tables or
// columns absent from schema are skipped.
func RecommendIndexes(history []models.QueryHistoryEntry, schema *models.DatabaseSchema) []models.IndexRecommendation {
	recs := []models.IndexRecommendation{}
	if schema == nil {
		return recs
	}

	usage := make(map[string]int)
	keys := make(map[string]columnKey)

	for _, entry := range history {
		seen := make(map[string]bool)
		for _, k := range predicateColumns(entry.SQL, schema) {
			id := strings.ToLower(k.table.QualifiedName() + "." + k.column)
			if seen[id] {
				continue
			}
			seen[id] = true
			usage[id]++
			keys[id] = k
		}
	}

	for id, count := range usage {
		if count < MinIndexUsage {
			continue
		}
		k := keys[id]
		if k.table.IsIndexed(k.column) {
			continue
		}
		recs = append(recs, models.IndexRecommendation{
			Schema:     k.table.Schema,
			Table:      k.table.Name,
			Columns:    []string{k.column},
			UsageCount: count,
			Impact:     impactFor(count),
			Reason:     fmt.Sprintf("Column %s is filtered or joined on in %d of %d tracked queries and has no index", k.column, count, len(history)),
			SQL:        createIndexSQL(k.table, k.column),
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].UsageCount != recs[j].UsageCount {
			return recs[i].UsageCount > recs[j].UsageCount
		}
		if recs[i].Table != recs[j].Table {
			return recs[i].Table < recs[j].Table
		}
		return recs[i].Columns[0] < recs[j].Columns[0]
	})
	return recs
}

func impactFor(count int) string {
	switch {
	case count >= highImpactUsage:
		return models.ImpactHigh
	case count >= mediumImpactUsage:
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

func createIndexSQL(t *models.Table, column string) string {
	name := fmt.Sprintf("idx_%s_%s", strings.ToLower(t.Name), strings.ToLower(column))
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, t.QualifiedName(), column)
}

// predicateColumns resolves the predicate columns of one query to schema
// tables. Qualifiers are matched against aliases and table names; an
// unqualified column goes to the first referenced table that has it.
func predicateColumns(query string, schema *models.DatabaseSchema) []columnKey {
	refs := sql.TableRefs(query)
	if len(refs) == 0 {
		return nil
	}

	byQualifier := make(map[string]*models.Table)
	var tables []*models.Table
	for _, ref := range refs {
		t := schema.FindTable(ref.Name)
		if t == nil {
			continue
		}
		tables = append(tables, t)
		byQualifier[ref.Name] = t
		if _, bare := models.SplitQualifiedName(ref.Name); bare != ref.Name {
			byQualifier[bare] = t
		}
		if ref.Alias != "" {
			byQualifier[ref.Alias] = t
		}
	}
	if len(tables) == 0 {
		return nil
	}

	var out []columnKey
	for _, ref := range sql.PredicateColumns(query) {
		var target *models.Table
		if ref.Qualifier != "" {
			target = byQualifier[ref.Qualifier]
		} else {
			for _, t := range tables {
				if t.Column(ref.Column) != nil {
					target = t
					break
				}
			}
		}
		if target == nil {
			continue
		}
		col := target.Column(ref.Column)
		if col == nil {
			continue
		}
		out = append(out, columnKey{table: target, column: col.Name})
	}
	return out
}
