// Package relationships derives table relationships from declared foreign keys
// and column naming conventions, and searches the resulting graph for join paths.
package relationships

import (
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// InferredConfidence is the confidence assigned to naming-based relationships.
const InferredConfidence = 0.7

// Naming patterns that mark a column as a reference to another table.
// A column like "user_id" matches both, yielding candidates "user" and "user_".
var candidatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+)_id$`),
	regexp.MustCompile(`^(.+)id$`),
}

// Build returns the relationships of a schema: one foreign_key relationship per
// declared foreign key, followed by deduplicated inferred relationships.
func Build(schema *models.DatabaseSchema) []models.Relationship {
	if schema == nil {
		return nil
	}

	set := newRelationshipSet()
	for _, t := range schema.AllTables() {
		for _, fk := range t.ForeignKeys {
			set.add(foreignKeyRelationship(t, fk))
		}
	}
	for _, rel := range Infer(schema) {
		set.add(rel)
	}
	return set.list()
}

func foreignKeyRelationship(t *models.Table, fk models.ForeignKey) models.Relationship {
	targetSchema := fk.TargetSchema
	if targetSchema == "" {
		targetSchema = t.Schema
	}
	return models.Relationship{
		SourceSchema:  t.Schema,
		SourceTable:   t.Name,
		SourceColumns: append([]string(nil), fk.Columns...),
		TargetSchema:  targetSchema,
		TargetTable:   fk.TargetTable,
		TargetColumns: append([]string(nil), fk.TargetColumns...),
		Kind:          models.RelationshipKindForeignKey,
	}
}

// Infer proposes relationships from column names. A column "<candidate>_id" or
// "<candidate>id" points to the primary key of a table named after the candidate
// (also tried in singular and plural form). Tables without a primary key are
// never targets. Results are not deduplicated.
func Infer(schema *models.DatabaseSchema) []models.Relationship {
	lookup := newTableLookup(schema)

	var inferred []models.Relationship
	for _, source := range schema.AllTables() {
		for _, col := range source.Columns {
			name := strings.ToLower(col.Name)
			for _, pattern := range candidatePatterns {
				m := pattern.FindStringSubmatch(name)
				if m == nil {
					continue
				}
				target := lookup.resolve(source.Schema, m[1])
				if target == nil || !target.HasPrimaryKey() {
					continue
				}
				if target == source && containsFold(target.PrimaryKey.Columns, col.Name) {
					continue
				}
				confidence := InferredConfidence
				inferred = append(inferred, models.Relationship{
					SourceSchema:  source.Schema,
					SourceTable:   source.Name,
					SourceColumns: []string{col.Name},
					TargetSchema:  target.Schema,
					TargetTable:   target.Name,
					TargetColumns: append([]string(nil), target.PrimaryKey.Columns...),
					Kind:          models.RelationshipKindInferred,
					Confidence:    &confidence,
				})
			}
		}
	}
	return inferred
}

// tableLookup indexes tables by lower-cased bare and schema-qualified name.
type tableLookup struct {
	byName map[string]*models.Table
}

func newTableLookup(schema *models.DatabaseSchema) *tableLookup {
	l := &tableLookup{byName: make(map[string]*models.Table)}
	for _, t := range schema.AllTables() {
		bare := strings.ToLower(t.Name)
		if _, exists := l.byName[bare]; !exists {
			l.byName[bare] = t
		}
		l.byName[strings.ToLower(t.QualifiedName())] = t
	}
	return l
}

// resolve finds the table a candidate name refers to, preferring the source's
// own schema, then any schema, trying the candidate as-is, plural and singular.
func (l *tableLookup) resolve(sourceSchema, candidate string) *models.Table {
	candidate = strings.Trim(candidate, "_")
	if candidate == "" {
		return nil
	}
	forms := []string{candidate, inflection.Plural(candidate), inflection.Singular(candidate)}
	for _, form := range forms {
		if sourceSchema != "" {
			if t, ok := l.byName[strings.ToLower(models.QualifiedName(sourceSchema, form))]; ok {
				return t
			}
		}
		if t, ok := l.byName[strings.ToLower(form)]; ok {
			return t
		}
	}
	return nil
}

// relationshipSet keeps insertion order and applies precedence rules:
// foreign_key beats inferred, and the first inferred relationship wins.
type relationshipSet struct {
	index map[string]int
	items []models.Relationship
}

func newRelationshipSet() *relationshipSet {
	return &relationshipSet{index: make(map[string]int)}
}

func (s *relationshipSet) add(rel models.Relationship) {
	key := rel.Key()
	if i, exists := s.index[key]; exists {
		if s.items[i].Kind == models.RelationshipKindInferred && rel.Kind == models.RelationshipKindForeignKey {
			s.items[i] = rel
		}
		return
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, rel)
}

func (s *relationshipSet) list() []models.Relationship {
	return s.items
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
