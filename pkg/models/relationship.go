package models

import (
	"strings"
	"time"
)

// Relationship kinds
const (
	RelationshipKindForeignKey = "foreign_key"
	RelationshipKindInferred   = "inferred"
)

// Relationship connects source columns of one table to target columns of another.
// Confidence is only set for inferred relationships.
type Relationship struct {
	SourceSchema  string   `json:"source_schema"`
	SourceTable   string   `json:"source_table"`
	SourceColumns []string `json:"source_columns"`
	TargetSchema  string   `json:"target_schema"`
	TargetTable   string   `json:"target_table"`
	TargetColumns []string `json:"target_columns"`
	Kind          string   `json:"kind"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

// Key returns the deduplication identity: source and target
// schema.table.columns, lower-cased.
func (r Relationship) Key() string {
	src := QualifiedName(r.SourceSchema, r.SourceTable) + "." + strings.Join(r.SourceColumns, ",")
	dst := QualifiedName(r.TargetSchema, r.TargetTable) + "." + strings.Join(r.TargetColumns, ",")
	return strings.ToLower(src + "->" + dst)
}

// Reverse returns the relationship with source and target swapped.
func (r Relationship) Reverse() Relationship {
	return Relationship{
		SourceSchema:  r.TargetSchema,
		SourceTable:   r.TargetTable,
		SourceColumns: r.TargetColumns,
		TargetSchema:  r.SourceSchema,
		TargetTable:   r.SourceTable,
		TargetColumns: r.SourceColumns,
		Kind:          r.Kind,
		Confidence:    r.Confidence,
	}
}

// CacheEntry is one cached introspection result. Entries are replaced, never mutated.
type CacheEntry struct {
	Schema        *DatabaseSchema `json:"schema"`
	Relationships []Relationship  `json:"relationships"`
	CachedAt      time.Time       `json:"cached_at"`
	TTLMinutes    int             `json:"ttl_minutes"`
}

// ExpiresAt returns the instant after which the entry is stale.
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.CachedAt.Add(time.Duration(e.TTLMinutes) * time.Minute)
}

// IsExpired reports whether the entry's age exceeds its TTL at now.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.Sub(e.CachedAt) > time.Duration(e.TTLMinutes)*time.Minute
}

// CacheStatus describes the cache state of a single database.
type CacheStatus struct {
	DatabaseID        string     `json:"database_id"`
	Exists            bool       `json:"exists"`
	InMemory          bool       `json:"in_memory"`
	CachedAt          *time.Time `json:"cached_at,omitempty"`
	AgeSeconds        int64      `json:"age_seconds"`
	TTLMinutes        int        `json:"ttl_minutes"`
	Expired           bool       `json:"expired"`
	Version           string     `json:"version,omitempty"`
	TableCount        int        `json:"table_count"`
	RelationshipCount int        `json:"relationship_count"`
}
