package datasource

import "github.com/ekaya-inc/ekaya-dbintel/pkg/models"

// TableMetadata represents a discovered table or view.
type TableMetadata struct {
	Schema  string
	Name    string
	Kind    string // models.TableKindTable or models.TableKindView
	Comment *string
}

// ColumnMetadata represents a discovered column of one table.
type ColumnMetadata struct {
	Schema   string
	Table    string
	Position int
	Column   models.Column
}

// IndexMetadata is one column of a discovered index. Multi-column indexes
// are reported as one row per column, ordered by Position.
type IndexMetadata struct {
	Schema    string
	Table     string
	Name      string
	Column    string
	Position  int
	IsUnique  bool
	IsPrimary bool
}

// ForeignKeyMetadata is one column pair of a discovered foreign key
// constraint. Composite keys are reported as one row per pair.
type ForeignKeyMetadata struct {
	Schema       string
	Table        string
	Name         string
	Column       string
	TargetSchema string
	TargetTable  string
	TargetColumn string
	Position     int
	OnUpdate     string
	OnDelete     string
}
