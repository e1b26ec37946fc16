package models

import (
	"strings"
	"time"
)

// Engine types for configured databases.
const (
	EngineTypePostgres = "postgres"
	EngineTypeMySQL    = "mysql"
	EngineTypeSQLite   = "sqlite"
	EngineTypeMSSQL    = "sqlserver"
)

// Table kinds
const (
	TableKindTable = "table"
	TableKindView  = "view"
)

// Column represents an introspected table column. Immutable once introspected.
type Column struct {
	Name            string  `json:"name"`
	DataType        string  `json:"data_type"`
	IsNullable      bool    `json:"is_nullable"`
	DefaultValue    *string `json:"default_value,omitempty"`
	MaxLength       *int64  `json:"max_length,omitempty"`
	Precision       *int64  `json:"precision,omitempty"`
	Scale           *int64  `json:"scale,omitempty"`
	IsAutoIncrement bool    `json:"is_auto_increment"`
	Comment         *string `json:"comment,omitempty"`
}

// Index represents a table index. Columns are in index order.
type Index struct {
	Name      string   `json:"name"`
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"is_unique"`
	IsPrimary bool     `json:"is_primary"`
}

// ForeignKey represents a declared foreign key constraint.
type ForeignKey struct {
	Name          string   `json:"name"`
	Columns       []string `json:"columns"`
	TargetSchema  string   `json:"target_schema"`
	TargetTable   string   `json:"target_table"`
	TargetColumns []string `json:"target_columns"`
	OnUpdate      string   `json:"on_update,omitempty"`
	OnDelete      string   `json:"on_delete,omitempty"`
}

// Table represents a table or view. Identity is (Schema, Name).
type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Kind        string       `json:"kind"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  *Index       `json:"primary_key,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Comment     *string      `json:"comment,omitempty"`
}

// QualifiedName returns "schema.table", or just the table name when schema is empty.
func (t *Table) QualifiedName() string {
	return QualifiedName(t.Schema, t.Name)
}

// Column returns the column with the given name (case-insensitive), or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasPrimaryKey reports whether the table exposes a non-empty primary key.
func (t *Table) HasPrimaryKey() bool {
	return t.PrimaryKey != nil && len(t.PrimaryKey.Columns) > 0
}

// IsIndexed reports whether column is the leading column of the primary key
// or of any secondary index.
func (t *Table) IsIndexed(column string) bool {
	if t.HasPrimaryKey() && strings.EqualFold(t.PrimaryKey.Columns[0], column) {
		return true
	}
	for _, idx := range t.Indexes {
		if len(idx.Columns) > 0 && strings.EqualFold(idx.Columns[0], column) {
			return true
		}
	}
	return false
}

// SchemaMetadata is a named schema grouping tables. Engines without schema
// namespacing use a single synthetic schema.
type SchemaMetadata struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// DatabaseSchema is the full introspected structure of one database.
type DatabaseSchema struct {
	DatabaseID     string           `json:"database_id"`
	Engine         string           `json:"engine"`
	Schemas        []SchemaMetadata `json:"schemas"`
	IntrospectedAt time.Time        `json:"introspected_at"`
	Version        string           `json:"version"`
}

// TableCount returns the number of tables and views across all schemas.
func (s *DatabaseSchema) TableCount() int {
	n := 0
	for _, sm := range s.Schemas {
		n += len(sm.Tables)
	}
	return n
}

// AllTables returns pointers to every table in schema order.
func (s *DatabaseSchema) AllTables() []*Table {
	tables := make([]*Table, 0, s.TableCount())
	for i := range s.Schemas {
		for j := range s.Schemas[i].Tables {
			tables = append(tables, &s.Schemas[i].Tables[j])
		}
	}
	return tables
}

// FindTable looks up a table by "table" or "schema.table" (case-insensitive).
// An unqualified name resolves to the first match in schema order.
func (s *DatabaseSchema) FindTable(name string) *Table {
	schemaName, tableName := SplitQualifiedName(name)
	for _, t := range s.AllTables() {
		if !strings.EqualFold(t.Name, tableName) {
			continue
		}
		if schemaName == "" || strings.EqualFold(t.Schema, schemaName) {
			return t
		}
	}
	return nil
}

// IntrospectionOptions controls what an adapter introspects.
type IntrospectionOptions struct {
	IncludeViews    bool     `json:"include_views"`
	IncludeRoutines bool     `json:"include_routines"`
	MaxTables       int      `json:"max_tables,omitempty"`
	IncludeSchemas  []string `json:"include_schemas,omitempty"`
	ExcludeSchemas  []string `json:"exclude_schemas,omitempty"`
}

// DefaultIntrospectionOptions returns options with views included and routines excluded.
func DefaultIntrospectionOptions() IntrospectionOptions {
	return IntrospectionOptions{IncludeViews: true}
}

// QualifiedName joins schema and table with a dot. Empty schema yields the bare table name.
func QualifiedName(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// SplitQualifiedName splits "schema.table" into its parts. A bare name has an empty schema.
func SplitQualifiedName(name string) (string, string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
