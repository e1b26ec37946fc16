package datasource

import (
	"sort"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// SchemaBuilder assembles a models.DatabaseSchema from per-row catalog
// metadata. Every adapter feeds it the same way so that IncludeViews,
// MaxTables, IncludeSchemas and ExcludeSchemas behave identically across
// engines.
type SchemaBuilder struct {
	engine  string
	opts    models.IntrospectionOptions
	tables  map[string]*tableParts
	ordered []string
}

type tableParts struct {
	meta    TableMetadata
	columns []ColumnMetadata
	indexes []IndexMetadata
	fks     []ForeignKeyMetadata
}

// NewSchemaBuilder creates a builder for one introspection run.
func NewSchemaBuilder(engine string, opts models.IntrospectionOptions) *SchemaBuilder {
	return &SchemaBuilder{
		engine: engine,
		opts:   opts,
		tables: make(map[string]*tableParts),
	}
}

func tableKey(schema, table string) string {
	return strings.ToLower(schema) + "." + strings.ToLower(table)
}

// SchemaAllowed reports whether tables in schema pass the include and
// exclude filters. Matching is case-insensitive.
func (b *SchemaBuilder) SchemaAllowed(schema string) bool {
	if len(b.opts.IncludeSchemas) > 0 && !containsFold(b.opts.IncludeSchemas, schema) {
		return false
	}
	return !containsFold(b.opts.ExcludeSchemas, schema)
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// AddTable registers a table or view. Filtered tables are dropped here,
// and later rows for them are ignored.
func (b *SchemaBuilder) AddTable(t TableMetadata) {
	if t.Kind == "" {
		t.Kind = models.TableKindTable
	}
	if !b.SchemaAllowed(t.Schema) {
		return
	}
	if t.Kind == models.TableKindView && !b.opts.IncludeViews {
		return
	}
	key := tableKey(t.Schema, t.Name)
	if _, exists := b.tables[key]; exists {
		return
	}
	b.tables[key] = &tableParts{meta: t}
	b.ordered = append(b.ordered, key)
}

// AddColumn attaches a column to a previously added table.
func (b *SchemaBuilder) AddColumn(c ColumnMetadata) {
	if p := b.tables[tableKey(c.Schema, c.Table)]; p != nil {
		p.columns = append(p.columns, c)
	}
}

// AddIndexColumn attaches one index column to a previously added table.
func (b *SchemaBuilder) AddIndexColumn(ix IndexMetadata) {
	if p := b.tables[tableKey(ix.Schema, ix.Table)]; p != nil {
		p.indexes = append(p.indexes, ix)
	}
}

// AddForeignKeyColumn attaches one foreign key column pair to a previously
// added table. An empty target schema defaults to the source schema.
func (b *SchemaBuilder) AddForeignKeyColumn(fk ForeignKeyMetadata) {
	if fk.TargetSchema == "" {
		fk.TargetSchema = fk.Schema
	}
	if p := b.tables[tableKey(fk.Schema, fk.Table)]; p != nil {
		p.fks = append(p.fks, fk)
	}
}

// Build assembles the schema. Tables are ordered by schema then name, and
// MaxTables keeps the first N in that order.
func (b *SchemaBuilder) Build(databaseID string, introspectedAt time.Time) *models.DatabaseSchema {
	parts := make([]*tableParts, 0, len(b.ordered))
	for _, key := range b.ordered {
		parts = append(parts, b.tables[key])
	}
	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].meta.Schema != parts[j].meta.Schema {
			return parts[i].meta.Schema < parts[j].meta.Schema
		}
		return parts[i].meta.Name < parts[j].meta.Name
	})
	if b.opts.MaxTables > 0 && len(parts) > b.opts.MaxTables {
		parts = parts[:b.opts.MaxTables]
	}

	schema := &models.DatabaseSchema{
		DatabaseID:     databaseID,
		Engine:         b.engine,
		Schemas:        []models.SchemaMetadata{},
		IntrospectedAt: introspectedAt,
	}
	for _, p := range parts {
		table := p.build()
		n := len(schema.Schemas)
		if n == 0 || schema.Schemas[n-1].Name != table.Schema {
			schema.Schemas = append(schema.Schemas, models.SchemaMetadata{Name: table.Schema})
			n++
		}
		schema.Schemas[n-1].Tables = append(schema.Schemas[n-1].Tables, table)
	}
	return schema
}

func (p *tableParts) build() models.Table {
	table := models.Table{
		Schema:  p.meta.Schema,
		Name:    p.meta.Name,
		Kind:    p.meta.Kind,
		Comment: p.meta.Comment,
		Columns: make([]models.Column, 0, len(p.columns)),
	}

	sort.SliceStable(p.columns, func(i, j int) bool { return p.columns[i].Position < p.columns[j].Position })
	for _, c := range p.columns {
		table.Columns = append(table.Columns, c.Column)
	}

	for _, idx := range groupIndexes(p.indexes) {
		if idx.IsPrimary {
			pk := idx
			table.PrimaryKey = &pk
			continue
		}
		table.Indexes = append(table.Indexes, idx)
	}

	table.ForeignKeys = groupForeignKeys(p.fks)
	return table
}

// groupIndexes merges per-column rows into indexes, keeping first-seen
// index order and ordering columns by position.
func groupIndexes(rows []IndexMetadata) []models.Index {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	var order []string
	byName := make(map[string]*models.Index)
	for _, r := range rows {
		idx, ok := byName[r.Name]
		if !ok {
			idx = &models.Index{Name: r.Name, IsUnique: r.IsUnique || r.IsPrimary, IsPrimary: r.IsPrimary}
			byName[r.Name] = idx
			order = append(order, r.Name)
		}
		idx.Columns = append(idx.Columns, r.Column)
	}

	indexes := make([]models.Index, 0, len(order))
	for _, name := range order {
		indexes = append(indexes, *byName[name])
	}
	sort.SliceStable(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes
}

func groupForeignKeys(rows []ForeignKeyMetadata) []models.ForeignKey {
	if len(rows) == 0 {
		return nil
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	var order []string
	byName := make(map[string]*models.ForeignKey)
	for _, r := range rows {
		fk, ok := byName[r.Name]
		if !ok {
			fk = &models.ForeignKey{
				Name:         r.Name,
				TargetSchema: r.TargetSchema,
				TargetTable:  r.TargetTable,
				OnUpdate:     r.OnUpdate,
				OnDelete:     r.OnDelete,
			}
			byName[r.Name] = fk
			order = append(order, r.Name)
		}
		fk.Columns = append(fk.Columns, r.Column)
		fk.TargetColumns = append(fk.TargetColumns, r.TargetColumn)
	}

	sort.Strings(order)
	fks := make([]models.ForeignKey, 0, len(order))
	for _, name := range order {
		fks = append(fks, *byName[name])
	}
	return fks
}
