package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

const primaryKeyName = "primary"

type sqliteTable struct {
	name string
	kind string
}

// Introspect reads sqlite_master and the table, index and foreign key
// pragmas. Every table lives in the "main" schema.
func (a *Adapter) Introspect(ctx context.Context, opts models.IntrospectionOptions) (*models.DatabaseSchema, error) {
	start := time.Now()
	b := datasource.NewSchemaBuilder(models.EngineTypeSQLite, opts)

	var tables []sqliteTable
	err := a.each(ctx,
		"SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name",
		nil,
		func(rows *sql.Rows) error {
			var t sqliteTable
			if err := rows.Scan(&t.name, &t.kind); err != nil {
				return err
			}
			tables = append(tables, t)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite tables: %w", err)
	}

	primaryKeys := make(map[string][]string)
	for _, t := range tables {
		kind := models.TableKindTable
		if t.kind == "view" {
			kind = models.TableKindView
		}
		b.AddTable(datasource.TableMetadata{Schema: SchemaName, Name: t.name, Kind: kind})

		pk, err := a.addColumns(ctx, b, t.name)
		if err != nil {
			return nil, err
		}
		primaryKeys[strings.ToLower(t.name)] = pk

		if kind == models.TableKindTable {
			if err := a.addIndexes(ctx, b, t.name); err != nil {
				return nil, err
			}
		}
	}

	for _, t := range tables {
		if t.kind != "table" {
			continue
		}
		if err := a.addForeignKeys(ctx, b, t.name, primaryKeys); err != nil {
			return nil, err
		}
	}

	schema := b.Build(a.databaseID, time.Now().UTC())
	a.logger.Debug("introspected schema",
		zap.Int("tables", schema.TableCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return schema, nil
}

// addColumns reads PRAGMA table_info and returns the primary key columns
// in key order. A lone INTEGER PRIMARY KEY aliases the rowid and is
// reported as auto-increment.
func (a *Adapter) addColumns(ctx context.Context, b *datasource.SchemaBuilder, table string) ([]string, error) {
	type pkColumn struct {
		name     string
		position int
		declared string
	}
	var pks []pkColumn
	var columns []datasource.ColumnMetadata

	err := a.each(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table), nil, func(rows *sql.Rows) error {
		var (
			cid      int
			name     string
			declared string
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &declared, &notNull, &dflt, &pk); err != nil {
			return err
		}
		col := models.Column{
			Name:       name,
			DataType:   declared,
			IsNullable: notNull == 0 && pk == 0,
		}
		col.MaxLength, col.Precision, col.Scale = datasource.ParseTypeModifiers(declared)
		if dflt.Valid {
			v := dflt.String
			col.DefaultValue = &v
		}
		if pk > 0 {
			pks = append(pks, pkColumn{name: name, position: pk, declared: declared})
		}
		columns = append(columns, datasource.ColumnMetadata{Schema: SchemaName, Table: table, Position: cid, Column: col})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite columns of %s: %w", table, err)
	}

	rowidAlias := len(pks) == 1 && strings.EqualFold(pks[0].declared, "INTEGER")
	names := make([]string, len(pks))
	for _, pk := range pks {
		names[pk.position-1] = pk.name
		b.AddIndexColumn(datasource.IndexMetadata{
			Schema: SchemaName, Table: table, Name: primaryKeyName,
			Column: pk.name, Position: pk.position, IsUnique: true, IsPrimary: true,
		})
	}
	for _, c := range columns {
		if rowidAlias && c.Column.Name == pks[0].name {
			c.Column.IsAutoIncrement = true
		}
		b.AddColumn(c)
	}
	return names, nil
}

// addIndexes reads PRAGMA index_list and index_info. Indexes backing the
// primary key are skipped; expression members have no column name.
func (a *Adapter) addIndexes(ctx context.Context, b *datasource.SchemaBuilder, table string) error {
	type entry struct {
		name   string
		unique bool
	}
	var entries []entry

	err := a.each(ctx, fmt.Sprintf("PRAGMA index_list(%q)", table), nil, func(rows *sql.Rows) error {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return err
		}
		if origin != "pk" {
			entries = append(entries, entry{name: name, unique: unique == 1})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite index_list of %s: %w", table, err)
	}

	for _, e := range entries {
		err := a.each(ctx, fmt.Sprintf("PRAGMA index_info(%q)", e.name), nil, func(rows *sql.Rows) error {
			var (
				seqno int
				cid   int
				name  sql.NullString
			)
			if err := rows.Scan(&seqno, &cid, &name); err != nil {
				return err
			}
			if name.Valid {
				b.AddIndexColumn(datasource.IndexMetadata{
					Schema: SchemaName, Table: table, Name: e.name,
					Column: name.String, Position: seqno + 1, IsUnique: e.unique,
				})
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("sqlite index_info of %s: %w", e.name, err)
		}
	}
	return nil
}

// addForeignKeys reads PRAGMA foreign_key_list. A reference without a
// target column points at the target's primary key.
func (a *Adapter) addForeignKeys(ctx context.Context, b *datasource.SchemaBuilder, table string, primaryKeys map[string][]string) error {
	err := a.each(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", table), nil, func(rows *sql.Rows) error {
		var (
			id       int
			seq      int
			refTable string
			from     string
			to       sql.NullString
			onUpdate string
			onDelete string
			match    string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return err
		}

		target := to.String
		if !to.Valid || target == "" {
			if pk := primaryKeys[strings.ToLower(refTable)]; seq < len(pk) {
				target = pk[seq]
			}
		}

		b.AddForeignKeyColumn(datasource.ForeignKeyMetadata{
			Schema:       SchemaName,
			Table:        table,
			Name:         fmt.Sprintf("fk_%s_%d", table, id),
			Column:       from,
			TargetSchema: SchemaName,
			TargetTable:  refTable,
			TargetColumn: target,
			Position:     seq,
			OnUpdate:     onUpdate,
			OnDelete:     onDelete,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite foreign_key_list of %s: %w", table, err)
	}
	return nil
}
