package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

const systemSchemas = `('pg_catalog', 'information_schema', 'pg_toast')`

const tablesQuery = `
	SELECT
		t.table_schema::text,
		t.table_name::text,
		t.table_type::text,
		obj_description(c.oid, 'pg_class')
	FROM information_schema.tables t
	LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
	LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
	WHERE t.table_type IN ('BASE TABLE', 'VIEW')
	  AND t.table_schema NOT IN ` + systemSchemas + `
	  AND t.table_schema NOT LIKE 'pg_temp%'
	ORDER BY 1, 2
`

const columnsQuery = `
	SELECT
		c.table_schema::text,
		c.table_name::text,
		c.column_name::text,
		c.ordinal_position::int,
		c.data_type::text,
		c.is_nullable = 'YES',
		c.column_default::text,
		c.character_maximum_length::bigint,
		c.numeric_precision::bigint,
		c.numeric_scale::bigint,
		(c.is_identity = 'YES' OR COALESCE(c.column_default, '') LIKE 'nextval(%'),
		col_description(cl.oid, a.attnum)
	FROM information_schema.columns c
	LEFT JOIN pg_namespace n ON n.nspname = c.table_schema
	LEFT JOIN pg_class cl ON cl.relname = c.table_name AND cl.relnamespace = n.oid
	LEFT JOIN pg_attribute a ON a.attrelid = cl.oid AND a.attname = c.column_name
	WHERE c.table_schema NOT IN ` + systemSchemas + `
	ORDER BY 1, 2, 4
`

// Expression index members have attnum 0 and drop out of the join.
const indexesQuery = `
	SELECT
		n.nspname::text,
		t.relname::text,
		i.relname::text,
		a.attname::text,
		k.ord::int,
		ix.indisunique,
		ix.indisprimary
	FROM pg_index ix
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_class i ON i.oid = ix.indexrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	CROSS JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
	WHERE n.nspname NOT IN ` + systemSchemas + `
	ORDER BY 1, 2, 3, 5
`

const foreignKeysQuery = `
	SELECT
		n.nspname::text,
		t.relname::text,
		con.conname::text,
		a.attname::text,
		tn.nspname::text,
		tt.relname::text,
		ta.attname::text,
		k.ord::int,
		con.confupdtype::text,
		con.confdeltype::text
	FROM pg_constraint con
	JOIN pg_class t ON t.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	JOIN pg_class tt ON tt.oid = con.confrelid
	JOIN pg_namespace tn ON tn.oid = tt.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(src, dst, ord)
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.src
	JOIN pg_attribute ta ON ta.attrelid = tt.oid AND ta.attnum = k.dst
	WHERE con.contype = 'f'
	  AND n.nspname NOT IN ` + systemSchemas + `
	ORDER BY 1, 2, 3, 8
`

// referentialActions maps pg_constraint action codes to SQL keywords.
var referentialActions = map[string]string{
	"a": "NO ACTION",
	"r": "RESTRICT",
	"c": "CASCADE",
	"n": "SET NULL",
	"d": "SET DEFAULT",
}

// collect runs query and hands each row to scan.
func (a *Adapter) collect(ctx context.Context, what, query string, scan func(pgx.Rows) error) error {
	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan %s: %w", what, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", what, err)
	}
	return nil
}

// Introspect reads tables, views, columns, indexes and foreign keys from
// the system catalogs.
func (a *Adapter) Introspect(ctx context.Context, opts models.IntrospectionOptions) (*models.DatabaseSchema, error) {
	if a.pool == nil {
		return nil, apperrors.ErrNotConnected
	}
	start := time.Now()
	b := datasource.NewSchemaBuilder(models.EngineTypePostgres, opts)

	err := a.collect(ctx, "tables", tablesQuery, func(rows pgx.Rows) error {
		var t datasource.TableMetadata
		var tableType string
		if err := rows.Scan(&t.Schema, &t.Name, &tableType, &t.Comment); err != nil {
			return err
		}
		t.Kind = models.TableKindTable
		if tableType == "VIEW" {
			t.Kind = models.TableKindView
		}
		b.AddTable(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = a.collect(ctx, "columns", columnsQuery, func(rows pgx.Rows) error {
		var c datasource.ColumnMetadata
		col := &c.Column
		if err := rows.Scan(&c.Schema, &c.Table, &col.Name, &c.Position, &col.DataType, &col.IsNullable,
			&col.DefaultValue, &col.MaxLength, &col.Precision, &col.Scale, &col.IsAutoIncrement, &col.Comment); err != nil {
			return err
		}
		b.AddColumn(c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = a.collect(ctx, "indexes", indexesQuery, func(rows pgx.Rows) error {
		var ix datasource.IndexMetadata
		if err := rows.Scan(&ix.Schema, &ix.Table, &ix.Name, &ix.Column, &ix.Position, &ix.IsUnique, &ix.IsPrimary); err != nil {
			return err
		}
		b.AddIndexColumn(ix)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = a.collect(ctx, "foreign keys", foreignKeysQuery, func(rows pgx.Rows) error {
		var fk datasource.ForeignKeyMetadata
		var onUpdate, onDelete string
		if err := rows.Scan(&fk.Schema, &fk.Table, &fk.Name, &fk.Column, &fk.TargetSchema, &fk.TargetTable,
			&fk.TargetColumn, &fk.Position, &onUpdate, &onDelete); err != nil {
			return err
		}
		fk.OnUpdate = referentialActions[onUpdate]
		fk.OnDelete = referentialActions[onDelete]
		b.AddForeignKeyColumn(fk)
		return nil
	})
	if err != nil {
		return nil, err
	}

	schema := b.Build(a.databaseID, time.Now().UTC())
	a.logger.Debug("introspected schema",
		zap.Int("tables", schema.TableCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return schema, nil
}
