package mssql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

const tablesQuery = `
	SELECT s.name, o.name, RTRIM(o.type), CAST(ep.value AS NVARCHAR(MAX))
	FROM sys.objects o
	INNER JOIN sys.schemas s ON s.schema_id = o.schema_id
	LEFT JOIN sys.extended_properties ep
		ON ep.class = 1 AND ep.major_id = o.object_id AND ep.minor_id = 0 AND ep.name = 'MS_Description'
	WHERE o.type IN ('U', 'V')
	  AND o.is_ms_shipped = 0
	ORDER BY s.name, o.name`

// sys.columns reports nvarchar lengths in bytes and -1 for MAX.
const columnsQuery = `
	SELECT
		s.name,
		o.name,
		c.name,
		c.column_id,
		tp.name,
		c.is_nullable,
		dc.definition,
		CASE
			WHEN c.max_length = -1 THEN NULL
			WHEN tp.name IN ('nvarchar', 'nchar') THEN c.max_length / 2
			WHEN tp.name IN ('varchar', 'char', 'varbinary', 'binary') THEN c.max_length
		END,
		CASE WHEN tp.name IN ('decimal', 'numeric') THEN c.precision END,
		CASE WHEN tp.name IN ('decimal', 'numeric') THEN c.scale END,
		c.is_identity,
		CAST(ep.value AS NVARCHAR(MAX))
	FROM sys.columns c
	INNER JOIN sys.objects o ON o.object_id = c.object_id
	INNER JOIN sys.schemas s ON s.schema_id = o.schema_id
	INNER JOIN sys.types tp ON tp.user_type_id = c.user_type_id
	LEFT JOIN sys.default_constraints dc ON dc.object_id = c.default_object_id
	LEFT JOIN sys.extended_properties ep
		ON ep.class = 1 AND ep.major_id = c.object_id AND ep.minor_id = c.column_id AND ep.name = 'MS_Description'
	WHERE o.type IN ('U', 'V')
	  AND o.is_ms_shipped = 0
	ORDER BY s.name, o.name, c.column_id`

// Included columns have key_ordinal 0 and are not part of the key.
const indexesQuery = `
	SELECT s.name, t.name, i.name, c.name, ic.key_ordinal, i.is_unique, i.is_primary_key
	FROM sys.indexes i
	INNER JOIN sys.tables t ON t.object_id = i.object_id
	INNER JOIN sys.schemas s ON s.schema_id = t.schema_id
	INNER JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	INNER JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE i.type > 0
	  AND ic.key_ordinal > 0
	  AND t.is_ms_shipped = 0
	ORDER BY s.name, t.name, i.name, ic.key_ordinal`

const foreignKeysQuery = `
	SELECT
		s.name,
		t.name,
		fk.name,
		pc.name,
		rs.name,
		rt.name,
		rc.name,
		fkc.constraint_column_id,
		fk.update_referential_action_desc,
		fk.delete_referential_action_desc
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
	INNER JOIN sys.tables t ON t.object_id = fk.parent_object_id
	INNER JOIN sys.schemas s ON s.schema_id = t.schema_id
	INNER JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
	INNER JOIN sys.tables rt ON rt.object_id = fk.referenced_object_id
	INNER JOIN sys.schemas rs ON rs.schema_id = rt.schema_id
	INNER JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	WHERE t.is_ms_shipped = 0
	ORDER BY s.name, t.name, fk.name, fkc.constraint_column_id`

// referentialAction turns NO_ACTION style descriptors into NO ACTION.
func referentialAction(desc string) string {
	return strings.ReplaceAll(desc, "_", " ")
}

// Introspect reads tables, views, columns, indexes and foreign keys from
// the sys catalog views.
func (a *Adapter) Introspect(ctx context.Context, opts models.IntrospectionOptions) (*models.DatabaseSchema, error) {
	start := time.Now()
	b := datasource.NewSchemaBuilder(models.EngineTypeMSSQL, opts)

	err := a.each(ctx, "tables", tablesQuery, func(rows *sql.Rows) error {
		var t datasource.TableMetadata
		var objectType string
		if err := rows.Scan(&t.Schema, &t.Name, &objectType, &t.Comment); err != nil {
			return err
		}
		t.Kind = models.TableKindTable
		if objectType == "V" {
			t.Kind = models.TableKindView
		}
		b.AddTable(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = a.each(ctx, "columns", columnsQuery, func(rows *sql.Rows) error {
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

	err = a.each(ctx, "indexes", indexesQuery, func(rows *sql.Rows) error {
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

	err = a.each(ctx, "foreign keys", foreignKeysQuery, func(rows *sql.Rows) error {
		var fk datasource.ForeignKeyMetadata
		var onUpdate, onDelete string
		if err := rows.Scan(&fk.Schema, &fk.Table, &fk.Name, &fk.Column, &fk.TargetSchema, &fk.TargetTable,
			&fk.TargetColumn, &fk.Position, &onUpdate, &onDelete); err != nil {
			return err
		}
		fk.OnUpdate = referentialAction(onUpdate)
		fk.OnDelete = referentialAction(onDelete)
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
