package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// MySQL schemas are databases; only the connected one is read.

const tablesQuery = `
	SELECT TABLE_SCHEMA, TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
	FROM information_schema.tables
	WHERE TABLE_SCHEMA = DATABASE()
	  AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
	ORDER BY TABLE_NAME`

const columnsQuery = `
	SELECT
		TABLE_SCHEMA,
		TABLE_NAME,
		COLUMN_NAME,
		ORDINAL_POSITION,
		DATA_TYPE,
		IS_NULLABLE = 'YES',
		COLUMN_DEFAULT,
		CHARACTER_MAXIMUM_LENGTH,
		NUMERIC_PRECISION,
		NUMERIC_SCALE,
		EXTRA LIKE '%auto_increment%',
		COLUMN_COMMENT
	FROM information_schema.columns
	WHERE TABLE_SCHEMA = DATABASE()
	ORDER BY TABLE_NAME, ORDINAL_POSITION`

// Functional index members have a NULL column name.
const indexesQuery = `
	SELECT TABLE_SCHEMA, TABLE_NAME, INDEX_NAME, COLUMN_NAME, SEQ_IN_INDEX, NON_UNIQUE = 0, INDEX_NAME = 'PRIMARY'
	FROM information_schema.statistics
	WHERE TABLE_SCHEMA = DATABASE()
	  AND COLUMN_NAME IS NOT NULL
	ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX`

const foreignKeysQuery = `
	SELECT
		kcu.TABLE_SCHEMA,
		kcu.TABLE_NAME,
		kcu.CONSTRAINT_NAME,
		kcu.COLUMN_NAME,
		kcu.REFERENCED_TABLE_SCHEMA,
		kcu.REFERENCED_TABLE_NAME,
		kcu.REFERENCED_COLUMN_NAME,
		kcu.ORDINAL_POSITION,
		rc.UPDATE_RULE,
		rc.DELETE_RULE
	FROM information_schema.key_column_usage kcu
	JOIN information_schema.referential_constraints rc
		ON  rc.CONSTRAINT_SCHEMA = kcu.CONSTRAINT_SCHEMA
		AND rc.CONSTRAINT_NAME   = kcu.CONSTRAINT_NAME
		AND rc.TABLE_NAME        = kcu.TABLE_NAME
	WHERE kcu.TABLE_SCHEMA = DATABASE()
	  AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

// Introspect reads the connected database from information_schema.
func (a *Adapter) Introspect(ctx context.Context, opts models.IntrospectionOptions) (*models.DatabaseSchema, error) {
	start := time.Now()
	b := datasource.NewSchemaBuilder(models.EngineTypeMySQL, opts)

	err := a.each(ctx, "tables", tablesQuery, func(rows *sql.Rows) error {
		var t datasource.TableMetadata
		var tableType, comment string
		if err := rows.Scan(&t.Schema, &t.Name, &tableType, &comment); err != nil {
			return err
		}
		t.Kind = models.TableKindTable
		if tableType == "VIEW" {
			t.Kind = models.TableKindView
		} else if comment != "" {
			t.Comment = &comment
		}
		b.AddTable(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = a.each(ctx, "columns", columnsQuery, func(rows *sql.Rows) error {
		var c datasource.ColumnMetadata
		var comment string
		col := &c.Column
		if err := rows.Scan(&c.Schema, &c.Table, &col.Name, &c.Position, &col.DataType, &col.IsNullable,
			&col.DefaultValue, &col.MaxLength, &col.Precision, &col.Scale, &col.IsAutoIncrement, &comment); err != nil {
			return err
		}
		if comment != "" {
			col.Comment = &comment
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
		if err := rows.Scan(&fk.Schema, &fk.Table, &fk.Name, &fk.Column, &fk.TargetSchema, &fk.TargetTable,
			&fk.TargetColumn, &fk.Position, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return err
		}
		fk.OnUpdate = strings.ToUpper(fk.OnUpdate)
		fk.OnDelete = strings.ToUpper(fk.OnDelete)
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
