package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        models.EngineTypeMSSQL,
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+, Azure SQL Database",
		},
		Factory: func(ctx context.Context, c datasource.ConnectionConfig, logger *zap.Logger) (datasource.Adapter, error) {
			cfg, err := FromConnectionConfig(c)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, c.ID, cfg, logger)
		},
	})
}
