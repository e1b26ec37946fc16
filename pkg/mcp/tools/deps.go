package tools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/services"
)

// ToolDeps contains the services every tool group draws on.
type ToolDeps struct {
	Datasources services.DatasourceService
	Schemas     services.SchemaService
	Queries     services.QueryService
	Version     string
	Logger      *zap.Logger
}

// RegisterAll registers every tool group on s.
func RegisterAll(s *server.MCPServer, deps *ToolDeps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	RegisterHealthTool(s, deps)
	RegisterDatasourceTools(s, deps)
	RegisterSchemaTools(s, deps)
	RegisterQueryTools(s, deps)
	RegisterPerformanceTools(s, deps)
}

// handleError turns a service error into the tool's return values: an error
// result for failures the caller can act on, a Go error otherwise.
func (d *ToolDeps) handleError(tool string, err error) (*mcp.CallToolResult, error) {
	if result := AsToolError(err); result != nil {
		d.Logger.Debug("Tool call rejected",
			zap.String("tool", tool),
			zap.String("error", logging.SanitizeError(err)))
		return result, nil
	}
	d.Logger.Error("Tool call failed",
		zap.String("tool", tool),
		zap.String("error", logging.SanitizeError(err)))
	return nil, fmt.Errorf("%s failed: %w", tool, err)
}
