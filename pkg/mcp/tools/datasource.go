package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterDatasourceTools registers list_databases and test_connection.
func RegisterDatasourceTools(s *server.MCPServer, deps *ToolDeps) {
	registerListDatabasesTool(s, deps)
	registerTestConnectionTool(s, deps)
}

func registerListDatabasesTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List the configured databases with their engine type and location. Credentials are never returned."),
	}
	tool := mcp.NewTool("list_databases", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databases := deps.Datasources.List()
		return jsonResult(map[string]any{
			"databases": databases,
			"count":     len(databases),
		})
	})
}

func registerTestConnectionTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Check connectivity to a database and report its server version and round-trip latency"),
		databaseIDParam(),
	}
	tool := mcp.NewTool("test_connection", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		result, err := deps.Datasources.TestConnection(ctx, databaseID)
		if err != nil {
			return deps.handleError("test_connection", err)
		}
		return jsonResult(result)
	})
}
