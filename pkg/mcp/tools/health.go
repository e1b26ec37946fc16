package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type healthResult struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Databases     int    `json:"databases"`
	CachedSchemas int    `json:"cached_schemas"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version, and how many configured
// databases have a live cached schema. It never touches a database.
func RegisterHealthTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"health",
		append([]mcp.ToolOption{
			mcp.WithDescription("Returns server health status, version, and schema cache coverage"),
		}, readOnly()...)...,
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: deps.Version}
		if deps.Datasources != nil {
			result.Databases = len(deps.Datasources.List())
		}
		if deps.Schemas != nil {
			statuses, err := deps.Schemas.CacheStatus("")
			if err != nil {
				return nil, fmt.Errorf("failed to read cache status: %w", err)
			}
			for _, st := range statuses {
				if st.Exists && !st.Expired {
					result.CachedSchemas++
				}
			}
		}
		return jsonResult(result)
	})
}
