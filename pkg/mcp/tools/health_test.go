package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHealthTool(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))

	RegisterHealthTool(mcpServer, &ToolDeps{Version: "test-version"})

	// Verify tool is registered by calling tools/list
	result := mcpServer.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	require.Len(t, response.Result.Tools, 1)
	assert.Equal(t, "health", response.Result.Tools[0].Name)
	assert.Equal(t, "Returns server health status, version, and schema cache coverage", response.Result.Tools[0].Description)
}

func TestHealthTool_WithoutServices(t *testing.T) {
	// Version with quotes must survive JSON encoding.
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(mcpServer, &ToolDeps{Version: `1.0.0-beta"test`})

	var health healthResult
	callTool(t, mcpServer, "health", nil).decode(t, &health)

	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, `1.0.0-beta"test`, health.Version)
	assert.Zero(t, health.Databases)
}

func TestHealthTool_ReportsCacheCoverage(t *testing.T) {
	s, _ := newTestServer(t)

	var before healthResult
	callTool(t, s, "health", nil).decode(t, &before)
	assert.Equal(t, "1.2.3", before.Version)
	assert.Equal(t, 1, before.Databases)
	assert.Equal(t, 0, before.CachedSchemas)

	require.False(t, callTool(t, s, "get_schema", map[string]any{"database_id": "billing"}).Result.IsError)

	var after healthResult
	callTool(t, s, "health", nil).decode(t, &after)
	assert.Equal(t, 1, after.CachedSchemas)
}
