package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterPerformanceTools registers the optimizer tools.
func RegisterPerformanceTools(s *server.MCPServer, deps *ToolDeps) {
	registerAnalyticsTool(s, deps)
	registerIndexRecommendationsTool(s, deps)
	registerSlowQueryAlertsTool(s, deps)
	registerSuggestRewriteTool(s, deps)
}

func registerAnalyticsTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Aggregate the query history: average and p95 latency, slow query count, error rate, " +
				"complexity distribution, most used tables and the slowest queries",
		),
		databaseIDParam(),
	}
	tool := mcp.NewTool("get_performance_analytics", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		analytics, err := deps.Queries.Analytics(databaseID)
		if err != nil {
			return deps.handleError("get_performance_analytics", err)
		}
		return jsonResult(analytics)
	})
}

func registerIndexRecommendationsTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Recommend single-column indexes for columns that recent queries filter or join on repeatedly " +
				"and that are not already the leading column of a key or index",
		),
		databaseIDParam(),
	}
	tool := mcp.NewTool("get_index_recommendations", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		recs, err := deps.Queries.IndexRecommendations(ctx, databaseID)
		if err != nil {
			return deps.handleError("get_index_recommendations", err)
		}
		return jsonResult(map[string]any{
			"database_id":     databaseID,
			"recommendations": recs,
			"count":           len(recs),
		})
	})
}

func registerSlowQueryAlertsTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List queries that exceeded the slow-query threshold, most frequent first"),
		databaseIDParam(),
	}
	tool := mcp.NewTool("get_slow_query_alerts", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		alerts, err := deps.Queries.SlowQueryAlerts(databaseID)
		if err != nil {
			return deps.handleError("get_slow_query_alerts", err)
		}
		return jsonResult(map[string]any{
			"database_id": databaseID,
			"alerts":      alerts,
			"count":       len(alerts),
		})
	})
}

func registerSuggestRewriteTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Suggest a cheaper form of a SELECT: drop redundant DISTINCT, expand SELECT *, " +
				"flag a missing WHERE clause and bound the result with a row limit. The query is not executed.",
		),
		databaseIDParam(),
		sqlParam("SELECT statement to improve"),
	}
	tool := mcp.NewTool("suggest_query_rewrite", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		query, errResult := requireSQL(req)
		if errResult != nil {
			return errResult, nil
		}
		suggestion, err := deps.Queries.SuggestRewrite(ctx, databaseID, query)
		if err != nil {
			return deps.handleError("suggest_query_rewrite", err)
		}
		return jsonResult(suggestion)
	})
}
