package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/logging"
)

// RegisterQueryTools registers execution and history tools.
func RegisterQueryTools(s *server.MCPServer, deps *ToolDeps) {
	registerExecuteQueryTool(s, deps)
	registerExplainQueryTool(s, deps)
	registerProfileQueryTool(s, deps)
	registerQueryHistoryTool(s, deps)
	registerQueryStatsTool(s, deps)
	registerClearQueryHistoryTool(s, deps)
}

func registerExecuteQueryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"execute_query",
		mcp.WithDescription(
			"Execute a single SQL statement and return its rows or affected row count. "+
				"Multiple statements are rejected and string parameters are screened for SQL injection. "+
				"Every execution is recorded in the query history.",
		),
		databaseIDParam(),
		sqlParam("SQL statement to execute"),
		paramsParam(),
		mcp.WithNumber(
			"timeout_ms",
			mcp.Description("Optional execution timeout in milliseconds (default: server setting)"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		query, errResult := requireSQL(req)
		if errResult != nil {
			return errResult, nil
		}
		timeoutMs, _ := getOptionalInt(req, "timeout_ms")
		if timeoutMs < 0 {
			return NewErrorResult("invalid_parameters", "timeout_ms cannot be negative"), nil
		}

		deps.Logger.Info("Executing query via MCP",
			zap.String("database_id", databaseID),
			zap.String("sql_preview", logging.SanitizeQuery(query)))

		result, err := deps.Queries.Execute(ctx, databaseID, query, getParams(req), time.Duration(timeoutMs)*time.Millisecond)
		if err != nil {
			return deps.handleError("execute_query", err)
		}
		return jsonResult(result)
	})
}

func registerExplainQueryTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Show the execution plan the database would use for a statement, without running it"),
		databaseIDParam(),
		sqlParam("SQL statement to explain"),
		paramsParam(),
	}
	tool := mcp.NewTool("explain_query", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		query, errResult := requireSQL(req)
		if errResult != nil {
			return errResult, nil
		}
		explain, err := deps.Queries.Explain(ctx, databaseID, query, getParams(req))
		if err != nil {
			return deps.handleError("explain_query", err)
		}
		return jsonResult(explain)
	})
}

func registerProfileQueryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"profile_query",
		mcp.WithDescription(
			"Explain and run a read query, then report plan bottlenecks (full scans, sorts, nested loops, temporary storage), "+
				"whether it is slow, a 0-100 score and recommendations. Only statements that return rows are accepted.",
		),
		databaseIDParam(),
		sqlParam("SELECT (or other row-returning) statement to profile"),
		paramsParam(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		query, errResult := requireSQL(req)
		if errResult != nil {
			return errResult, nil
		}
		profile, err := deps.Queries.Profile(ctx, databaseID, query, getParams(req))
		if err != nil {
			return deps.handleError("profile_query", err)
		}
		return jsonResult(profile)
	})
}

func registerQueryHistoryTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List recent executions of a database, oldest first, with timing, row counts, errors and complexity"),
		databaseIDParam(),
		mcp.WithNumber("limit", mcp.Description("Return at most this many of the most recent entries (default: all retained)")),
	}
	tool := mcp.NewTool("get_query_history", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		limit, _ := getOptionalInt(req, "limit")
		history, err := deps.Queries.History(databaseID, limit)
		if err != nil {
			return deps.handleError("get_query_history", err)
		}
		return jsonResult(map[string]any{
			"database_id": databaseID,
			"entries":     history,
			"count":       len(history),
		})
	})
}

func registerQueryStatsTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Summarize the retained query history: total, average execution time, errors and per-table usage"),
		databaseIDParam(),
	}
	tool := mcp.NewTool("get_query_stats", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		stats, err := deps.Queries.Stats(databaseID)
		if err != nil {
			return deps.handleError("get_query_stats", err)
		}
		return jsonResult(stats)
	})
}

func registerClearQueryHistoryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"clear_query_history",
		mcp.WithDescription("Forget recorded executions and slow-query alerts"),
		optionalDatabaseIDParam("clear"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID := getOptionalString(req, "database_id")
		if err := deps.Queries.ClearHistory(databaseID); err != nil {
			return deps.handleError("clear_query_history", err)
		}
		scope := databaseID
		if scope == "" {
			scope = "all"
		}
		return jsonResult(map[string]any{"cleared": scope})
	})
}
