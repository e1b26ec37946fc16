package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
// This is a common helper used across MCP tool parameter validation.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return trimString(val)
}

// getOptionalBool extracts an optional boolean parameter from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	val, ok := arguments(req)[key].(bool)
	return val, ok
}

func getOptionalBoolWithDefault(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	if val, ok := getOptionalBool(req, key); ok {
		return val
	}
	return defaultVal
}

// getOptionalInt reads a JSON number as an int. Fractions are truncated.
func getOptionalInt(req mcp.CallToolRequest, key string) (int, bool) {
	val, ok := arguments(req)[key].(float64)
	if !ok {
		return 0, false
	}
	return int(val), true
}

// getStringSlice returns the string members of an array argument, skipping
// blanks and non-strings.
func getStringSlice(req mcp.CallToolRequest, key string) []string {
	raw, ok := arguments(req)[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && trimString(s) != "" {
			out = append(out, trimString(s))
		}
	}
	return out
}

// getParams returns the positional bind values of a query tool.
func getParams(req mcp.CallToolRequest) []any {
	raw, ok := arguments(req)["params"].([]any)
	if !ok {
		return nil
	}
	return raw
}

// requireDatabaseID returns the trimmed database_id or an error result.
func requireDatabaseID(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	id, err := req.RequireString("database_id")
	if err != nil || trimString(id) == "" {
		return "", NewErrorResult("invalid_parameters", "database_id is required")
	}
	return trimString(id), nil
}

func requireSQL(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	query, err := req.RequireString("sql")
	if err != nil || trimString(query) == "" {
		return "", NewErrorResult("invalid_parameters", "sql is required")
	}
	return query, nil
}

// jsonResult marshals v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// databaseIDParam is the common first parameter of every database tool.
func databaseIDParam() mcp.ToolOption {
	return mcp.WithString(
		"database_id",
		mcp.Required(),
		mcp.Description("Configured database identifier (see list_databases)"),
	)
}

func optionalDatabaseIDParam(what string) mcp.ToolOption {
	return mcp.WithString(
		"database_id",
		mcp.Description("Configured database identifier; omit to "+what+" every database"),
	)
}

func sqlParam(description string) mcp.ToolOption {
	return mcp.WithString("sql", mcp.Required(), mcp.Description(description))
}

func paramsParam() mcp.ToolOption {
	return mcp.WithArray(
		"params",
		mcp.Description("Optional positional bind values ($1/? placeholders, in order)"),
	)
}

func readOnly() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}
