package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/relationships"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/services"
)

// RegisterSchemaTools registers schema, relationship and cache tools.
func RegisterSchemaTools(s *server.MCPServer, deps *ToolDeps) {
	registerGetSchemaTool(s, deps)
	registerGetCachedSchemaTool(s, deps)
	registerSuggestJoinsTool(s, deps)
	registerRelationshipGraphTool(s, deps)
	registerCacheStatusTool(s, deps)
	registerClearCacheTool(s, deps)
}

type schemaResponse struct {
	DatabaseID    string    `json:"database_id"`
	FromCache     bool      `json:"from_cache"`
	CachedAt      time.Time `json:"cached_at"`
	TTLMinutes    int       `json:"ttl_minutes"`
	TableCount    int       `json:"table_count"`
	Schema        any       `json:"schema"`
	Relationships any       `json:"relationships"`
}

func newSchemaResponse(databaseID string, result *services.SchemaResult) schemaResponse {
	return schemaResponse{
		DatabaseID:    databaseID,
		FromCache:     result.FromCache,
		CachedAt:      result.CachedAt,
		TTLMinutes:    result.TTLMinutes,
		TableCount:    result.Schema.TableCount(),
		Schema:        result.Schema,
		Relationships: result.Relationships,
	}
}

// registerGetSchemaTool exposes the cached schema, introspecting on a miss.
func registerGetSchemaTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription(
			"Get the structure of a database: schemas, tables, columns, keys, indexes and the relationships between tables. "+
				"Served from the schema cache; the database is introspected when the cache is empty or expired. "+
				"Relationships include declared foreign keys and ones inferred from column names such as user_id.",
		),
		databaseIDParam(),
		mcp.WithBoolean(
			"force_refresh",
			mcp.Description("Introspect the database even when a valid cache entry exists (default: false)"),
		),
		mcp.WithBoolean(
			"include_views",
			mcp.Description("Include views in the result (default: true)"),
		),
		mcp.WithArray(
			"schemas",
			mcp.Description("Optional: only return these schemas"),
		),
		mcp.WithArray(
			"tables",
			mcp.Description("Optional: only return these tables (bare or schema-qualified names)"),
		),
		mcp.WithString(
			"format",
			mcp.Description("Output format: 'json' (default) or 'yaml'"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		format := getOptionalString(req, "format")
		if format != "" && format != "json" && format != "yaml" {
			return NewErrorResult("invalid_parameters", "invalid format: must be 'json' or 'yaml'"), nil
		}

		opts := services.GetSchemaOptions{
			IncludeViews: getOptionalBoolWithDefault(req, "include_views", true),
			Schemas:      getStringSlice(req, "schemas"),
			Tables:       getStringSlice(req, "tables"),
		}
		opts.ForceRefresh, _ = getOptionalBool(req, "force_refresh")

		result, err := deps.Schemas.GetSchema(ctx, databaseID, opts)
		if err != nil {
			return deps.handleError("get_schema", err)
		}

		response := newSchemaResponse(databaseID, result)
		if format == "yaml" {
			return yamlResult(response)
		}
		return jsonResult(response)
	})
}

// yamlResult renders v as YAML with the same field names as its JSON form.
func yamlResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to convert result: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to render yaml: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func registerGetCachedSchemaTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Read a schema from the cache without touching the database. Fails with not_found when nothing valid is cached."),
		databaseIDParam(),
		mcp.WithString("schema_name", mcp.Description("Optional: restrict to one schema")),
		mcp.WithString("table_name", mcp.Description("Optional: restrict to one table")),
	}
	tool := mcp.NewTool("get_cached_schema", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		result, err := deps.Schemas.GetCachedSchema(databaseID, getOptionalString(req, "schema_name"), getOptionalString(req, "table_name"))
		if err != nil {
			return deps.handleError("get_cached_schema", err)
		}
		return jsonResult(newSchemaResponse(databaseID, result))
	})
}

func registerSuggestJoinsTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Find the shortest join paths between two tables through declared and inferred relationships. " +
				"Each path lists the tables, the hops and a ready-to-use FROM ... JOIN ... ON fragment.",
		),
		databaseIDParam(),
		mcp.WithArray(
			"tables",
			mcp.Required(),
			mcp.Description("Table names; the path connects the first two"),
		),
		mcp.WithNumber(
			"max_depth",
			mcp.Description(fmt.Sprintf("Maximum number of hops (default: %d, max: %d)", relationships.DefaultMaxDepth, relationships.MaxDepthLimit)),
		),
	}
	tool := mcp.NewTool("suggest_joins", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		tables := getStringSlice(req, "tables")
		if len(tables) < 2 {
			return NewErrorResult("invalid_parameters", "tables must name at least two tables"), nil
		}
		maxDepth, _ := getOptionalInt(req, "max_depth")
		if maxDepth < 0 {
			return NewErrorResult("invalid_parameters", "max_depth cannot be negative"), nil
		}
		if maxDepth > relationships.MaxDepthLimit {
			return NewErrorResult("invalid_parameters",
				fmt.Sprintf("max_depth cannot exceed %d", relationships.MaxDepthLimit)), nil
		}

		paths, err := deps.Schemas.SuggestJoins(ctx, databaseID, tables, maxDepth)
		if err != nil {
			return deps.handleError("suggest_joins", err)
		}
		return jsonResult(map[string]any{
			"database_id": databaseID,
			"from":        tables[0],
			"to":          tables[1],
			"paths":       paths,
			"count":       len(paths),
		})
	})
}

func registerRelationshipGraphTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Summarize how tables connect: all relationships, groups of connected tables, and isolated tables with no relationships"),
		databaseIDParam(),
	}
	tool := mcp.NewTool("get_relationship_graph", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, errResult := requireDatabaseID(req)
		if errResult != nil {
			return errResult, nil
		}
		graph, err := deps.Schemas.RelationshipGraph(ctx, databaseID)
		if err != nil {
			return deps.handleError("get_relationship_graph", err)
		}
		return jsonResult(graph)
	})
}

func registerCacheStatusTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Report schema cache state: whether an entry exists, its age, TTL, expiry, content version and size"),
		optionalDatabaseIDParam("report"),
	}
	tool := mcp.NewTool("get_cache_status", append(opts, readOnly()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		statuses, err := deps.Schemas.CacheStatus(getOptionalString(req, "database_id"))
		if err != nil {
			return deps.handleError("get_cache_status", err)
		}
		return jsonResult(map[string]any{"entries": statuses})
	})
}

func registerClearCacheTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"clear_cache",
		mcp.WithDescription("Drop cached schemas from memory and disk so the next request introspects again"),
		optionalDatabaseIDParam("clear"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID := getOptionalString(req, "database_id")
		if err := deps.Schemas.ClearCache(databaseID); err != nil {
			return deps.handleError("clear_cache", err)
		}
		scope := databaseID
		if scope == "" {
			scope = "all"
		}
		return jsonResult(map[string]any{"cleared": scope})
	})
}
