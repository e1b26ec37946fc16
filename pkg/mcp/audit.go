package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/metrics"
)

// Tool call outcomes recorded by the auditor.
const (
	outcomeSuccess   = "success"
	outcomeToolError = "tool_error"
	outcomeError     = "error"
)

// ToolAuditor logs every tool call with sanitized arguments and counts
// outcomes per tool.
type ToolAuditor struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolAuditor creates an auditor. m may be nil.
func NewToolAuditor(m *metrics.Metrics, logger *zap.Logger) *ToolAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolAuditor{
		logger:  logger.Named("mcp-audit"),
		metrics: m,
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *ToolAuditor) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *ToolAuditor) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *ToolAuditor) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	duration := a.elapsed(id)
	tool := req.Params.Name

	outcome := outcomeSuccess
	if result != nil && result.IsError {
		outcome = outcomeToolError
	}
	a.metrics.ToolCall(tool, outcome)

	fields := []zap.Field{
		zap.String("tool", tool),
		zap.String("outcome", outcome),
		zap.Duration("duration", duration),
		zap.Any("arguments", sanitizeParams(req.Params.Arguments)),
	}
	if flag := classifyResult(result); flag != "" {
		a.logger.Warn("Tool call flagged", append(fields, zap.String("security_flag", flag))...)
		return
	}
	a.logger.Info("Tool call", fields...)
}

func (a *ToolAuditor) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	tool := req.Params.Name
	a.metrics.ToolCall(tool, outcomeError)
	a.logger.Error("Tool call failed",
		zap.String("tool", tool),
		zap.Duration("duration", a.elapsed(id)),
		zap.Any("arguments", sanitizeParams(req.Params.Arguments)),
		zap.Error(err))
}

func (a *ToolAuditor) elapsed(id any) time.Duration {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

// maxSQLSize is the maximum size of SQL strings kept in audit entries.
const maxSQLSize = 10240 // 10KB

// sqlStringLiteralPattern matches SQL string literals: 'value', 'it''s escaped', etc.
var sqlStringLiteralPattern = regexp.MustCompile(`'(?:[^']*(?:'')?)*[^']*'`)

var sensitiveKeywords = []string{"password", "secret", "token", "api_key", "credential"}

// sanitizeParams sanitizes request parameters before they are logged.
// Applies: SQL truncation, string literal redaction, sensitive value hashing.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if isSensitiveKey(key) {
		return hashSensitiveValue(value)
	}

	switch val := value.(type) {
	case string:
		return sanitizeStringParam(key, val)
	case map[string]any:
		return sanitizeParams(val)
	case []any:
		// Bind values can carry anything a literal can.
		if strings.EqualFold(key, "params") {
			return fmt.Sprintf("[%d values]", len(val))
		}
		return val
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func sanitizeStringParam(key string, val string) string {
	if len(val) > maxSQLSize {
		val = val[:maxSQLSize] + "...[truncated]"
	}
	if isSQLParam(key) {
		val = redactSQLStringLiterals(val)
	}
	return val
}

// isSQLParam returns true if a parameter key likely contains SQL.
func isSQLParam(key string) bool {
	lower := strings.ToLower(key)
	return lower == "sql" || lower == "query" || strings.HasSuffix(lower, "_sql") || strings.HasSuffix(lower, "_query")
}

// redactSQLStringLiterals replaces string literal values in SQL with '***',
// preserving the query structure while hiding user-provided values.
func redactSQLStringLiterals(sql string) string {
	return sqlStringLiteralPattern.ReplaceAllString(sql, "'***'")
}

// hashSensitiveValue returns a SHA-256 hash prefix for sensitive values,
// allowing correlation across entries without logging the actual value.
func hashSensitiveValue(value any) string {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	default:
		str = fmt.Sprintf("%v", v)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// classifyResult inspects an error result for security-relevant codes.
func classifyResult(result *mcplib.CallToolResult) string {
	if result == nil || !result.IsError {
		return ""
	}
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(tc.Text), "security_violation") {
			return "sql_injection_attempt"
		}
	}
	return ""
}
