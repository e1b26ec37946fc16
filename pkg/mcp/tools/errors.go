package tools

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// This is used to return actionable error information to the client
// as a successful tool result, ensuring error details are visible
// rather than being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors that the caller can fix
// (e.g., invalid parameters, unknown database).
//
// Do NOT use this for system failures (database connection errors,
// internal server errors) - those should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// AsToolError converts errors the caller can act on into an error result.
// It returns nil for system failures, which should be returned as Go errors.
func AsToolError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", err.Error())
	case errors.Is(err, apperrors.ErrSuspiciousParameter):
		return NewErrorResult("security_violation", err.Error())
	case errors.Is(err, apperrors.ErrInvalidQuery):
		return NewErrorResult("invalid_query", err.Error())
	}
	return NewSQLErrorResult(err)
}

// sqlStateRegex matches SQLSTATE codes in error messages like "(SQLSTATE 42601)"
var sqlStateRegex = regexp.MustCompile(`\(SQLSTATE ([0-9A-Z]{5})\)`)

// IsSQLUserError returns true if the error is a SQL user error (bad SQL, constraint
// violation, missing table, etc.) rather than a server error (connection failure,
// internal error, etc.).
//
// These errors should be returned as JSON error results, not MCP protocol errors,
// because they are actionable - the caller can fix their SQL and retry.
func IsSQLUserError(err error) bool {
	return SQLUserErrorCode(err) != ""
}

// SQLUserErrorCode returns an appropriate error code for a SQL user error.
// Returns empty string if the error is not a SQL user error.
func SQLUserErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapSQLStateToCode(pgErr.Code)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlErrorCode(myErr.Number)
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return mssqlErrorCode(msErr.Number)
	}

	errStr := err.Error()
	if matches := sqlStateRegex.FindStringSubmatch(errStr); len(matches) >= 2 {
		return mapSQLStateToCode(matches[1])
	}
	return sqliteErrorCode(errStr)
}

// mapSQLStateToCode maps a PostgreSQL SQLSTATE to a human-readable error code.
// Only classes 22, 23, 42 and 44 are user errors.
func mapSQLStateToCode(sqlState string) string {
	if len(sqlState) < 2 {
		return ""
	}

	switch sqlState {
	case "42601":
		return "syntax_error"
	case "42703":
		return "undefined_column"
	case "42P01":
		return "undefined_table"
	case "42P02":
		return "undefined_parameter"
	case "23505":
		return "unique_violation"
	case "23503":
		return "foreign_key_violation"
	case "23502":
		return "not_null_violation"
	case "23514":
		return "check_violation"
	case "22001":
		return "value_too_long"
	case "22003":
		return "numeric_out_of_range"
	case "22007":
		return "invalid_datetime"
	case "22012":
		return "division_by_zero"
	case "22P02":
		return "invalid_input"
	}

	switch sqlState[:2] {
	case "22":
		return "data_exception"
	case "23":
		return "constraint_violation"
	case "42":
		return "sql_error"
	case "44":
		return "check_option_violation"
	}
	return ""
}

func mysqlErrorCode(number uint16) string {
	switch number {
	case 1064, 1149:
		return "syntax_error"
	case 1054:
		return "undefined_column"
	case 1146:
		return "undefined_table"
	case 1062:
		return "unique_violation"
	case 1451, 1452:
		return "foreign_key_violation"
	case 1048:
		return "not_null_violation"
	case 3819:
		return "check_violation"
	case 1406:
		return "value_too_long"
	case 1264:
		return "numeric_out_of_range"
	case 1365:
		return "division_by_zero"
	case 1292, 1366:
		return "invalid_input"
	}
	return ""
}

func mssqlErrorCode(number int32) string {
	switch number {
	case 102, 156:
		return "syntax_error"
	case 207:
		return "undefined_column"
	case 208:
		return "undefined_table"
	case 2601, 2627:
		return "unique_violation"
	case 547:
		return "constraint_violation"
	case 515:
		return "not_null_violation"
	case 2628, 8152:
		return "value_too_long"
	case 8115:
		return "numeric_out_of_range"
	case 8134:
		return "division_by_zero"
	case 241, 245:
		return "invalid_input"
	}
	return ""
}

// sqlite errors carry no structured code through database/sql wrapping,
// so the message is matched instead.
var sqliteMessageCodes = []struct {
	fragment string
	code     string
}{
	{"syntax error", "syntax_error"},
	{"no such column", "undefined_column"},
	{"no such table", "undefined_table"},
	{"unique constraint failed", "unique_violation"},
	{"foreign key constraint failed", "foreign_key_violation"},
	{"not null constraint failed", "not_null_violation"},
	{"check constraint failed", "check_violation"},
}

func sqliteErrorCode(msg string) string {
	lower := strings.ToLower(msg)
	for _, m := range sqliteMessageCodes {
		if strings.Contains(lower, m.fragment) {
			return m.code
		}
	}
	return ""
}

// ExtractSQLErrorMessage extracts a clean error message from a SQL error.
// Removes the "SQLSTATE XXXXX" suffix and wrapping prefixes for cleaner display.
func ExtractSQLErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Message
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Message
	}

	msg := err.Error()
	if idx := strings.Index(msg, " (SQLSTATE"); idx != -1 {
		msg = msg[:idx]
	}
	for _, prefix := range []string{
		"failed to execute query: ",
		"failed to explain query: ",
		"ERROR: ",
	} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

// NewSQLErrorResult creates an error result from a SQL error if it's a user error.
// Returns nil if the error is not a SQL user error (caller should return Go error instead).
func NewSQLErrorResult(err error) *mcp.CallToolResult {
	code := SQLUserErrorCode(err)
	if code == "" {
		return nil
	}
	return NewErrorResult(code, ExtractSQLErrorMessage(err))
}

// inputErrorPatterns are substrings that indicate an error is due to user input
// rather than a server failure.
var inputErrorPatterns = []string{
	"not found",
	"not configured",
	"invalid query",
	"invalid input",
	"missing required",
	"cannot be empty",
}

// IsInputError returns true if the error appears to be caused by user input
// rather than a server failure. These errors are logged at DEBUG level.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	if IsSQLUserError(err) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range inputErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
