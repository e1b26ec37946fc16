package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no semicolon", "SELECT * FROM users", "SELECT * FROM users"},
		{"trailing semicolon", "SELECT * FROM users;", "SELECT * FROM users"},
		{"trailing semicolon and whitespace", "  SELECT 1 ;  \n", "SELECT 1"},
		{"semicolon in single quotes", "SELECT * FROM users WHERE name = 'a;b';", "SELECT * FROM users WHERE name = 'a;b'"},
		{"semicolon in double quotes", `SELECT "a;b" FROM t`, `SELECT "a;b" FROM t`},
		{"escaped quote", `SELECT 'it''s;fine' FROM t`, `SELECT 'it''s;fine' FROM t`},
		{"semicolon in line comment", "SELECT 1 -- first; second\nFROM t", "SELECT 1 -- first; second\nFROM t"},
		{"semicolon in block comment", "SELECT /* a; b */ 1", "SELECT /* a; b */ 1"},
		{"newlines", "SELECT *\nFROM users\nWHERE id = 1;", "SELECT *\nFROM users\nWHERE id = 1"},
		{"update", "UPDATE users SET name = 'John' WHERE id = 1;", "UPDATE users SET name = 'John' WHERE id = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAndNormalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateAndNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{"empty", "", ErrEmptyQuery},
		{"whitespace", "   ", ErrEmptyQuery},
		{"only semicolon", ";", ErrEmptyQuery},
		{"only comment", "-- nothing here", ErrEmptyQuery},
		{"two statements", "SELECT 1; SELECT 2", ErrMultipleStatements},
		{"two statements trailing", "SELECT 1; SELECT 2;", ErrMultipleStatements},
		{"no space", "SELECT 1;SELECT 2", ErrMultipleStatements},
		{"drop attempt", "SELECT * FROM users WHERE 1=1; DROP TABLE users", ErrMultipleStatements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateAndNormalize(tt.input)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStripLiterals(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", StripLiterals("SELECT * FROM t WHERE a = 'x FROM y' AND b = 'it''s'"))
	assert.Equal(t, "SELECT 1 \nFROM t", StripLiterals("SELECT 1 -- 'ignored'\nFROM t"))
}

func TestNormalize(t *testing.T) {
	a := Normalize("SELECT  *\n FROM Users\tWHERE id = 1;")
	b := Normalize("select * from users where id = 1")
	assert.Equal(t, b, a)
}

func TestStatementKind(t *testing.T) {
	assert.Equal(t, "select", StatementKind("  SELECT 1"))
	assert.Equal(t, "with", StatementKind("/* cte */ WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "select", StatementKind("(SELECT 1)"))
	assert.Equal(t, "", StatementKind(""))
}
