package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckParameterForInjection(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		injection bool
	}{
		{"clean id", "12345", false},
		{"clean email", "user@example.com", false},
		{"clean date", "2024-01-15", false},
		{"clean uuid", "550e8400-e29b-41d4-a716-446655440000", false},
		{"integer", 42, false},
		{"bool", true, false},
		{"nil", nil, false},
		{"tautology", "' OR '1'='1", true},
		{"comment terminator", "admin'--", true},
		{"union select", "1 UNION SELECT * FROM passwords", true},
		{"stacked drop", "'; DROP TABLE users--", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckParameterForInjection(3, tt.value)
			if !tt.injection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.Equal(t, 3, result.Position)
			assert.NotEmpty(t, result.Fingerprint)
			assert.Contains(t, result.Error(), "$3")
		})
	}
}

func TestCheckParameters(t *testing.T) {
	results := CheckParameters([]any{"12345", 100, "' OR 1=1--", true, "normal text"})

	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Position)

	assert.Empty(t, CheckParameters(nil))
	assert.Empty(t, CheckParameters([]any{1, 2.5, false}))
}
