package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a parameter value that looks like SQL injection.
type InjectionCheckResult struct {
	Position    int    // 1-based parameter position
	Fingerprint string // libinjection fingerprint
	Value       string
}

func (r InjectionCheckResult) Error() string {
	return fmt.Sprintf("parameter $%d matches SQL injection pattern (fingerprint %s)", r.Position, r.Fingerprint)
}

// CheckParameterForInjection runs libinjection over a single bind value.
// Only strings are inspected; other types cannot carry SQL text.
func CheckParameterForInjection(position int, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionCheckResult{Position: position, Fingerprint: string(fingerprint), Value: s}
	}
	return nil
}

// CheckParameters screens positional bind values. The result is empty when
// every value is clean.
func CheckParameters(params []any) []InjectionCheckResult {
	var results []InjectionCheckResult
	for i, v := range params {
		if r := CheckParameterForInjection(i+1, v); r != nil {
			results = append(results, *r)
		}
	}
	return results
}
