package datasource

import (
	"regexp"
	"strconv"
	"strings"
)

var typeModifiers = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

var numericTypes = []string{"decimal", "numeric", "number", "real", "double", "float"}

// ParseTypeModifiers reads the length or precision/scale from a declared
// type such as VARCHAR(255) or DECIMAL(10,2). Missing parts are nil.
func ParseTypeModifiers(declared string) (maxLength, precision, scale *int64) {
	m := typeModifiers.FindStringSubmatch(declared)
	if m == nil {
		return nil, nil, nil
	}
	first, _ := strconv.ParseInt(m[1], 10, 64)

	lower := strings.ToLower(declared)
	for _, t := range numericTypes {
		if strings.HasPrefix(lower, t) {
			precision = &first
			if m[2] != "" {
				s, _ := strconv.ParseInt(m[2], 10, 64)
				scale = &s
			}
			return nil, precision, scale
		}
	}
	return &first, nil, nil
}
