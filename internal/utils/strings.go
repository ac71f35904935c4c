package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// NormalizeSymbol trims and upper-cases an instrument symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeSymbols applies NormalizeSymbol to each symbol. Nil stays nil.
func NormalizeSymbols(symbols []string) []string {
	if symbols == nil {
		return nil
	}
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = NormalizeSymbol(s)
	}
	return out
}
