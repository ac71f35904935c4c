package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single value", input: "AAPL", expected: []string{"AAPL"}},
		{name: "varied spacing", input: "AAPL,  MSFT , GOOG", expected: []string{"AAPL", "MSFT", "GOOG"}},
		{name: "empty items dropped", input: "AAPL,,MSFT,", expected: []string{"AAPL", "MSFT"}},
		{name: "only separators", input: " , ,", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestNormalizeSymbols(t *testing.T) {
	assert.Equal(t, "BTC-USD", NormalizeSymbol("  btc-usd "))
	assert.Equal(t, []string{"AAPL", "^N225"}, NormalizeSymbols([]string{"aapl", " ^n225"}))
	assert.Nil(t, NormalizeSymbols(nil))
	assert.Equal(t, []string{}, NormalizeSymbols([]string{}))
}
