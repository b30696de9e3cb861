package utils_test

import (
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/utils"
	"github.com/stretchr/testify/require"
)

func TestScalarValues(t *testing.T) {
	tests := []struct {
		input   string
		numeric bool
		boolean bool
	}{
		{input: "42", numeric: true},
		{input: "-1.5", numeric: true},
		{input: "1e3", numeric: true},
		{input: "TRUE", boolean: true},
		{input: "false", boolean: true},
		{input: ""},
		{input: "1.2.3"},
		{input: " 7 "},
		{input: "yes"},
		{input: "t"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.numeric, utils.IsNumericValue(tt.input))
			require.Equal(t, tt.boolean, utils.IsBooleanValue(tt.input))
		})
	}
}

func TestSQLLiteral(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "integer", input: "42", expected: "42"},
		{name: "float", input: "-1.5", expected: "-1.5"},
		{name: "boolean", input: "true", expected: "TRUE"},
		{name: "null", input: "null", expected: "NULL"},
		{name: "string", input: "bob", expected: "'bob'"},
		{name: "embedded quote", input: "O'Hara", expected: "'O''Hara'"},
		{name: "empty", input: "", expected: "''"},
		{name: "padded number", input: " 7 ", expected: "' 7 '"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, utils.SQLLiteral(tt.input))
		})
	}
}
