package utils

import (
	"strconv"
	"strings"
)

// IsNumericValue checks if a string represents a valid numeric value.
// This uses strconv.ParseFloat to properly validate numeric formats,
// including integers, floats, and scientific notation.
//
// Examples:
//   - "123" -> true
//   - "-123.45" -> true
//   - "1.23e-4" -> true
//   - "1.2.3" -> false
//   - "" -> false
func IsNumericValue(value string) bool {
	if value == "" {
		return false
	}

	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// IsBooleanValue checks if a string represents a boolean value.
// This is case-insensitive and only accepts "true" and "false".
//
// Examples:
//   - "TRUE" -> true
//   - "false" -> true
//   - "1" -> false (use IsNumericValue for numeric booleans)
//   - "yes" -> false
func IsBooleanValue(value string) bool {
	lowered := strings.ToLower(value)
	return lowered == "true" || lowered == "false"
}

// SQLLiteral renders value as a SQL literal. Numbers and booleans are emitted
// bare, NULL stays NULL, and everything else is single quoted with embedded
// quotes doubled.
func SQLLiteral(value string) string {
	switch {
	case IsNumericValue(value):
		return value
	case IsBooleanValue(value):
		return strings.ToUpper(value)
	case strings.EqualFold(value, "null"):
		return "NULL"
	default:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'"
	}
}
