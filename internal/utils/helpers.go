package utils

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// ToFloat normalizes numeric values decoded from JSON or built in Go
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Compare compares values
func Compare(actual interface{}, op string, expected interface{}) bool {
	if a, ok := ToFloat(actual); ok {
		if e, ok := ToFloat(expected); ok {
			switch op {
			case ">":
				return a > e
			case "<":
				return a < e
			case ">=":
				return a >= e
			case "<=":
				return a <= e
			case "=", "==":
				return a == e
			case "!=":
				return a != e
			}
		}
	}

	switch a := actual.(type) {
	case string:
		if e, ok := expected.(string); ok {
			switch op {
			case "=", "==":
				return a == e
			case "!=":
				return a != e
			}
		}
	case bool:
		if e, ok := expected.(bool); ok {
			switch op {
			case "=", "==":
				return a == e
			case "!=":
				return a != e
			}
		}
	}

	slog.Debug("Unsupported comparison", "actual", actual, "op", op, "expected", expected)
	return false
}

// FormatValue renders a scalar the way it should read in a sentence
func FormatValue(v interface{}) string {
	if f, ok := ToFloat(v); ok {
		return FormatNumber(f)
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// FormatNumber prints whole numbers without a fractional part
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Clamp01 bounds v to [0,1]
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Humanize turns snake_case identifiers into words
func Humanize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}
