package util

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ToFloat64 converts any Go numeric kind or json.Number to float64.
func ToFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// IsNumber reports whether v is a Go numeric kind or json.Number.
func IsNumber(v interface{}) bool {
	_, ok := ToFloat64(v)
	return ok
}

// ParseNumber is ToFloat64 extended to numeric strings ("42", " 1.5 ").
// Empty and non-numeric strings are not numbers.
func ParseNumber(v interface{}) (float64, bool) {
	if f, ok := ToFloat64(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// IsFalsy reports whether v is nil, false, a zero number, NaN or the
// empty string. Collections, including empty ones, are truthy.
func IsFalsy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return val == ""
	}
	if f, ok := ToFloat64(v); ok {
		return f == 0 || math.IsNaN(f)
	}
	return false
}
