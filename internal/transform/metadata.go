package transform

import (
	"unicode/utf8"

	"github.com/vyrodovalexey/recordflow/internal/util"
)

// Magnitude buckets for numeric fields.
const (
	MagnitudeNegative = "negative"
	MagnitudeZero     = "zero"
	MagnitudeSmall    = "small"
	MagnitudeMedium   = "medium"
	MagnitudeLarge    = "large"
)

// BuildMetadata describes the top-level fields of r. Non-empty strings get
// their length, numbers a magnitude bucket and arrays their element count.
// Other fields are not described.
func BuildMetadata(r Record) map[string]interface{} {
	meta := make(map[string]interface{}, len(r))
	for key, value := range r {
		if d := describe(value); d != nil {
			meta[key] = d
		}
	}
	return meta
}

func describe(value interface{}) map[string]interface{} {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return map[string]interface{}{"type": "string", "length": utf8.RuneCountInString(v)}
	case []interface{}:
		return map[string]interface{}{"type": "array", "count": len(v)}
	}
	if n, ok := util.ToFloat64(value); ok {
		return map[string]interface{}{"type": "number", "magnitude": Magnitude(n)}
	}
	return nil
}

// Magnitude buckets n: negative below 0, zero, small below 100, medium
// below 1000, large otherwise (NaN included).
func Magnitude(n float64) string {
	switch {
	case n < 0:
		return MagnitudeNegative
	case n == 0:
		return MagnitudeZero
	case n < 100:
		return MagnitudeSmall
	case n < 1000:
		return MagnitudeMedium
	default:
		return MagnitudeLarge
	}
}
