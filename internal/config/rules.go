package config

import (
	"fmt"
	"math"

	"github.com/vyrodovalexey/recordflow/internal/util"
)

// DefaultTimestampFormat is the template used by timestamp enrichment when
// the rule has no mapping.
const DefaultTimestampFormat = "YYYY-MM-DD HH:mm:ss"

// ReplaceSpec is the value of a replace transformation.
type ReplaceSpec struct {
	Pattern     string
	Replacement string
}

// CalculationSpec is the mapping of a calculation enrichment.
type CalculationSpec struct {
	Operation string
	Fields    []string
}

// ParseLength reads the bound of a min_length or max_length rule.
func ParseLength(value interface{}) (float64, error) {
	n, ok := util.ParseNumber(value)
	if !ok {
		return 0, fmt.Errorf("value must be a number, got %T", value)
	}
	if n < 0 || math.IsInf(n, 0) {
		return 0, fmt.Errorf("value must be a non-negative finite number, got %v", n)
	}
	return n, nil
}

// ParseReplace reads the {pattern, replacement} value of a replace rule.
// A missing replacement means the empty string.
func ParseReplace(value interface{}) (ReplaceSpec, error) {
	m, ok := asStringMap(value)
	if !ok {
		return ReplaceSpec{}, fmt.Errorf("value must be an object with pattern and replacement, got %T", value)
	}

	pattern, ok := m["pattern"].(string)
	if !ok || pattern == "" {
		return ReplaceSpec{}, fmt.Errorf("value.pattern must be a non-empty string")
	}

	spec := ReplaceSpec{Pattern: pattern}
	if r, exists := m["replacement"]; exists && r != nil {
		s, ok := r.(string)
		if !ok {
			return ReplaceSpec{}, fmt.Errorf("value.replacement must be a string, got %T", r)
		}
		spec.Replacement = s
	}
	return spec, nil
}

// ParseCalculation reads the {operation, fields} mapping of a calculation
// enrichment.
func ParseCalculation(mapping interface{}) (CalculationSpec, error) {
	m, ok := asStringMap(mapping)
	if !ok {
		return CalculationSpec{}, fmt.Errorf("mapping must be an object with operation and fields, got %T", mapping)
	}

	op, _ := m["operation"].(string)
	switch op {
	case CalcSum, CalcAverage, CalcMax, CalcMin:
	default:
		return CalculationSpec{}, fmt.Errorf("mapping.operation must be one of sum, average, max, min, got %q", op)
	}

	var fields []string
	switch raw := m["fields"].(type) {
	case nil:
	case []string:
		fields = append(fields, raw...)
	case []interface{}:
		for i, f := range raw {
			s, ok := f.(string)
			if !ok {
				return CalculationSpec{}, fmt.Errorf("mapping.fields[%d] must be a string, got %T", i, f)
			}
			fields = append(fields, s)
		}
	default:
		return CalculationSpec{}, fmt.Errorf("mapping.fields must be a list of field paths, got %T", raw)
	}

	for i, f := range fields {
		if err := util.ValidateFieldPath(f); err != nil {
			return CalculationSpec{}, fmt.Errorf("mapping.fields[%d]: %w", i, err)
		}
	}

	return CalculationSpec{Operation: op, Fields: fields}, nil
}

// ParseTimestampFormat reads the optional format template of a timestamp
// enrichment.
func ParseTimestampFormat(mapping interface{}) (string, error) {
	switch m := mapping.(type) {
	case nil:
		return DefaultTimestampFormat, nil
	case string:
		if m == "" {
			return DefaultTimestampFormat, nil
		}
		return m, nil
	default:
		return "", fmt.Errorf("mapping must be a format string, got %T", mapping)
	}
}

func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
