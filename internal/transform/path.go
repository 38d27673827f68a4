package transform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Field path errors.
var (
	// ErrInvalidFieldPath indicates that a field path is empty.
	ErrInvalidFieldPath = errors.New("invalid field path")

	// ErrInvalidDataType indicates that a value on the path is not a
	// container and cannot be written through.
	ErrInvalidDataType = errors.New("invalid data type")
)

// noIndex marks a segment without a "[n]" suffix.
const noIndex = -1

// segment is one dot-separated step of a field path: a map key,
// optionally followed by an array index ("items[0]").
type segment struct {
	key   string
	index int
}

func (s segment) String() string {
	if s.index == noIndex {
		return s.key
	}
	return s.key + "[" + strconv.Itoa(s.index) + "]"
}

// splitPath splits path on '.'. Empty segments are ignored.
func splitPath(path string) ([]segment, error) {
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		segs = append(segs, parseSegment(part))
	}
	if len(segs) == 0 {
		return nil, ErrInvalidFieldPath
	}
	return segs, nil
}

// parseSegment reads a trailing "[n]" index. Anything else in brackets is
// part of the key.
func parseSegment(part string) segment {
	open := strings.LastIndexByte(part, '[')
	if open > 0 && strings.HasSuffix(part, "]") {
		if n, err := strconv.Atoi(part[open+1 : len(part)-1]); err == nil && n >= 0 {
			return segment{key: part[:open], index: n}
		}
	}
	return segment{key: part, index: noIndex}
}

// asMap returns v as a plain map when it is an object.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

// GetPath returns the value at a dotted path ("user.name", "items[0].id").
// The boolean is false when any segment is missing or not traversable.
func GetPath(data map[string]interface{}, path string) (interface{}, bool) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, false
	}

	var current interface{} = data
	for _, seg := range segs {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		v, ok := m[seg.key]
		if !ok {
			return nil, false
		}
		if seg.index != noIndex {
			arr, ok := v.([]interface{})
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			v = arr[seg.index]
		}
		current = v
	}
	return current, true
}

// SetPath writes value at a dotted path. Missing or nil intermediates become
// maps (or arrays for indexed segments). A scalar in the middle of the path
// is never overwritten: SetPath fails with ErrInvalidDataType and data may
// hold containers created before the failing segment.
func SetPath(data map[string]interface{}, path string, value interface{}) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}

	current := data
	for _, seg := range segs[:len(segs)-1] {
		current, err = childMap(current, seg)
		if err != nil {
			return fmt.Errorf("%w: %q", err, path)
		}
	}

	if err := setSegment(current, segs[len(segs)-1], value); err != nil {
		return fmt.Errorf("%w: %q", err, path)
	}
	return nil
}

// childMap returns the object under seg in m, creating it when absent.
func childMap(m map[string]interface{}, seg segment) (map[string]interface{}, error) {
	if seg.index == noIndex {
		v := m[seg.key]
		if v == nil {
			child := make(map[string]interface{})
			m[seg.key] = child
			return child, nil
		}
		if child, ok := asMap(v); ok {
			return child, nil
		}
		return nil, fmt.Errorf("%w: %s holds %T", ErrInvalidDataType, seg, v)
	}

	arr, err := arrayAt(m, seg)
	if err != nil {
		return nil, err
	}
	v := arr[seg.index]
	if v == nil {
		child := make(map[string]interface{})
		arr[seg.index] = child
		return child, nil
	}
	if child, ok := asMap(v); ok {
		return child, nil
	}
	return nil, fmt.Errorf("%w: %s holds %T", ErrInvalidDataType, seg, v)
}

// setSegment stores value under the last segment.
func setSegment(m map[string]interface{}, seg segment, value interface{}) error {
	if seg.index == noIndex {
		m[seg.key] = value
		return nil
	}
	arr, err := arrayAt(m, seg)
	if err != nil {
		return err
	}
	arr[seg.index] = value
	return nil
}

// arrayAt returns the array under seg.key, padded with nils so that
// seg.index is addressable, and stores it back into m.
func arrayAt(m map[string]interface{}, seg segment) ([]interface{}, error) {
	var arr []interface{}
	if v := m[seg.key]; v != nil {
		a, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s holds %T, not an array", ErrInvalidDataType, seg.key, v)
		}
		arr = a
	}
	for len(arr) <= seg.index {
		arr = append(arr, nil)
	}
	m[seg.key] = arr
	return arr, nil
}

// cloneMap copies src and every nested map and array in it.
func cloneMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

// cloneValue copies containers; scalars are shared.
func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case Record:
		return Record(cloneMap(val))
	case []interface{}:
		if val == nil {
			return val
		}
		dst := make([]interface{}, len(val))
		for i, e := range val {
			dst[i] = cloneValue(e)
		}
		return dst
	default:
		return v
	}
}
