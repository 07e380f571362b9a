package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields is the untyped property bag an entity is validated and merged as.
type Fields map[string]any

// Has reports whether key is present with a non-nil value.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

// String returns the value at key when it is a string.
func (f Fields) String(key string) (string, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringValue returns the value at key formatted as a string, or "" when absent.
func (f Fields) StringValue(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// IsBlank reports whether key is absent, nil, or a whitespace-only string.
func (f Fields) IsBlank(key string) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Number reads key as a float64. present is false when the key is absent or nil; ok is false
// when the value is present but not numeric (including NaN).
func (f Fields) Number(key string) (value float64, present bool, ok bool) {
	v, exists := f[key]
	if !exists || v == nil {
		return 0, false, false
	}
	n, ok := ToFloat(v)
	if !ok || math.IsNaN(n) {
		return 0, true, false
	}
	return n, true, true
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ToFloat converts JSON and Go numeric representations, and numeric strings, to float64.
func ToFloat(v any) (float64, bool) {
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
