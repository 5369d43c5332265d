// Package normalize converts untyped upstream payloads into canonical note and
// comment records. Every helper here is fallible and reports success through a
// second return value; callers choose the null or default policy per field.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Map returns v as an object.
func Map(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

// Slice returns v as a list.
func Slice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// Path walks nested objects by key.
func Path(v any, keys ...string) (any, bool) {
	cur := v
	for _, k := range keys {
		m, ok := Map(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns v as non-empty text. Integral numbers are formatted so
// numeric identifiers survive.
func String(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		if t != math.Trunc(t) || !fitsInt64(t) {
			return "", false
		}
		return strconv.FormatInt(int64(t), 10), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// Int coerces v to an integer. Strings must hold an integer literal; floats
// are truncated. Booleans, objects and non-numeric text fail.
func Int(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if !fitsInt(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		if n, err := strconv.Atoi(t.String()); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil || !fitsInt(f) {
			return 0, false
		}
		return int(f), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Int64 is Int for values that may exceed 32 bits, such as epoch milliseconds.
func Int64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if !fitsInt64(t) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil || !fitsInt64(f) {
			return 0, false
		}
		return int64(f), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// fitsInt64 reports whether f truncates to a representable int64. The bounds
// are powers of two and exact as floats; NaN fails both comparisons.
func fitsInt64(f float64) bool {
	return f >= math.MinInt64 && f < -math.MinInt64
}

func fitsInt(f float64) bool {
	return f >= math.MinInt && f < -float64(math.MinInt)
}

// Count coerces an interaction counter: missing, falsy, non-numeric or
// negative values become 0.
func Count(v any) int {
	n, ok := Int(v)
	if !ok || n < 0 {
		return 0
	}
	return n
}

// first returns the first key of m holding non-empty text.
func first(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := String(m[k]); ok {
			return s, true
		}
	}
	return "", false
}

// optional converts a fallible string result into a nullable field.
func optional(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}

func objects(v any) []map[string]any {
	list, ok := Slice(v)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := Map(item); ok {
			out = append(out, m)
		}
	}
	return out
}
