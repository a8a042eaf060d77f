package maputil

import (
	"fmt"
	"strconv"
	"strings"
)

// String returns params[key] formatted as text, or fallback when the key is
// missing or nil.
func String(params map[string]any, key, fallback string) string {
	if params == nil {
		return fallback
	}
	raw, ok := params[key]
	if !ok || raw == nil {
		return fallback
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

// Value is like String but keeps the value's own type for template rendering.
func Value(params map[string]any, key string, fallback any) any {
	if params == nil {
		return fallback
	}
	raw, ok := params[key]
	if !ok || raw == nil {
		return fallback
	}
	return raw
}

func Map(params map[string]any, key string) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	if m, ok := params[key].(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{}
}

func Float(params map[string]any, key string) (float64, bool) {
	if params == nil {
		return 0, false
	}
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Clone makes a shallow copy; nested values are shared.
func Clone(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
