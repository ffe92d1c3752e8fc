package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractJSON pulls the first parsable JSON object span out of raw
// model output. Markdown fences and surrounding prose are tolerated.
func ExtractJSON(raw string) (string, error) {
	t := stripFences(strings.TrimSpace(raw))
	i := strings.Index(t, "{")
	if i < 0 {
		return "", fmt.Errorf("no JSON object in output")
	}
	// Try the widest span first, then narrow from the right so trailing
	// prose after the object does not break parsing.
	for j := strings.LastIndex(t, "}"); j > i; j = strings.LastIndex(t[:j], "}") {
		span := t[i : j+1]
		if json.Valid([]byte(span)) {
			return span, nil
		}
	}
	return "", fmt.Errorf("no parsable JSON object in output")
}

// ExtractObject decodes the first JSON object in raw model output into
// a generic map; callers pick fields with the helpers below.
func ExtractObject(raw string) (map[string]any, error) {
	span, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(span), &m); err != nil {
		return nil, fmt.Errorf("no parsable JSON object in output")
	}
	return m, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// FirstString returns the first key holding a non-empty string.
func FirstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// FloatOr returns m[key] as a float64, or fallback when the key is
// absent, null, or not numeric. Numeric strings are accepted.
func FloatOr(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

// StringList returns m[key] as a list of trimmed non-empty strings.
func StringList(m map[string]any, key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// ObjectList returns m[key] as a list of objects, skipping other values.
func ObjectList(m map[string]any, key string) []map[string]any {
	items, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if obj, ok := it.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
