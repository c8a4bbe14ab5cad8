package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FirstValue returns the value of the first key present in m with a non-empty value.
func FirstValue(m map[string]any, keys ...string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// FirstString is FirstValue restricted to scalars that read as a non-empty string.
func FirstString(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, key := range keys {
		if s, ok := stringify(m[key]); ok {
			return s
		}
	}
	return ""
}

// FirstStringIn пробует ключи по очереди в каждом из scopes
func FirstStringIn(scopes []map[string]any, keys ...string) string {
	for _, scope := range scopes {
		if s := FirstString(scope, keys...); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	}
	return "", false
}

// parseNumber accepts JSON numbers and numeric strings such as "1,250.50" or "₹ 300".
func parseNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, val)
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	}
	return 0, false
}

// parseBool понимает bool, "true"/"yes"/"1" и числа
func parseBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	case float64:
		return val != 0, true
	case json.Number:
		f, err := val.Float64()
		return f != 0, err == nil
	}
	return false, false
}

// scopes returns the nested envelope maps (response, data, result) followed by the top level.
func scopes(v any) []map[string]any {
	top, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, key := range envelopeKeys {
		if nested, ok := top[key].(map[string]any); ok {
			out = append(out, nested)
			// встречается двойная обёртка {"response": {"data": {...}}}
			for _, inner := range envelopeKeys {
				if deeper, ok := nested[inner].(map[string]any); ok {
					out = append(out, deeper)
				}
			}
		}
	}
	return append(out, top)
}

var envelopeKeys = []string{"response", "data", "result"}
