package upstream

import (
	"encoding/json"
	"strconv"
	"strings"
)

// scanBudgetFactor bounds the scan to a fixed multiple of the text length, counting both
// scanned bytes and bytes handed to json.Unmarshal.
const scanBudgetFactor = 8

// ExtractJSONObject finds the first balanced {...} in text that decodes as a JSON object.
// The scan tracks string literals and escapes so braces inside strings do not count.
// Work is linear in len(text): once the budget is spent the scan gives up.
func ExtractJSONObject(text string) (map[string]any, bool) {
	budget := scanBudgetFactor*len(text) + 64
	for from := 0; from >= 0 && from < len(text); {
		obj, next, ok := nextObject(text, from, &budget)
		if ok {
			return obj, true
		}
		from = next
	}
	return nil, false
}

// nextObject decodes the first outermost candidate starting at or after from.
// next is the offset to resume from, or -1 when nothing is left to try.
func nextObject(text string, from int, budget *int) (map[string]any, int, bool) {
	depth, start := 0, -1
	inString, escaped := false, false

	for i := from; i < len(text); i++ {
		*budget--
		if *budget <= 0 {
			return nil, -1, false
		}

		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			// кавычки вне кандидата ничего не значат
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth > 0 {
				continue
			}
			candidate := text[start : i+1]
			if !opensObject(candidate) {
				return nil, start + 1, false
			}
			*budget -= len(candidate)
			if *budget <= 0 {
				return nil, -1, false
			}
			var obj map[string]any
			if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
				return obj, -1, true
			}
			return nil, start + 1, false
		}
	}

	if depth > 0 {
		return nil, start + 1, false
	}
	return nil, -1, false
}

// opensObject: после '{' JSON-объект продолжается только ключом или '}'
func opensObject(candidate string) bool {
	rest := strings.TrimLeft(candidate[1:], " \t\r\n")
	return rest != "" && (rest[0] == '"' || rest[0] == '}')
}

var failureStatuses = map[string]bool{
	"error":   true,
	"failed":  true,
	"failure": true,
	"fail":    true,
	"false":   true,
}

var messageKeys = []string{"message", "msg", "error_message", "errorMessage", "error", "description"}

// embeddedFailure reports whether a 2xx body still describes a failed call,
// e.g. {"code":400,"status":"error"}.
func embeddedFailure(obj map[string]any) bool {
	if obj == nil {
		return false
	}
	if v, ok := obj["success"].(bool); ok && !v {
		return true
	}
	if v, ok := obj["status"]; ok {
		switch s := v.(type) {
		case string:
			if failureStatuses[strings.ToLower(strings.TrimSpace(s))] {
				return true
			}
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n >= 400 {
				return true
			}
		case float64:
			if s >= 400 {
				return true
			}
		case bool:
			if !s {
				return true
			}
		}
	}
	for _, key := range []string{"code", "status_code", "statusCode"} {
		if n, ok := codeValue(obj[key]); ok && n >= 400 {
			return true
		}
	}
	switch e := obj["error"].(type) {
	case string:
		if s := strings.TrimSpace(e); s != "" && !strings.EqualFold(s, "false") && !strings.EqualFold(s, "null") {
			return true
		}
	case map[string]any:
		return len(e) > 0
	case bool:
		return e
	}
	return false
}

func codeValue(v any) (int, bool) {
	switch c := v.(type) {
	case float64:
		return int(c), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(c))
		return n, err == nil
	}
	return 0, false
}

func embeddedMessage(obj map[string]any) string {
	if obj == nil {
		return ""
	}
	for _, key := range messageKeys {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return Truncate(s, PreviewLimit)
			}
		case map[string]any:
			if s, ok := v["message"].(string); ok && strings.TrimSpace(s) != "" {
				return Truncate(strings.TrimSpace(s), PreviewLimit)
			}
		}
	}
	return ""
}
