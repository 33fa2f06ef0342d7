package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Unserializable replaces values that cannot be rendered as JSON.
const Unserializable = "<unserializable>"

// Sanitize converts an arbitrary event payload into a JSON-safe value:
// identifiers and other Stringer types become plain strings, timestamps
// become RFC 3339, maps and slices are walked recursively, and structs go
// through a JSON round trip. Anything that still resists serialization is
// replaced with the Unserializable placeholder instead of failing the whole
// payload. Sanitizing an already-sanitized value returns it unchanged.
func Sanitize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return val
	case bool:
		return val
	case int:
		return val
	case int32:
		return val
	case int64:
		return val
	case float32:
		return val
	case float64:
		return val
	case json.Number:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Sanitize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		return sanitizeViaJSON(v)
	}
}

// sanitizeViaJSON handles structs, typed maps and typed slices by round
// tripping them through encoding/json, then sanitizing the generic result
// so nested values get the same treatment.
func sanitizeViaJSON(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return Unserializable
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return Unserializable
	}
	if _, isMap := out.(map[string]any); isMap {
		return Sanitize(out)
	}
	if _, isSlice := out.([]any); isSlice {
		return Sanitize(out)
	}
	return out
}
