package mcp

import (
	"encoding/json"
)

// maxLoggedTextLen bounds free-text fields such as tool result text in logs.
const maxLoggedTextLen = 256

// sourceFields hold uploaded source code and are never logged verbatim.
var sourceFields = map[string]bool{
	"content": true,
	"code":    true,
	"snippet": true,
}

// redactMCPBody redacts source code fields from MCP payloads.
func redactMCPBody(raw string) string {
	if raw == "" {
		return raw
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return raw
	}
	redacted := redactMCPValue(payload)
	out, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return string(out)
}

// redactMCPValue recursively redacts nested payloads.
func redactMCPValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return redactMCPMap(v)
	case []any:
		result := make([]any, 0, len(v))
		for _, item := range v {
			result = append(result, redactMCPValue(item))
		}
		return result
	default:
		return value
	}
}

// redactMCPMap replaces source strings with their length and truncates long text.
func redactMCPMap(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		str, isString := value.(string)
		switch {
		case isString && sourceFields[key]:
			output[key] = map[string]any{"redacted": true, "length": len(str)}
		case isString && key == "text" && len(str) > maxLoggedTextLen:
			output[key] = str[:maxLoggedTextLen] + "...(truncated)"
		default:
			output[key] = redactMCPValue(value)
		}
	}
	return output
}

// redactHookPayload renders a redacted JSON string for hook logging.
func redactHookPayload(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return redactMCPBody(string(data))
}
