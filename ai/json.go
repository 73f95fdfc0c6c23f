package ai

import (
	"encoding/json"
	"strings"
)

// extractJSONObject locates the first '{' and last '}' in model text and
// unmarshals the span into v. Models wrap JSON in prose and code fences;
// absence of a well-formed object is an empty result, not an error.
func extractJSONObject(text string, v any) bool {
	return extractJSON(text, "{", "}", v)
}

// extractJSONArray does the same for a top-level array.
func extractJSONArray(text string, v any) bool {
	return extractJSON(text, "[", "]", v)
}

func extractJSON(text, opener, closer string, v any) bool {
	start := strings.Index(text, opener)
	end := strings.LastIndex(text, closer)
	if start < 0 || end < start {
		return false
	}
	return json.Unmarshal([]byte(text[start:end+1]), v) == nil
}

// splitLines turns a numbered-list reply into clean items, dropping
// blank and decoration-only lines.
func splitLines(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !hasAlnum(line) {
			continue
		}
		line = strings.TrimLeft(line, "0123456789.-*• \t")
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, line)
		}
	}
	return items
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
