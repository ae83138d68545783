package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeResponse tries the parse strategies in order: the raw payload as
// JSON, a fenced code block, then a brace-balanced scan. A payload none of
// them can decode is a parse failure; there is no partial result.
func decodeResponse(raw string, out any) error {
	cleaned := strings.TrimSpace(raw)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	if fenced := extractFenced(cleaned); fenced != "" {
		if err := json.Unmarshal([]byte(fenced), out); err == nil {
			return nil
		}
	}
	if balanced := extractBalanced(cleaned); balanced != "" {
		if err := json.Unmarshal([]byte(balanced), out); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no JSON object found in model response")
}

// extractFenced pulls the body of a ```json fenced block.
func extractFenced(raw string) string {
	start := strings.Index(raw, "```")
	if start == -1 {
		return ""
	}
	body := raw[start+3:]
	body = strings.TrimPrefix(body, "json")
	end := strings.Index(body, "```")
	if end == -1 {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(body[:end])
}

// extractBalanced returns the first brace-balanced object in the text,
// skipping braces inside JSON strings and honoring escapes.
func extractBalanced(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
