// ABOUTME: Helper for pulling a JSON object out of model output that may carry fences or prose.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON locates the JSON object inside a completion. Models wrap
// output in markdown fences or lead with prose often enough that callers
// should never json.Unmarshal the raw text directly.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in completion text")
	}
	candidate := s[start : end+1]

	if !json.Valid([]byte(candidate)) {
		return "", fmt.Errorf("completion text is not valid JSON")
	}
	return candidate, nil
}

// DecodeJSON extracts and unmarshals the object into v.
func DecodeJSON(text string, v any) error {
	candidate, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("decode completion JSON: %w", err)
	}
	return nil
}
