package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON ответ модели не содержит разбираемого JSON объекта.
var ErrNoJSON = errors.New("в ответе модели нет JSON")

// ParseJSON разбирает ответ модели: целиком, из ```json блока, из ``` блока,
// затем от первой { до последней }.
func ParseJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ErrNoJSON
	}

	for _, candidate := range candidates(text) {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}
	return ErrNoJSON
}

func candidates(text string) []string {
	out := []string{text}

	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			out = append(out, strings.TrimSpace(rest[:j]))
		}
	}
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			out = append(out, strings.TrimSpace(rest[:j]))
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		out = append(out, text[start:end+1])
	}
	return out
}
