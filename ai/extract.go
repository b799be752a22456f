package ai

import "strings"

// ExtractJSON finds the first JSON object or array in text. Model output
// often wraps JSON in markdown fences or surrounds it with prose.
func ExtractJSON(text string) string {
	// Try to find JSON in markdown code blocks first
	if idx := strings.Index(text, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			return strings.TrimSpace(text[start : start+end])
		}
	}
	if idx := strings.Index(text, "```"); idx != -1 {
		start := idx + len("```")
		if end := strings.Index(text[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(text[start : start+end])
			if len(candidate) > 0 && (candidate[0] == '{' || candidate[0] == '[') {
				return candidate
			}
		}
	}

	// Find raw JSON
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '{' && ch != '[' {
			continue
		}
		closing := byte('}')
		if ch == '[' {
			closing = ']'
		}
		depth := 0
		inString := false
		escape := false
		for j := i; j < len(text); j++ {
			if escape {
				escape = false
				continue
			}
			if text[j] == '\\' && inString {
				escape = true
				continue
			}
			if text[j] == '"' {
				inString = !inString
				continue
			}
			if inString {
				continue
			}
			if text[j] == ch {
				depth++
			} else if text[j] == closing {
				depth--
				if depth == 0 {
					return text[i : j+1]
				}
			}
		}
	}
	return ""
}
