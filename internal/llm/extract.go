package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeObject parses a JSON object out of loosely-structured model text into
// v. It first strips fenced-code markers and tries a strict decode of the
// trimmed text; on failure it scans for the first balanced {...} span and
// retries. Returns ErrMalformedOutput (wrapped) when no object can be
// recovered.
func DecodeObject(text string, v any) error {
	cleaned := stripFences(text)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	span, ok := firstJSONObject(cleaned)
	if !ok {
		return fmt.Errorf("%w: no JSON object in %d bytes of text", ErrMalformedOutput, len(text))
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// stripFences removes markdown code-fence markers the model may wrap its
// output in, then trims whitespace.
func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// firstJSONObject returns the first balanced {...} span in text. Braces
// inside JSON strings are ignored, so trailing prose containing stray braces
// cannot widen the span.
func firstJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}
