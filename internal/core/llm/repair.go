package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/leadscan/leadscan/internal/core/errors"
)

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// extractArray pulls a JSON array out of model output and unmarshals it into
// target, fixing the malformations models actually produce, in order of
// severity: markdown fences, stray control characters, trailing commas, and
// finally a truncated tail closed by balancing brackets. Returns ErrParse
// when nothing salvageable remains.
func extractArray(content string, target any) error {
	candidate := stripFences(content)

	if start := strings.IndexByte(candidate, '['); start >= 0 {
		candidate = candidate[start:]
	} else {
		return fmt.Errorf("no array in response: %w", apperrors.ErrParse)
	}

	if end := strings.LastIndexByte(candidate, ']'); end >= 0 {
		if err := json.Unmarshal([]byte(candidate[:end+1]), target); err == nil {
			return nil
		}
	}

	candidate = stripControlChars(candidate)

	if end := strings.LastIndexByte(candidate, ']'); end >= 0 {
		if err := json.Unmarshal([]byte(candidate[:end+1]), target); err == nil {
			return nil
		}

		fixed := trailingCommaRe.ReplaceAllString(candidate[:end+1], "$1")
		if err := json.Unmarshal([]byte(fixed), target); err == nil {
			return nil
		}
	}

	// Truncated output: cut back to the last complete element and close the
	// brackets ourselves.
	truncated := closeTruncated(trailingCommaRe.ReplaceAllString(candidate, "$1"))
	if truncated != "" {
		if err := json.Unmarshal([]byte(truncated), target); err == nil {
			return nil
		}
	}

	return fmt.Errorf("unparseable response: %w", apperrors.ErrParse)
}

// extractObject pulls a single JSON object out of model output, applying the
// same repairs as extractArray minus truncation recovery: a cut-off object
// has no complete prefix worth keeping.
func extractObject(content string, target any) error {
	candidate := stripFences(content)

	start := strings.IndexByte(candidate, '{')
	if start < 0 {
		return fmt.Errorf("no object in response: %w", apperrors.ErrParse)
	}

	candidate = candidate[start:]

	end := strings.LastIndexByte(candidate, '}')
	if end < 0 {
		return fmt.Errorf("unterminated object: %w", apperrors.ErrParse)
	}

	candidate = candidate[:end+1]

	if err := json.Unmarshal([]byte(candidate), target); err == nil {
		return nil
	}

	candidate = stripControlChars(candidate)
	if err := json.Unmarshal([]byte(candidate), target); err == nil {
		return nil
	}

	fixed := trailingCommaRe.ReplaceAllString(candidate, "$1")
	if err := json.Unmarshal([]byte(fixed), target); err == nil {
		return nil
	}

	return fmt.Errorf("unparseable response: %w", apperrors.ErrParse)
}

// stripFences removes a markdown code fence wrapper if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")

	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}

// stripControlChars drops unescaped control characters that make the JSON
// decoder bail (models sometimes emit raw newlines inside string values).
// Escaped sequences like \n survive since they are two printable bytes.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 {
			return -1
		}

		return r
	}, s)
}

// closeTruncated walks the input tracking bracket depth and string state,
// cuts at the end of the last complete top-level element, and appends the
// missing closers. Returns "" when not even one element is complete.
func closeTruncated(s string) string {
	var (
		depth      int
		inString   bool
		escaped    bool
		lastIntact = -1
	)

	for i, r := range s {
		if escaped {
			escaped = false

			continue
		}

		switch {
		case inString:
			if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
		case r == '"':
			inString = true
		case r == '[' || r == '{':
			depth++
		case r == ']' || r == '}':
			depth--

			if depth == 1 {
				lastIntact = i
			}

			if depth == 0 {
				return s[:i+1]
			}
		}
	}

	if lastIntact < 0 {
		return ""
	}

	return s[:lastIntact+1] + "]"
}
