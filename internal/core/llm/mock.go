package llm

import (
	"context"
	"fmt"
	"strings"
)

// mockCaller fakes the provider for local runs and tests: every classify
// prompt gets positive verdicts for messages containing "buy" and negative
// ones otherwise, every verify prompt confirms.
type mockCaller struct{}

func (m *mockCaller) Complete(_ context.Context, model, stage, prompt string, format ResponseFormat) (Completion, error) {
	var content string

	switch {
	case strings.Contains(prompt, `"confirmed"`):
		content = `[{"confirmed": true, "confidence": 95, "rationale": "mock verification"}]`
	case format == FormatJSONObject:
		content = mockVerdict(prompt)
	default:
		content = mockClassifyResponse(prompt)
	}

	return Completion{
		Content:          content,
		Model:            model,
		PromptTokens:     len(prompt) / 4,
		CompletionTokens: len(content) / 4,
	}, nil
}

func mockClassifyResponse(prompt string) string {
	var sb strings.Builder

	sb.WriteString("[")

	n := 0

	for _, line := range strings.Split(prompt, "\n") {
		if !strings.HasPrefix(line, "[") {
			continue
		}

		if n > 0 {
			sb.WriteString(",")
		}

		verdict := mockVerdict(line)
		sb.WriteString(strings.Replace(verdict, "{", fmt.Sprintf(`{"index": %d, `, n), 1))

		n++
	}

	sb.WriteString("]")

	return sb.String()
}

func mockVerdict(text string) string {
	isLead := strings.Contains(strings.ToLower(text), "buy")
	confidence := 0

	if isLead {
		confidence = 90
	}

	return fmt.Sprintf(
		`{"is_lead": %t, "confidence": %d, "rationale": "mock verdict", "matched_criteria": []}`,
		isLead, confidence)
}
