package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/leadscan/leadscan/internal/core/domain"
)

const maxPromptMessageRunes = 2000

func classifyPrompt(criteria string, messages []domain.Message) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`You are a lead detection assistant. A client is looking for potential customers in public chat messages.

Client's criteria for a lead:
%s

Below are %d chat messages. For EACH message decide whether the author is a potential lead for the client: someone expressing a need, problem, or buying intent the client's offering addresses. People ADVERTISING their own services, job seekers posting resumes, and bots are NOT leads.

Return ONLY a JSON array with exactly %d objects, one per message, in the same order. Each object:
- "index" (integer): the [N] marker of the message
- "is_lead" (boolean)
- "confidence" (integer 0-100): how confident you are in a positive verdict; use 0 for non-leads
- "rationale" (string): one short sentence
- "matched_criteria" (array of strings): which of the client's criteria the message matches, empty for non-leads

No prose, no markdown, just the JSON array.

Messages:
`, criteria, len(messages), len(messages)))

	for i, m := range messages {
		sb.WriteString(fmt.Sprintf("[%d]", i))

		if m.AuthorHandle != "" {
			sb.WriteString(" (author: " + m.AuthorHandle + ")")
		}

		if m.AuthorBio != "" {
			sb.WriteString(" (author bio: " + truncate(m.AuthorBio, 200) + ")")
		}

		if m.ChatName != "" {
			sb.WriteString(" (chat: " + m.ChatName + ")")
		}

		sb.WriteString(" " + truncate(m.Text, maxPromptMessageRunes) + "\n")
	}

	return sb.String()
}

func classifyOnePrompt(criteria string, m domain.Message) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`You are a lead detection assistant. A client is looking for potential customers in public chat messages.

Client's criteria for a lead:
%s

Decide whether the author of the message below is a potential lead for the client: someone expressing a need, problem, or buying intent the client's offering addresses. People ADVERTISING their own services, job seekers posting resumes, and bots are NOT leads.

Return ONLY a single JSON object:
- "is_lead" (boolean)
- "confidence" (integer 0-100): how confident you are in a positive verdict; use 0 for non-leads
- "rationale" (string): one short sentence
- "matched_criteria" (array of strings): which of the client's criteria the message matches, empty for non-leads

Message:
`, criteria))

	if m.AuthorHandle != "" {
		sb.WriteString("(author: " + m.AuthorHandle + ") ")
	}

	if m.AuthorBio != "" {
		sb.WriteString("(author bio: " + truncate(m.AuthorBio, 200) + ") ")
	}

	if m.ChatName != "" {
		sb.WriteString("(chat: " + m.ChatName + ") ")
	}

	sb.WriteString(truncate(m.Text, maxPromptMessageRunes))

	return sb.String()
}

func verifyPrompt(criteria string, m domain.Message, verdict domain.Match) string {
	return fmt.Sprintf(`You are a strict reviewer double-checking a lead detection verdict.

Client's criteria for a lead:
%s

Message:
%s

A first-pass classifier marked this message as a lead with confidence %d and rationale: %s

Scrutinize it. Common false positives: the author advertises their OWN services, shares a portfolio, posts a resume or job ad, promotes discounts, or is a bot. Confirm the verdict only if the author genuinely expresses a need the client's offering addresses.

Return ONLY a JSON array with exactly one object:
- "confirmed" (boolean)
- "confidence" (integer 0-100): your own confidence that this is a real lead
- "rationale" (string): one short sentence

No prose, no markdown, just the JSON array.`,
		criteria, truncate(m.Text, maxPromptMessageRunes), verdict.Confidence, verdict.Rationale)
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	runes := []rune(s)

	return string(runes[:maxRunes]) + "..."
}
