// Package llm talks to an OpenAI-compatible chat-completions endpoint for
// the two classification stages of the pipeline.
package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/leadscan/leadscan/internal/platform/config"
)

// Completion is one raw model response with its token accounting. Token
// counts are populated whenever the provider returned usage, even alongside
// an error, so every paid call can be recorded.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// ResponseFormat selects the provider-side output constraint.
type ResponseFormat int

const (
	// FormatText leaves the output unconstrained; batch calls use it since
	// providers cannot enforce a top-level JSON array.
	FormatText ResponseFormat = iota

	// FormatJSONObject asks the provider for a single JSON object;
	// single-message calls use it.
	FormatJSONObject
)

// Caller executes a single chat completion. Implementations handle rate
// limiting and circuit breaking; callers handle retries and parsing. The
// stage is observability metadata only.
type Caller interface {
	Complete(ctx context.Context, model, stage, prompt string, format ResponseFormat) (Completion, error)
}

// NewCaller builds the provider client for the given tenant key. The
// deterministic mock is an explicit opt-in via the literal key "mock" so a
// misconfigured tenant can never receive fabricated verdicts; empty keys are
// rejected upstream as invalid tenant config.
func NewCaller(cfg *config.Config, apiKey string, logger *zerolog.Logger) Caller {
	if apiKey == "mock" {
		return &mockCaller{}
	}

	return newOpenAICaller(cfg, apiKey, logger)
}
