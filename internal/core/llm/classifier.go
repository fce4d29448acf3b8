package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
	"github.com/leadscan/leadscan/internal/platform/worker"
)

// Recorder receives one usage entry per LLM call; the budget ledger
// implements it.
type Recorder interface {
	Record(ctx context.Context, rec *domain.UsageRecord)
}

// batchVerdict is the wire shape of one stage-1 result.
type batchVerdict struct {
	Index           int      `json:"index"`
	IsLead          bool     `json:"is_lead"`
	Confidence      int      `json:"confidence"`
	Rationale       string   `json:"rationale"`
	MatchedCriteria []string `json:"matched_criteria"`
}

// Classifier runs stage-1 lead detection over batches of messages.
type Classifier struct {
	caller   Caller
	model    string
	tenantID string
	runID    string
	recorder Recorder
	pricing  Pricing
	retry    worker.RetryConfig
	logger   *zerolog.Logger
}

// NewClassifier builds a stage-1 classifier bound to one tenant's run.
func NewClassifier(caller Caller, model, tenantID, runID string, recorder Recorder, logger *zerolog.Logger) *Classifier {
	return &Classifier{
		caller:   caller,
		model:    model,
		tenantID: tenantID,
		runID:    runID,
		recorder: recorder,
		pricing:  PricingFor(model),
		retry:    worker.DefaultRetryConfig(),
		logger:   logger,
	}
}

// classifyRetryable gates the backoff loop: malformed output, transient
// provider failures, and empty bodies are worth another attempt; everything
// else fails fast.
func classifyRetryable(err error) bool {
	return errors.Is(err, apperrors.ErrParse) ||
		errors.Is(err, apperrors.ErrTransient) ||
		errors.Is(err, apperrors.ErrEmptyResponse)
}

// ClassifyBatch returns one verdict per input message, positionally aligned.
// A malformed batch response is retried with backoff, then each message is
// classified individually; messages that still fail get a Failed verdict
// rather than sinking the batch.
func (c *Classifier) ClassifyBatch(ctx context.Context, criteria string, messages []domain.Message) []domain.Verdict {
	verdicts := make([]domain.Verdict, len(messages))
	if len(messages) == 0 {
		return verdicts
	}

	prompt := classifyPrompt(criteria, messages)

	var results []batchVerdict

	err := worker.Retry(ctx, c.retry, classifyRetryable, func(ctx context.Context) error {
		batch, callErr := c.callBatch(ctx, prompt, len(messages))
		if callErr != nil {
			c.logger.Warn().Err(callErr).
				Int("batch_size", len(messages)).
				Msg("batch classification failed")

			return callErr
		}

		results = batch

		return nil
	})
	if err == nil {
		for i, r := range results {
			verdicts[i] = toVerdict(r)
		}

		return verdicts
	}

	c.logger.Warn().Err(err).
		Int("batch_size", len(messages)).
		Msg("falling back to per-message classification")

	// Per-message fallback. Each message pays for its own call; failures
	// stay local.
	for i, m := range messages {
		if ctx.Err() != nil {
			verdicts[i] = domain.Failed{Err: ctx.Err()}

			continue
		}

		verdicts[i] = c.classifyOne(ctx, criteria, m)
	}

	return verdicts
}

func (c *Classifier) callBatch(ctx context.Context, prompt string, want int) ([]batchVerdict, error) {
	completion, err := c.complete(ctx, prompt, FormatText)
	if err != nil {
		return nil, err
	}

	var results []batchVerdict
	if err := extractArray(completion.Content, &results); err != nil {
		return nil, err
	}

	if len(results) != want {
		return nil, fmt.Errorf("expected %d verdicts, got %d: %w", want, len(results), apperrors.ErrParse)
	}

	aligned := make([]batchVerdict, want)
	seen := make([]bool, want)

	for pos, r := range results {
		idx := r.Index
		if idx < 0 || idx >= want || seen[idx] {
			// Unusable indices: trust response order instead.
			idx = pos
		}

		if seen[idx] {
			return nil, fmt.Errorf("duplicate verdict index %d: %w", r.Index, apperrors.ErrParse)
		}

		aligned[idx] = r
		seen[idx] = true
	}

	return aligned, nil
}

// classifyOne is the size-1 fallback: a single-object prompt in the
// provider's JSON-object mode, with the same retry policy as the batch.
func (c *Classifier) classifyOne(ctx context.Context, criteria string, m domain.Message) domain.Verdict {
	prompt := classifyOnePrompt(criteria, m)

	var result batchVerdict

	err := worker.Retry(ctx, c.retry, classifyRetryable, func(ctx context.Context) error {
		completion, callErr := c.complete(ctx, prompt, FormatJSONObject)
		if callErr != nil {
			return callErr
		}

		return extractObject(completion.Content, &result)
	})
	if err != nil {
		c.logger.Error().Err(err).
			Str("message_id", m.ID).
			Msg("per-message classification failed")

		return domain.Failed{Err: err}
	}

	return toVerdict(result)
}

// complete issues one provider call and records its cost. Usage is recorded
// even when the call errors, as long as the provider billed tokens.
func (c *Classifier) complete(ctx context.Context, prompt string, format ResponseFormat) (Completion, error) {
	completion, err := c.caller.Complete(ctx, c.model, domain.StageClassify, prompt, format)

	if completion.PromptTokens > 0 || completion.CompletionTokens > 0 {
		c.record(ctx, completion)
	}

	return completion, err
}

func (c *Classifier) record(ctx context.Context, completion Completion) {
	c.recorder.Record(ctx, &domain.UsageRecord{
		TenantID:         c.tenantID,
		RunID:            c.runID,
		Model:            completion.Model,
		Stage:            domain.StageClassify,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		CostUSD:          c.pricing.Cost(completion.PromptTokens, completion.CompletionTokens),
		At:               time.Now().UTC(),
	})
}

func toVerdict(r batchVerdict) domain.Verdict {
	confidence := clampConfidence(r.Confidence)

	if !r.IsLead {
		return domain.NoMatch{Confidence: confidence, Rationale: r.Rationale}
	}

	return domain.Match{
		Confidence:      confidence,
		Rationale:       r.Rationale,
		MatchedCriteria: r.MatchedCriteria,
	}
}

func clampConfidence(v int) int {
	if v < minConfidence {
		return minConfidence
	}

	if v > maxConfidence {
		return maxConfidence
	}

	return v
}
