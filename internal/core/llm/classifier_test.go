package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
	"github.com/leadscan/leadscan/internal/platform/worker"
)

// scriptedCaller replays canned completions or errors in order. With
// errUsage set, failing calls still report billed tokens, as a provider
// returning an empty body does.
type scriptedCaller struct {
	responses []string
	errs      []error
	errUsage  bool
	calls     int
	prompts   []string
	formats   []ResponseFormat
}

func (s *scriptedCaller) Complete(_ context.Context, model, _, prompt string, format ResponseFormat) (Completion, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.formats = append(s.formats, format)

	if i < len(s.errs) && s.errs[i] != nil {
		if s.errUsage {
			return Completion{Model: model, PromptTokens: 100, CompletionTokens: 50}, s.errs[i]
		}

		return Completion{}, s.errs[i]
	}

	if i >= len(s.responses) {
		return Completion{}, fmt.Errorf("unscripted call %d", i)
	}

	return Completion{Content: s.responses[i], Model: model, PromptTokens: 100, CompletionTokens: 50}, nil
}

type captureRecorder struct {
	records []*domain.UsageRecord
}

func (c *captureRecorder) Record(_ context.Context, rec *domain.UsageRecord) {
	c.records = append(c.records, rec)
}

func testMessages(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		msgs[i] = domain.Message{ID: fmt.Sprintf("msg-%d", i), Text: fmt.Sprintf("message %d", i)}
	}

	return msgs
}

func newTestClassifier(caller Caller, rec Recorder) *Classifier {
	logger := zerolog.Nop()

	c := NewClassifier(caller, "openai/gpt-4o-mini", "t1", "run1", rec, &logger)
	c.retry = worker.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	return c
}

func TestClassifyBatch(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`[{"index": 0, "is_lead": true, "confidence": 85, "rationale": "wants a site", "matched_criteria": ["web"]},
		  {"index": 1, "is_lead": false, "confidence": 0, "rationale": "spam"}]`,
	}}
	rec := &captureRecorder{}

	verdicts := newTestClassifier(caller, rec).
		ClassifyBatch(context.Background(), "web development", testMessages(2))

	require.Len(t, verdicts, 2)

	match, ok := verdicts[0].(domain.Match)
	require.True(t, ok)
	assert.Equal(t, 85, match.Confidence)
	assert.Equal(t, []string{"web"}, match.MatchedCriteria)

	_, ok = verdicts[1].(domain.NoMatch)
	assert.True(t, ok)

	// One call, one usage record.
	assert.Equal(t, 1, caller.calls)
	require.Len(t, rec.records, 1)
	assert.Equal(t, domain.StageClassify, rec.records[0].Stage)
	assert.True(t, rec.records[0].CostUSD.IsPositive())
}

func TestClassifyBatchOutOfOrderIndices(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`[{"index": 1, "is_lead": false, "confidence": 0},
		  {"index": 0, "is_lead": true, "confidence": 80, "rationale": "lead"}]`,
	}}

	verdicts := newTestClassifier(caller, &captureRecorder{}).
		ClassifyBatch(context.Background(), "c", testMessages(2))

	_, ok := verdicts[0].(domain.Match)
	assert.True(t, ok)
	_, ok = verdicts[1].(domain.NoMatch)
	assert.True(t, ok)
}

func TestClassifyBatchRetriesThenSucceeds(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`total garbage`,
		`[{"index": 0, "is_lead": true, "confidence": 75}]`,
	}}

	verdicts := newTestClassifier(caller, &captureRecorder{}).
		ClassifyBatch(context.Background(), "c", testMessages(1))

	_, ok := verdicts[0].(domain.Match)
	assert.True(t, ok)
	assert.Equal(t, 2, caller.calls)
}

func TestClassifyBatchWrongLengthFallsBack(t *testing.T) {
	// Batch of 2 keeps answering with 1 verdict; after the retries the
	// classifier switches to per-message calls in JSON-object mode.
	short := `[{"index": 0, "is_lead": true, "confidence": 90}]`
	caller := &scriptedCaller{responses: []string{
		short, short, short,
		`{"is_lead": true, "confidence": 90}`,
		`{"is_lead": false, "confidence": 0}`,
	}}

	verdicts := newTestClassifier(caller, &captureRecorder{}).
		ClassifyBatch(context.Background(), "c", testMessages(2))

	require.Len(t, verdicts, 2)
	_, ok := verdicts[0].(domain.Match)
	assert.True(t, ok)
	_, ok = verdicts[1].(domain.NoMatch)
	assert.True(t, ok)
	assert.Equal(t, 5, caller.calls)

	// Batch attempts go out unconstrained, the size-1 fallback asks the
	// provider for a JSON object.
	assert.Equal(t, []ResponseFormat{
		FormatText, FormatText, FormatText,
		FormatJSONObject, FormatJSONObject,
	}, caller.formats)
}

func TestClassifyBatchTerminalFailure(t *testing.T) {
	errs := make([]error, 9)
	for i := range errs {
		errs[i] = fmt.Errorf("%w: 503", apperrors.ErrTransient)
	}

	verdicts := newTestClassifier(&scriptedCaller{errs: errs}, &captureRecorder{}).
		ClassifyBatch(context.Background(), "c", testMessages(1))

	require.Len(t, verdicts, 1)

	failed, ok := verdicts[0].(domain.Failed)
	require.True(t, ok)
	assert.True(t, errors.Is(failed.Err, apperrors.ErrTransient))
}

func TestClassifyBatchNonRetryableError(t *testing.T) {
	// A non-transient, non-parse error stops the batch retries immediately.
	caller := &scriptedCaller{errs: []error{
		errors.New("invalid api key"),
		errors.New("invalid api key"),
	}}

	verdicts := newTestClassifier(caller, &captureRecorder{}).
		ClassifyBatch(context.Background(), "c", testMessages(1))

	_, ok := verdicts[0].(domain.Failed)
	assert.True(t, ok)

	// 1 batch attempt + 1 per-message attempt.
	assert.Equal(t, 2, caller.calls)
}

func TestClassifyBatchEmptyResponseRetriedAndBilled(t *testing.T) {
	// An empty body is transient: retried like any 5xx, and since the
	// provider billed the call its usage still reaches the ledger.
	emptyErr := fmt.Errorf("chat completion: %w",
		fmt.Errorf("%w: %w", apperrors.ErrTransient, apperrors.ErrEmptyResponse))
	caller := &scriptedCaller{
		errs:     []error{emptyErr},
		errUsage: true,
		responses: []string{
			"",
			`[{"index": 0, "is_lead": true, "confidence": 80}]`,
		},
	}
	rec := &captureRecorder{}

	verdicts := newTestClassifier(caller, rec).
		ClassifyBatch(context.Background(), "c", testMessages(1))

	_, ok := verdicts[0].(domain.Match)
	assert.True(t, ok)
	assert.Equal(t, 2, caller.calls)

	// Both calls were billed, both were recorded.
	require.Len(t, rec.records, 2)
	assert.True(t, rec.records[0].CostUSD.IsPositive())
}

func TestClassifyBatchConfidenceClamped(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`[{"index": 0, "is_lead": true, "confidence": 150}]`,
	}}

	verdicts := newTestClassifier(caller, &captureRecorder{}).
		ClassifyBatch(context.Background(), "c", testMessages(1))

	match, ok := verdicts[0].(domain.Match)
	require.True(t, ok)
	assert.Equal(t, 100, match.Confidence)
}

func TestClassifyBatchEmpty(t *testing.T) {
	caller := &scriptedCaller{}

	verdicts := newTestClassifier(caller, &captureRecorder{}).
		ClassifyBatch(context.Background(), "c", nil)

	assert.Empty(t, verdicts)
	assert.Zero(t, caller.calls)
}
