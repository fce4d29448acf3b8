package llm

import (
	"context"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/leadscan/leadscan/internal/core/domain"
)

// riskyPatterns flag messages that look like a lead but commonly are not:
// self-promotion, job seeking, and spam, in english and russian. A hit under
// the smart policy forces stage-2 verification regardless of confidence.
var riskyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)looking for (a )?job`),
	regexp.MustCompile(`(?i)ищу работу`),
	regexp.MustCompile(`(?i)резюме`),
	regexp.MustCompile(`(?i)hiring`),
	regexp.MustCompile(`(?i)вакансия`),
	regexp.MustCompile(`(?i)наша компания`),
	regexp.MustCompile(`(?i)мы предлагаем`),
	regexp.MustCompile(`(?i)our (agency|company) offers`),
	regexp.MustCompile(`(?i)портфолио`),
	regexp.MustCompile(`(?i)скидк`),
	regexp.MustCompile(`(?i)промокод`),
	regexp.MustCompile(`(?i)discount`),
	regexp.MustCompile(`(?i)subscribe`),
	regexp.MustCompile(`(?i)подпишись`),
}

// verifyResult is the wire shape of a stage-2 answer.
type verifyResult struct {
	Confirmed  bool   `json:"confirmed"`
	Confidence int    `json:"confidence"`
	Rationale  string `json:"rationale"`
}

// Verifier runs stage-2 verification of positive stage-1 verdicts.
type Verifier struct {
	caller   Caller
	model    string
	tenantID string
	runID    string
	policy   domain.VerificationPolicy
	smartMin int
	recorder Recorder
	pricing  Pricing
	logger   *zerolog.Logger
}

// NewVerifier builds a stage-2 verifier bound to one tenant's run.
func NewVerifier(caller Caller, model string, tenant domain.Tenant, runID string, recorder Recorder, logger *zerolog.Logger) *Verifier {
	return &Verifier{
		caller:   caller,
		model:    model,
		tenantID: tenant.ID,
		runID:    runID,
		policy:   tenant.VerificationPolicy,
		smartMin: tenant.SmartMinConfidence,
		recorder: recorder,
		pricing:  PricingFor(model),
		logger:   logger,
	}
}

// ShouldVerify applies the tenant's policy to one candidate. Under the
// smart policy a candidate is re-checked when stage 1 left doubt: low
// confidence, no concrete criteria matched, a text too short to judge, or
// a risky pattern anywhere in the message context.
func (v *Verifier) ShouldVerify(c domain.LeadCandidate) bool {
	switch v.policy {
	case domain.VerifyOff:
		return false
	case domain.VerifyAlways:
		return true
	case domain.VerifySmart:
		return c.Verdict.Confidence < v.smartMin ||
			len(c.Verdict.MatchedCriteria) == 0 ||
			utf8.RuneCountInString(c.Message.Text) < minVerifiableRunes ||
			isRisky(c.Message.Text) ||
			isRisky(c.Message.AuthorBio) ||
			isRisky(c.Message.ChatName)
	default:
		return true
	}
}

// Verify re-checks a positive verdict with the verifier model. It returns
// the possibly-adjusted verdict and whether the candidate survives.
//
// Confidence only ever goes down: the result is the minimum of both stages,
// verification never promotes a weak verdict. Verification errors fail open
// and keep the stage-1 verdict, since stage 2 exists to trim false
// positives, not to gate availability.
func (v *Verifier) Verify(ctx context.Context, criteria string, c domain.LeadCandidate) (domain.Match, bool) {
	completion, err := v.caller.Complete(ctx, v.model, domain.StageVerify, verifyPrompt(criteria, c.Message, c.Verdict), FormatText)

	// A billed call is recorded regardless of the outcome.
	if completion.PromptTokens > 0 || completion.CompletionTokens > 0 {
		v.record(ctx, completion)
	}

	if err != nil {
		v.logger.Warn().Err(err).
			Str("message_id", c.Message.ID).
			Msg("verification call failed, keeping stage-1 verdict")

		return unverified(c.Verdict), true
	}

	var results []verifyResult
	if err := extractArray(completion.Content, &results); err != nil || len(results) == 0 {
		v.logger.Warn().Err(err).
			Str("message_id", c.Message.ID).
			Msg("unparseable verification response, keeping stage-1 verdict")

		return unverified(c.Verdict), true
	}

	res := results[0]
	if !res.Confirmed {
		return c.Verdict, false
	}

	verdict := c.Verdict
	if conf := clampConfidence(res.Confidence); conf < verdict.Confidence {
		verdict.Confidence = conf
	}

	return verdict, true
}

func (v *Verifier) record(ctx context.Context, completion Completion) {
	v.recorder.Record(ctx, &domain.UsageRecord{
		TenantID:         v.tenantID,
		RunID:            v.runID,
		Model:            completion.Model,
		Stage:            domain.StageVerify,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		CostUSD:          v.pricing.Cost(completion.PromptTokens, completion.CompletionTokens),
		At:               time.Now().UTC(),
	})
}

// unverified marks a verdict that fell through stage 2 without a ruling.
func unverified(v domain.Match) domain.Match {
	v.Rationale += " (unverified)"

	return v
}

func isRisky(text string) bool {
	for _, re := range riskyPatterns {
		if re.MatchString(text) {
			return true
		}
	}

	return false
}
