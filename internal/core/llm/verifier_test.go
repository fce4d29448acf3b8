package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscan/leadscan/internal/core/domain"
)

func newTestVerifier(caller Caller, policy domain.VerificationPolicy, smartMin int) *Verifier {
	logger := zerolog.Nop()
	tenant := domain.Tenant{
		ID:                 "t1",
		VerificationPolicy: policy,
		SmartMinConfidence: smartMin,
	}

	return NewVerifier(caller, "anthropic/claude-3.5-sonnet", tenant, "run1", &captureRecorder{}, &logger)
}

func candidate(text string, confidence int) domain.LeadCandidate {
	return domain.LeadCandidate{
		Message: domain.Message{ID: "m1", Text: text},
		Verdict: domain.Match{
			Confidence:      confidence,
			Rationale:       "stage one",
			MatchedCriteria: []string{"website"},
		},
	}
}

func TestShouldVerify(t *testing.T) {
	tests := []struct {
		name     string
		policy   domain.VerificationPolicy
		text     string
		conf     int
		expected bool
	}{
		{name: "off never verifies", policy: domain.VerifyOff, text: "ищу работу", conf: 50, expected: false},
		{name: "always verifies everything", policy: domain.VerifyAlways, text: "clean message", conf: 99, expected: true},
		{name: "smart skips confident clean", policy: domain.VerifySmart, text: "need a website built", conf: 95, expected: false},
		{name: "smart verifies low confidence", policy: domain.VerifySmart, text: "need a website built", conf: 80, expected: true},
		{name: "smart verifies risky english", policy: domain.VerifySmart, text: "We are hiring a manager", conf: 99, expected: true},
		{name: "smart verifies risky russian", policy: domain.VerifySmart, text: "Наша компания делает сайты", conf: 99, expected: true},
		{name: "smart verifies promo", policy: domain.VerifySmart, text: "Скидка 50% на все услуги", conf: 99, expected: true},
		{name: "unknown policy verifies", policy: "bogus", text: "anything", conf: 99, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(&scriptedCaller{}, tt.policy, 90)
			assert.Equal(t, tt.expected, v.ShouldVerify(candidate(tt.text, tt.conf)))
		})
	}
}

func TestShouldVerifySmartDoubts(t *testing.T) {
	v := newTestVerifier(&scriptedCaller{}, domain.VerifySmart, 90)

	t.Run("no matched criteria", func(t *testing.T) {
		c := candidate("need a website built", 95)
		c.Verdict.MatchedCriteria = nil
		assert.True(t, v.ShouldVerify(c))
	})

	t.Run("text too short to judge", func(t *testing.T) {
		assert.True(t, v.ShouldVerify(candidate("need a site", 95)))
	})

	t.Run("risky author bio", func(t *testing.T) {
		c := candidate("need a website built", 95)
		c.Message.AuthorBio = "Наша компания делает сайты"
		assert.True(t, v.ShouldVerify(c))
	})

	t.Run("risky chat name", func(t *testing.T) {
		c := candidate("need a website built", 95)
		c.Message.ChatName = "Job board: hiring daily"
		assert.True(t, v.ShouldVerify(c))
	})
}

func TestVerifyConfirmed(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`[{"confirmed": true, "confidence": 95, "rationale": "real lead"}]`,
	}}
	v := newTestVerifier(caller, domain.VerifyAlways, 90)

	verdict, survived := v.Verify(context.Background(), "criteria", candidate("text", 85))
	require.True(t, survived)

	// Stage 2 cannot raise confidence above stage 1.
	assert.Equal(t, 85, verdict.Confidence)
}

func TestVerifyLowersConfidence(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`[{"confirmed": true, "confidence": 60, "rationale": "plausible but weak"}]`,
	}}
	v := newTestVerifier(caller, domain.VerifyAlways, 90)

	verdict, survived := v.Verify(context.Background(), "criteria", candidate("text", 85))
	require.True(t, survived)
	assert.Equal(t, 60, verdict.Confidence)
}

func TestVerifyRejected(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`[{"confirmed": false, "confidence": 10, "rationale": "self promotion"}]`,
	}}
	v := newTestVerifier(caller, domain.VerifyAlways, 90)

	_, survived := v.Verify(context.Background(), "criteria", candidate("text", 85))
	assert.False(t, survived)
}

func TestVerifyFailsOpenOnError(t *testing.T) {
	caller := &scriptedCaller{errs: []error{errors.New("provider down")}}
	v := newTestVerifier(caller, domain.VerifyAlways, 90)

	verdict, survived := v.Verify(context.Background(), "criteria", candidate("text", 85))
	assert.True(t, survived)
	assert.Equal(t, 85, verdict.Confidence)
	assert.Contains(t, verdict.Rationale, "(unverified)")
}

func TestVerifyFailsOpenOnGarbage(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"not json at all"}}
	v := newTestVerifier(caller, domain.VerifyAlways, 90)

	verdict, survived := v.Verify(context.Background(), "criteria", candidate("text", 85))
	assert.True(t, survived)
	assert.Equal(t, 85, verdict.Confidence)
	assert.Contains(t, verdict.Rationale, "(unverified)")
}
