// Package domain defines the entities shared across the lead detection
// pipeline: tenants, raw messages, classification verdicts, detected leads,
// usage records, and run logs.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerificationPolicy controls whether stage-2 verification runs for a tenant.
type VerificationPolicy string

// Verification policy values.
const (
	VerifyAlways VerificationPolicy = "always"
	VerifySmart  VerificationPolicy = "smart"
	VerifyOff    VerificationPolicy = "off"
)

// DownstreamState tracks delivery of a detected lead to the downstream sink.
type DownstreamState string

// Downstream delivery states.
const (
	DownstreamPending   DownstreamState = "pending"
	DownstreamDelivered DownstreamState = "delivered"
	DownstreamFailed    DownstreamState = "failed"
)

// RejectReason is the terminal reason a candidate left the pipeline.
type RejectReason string

// Reject reasons, one per pipeline stage.
const (
	RejectQuality        RejectReason = "quality"
	RejectKeyword        RejectReason = "keyword"
	RejectBudget         RejectReason = "budget"
	RejectStage1         RejectReason = "stage1"
	RejectStage2         RejectReason = "stage2"
	RejectDuplicate      RejectReason = "duplicate"
	RejectWriterConflict RejectReason = "writer_conflict"
	RejectError          RejectReason = "error"
)

// Tenant is an immutable per-run snapshot of a tenant's configuration.
type Tenant struct {
	ID                      string
	CriteriaText            string
	APICredentials          string
	MonthlyBudgetCap        decimal.Decimal
	Active                  bool
	VerificationPolicy      VerificationPolicy
	SmartMinConfidence      int
	DownstreamMinConfidence int
}

// Message is a raw chat message from the shared store. Immutable here.
type Message struct {
	ID           string
	Text         string
	AuthorHandle string
	AuthorBio    string
	ChatName     string
	PostedAt     time.Time
}

// Verdict is the stage-1 classification outcome for a single message.
// It is a closed set: Match, NoMatch, or Failed.
type Verdict interface {
	isVerdict()
}

// Match is a positive stage-1 verdict.
type Match struct {
	Confidence      int
	Rationale       string
	MatchedCriteria []string
}

// NoMatch is a negative stage-1 verdict.
type NoMatch struct {
	Confidence int
	Rationale  string
}

// Failed marks a message whose classification did not complete.
type Failed struct {
	Err error
}

func (Match) isVerdict()   {}
func (NoMatch) isVerdict() {}
func (Failed) isVerdict()  {}

// LeadCandidate pairs a message with its positive stage-1 verdict while it
// moves through verification and dedup. Never persisted.
type LeadCandidate struct {
	Message Message
	Verdict Match
}

// DetectedLead is the persisted record of an accepted lead.
type DetectedLead struct {
	ID              string
	TenantID        string
	MessageID       string
	Confidence      int
	Rationale       string
	MatchedCriteria []string
	Fingerprint     string
	SenderKey       string
	DetectedAt      time.Time
	DownstreamState DownstreamState
}

// SenderKey returns the dedup key for a message: the author handle when
// present, otherwise the given fingerprint.
func SenderKey(m Message, fingerprint string) string {
	if m.AuthorHandle != "" {
		return m.AuthorHandle
	}

	return fingerprint
}

// Pipeline stages recorded in usage entries.
const (
	StageClassify = "classify"
	StageVerify   = "verify"
)

// UsageRecord is one append-only LLM spend entry for a tenant.
type UsageRecord struct {
	ID               string
	TenantID         string
	RunID            string
	Model            string
	Stage            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          decimal.Decimal
	At               time.Time
}

// RunLog summarizes one orchestration for one tenant. Classified counts
// every completed stage-1 verdict, positive or negative; Verified counts
// candidates that survived stage-2 and VerifiedRejected those it voted down.
type RunLog struct {
	ID               string
	TenantID         string
	StartedAt        time.Time
	FinishedAt       time.Time
	Fetched          int
	Prefiltered      int
	Classified       int
	Verified         int
	VerifiedRejected int
	Leads            int
	Deduplicated     int
	BudgetSkipped    int
	Failed           int
	CostUSD          decimal.Decimal
	Errors           []string
}
