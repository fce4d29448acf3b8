package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/leadscan/leadscan/internal/core/domain"
)

// Forwarder hands a detected lead to the downstream consumer.
type Forwarder interface {
	Forward(ctx context.Context, lead domain.DetectedLead) error
}

// LogForwarder is the default sink: it logs the lead and reports success.
// Deployments with a real downstream replace it at wiring time.
type LogForwarder struct {
	logger *zerolog.Logger
}

// NewLogForwarder creates the logging sink.
func NewLogForwarder(logger *zerolog.Logger) *LogForwarder {
	return &LogForwarder{logger: logger}
}

// Forward logs the lead.
func (f *LogForwarder) Forward(_ context.Context, lead domain.DetectedLead) error {
	f.logger.Info().
		Str("lead_id", lead.ID).
		Str("tenant_id", lead.TenantID).
		Str("sender_key", lead.SenderKey).
		Int("confidence", lead.Confidence).
		Str("rationale", lead.Rationale).
		Msg("lead forwarded")

	return nil
}
