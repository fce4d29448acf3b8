package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leadscan/leadscan/internal/core/domain"
	"github.com/leadscan/leadscan/internal/platform/observability"
)

// runStats accumulates one run's counters across worker goroutines.
type runStats struct {
	mu sync.Mutex

	fetched          int
	prefiltered      int
	classified       int
	verified         int
	verifiedRejected int
	leads            int
	deduplicated     int
	budgetSkipped    int
	failed           int
	cost             decimal.Decimal

	errs     []string
	errsCap  int
	errsOver int
}

func newRunStats(errsCap int) *runStats {
	if errsCap <= 0 {
		errsCap = 20
	}

	return &runStats{errsCap: errsCap}
}

func (s *runStats) setFetched(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = n
}

func (s *runStats) setPrefiltered(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefiltered = n
}

func (s *runStats) addClassified(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classified += n
}

func (s *runStats) addVerified(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified += n
}

func (s *runStats) addLead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads++
}

func (s *runStats) addBudgetSkipped(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgetSkipped += n

	observability.DropsTotal.WithLabelValues(string(domain.RejectBudget)).Add(float64(n))
}

func (s *runStats) addFailed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed += n
}

func (s *runStats) drop(reason domain.RejectReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch reason {
	case domain.RejectDuplicate, domain.RejectWriterConflict:
		s.deduplicated++
	case domain.RejectStage2:
		s.verifiedRejected++
	default:
	}

	observability.DropsTotal.WithLabelValues(string(reason)).Inc()
}

func (s *runStats) setCost(cost decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cost = cost
}

// addError keeps at most errsCap messages; overflow is summarized so the run
// log row stays bounded.
func (s *runStats) addError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.errs) >= s.errsCap {
		s.errsOver++

		return
	}

	s.errs = append(s.errs, err.Error())
}

func (s *runStats) runLog(runID, tenantID string, started time.Time) *domain.RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]string, len(s.errs))
	copy(errs, s.errs)

	if s.errsOver > 0 {
		errs = append(errs, fmt.Sprintf("... and %d more errors", s.errsOver))
	}

	return &domain.RunLog{
		ID:               runID,
		TenantID:         tenantID,
		StartedAt:        started,
		FinishedAt:       time.Now().UTC(),
		Fetched:          s.fetched,
		Prefiltered:      s.prefiltered,
		Classified:       s.classified,
		Verified:         s.verified,
		VerifiedRejected: s.verifiedRejected,
		Leads:            s.leads,
		Deduplicated:     s.deduplicated,
		BudgetSkipped:    s.budgetSkipped,
		Failed:           s.failed,
		CostUSD:          s.cost,
		Errors:           errs,
	}
}
