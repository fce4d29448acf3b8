package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
)

const statusRunLimit = 10

// operatorHandler exposes the operator hooks, mounted under /ops/:
//
//	POST /trigger/{tenantID} — run the pipeline for one tenant now
//	GET  /status/{tenantID}  — recent run logs for one tenant
//
// Triggers go through the same run guard as scheduled runs, so a manual
// trigger during a scheduled run is skipped, not queued.
func (a *App) operatorHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger/", a.handleTrigger)
	mux.HandleFunc("/status/", a.handleStatus)

	return mux
}

func (a *App) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	tenantID := strings.TrimPrefix(r.URL.Path, "/trigger/")
	if tenantID == "" {
		http.Error(w, "missing tenant id", http.StatusBadRequest)

		return
	}

	if err := a.sched.RunTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "unknown tenant", http.StatusNotFound)

			return
		}

		a.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("manual trigger failed")
		http.Error(w, "trigger failed", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("triggered\n"))
}

type statusResponse struct {
	TenantID string         `json:"tenant_id"`
	Runs     []statusRunLog `json:"runs"`
}

type statusRunLog struct {
	ID            string   `json:"id"`
	StartedAt     string   `json:"started_at"`
	FinishedAt    string   `json:"finished_at"`
	Fetched       int      `json:"fetched"`
	Prefiltered   int      `json:"prefiltered"`
	Classified    int      `json:"classified"`
	Verified      int      `json:"verified"`
	Rejected      int      `json:"verified_rejected"`
	Leads         int      `json:"leads"`
	Deduplicated  int      `json:"deduplicated"`
	BudgetSkipped int      `json:"budget_skipped"`
	Failed        int      `json:"failed"`
	CostUSD       string   `json:"cost_usd"`
	Errors        []string `json:"errors,omitempty"`
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	tenantID := strings.TrimPrefix(r.URL.Path, "/status/")
	if tenantID == "" {
		http.Error(w, "missing tenant id", http.StatusBadRequest)

		return
	}

	if _, err := a.database.GetTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "unknown tenant", http.StatusNotFound)

			return
		}

		http.Error(w, "lookup failed", http.StatusInternalServerError)

		return
	}

	logs, err := a.database.LastRunLogs(r.Context(), tenantID, statusRunLimit)
	if err != nil {
		a.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("status lookup failed")
		http.Error(w, "lookup failed", http.StatusInternalServerError)

		return
	}

	resp := statusResponse{TenantID: tenantID, Runs: make([]statusRunLog, 0, len(logs))}
	for _, rl := range logs {
		resp.Runs = append(resp.Runs, toStatusRunLog(rl))
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Warn().Err(err).Msg("status response encoding failed")
	}
}

func toStatusRunLog(rl domain.RunLog) statusRunLog {
	return statusRunLog{
		ID:            rl.ID,
		StartedAt:     rl.StartedAt.Format(time.RFC3339),
		FinishedAt:    rl.FinishedAt.Format(time.RFC3339),
		Fetched:       rl.Fetched,
		Prefiltered:   rl.Prefiltered,
		Classified:    rl.Classified,
		Verified:      rl.Verified,
		Rejected:      rl.VerifiedRejected,
		Leads:         rl.Leads,
		Deduplicated:  rl.Deduplicated,
		BudgetSkipped: rl.BudgetSkipped,
		Failed:        rl.Failed,
		CostUSD:       rl.CostUSD.String(),
		Errors:        rl.Errors,
	}
}
