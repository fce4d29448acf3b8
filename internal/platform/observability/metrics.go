package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_messages_fetched_total",
		Help: "The total number of messages fetched from the shared store",
	}, []string{"tenant"})

	PipelineProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_pipeline_processed_total",
		Help: "The total number of candidates processed by the pipeline",
	}, []string{"tenant", "status"})

	DropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_drops_total",
		Help: "Total number of rejected candidates by reason",
	}, []string{"reason"})

	LeadsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_leads_persisted_total",
		Help: "The total number of detected leads persisted",
	}, []string{"tenant"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_llm_requests_total",
		Help: "The total number of LLM requests",
	}, []string{"model", "stage", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadscan_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "stage"})

	LLMTokensPrompt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_llm_tokens_prompt_total",
		Help: "Total prompt tokens consumed",
	}, []string{"model", "stage"})

	LLMTokensCompletion = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_llm_tokens_completion_total",
		Help: "Total completion tokens consumed",
	}, []string{"model", "stage"})

	LLMCostMillicents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_llm_cost_millicents_total",
		Help: "Recorded LLM cost in millicents",
	}, []string{"tenant", "model"})

	BudgetRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leadscan_budget_remaining_usd",
		Help: "Remaining monthly budget per tenant at the start of a run",
	}, []string{"tenant"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_runs_total",
		Help: "Total orchestration runs by outcome",
	}, []string{"tenant", "outcome"})

	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leadscan_run_duration_seconds",
		Help:    "Duration in seconds of one orchestration run",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
	})

	RunsSkippedGuard = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_runs_skipped_guard_total",
		Help: "Runs skipped because the tenant run guard was held",
	}, []string{"tenant"})

	RetrySweepHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_retry_sweep_handled_total",
		Help: "Pending leads re-handed to the downstream sink by the retry sweep",
	}, []string{"status"})
)
