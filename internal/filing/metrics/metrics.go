package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the filing engine.
type Metrics struct {
	DraftsCreated    prometheus.Counter
	DraftsUpdated    prometheus.Counter
	IdempotencyHits  prometheus.Counter
	RollbacksApplied prometheus.Counter
	RecomputeFlagged prometheus.Counter

	PipelineRuns      *prometheus.CounterVec
	StageDegradations *prometheus.CounterVec
	PipelineDuration  prometheus.Histogram

	ExportsSucceeded prometheus.Counter
	ExportsRefused   prometheus.Counter

	Transitions *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DraftsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfiling_drafts_created_total",
			Help: "Total number of drafts created.",
		}),
		DraftsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfiling_drafts_updated_total",
			Help: "Total number of draft updates persisted.",
		}),
		IdempotencyHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfiling_draft_idempotency_hits_total",
			Help: "Draft creations resolved to an existing filing via idempotency key.",
		}),
		RollbacksApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfiling_state_rollbacks_total",
			Help: "Lifecycle rollbacks applied because material data changed after computation.",
		}),
		RecomputeFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfiling_recompute_flagged_total",
			Help: "Draft updates that flagged stored computation results as stale.",
		}),
		PipelineRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taxfiling_pipeline_runs_total",
			Help: "Computation pipeline runs by outcome.",
		}, []string{"outcome"}),
		StageDegradations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taxfiling_pipeline_stage_degradations_total",
			Help: "Pipeline sub-stages that failed and were substituted with defaults.",
		}, []string{"stage"}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxfiling_pipeline_duration_seconds",
			Help:    "Wall time of full computation pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}),
		ExportsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfiling_exports_succeeded_total",
			Help: "Export artifacts emitted after both validation passes succeeded.",
		}),
		ExportsRefused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfiling_exports_refused_total",
			Help: "Exports refused because a validation pass reported errors.",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taxfiling_state_transitions_total",
			Help: "Applied lifecycle transitions by target state.",
		}, []string{"to"}),
	}
}

// ObservePipeline records one pipeline run.
func (m *Metrics) ObservePipeline(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(elapsed.Seconds())
}

// IncStageDegraded records a degraded sub-stage.
func (m *Metrics) IncStageDegraded(stage string) {
	if m == nil {
		return
	}
	m.StageDegradations.WithLabelValues(stage).Inc()
}

// IncTransition records an applied transition.
func (m *Metrics) IncTransition(to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to).Inc()
}
