package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Evaluator Metrics ──────────────────────────────────────────────────────

// EvaluationsTotal counts ExpectedValue calls by evaluator method and
// strategy kind (singular/redundant).
var EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "instruments",
	Subsystem: "evaluator",
	Name:      "evaluations_total",
	Help:      "Total ExpectedValue calls by eval method and strategy kind.",
}, []string{"method", "kind"})

// EvaluationDuration tracks how long one ExpectedValue call took.
var EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "instruments",
	Subsystem: "evaluator",
	Name:      "evaluation_duration_seconds",
	Help:      "Duration of a single ExpectedValue call.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method"})

// JointDimensionWidth tracks how many estimators a joint iteration spanned,
// useful for judging whether ConcurrencyThreshold is well tuned.
var JointDimensionWidth = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "instruments",
	Subsystem: "evaluator",
	Name:      "joint_dimension_width",
	Help:      "Number of estimator dimensions in an empirical joint iteration.",
	Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
})

// ─── Chooser Metrics ────────────────────────────────────────────────────────

// ChoicesTotal counts chooser decisions by the winning strategy's kind.
var ChoicesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "instruments",
	Subsystem: "chooser",
	Name:      "choices_total",
	Help:      "Total chooser decisions by winning strategy kind (singular/redundant).",
}, []string{"kind"})

// ResourceWeight tracks the current energy/data resource weight.
var ResourceWeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "instruments",
	Subsystem: "chooser",
	Name:      "resource_weight",
	Help:      "Current resource weight by resource kind (energy/data).",
}, []string{"resource"})

// ─── Scheduler Metrics ──────────────────────────────────────────────────────

// ScheduledTasksPending tracks the deadline-heap's current depth.
var ScheduledTasksPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "instruments",
	Subsystem: "scheduler",
	Name:      "scheduled_tasks_pending",
	Help:      "Number of scheduled re-evaluations waiting for their deadline.",
})

// AsyncTasksOutstanding tracks the number of choose_strategy_async tasks
// currently queued or running against the semaphore cap.
var AsyncTasksOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "instruments",
	Subsystem: "scheduler",
	Name:      "async_tasks_outstanding",
	Help:      "Number of outstanding choose_strategy_async tasks.",
})

// TracesRecorded counts completed spans.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "instruments",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors counts spans that ended in error.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "instruments",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
