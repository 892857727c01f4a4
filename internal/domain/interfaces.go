package domain

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers. Infrastructure
// implements them; evaluators and the chooser depend only on these.

// Subscriber receives notifications from an Estimator it has subscribed to.
type Subscriber interface {
	// OnObservation fires after an estimator folds a new sample into its
	// state, in the order (estimator, observation, oldEstimate, newEstimate).
	OnObservation(estimatorName string, observation, oldEstimate, newEstimate float64)

	// OnConditionsChanged fires when an estimator's at-least/at-most guard
	// is set or cleared, so caches keyed on conditioned distributions can
	// invalidate themselves.
	OnConditionsChanged(estimatorName string)

	// OnEstimatorDestroyed fires when an estimator is freed, so a
	// subscriber can forget about it.
	OnEstimatorDestroyed(estimatorName string)
}

// Estimator is a named source of a scalar real-valued signal (§3/§4.1).
type Estimator interface {
	Name() string
	Estimate() float64
	HasEstimate() bool
	Conditions() Conditions
	SetCondition(kind ConditionKind, v float64)
	ClearConditions()
	RangeHints() (min, max float64, numBins int, ok bool)
	SetRangeHints(min, max float64, numBins int)
	Subscribe(s Subscriber)
	Unsubscribe(s Subscriber)
}

// CostFnKind identifies the three redundant combiner functions with a
// stable, comparable identity — Go func values are not comparable in
// general, and the source relies on pointer-equality to special-case the
// combiners in the empirical evaluator's memoized path (Design Notes).
type CostFnKind int

const (
	CustomCostFn CostFnKind = iota
	RedundantMinTimeFn
	RedundantSumEnergyFn
	RedundantSumDataFn
)

// EvalCtx is the callback interface a CostFn evaluates against. Evaluators
// implement it to intercept estimator reads — this is how a strategy's
// cost function is made oblivious to which uncertainty model is iterating
// it (§4.2: "the strategy does not evaluate fn itself").
type EvalCtx interface {
	// Get returns the adjusted value of the named estimator's current
	// position in whatever iteration the active evaluator is performing.
	Get(estimatorName string) float64
}

// CostFn is a cost function over estimators, parameterized by a strategy
// argument and a chooser argument (§4.2).
type CostFn interface {
	Kind() CostFnKind
	Eval(ctx EvalCtx, strategyArg, chooserArg float64) float64
}
