package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Estimator configuration errors
	ErrEmptyEstimatorName = errors.New("estimator name must not be empty")
	ErrDuplicateEstimator = errors.New("estimator name already registered")
	ErrUnknownEstimator   = errors.New("no estimator registered with that name")
	ErrInvalidCondition   = errors.New("at_least must not exceed at_most")

	// Strategy configuration errors
	ErrEmptyStrategyName = errors.New("strategy name must not be empty")
	ErrEmptyRedundantSet = errors.New("redundant strategy requires at least one child")

	// Eval-method errors
	ErrUnknownEvalMethod = errors.New("unrecognized eval-method tag")

	// Persistence I/O errors
	ErrPersistFormat       = errors.New("malformed persistence stream")
	ErrPersistTypeMismatch = errors.New("persisted distribution type does not match evaluator")

	// Scheduling errors
	ErrSchedulerStopped = errors.New("scheduler is shut down")

	// Config loading errors (§1 ambient stack: TOML config, rejected at
	// the entry point rather than left to fail later at lookup time)
	ErrConfigNoEstimators    = errors.New("config: no estimators defined")
	ErrConfigNoStrategies    = errors.New("config: no singular strategies defined")
	ErrConfigUnknownEstKind  = errors.New("config: unrecognized estimator kind")
	ErrConfigUnknownCostFn   = errors.New("config: unrecognized cost function kind")
	ErrConfigUnknownChild    = errors.New("config: redundant strategy references an unknown child strategy")
	ErrConfigUnknownWeights  = errors.New("config: unrecognized resource weight policy")
	ErrConfigUnknownEvalKind = errors.New("config: unrecognized evaluator kind")
)

// Invariant violations (§7): reentrant expected_value, a memoization miss
// that survives the validation pass, type mismatches during deserialization.
// These are programmer errors, not runtime conditions — callers let the
// panic propagate rather than recover from it.

// PanicReentrantEvaluation panics to signal that expected_value was called
// again while a joint-iterator instance from an earlier call is still live
// on the same evaluator, violating the §5 ordering guarantee.
func PanicReentrantEvaluation() {
	panic("instruments: expected_value re-entered while a joint iterator is live")
}

// PanicMemoizationMiss panics to signal a memoization table cell was read
// as invalid after the validation pass was supposed to have zeroed it.
func PanicMemoizationMiss(key string) {
	panic("instruments: memoization miss after validation pass: " + key)
}
