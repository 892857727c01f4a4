package strategy

import "github.com/tutu-network/instruments/internal/domain"

// LinearCostFn is the built-in cost function for config-driven strategies
// (no compiled-in Go closure available): Coefficient*ctx.Get(Estimator) +
// Intercept, ignoring strategyArg and chooserArg. Covers the common case of
// a cost that scales linearly with one estimator's current value, e.g. RTT
// in milliseconds or bytes-per-second throughput.
type LinearCostFn struct {
	Estimator   string
	Coefficient float64
	Intercept   float64
}

func (f LinearCostFn) Kind() domain.CostFnKind { return domain.CustomCostFn }

func (f LinearCostFn) Eval(ctx domain.EvalCtx, strategyArg, chooserArg float64) float64 {
	return f.Coefficient*ctx.Get(f.Estimator) + f.Intercept
}

// ConstantCostFn always returns Value, reading no estimator. Useful for a
// strategy whose energy or data cost doesn't depend on live measurement,
// e.g. a strategy with no data cost.
type ConstantCostFn struct {
	Value float64
}

func (f ConstantCostFn) Kind() domain.CostFnKind { return domain.CustomCostFn }

func (f ConstantCostFn) Eval(ctx domain.EvalCtx, strategyArg, chooserArg float64) float64 {
	return f.Value
}

var (
	_ domain.CostFn = LinearCostFn{}
	_ domain.CostFn = ConstantCostFn{}
)
