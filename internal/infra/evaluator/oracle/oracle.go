// Package oracle implements the Trusted-Oracle evaluator (§4.3): the
// degenerate case that evaluates a cost function once against raw
// estimator point estimates, with no error model.
package oracle

import (
	"github.com/tutu-network/instruments/internal/domain"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

// Evaluator is the Trusted-Oracle strategy evaluator. It also serves as
// the internal SimpleEvaluator the Bayesian evaluator uses to score a
// single decision snapshot (§4.6).
type Evaluator struct {
	reg *estimator.Registry
}

// New constructs a Trusted-Oracle evaluator backed by reg for estimator
// lookups.
func New(reg *estimator.Registry) *Evaluator {
	return &Evaluator{reg: reg}
}

// pointCtx implements domain.EvalCtx by returning each estimator's raw
// current estimate, unconditionally.
type pointCtx struct {
	reg *estimator.Registry
}

func (c pointCtx) Get(name string) float64 {
	e, err := c.reg.Get(name)
	if err != nil {
		return domain.InvalidEstimate
	}
	return e.Estimate()
}

// ExpectedValue satisfies strategy.Evaluator: expected_value(strategy, fn,
// strategyArg, chooserArg) = fn(self, strategyArg, chooserArg) evaluated
// against each estimator's raw point estimate. The strategy parameter is
// intentionally unused — a trusted oracle needs no information about which
// strategy the cost function belongs to, only the function itself.
func (ev *Evaluator) ExpectedValue(s strategy.Strategy, fn domain.CostFn, strategyArg, chooserArg float64) float64 {
	return fn.Eval(pointCtx{reg: ev.reg}, strategyArg, chooserArg)
}

var _ strategy.Evaluator = (*Evaluator)(nil)
