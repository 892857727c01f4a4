// Package strategy implements singular and redundant delivery strategies
// and the cost-function abstraction they compose (§4.2).
package strategy

import (
	"sync"

	"github.com/tutu-network/instruments/internal/domain"
)

// Evaluator is the interface a strategy hands its cost functions to, rather
// than evaluating them itself — the evaluator decides how to iterate over
// its uncertainty model.
type Evaluator interface {
	ExpectedValue(s Strategy, fn domain.CostFn, strategyArg, chooserArg float64) float64
}

// Strategy is either Singular or Redundant.
type Strategy interface {
	Name() string
	// CalculateTime delegates to evaluator.ExpectedValue against the
	// strategy's time cost function.
	CalculateTime(ev Evaluator, chooserArg float64) float64
	// CalculateCost delegates against the strategy's cost function, a
	// weighted sum of energy and data under the current resource weights.
	CalculateCost(ev Evaluator, energyWeight, dataWeight, chooserArg float64) float64
	// TimeFn, EnergyFn, DataFn expose the three raw cost functions so an
	// evaluator can evaluate them directly (the empirical evaluator does
	// this for each child of a redundant strategy, picking the child's
	// function that matches the combiner's kind).
	TimeFn() domain.CostFn
	EnergyFn() domain.CostFn
	DataFn() domain.CostFn
	StrategyArg() float64
	DefaultChooserArg() float64
	// Children returns nil for a Singular strategy, and the ordered child
	// list for a Redundant one.
	Children() []Strategy
	// Uses returns the monotonic set of estimator names this strategy's
	// cost functions have been observed to read. Re-running the collector
	// can only grow this set, never shrink it.
	Uses() []string
	// Prime dry-runs every cost function once against a collector context,
	// without touching an evaluator, so Uses() is populated before the
	// first real ExpectedValue call. Evaluators key their subscription and
	// readiness bookkeeping off Uses(); without priming, Uses() stays empty
	// until the strategy's first CalculateTime or CalculateCost call.
	Prime()
}

// ─── Singular ───────────────────────────────────────────────────────────────

// Singular is a strategy backed directly by three cost functions.
type Singular struct {
	name              string
	timeFn            domain.CostFn
	energyFn          domain.CostFn
	dataFn            domain.CostFn
	strategyArg       float64
	defaultChooserArg float64

	usesMu sync.Mutex
	uses   map[string]struct{}
}

// NewSingular constructs a singular strategy. Returns
// domain.ErrEmptyStrategyName if name is empty.
func NewSingular(name string, timeFn, energyFn, dataFn domain.CostFn, strategyArg, defaultChooserArg float64) (*Singular, error) {
	name = domain.NormalizeName(name)
	if name == "" {
		return nil, domain.ErrEmptyStrategyName
	}
	return &Singular{
		name:              name,
		timeFn:            timeFn,
		energyFn:          energyFn,
		dataFn:            dataFn,
		strategyArg:       strategyArg,
		defaultChooserArg: defaultChooserArg,
		uses:              make(map[string]struct{}),
	}, nil
}

func (s *Singular) Name() string { return s.name }

func (s *Singular) CalculateTime(ev Evaluator, chooserArg float64) float64 {
	s.recordUses(s.timeFn, chooserArg)
	return ev.ExpectedValue(s, s.timeFn, s.strategyArg, chooserArg)
}

func (s *Singular) CalculateCost(ev Evaluator, energyWeight, dataWeight, chooserArg float64) float64 {
	s.recordUses(s.energyFn, chooserArg)
	s.recordUses(s.dataFn, chooserArg)
	energy := ev.ExpectedValue(s, s.energyFn, s.strategyArg, chooserArg)
	data := ev.ExpectedValue(s, s.dataFn, s.strategyArg, chooserArg)
	return energyWeight*energy + dataWeight*data
}

func (s *Singular) TimeFn() domain.CostFn   { return s.timeFn }
func (s *Singular) EnergyFn() domain.CostFn { return s.energyFn }
func (s *Singular) DataFn() domain.CostFn   { return s.dataFn }
func (s *Singular) StrategyArg() float64    { return s.strategyArg }
func (s *Singular) DefaultChooserArg() float64 { return s.defaultChooserArg }
func (s *Singular) Children() []Strategy    { return nil }

// recordUses runs fn once through a collectorCtx to discover which
// estimators it reads, then unions the result into s.uses. The union is
// monotonic: a re-run can only add names, never remove them.
func (s *Singular) recordUses(fn domain.CostFn, chooserArg float64) {
	c := &collectorCtx{}
	fn.Eval(c, s.strategyArg, chooserArg)

	s.usesMu.Lock()
	defer s.usesMu.Unlock()
	for _, name := range c.seen {
		s.uses[name] = struct{}{}
	}
}

func (s *Singular) Uses() []string {
	s.usesMu.Lock()
	defer s.usesMu.Unlock()
	names := make([]string, 0, len(s.uses))
	for name := range s.uses {
		names = append(names, name)
	}
	return names
}

// Prime dry-runs all three cost functions, at this strategy's default
// chooser argument, so Uses() reflects every estimator they read before
// any evaluator ever sees this strategy.
func (s *Singular) Prime() {
	s.recordUses(s.timeFn, s.defaultChooserArg)
	s.recordUses(s.energyFn, s.defaultChooserArg)
	s.recordUses(s.dataFn, s.defaultChooserArg)
}

// ─── Redundant ──────────────────────────────────────────────────────────────

// Redundant is an ordered list of singular strategies combined by three
// fixed rules: time = min over children, energy = sum, data = sum.
type Redundant struct {
	name     string
	children []Strategy

	timeFn   domain.CostFn
	energyFn domain.CostFn
	dataFn   domain.CostFn
}

// NewRedundant constructs a redundant strategy over children, in order.
// Returns domain.ErrEmptyRedundantSet if children is empty, or
// domain.ErrEmptyStrategyName if name is empty.
func NewRedundant(name string, children []Strategy) (*Redundant, error) {
	name = domain.NormalizeName(name)
	if name == "" {
		return nil, domain.ErrEmptyStrategyName
	}
	if len(children) == 0 {
		return nil, domain.ErrEmptyRedundantSet
	}
	cs := make([]Strategy, len(children))
	copy(cs, children)
	return &Redundant{
		name:     name,
		children: cs,
		timeFn:   redundantCombinerFn{kind: domain.RedundantMinTimeFn},
		energyFn: redundantCombinerFn{kind: domain.RedundantSumEnergyFn},
		dataFn:   redundantCombinerFn{kind: domain.RedundantSumDataFn},
	}, nil
}

func (r *Redundant) Name() string { return r.name }

func (r *Redundant) CalculateTime(ev Evaluator, chooserArg float64) float64 {
	return ev.ExpectedValue(r, r.timeFn, 0, chooserArg)
}

func (r *Redundant) CalculateCost(ev Evaluator, energyWeight, dataWeight, chooserArg float64) float64 {
	energy := ev.ExpectedValue(r, r.energyFn, 0, chooserArg)
	data := ev.ExpectedValue(r, r.dataFn, 0, chooserArg)
	return energyWeight*energy + dataWeight*data
}

func (r *Redundant) TimeFn() domain.CostFn      { return r.timeFn }
func (r *Redundant) EnergyFn() domain.CostFn    { return r.energyFn }
func (r *Redundant) DataFn() domain.CostFn      { return r.dataFn }
func (r *Redundant) StrategyArg() float64       { return 0 }
func (r *Redundant) DefaultChooserArg() float64 { return 0 }
func (r *Redundant) Children() []Strategy       { return r.children }

// Prime primes every child strategy in turn.
func (r *Redundant) Prime() {
	for _, c := range r.children {
		c.Prime()
	}
}

// Uses returns the union of every child's Uses set.
func (r *Redundant) Uses() []string {
	seen := make(map[string]struct{})
	for _, c := range r.children {
		for _, name := range c.Uses() {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names
}

// DisjointForFn reports whether a and b's full Uses() sets (the estimators
// read by any of their cost functions) are disjoint, permitting the
// cheaper memoized combination path in the empirical evaluator (§4.4).
// The check is not narrowed to the estimators of one cost function.
func DisjointForFn(a, b Strategy) bool {
	bSet := make(map[string]struct{}, len(b.Uses()))
	for _, name := range b.Uses() {
		bSet[name] = struct{}{}
	}
	for _, name := range a.Uses() {
		if _, ok := bSet[name]; ok {
			return false
		}
	}
	return true
}

// ─── Redundant combiner cost functions ─────────────────────────────────────

// redundantCombinerFn carries a stable domain.CostFnKind discriminant instead of
// relying on Go function-value equality, which is not comparable in
// general. Evaluators switch on Kind() to special-case the memoized path.
type redundantCombinerFn struct {
	kind domain.CostFnKind
}

func (f redundantCombinerFn) Kind() domain.CostFnKind { return f.kind }

// Eval is never invoked directly: every evaluator switches on Kind() for a
// redundant combiner and takes its own combination path (min over children
// for time, sum for energy and data) instead of calling this.
func (f redundantCombinerFn) Eval(ctx domain.EvalCtx, strategyArg, chooserArg float64) float64 {
	panic("instruments: redundant combiner cost function evaluated directly; evaluator must switch on Kind()")
}

// ─── Estimator-use collector ────────────────────────────────────────────────

// collectorCtx implements domain.EvalCtx and records every estimator name
// read through Get during one dry-run invocation of a cost function.
type collectorCtx struct {
	seen []string
}

func (c *collectorCtx) Get(estimatorName string) float64 {
	c.seen = append(c.seen, estimatorName)
	return 0
}

var (
	_ Strategy       = (*Singular)(nil)
	_ Strategy       = (*Redundant)(nil)
	_ domain.CostFn  = redundantCombinerFn{}
	_ domain.EvalCtx = (*collectorCtx)(nil)
)
