package chooser

import (
	"errors"
	"sync"

	"github.com/tutu-network/instruments/internal/infra/strategy"
)

// ErrNoSingularStrategies is returned when Choose is asked to rank an
// empty singular-strategy set — there is no best_singular to fall back
// to.
var ErrNoSingularStrategies = errors.New("chooser: at least one singular strategy is required")

// Chooser implements the 4-step strategy-selection algorithm in §4.7.
type Chooser struct {
	weights ResourceWeights

	mu        sync.Mutex
	lastTimes map[string]float64
}

// New constructs a Chooser over the given resource-weight policy.
func New(weights ResourceWeights) *Chooser {
	return &Chooser{weights: weights, lastTimes: make(map[string]float64)}
}

// Choose runs the full 4-step algorithm: best singular by minimum
// expected time, then the redundant strategy (if any) whose net benefit
// over best_singular is positive and maximal.
func (c *Chooser) Choose(ev strategy.Evaluator, singulars, redundants []strategy.Strategy, chooserArg float64) (strategy.Strategy, error) {
	if len(singulars) == 0 {
		return nil, ErrNoSingularStrategies
	}

	bestSingular, bestTime := c.rankSingulars(ev, singulars, chooserArg)
	bestCost := bestSingular.CalculateCost(ev, c.weights.EnergyWeight(), c.weights.DataWeight(), chooserArg)

	var winner strategy.Strategy = bestSingular
	bestNet := 0.0
	haveNet := false

	for _, r := range redundants {
		rTime := r.CalculateTime(ev, chooserArg)
		rCost := r.CalculateCost(ev, c.weights.EnergyWeight(), c.weights.DataWeight(), chooserArg)
		c.recordTime(r.Name(), rTime)

		benefit := bestTime - rTime
		extraCost := rCost - bestCost
		net := benefit - extraCost

		if net > 0 && (!haveNet || net > bestNet) {
			winner, bestNet, haveNet = r, net, true
		}
	}

	return winner, nil
}

// ChooseNonredundant runs only step 1: the best singular strategy by
// minimum expected time, never considering redundant combinations.
func (c *Chooser) ChooseNonredundant(ev strategy.Evaluator, singulars []strategy.Strategy, chooserArg float64) (strategy.Strategy, error) {
	if len(singulars) == 0 {
		return nil, ErrNoSingularStrategies
	}
	best, _ := c.rankSingulars(ev, singulars, chooserArg)
	return best, nil
}

func (c *Chooser) rankSingulars(ev strategy.Evaluator, singulars []strategy.Strategy, chooserArg float64) (strategy.Strategy, float64) {
	var best strategy.Strategy
	bestTime := 0.0
	for i, s := range singulars {
		t := s.CalculateTime(ev, chooserArg)
		c.recordTime(s.Name(), t)
		if i == 0 || t < bestTime {
			best, bestTime = s, t
		}
	}
	return best, bestTime
}

func (c *Chooser) recordTime(name string, t float64) {
	c.mu.Lock()
	c.lastTimes[name] = t
	c.mu.Unlock()
}

// GetLastStrategyTime returns the cached expected time from the most
// recent Choose/ChooseNonredundant call, if any.
func (c *Chooser) GetLastStrategyTime(name string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.lastTimes[name]
	return t, ok
}
