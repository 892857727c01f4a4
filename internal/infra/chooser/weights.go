// Package chooser implements the strategy chooser and its resource-weight
// policies (§4.7).
package chooser

import (
	"math"
	"sync"
	"time"
)

// ResourceWeights projects a strategy's energy and data costs onto the
// chooser's scalar objective.
type ResourceWeights interface {
	EnergyWeight() float64
	DataWeight() float64
}

// Fixed supplies caller-chosen constant weights.
type Fixed struct {
	Energy float64
	Data   float64
}

func (f Fixed) EnergyWeight() float64 { return f.Energy }
func (f Fixed) DataWeight() float64   { return f.Data }

// ProhibitiveUpper is the weight clamp applied once a resource budget is
// exhausted or its deadline has passed: effectively infinite, steering the
// chooser away from that resource entirely.
var ProhibitiveUpper = math.Pow(2, 200)

// AggressiveLower is the default lower clamp for a goal-adaptive weight.
const AggressiveLower = 0.0

// rateSampleWindow is the number of raw spending-rate samples averaged
// before the EWMA takes over.
const rateSampleWindow = 100

// AdaptiveWeight tracks one resource's goal-adaptive weight: a background
// ticker recomputes it every second from the current spending rate and
// time remaining until the goal deadline.
type AdaptiveWeight struct {
	lowerBound float64
	upperBound float64
	now        func() time.Time

	mu             sync.Mutex
	weight         float64
	initialSupply  float64
	supply         float64
	goalDeadline   time.Time
	lastReportTime time.Time
	rateSamples    []float64
	rateInit       bool
	rateEWMA       float64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewAdaptiveWeight constructs a goal-adaptive weight for a budgeted
// resource (energy or data) and starts its background 1-second ticker.
// now defaults to time.Now when nil, overridable for deterministic tests.
func NewAdaptiveWeight(initialSupply float64, goalDeadline time.Time, now func() time.Time) *AdaptiveWeight {
	if now == nil {
		now = time.Now
	}
	w := &AdaptiveWeight{
		lowerBound:     AggressiveLower,
		upperBound:     ProhibitiveUpper,
		now:            now,
		weight:         1.0,
		initialSupply:  initialSupply,
		supply:         initialSupply,
		goalDeadline:   goalDeadline,
		lastReportTime: now(),
		stopCh:         make(chan struct{}),
	}
	go w.tickLoop()
	return w
}

func (w *AdaptiveWeight) tickLoop() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.mu.Lock()
			w.updateLocked()
			w.mu.Unlock()
		case <-w.stopCh:
			return
		}
	}
}

// Stop halts the background ticker. Safe to call more than once.
func (w *AdaptiveWeight) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// updateLocked applies the §4.7 formula: weight *= (spendingRate *
// secondsUntilGoal) / adjustedSupply, clamped. Caller must hold w.mu.
func (w *AdaptiveWeight) updateLocked() {
	now := w.now()
	if w.supply <= 0 || !now.Before(w.goalDeadline) {
		w.weight = w.upperBound
		return
	}
	secondsUntilGoal := w.goalDeadline.Sub(now).Seconds()
	adjustedSupply := w.supply - (0.05*w.supply + 0.08*w.initialSupply)
	if adjustedSupply <= 0 {
		w.weight = w.upperBound
		return
	}

	w.weight = w.weight * (w.currentRateLocked() * secondsUntilGoal) / adjustedSupply
	if w.weight < w.lowerBound {
		w.weight = w.lowerBound
	}
	if w.weight > w.upperBound {
		w.weight = w.upperBound
	}
}

func (w *AdaptiveWeight) currentRateLocked() float64 {
	if w.rateInit {
		return w.rateEWMA
	}
	if len(w.rateSamples) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range w.rateSamples {
		sum += r
	}
	return sum / float64(len(w.rateSamples))
}

// ReportSpent records amount consumed since the previous report, updating
// the running supply and spending-rate estimate.
func (w *AdaptiveWeight) ReportSpent(amount float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	elapsed := now.Sub(w.lastReportTime).Seconds()
	w.lastReportTime = now
	w.supply -= amount
	if elapsed <= 0 {
		return
	}
	rate := amount / elapsed

	if len(w.rateSamples) < rateSampleWindow {
		w.rateSamples = append(w.rateSamples, rate)
		if len(w.rateSamples) == rateSampleWindow {
			sum := 0.0
			for _, r := range w.rateSamples {
				sum += r
			}
			w.rateEWMA = sum / float64(rateSampleWindow)
			w.rateInit = true
		}
		return
	}

	secondsUntilGoal := w.goalDeadline.Sub(now).Seconds()
	gain := 1.0
	if secondsUntilGoal > 0 {
		gain = math.Pow(2, -1/(0.1*secondsUntilGoal))
	}
	w.rateEWMA = gain*rate + (1-gain)*w.rateEWMA
}

// Value returns the current weight.
func (w *AdaptiveWeight) Value() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.weight
}

// GoalAdaptive pairs two independent AdaptiveWeight trackers into a
// ResourceWeights.
type GoalAdaptive struct {
	Energy *AdaptiveWeight
	Data   *AdaptiveWeight
}

func (g GoalAdaptive) EnergyWeight() float64 { return g.Energy.Value() }
func (g GoalAdaptive) DataWeight() float64   { return g.Data.Value() }

var (
	_ ResourceWeights = Fixed{}
	_ ResourceWeights = GoalAdaptive{}
)
