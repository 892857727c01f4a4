// Package estimator implements the three built-in Estimator variants and the
// observation bus (§4.1): Last-Observation, Running-Mean, and External.
package estimator

import (
	"sync"

	"github.com/tutu-network/instruments/internal/domain"
)

// Kind selects which estimation rule folds observations into the rolling
// estimate.
type Kind int

const (
	// LastObservation: estimate = most recent sample.
	LastObservation Kind = iota
	// RunningMean: estimate = arithmetic mean of all samples.
	RunningMean
	// External: the caller supplies new_estimate directly, for when a
	// parallel system already runs its own smoother.
	External
)

// Estimator is a named source of a scalar real-valued signal. It owns two
// locks, acquired state-then-subscribers to match the locking graph in
// §9 ("Estimator subscriber list ⇨ evaluator ⇨ global resource-weights").
type Estimator struct {
	name string
	kind Kind

	stateMu     sync.Mutex
	hasEstimate bool
	estimate    float64
	sum         float64 // RunningMean accumulator
	count       int64   // RunningMean accumulator
	conditions  domain.Conditions

	hasRangeHints bool
	rangeMin      float64
	rangeMax      float64
	rangeNumBins  int

	subMu sync.Mutex
	subs  smallSet[domain.Subscriber]
}

// New constructs an estimator of the given kind. Returns
// domain.ErrEmptyEstimatorName if name is empty after whitespace
// normalization — a configuration error rejected at the entry point (§7).
func New(kind Kind, name string) (*Estimator, error) {
	name = domain.NormalizeName(name)
	if name == "" {
		return nil, domain.ErrEmptyEstimatorName
	}
	return &Estimator{name: name, kind: kind, estimate: domain.InvalidEstimate}, nil
}

func (e *Estimator) Name() string { return e.name }

func (e *Estimator) Kind() Kind { return e.kind }

// AddObservation folds v into the estimator's internal state and notifies
// subscribers in arrival order: (self, v, oldEstimate, newEstimate). Not
// valid for External estimators — use AddObservationExternal.
func (e *Estimator) AddObservation(v float64) (oldEstimate, newEstimate float64) {
	if e.kind == External {
		panic("instruments: AddObservation called on an External estimator; use AddObservationExternal")
	}

	e.stateMu.Lock()
	old := domain.InvalidEstimate
	if e.hasEstimate {
		old = e.estimate
	}

	switch e.kind {
	case LastObservation:
		e.estimate = v
	case RunningMean:
		e.sum += v
		e.count++
		e.estimate = e.sum / float64(e.count)
	}
	e.hasEstimate = true
	newVal := e.estimate
	e.stateMu.Unlock()

	e.notifyObservation(v, old, newVal)
	return old, newVal
}

// AddObservationExternal is the External-estimator path: the caller supplies
// new_estimate explicitly rather than having it derived from v.
func (e *Estimator) AddObservationExternal(v, newEst float64) (oldEstimate, newEstimate float64) {
	if e.kind != External {
		panic("instruments: AddObservationExternal called on a non-External estimator")
	}

	e.stateMu.Lock()
	old := domain.InvalidEstimate
	if e.hasEstimate {
		old = e.estimate
	}
	e.estimate = newEst
	e.hasEstimate = true
	e.stateMu.Unlock()

	e.notifyObservation(v, old, newEst)
	return old, newEst
}

func (e *Estimator) notifyObservation(observation, old, newEst float64) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs.Each(func(s domain.Subscriber) {
		s.OnObservation(e.name, observation, old, newEst)
	})
}

// Estimate returns the current estimate, or domain.InvalidEstimate if no
// observation has yet been recorded.
func (e *Estimator) Estimate() float64 {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if !e.hasEstimate {
		return domain.InvalidEstimate
	}
	return e.estimate
}

func (e *Estimator) HasEstimate() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.hasEstimate
}

// Conditions returns a copy of the current guardband.
func (e *Estimator) Conditions() domain.Conditions {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.conditions
}

// SetCondition records an at-least/at-most guard and broadcasts a
// "conditions changed" event so subscribers invalidate caches.
func (e *Estimator) SetCondition(kind domain.ConditionKind, v float64) {
	e.stateMu.Lock()
	e.conditions.Set(kind, v)
	e.stateMu.Unlock()
	e.notifyConditionsChanged()
}

func (e *Estimator) ClearConditions() {
	e.stateMu.Lock()
	e.conditions.Clear()
	e.stateMu.Unlock()
	e.notifyConditionsChanged()
}

func (e *Estimator) notifyConditionsChanged() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs.Each(func(s domain.Subscriber) {
		s.OnConditionsChanged(e.name)
	})
}

// RangeHints returns the stored histogram hints, if any.
func (e *Estimator) RangeHints() (min, max float64, numBins int, ok bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.rangeMin, e.rangeMax, e.rangeNumBins, e.hasRangeHints
}

func (e *Estimator) SetRangeHints(min, max float64, numBins int) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.rangeMin, e.rangeMax, e.rangeNumBins = min, max, numBins
	e.hasRangeHints = true
}

// Subscribe registers s as a subscriber. Duplicate subscribes are no-ops.
func (e *Estimator) Subscribe(s domain.Subscriber) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs.Add(s)
}

func (e *Estimator) Unsubscribe(s domain.Subscriber) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs.Remove(s)
}

// Destroy notifies subscribers that this estimator is gone, so they forget
// it (§3: "on destruction it notifies subscribers to forget it").
func (e *Estimator) Destroy() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs.Each(func(s domain.Subscriber) {
		s.OnEstimatorDestroyed(e.name)
	})
}

var _ domain.Estimator = (*Estimator)(nil)
