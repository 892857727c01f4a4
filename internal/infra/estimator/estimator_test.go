package estimator

import (
	"testing"

	"github.com/tutu-network/instruments/internal/domain"
)

type recordingSubscriber struct {
	observations   int
	conditionsHit  int
	destroyed      int
	lastEstimator  string
	lastObs        float64
	lastOld        float64
	lastNew        float64
}

func (r *recordingSubscriber) OnObservation(name string, observation, oldEstimate, newEstimate float64) {
	r.observations++
	r.lastEstimator = name
	r.lastObs = observation
	r.lastOld = oldEstimate
	r.lastNew = newEstimate
}

func (r *recordingSubscriber) OnConditionsChanged(name string) {
	r.conditionsHit++
}

func (r *recordingSubscriber) OnEstimatorDestroyed(name string) {
	r.destroyed++
}

func TestNewRejectsEmptyName(t *testing.T) {
	if _, err := New(LastObservation, "   "); err != domain.ErrEmptyEstimatorName {
		t.Fatalf("expected ErrEmptyEstimatorName, got %v", err)
	}
}

func TestLastObservation(t *testing.T) {
	e, err := New(LastObservation, "rtt")
	if err != nil {
		t.Fatal(err)
	}
	if e.HasEstimate() {
		t.Fatal("fresh estimator should have no estimate")
	}
	if got := e.Estimate(); got != domain.InvalidEstimate {
		t.Fatalf("expected InvalidEstimate, got %v", got)
	}

	e.AddObservation(10)
	e.AddObservation(20)
	if got := e.Estimate(); got != 20 {
		t.Fatalf("expected last observation 20, got %v", got)
	}
}

func TestRunningMean(t *testing.T) {
	e, _ := New(RunningMean, "bandwidth")
	e.AddObservation(10)
	e.AddObservation(20)
	e.AddObservation(30)
	if got := e.Estimate(); got != 20 {
		t.Fatalf("expected mean 20, got %v", got)
	}
}

func TestExternalEstimatorRejectsAddObservation(t *testing.T) {
	e, _ := New(External, "signal")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling AddObservation on an External estimator")
		}
	}()
	e.AddObservation(1)
}

func TestExternalEstimator(t *testing.T) {
	e, _ := New(External, "signal")
	old, newEst := e.AddObservationExternal(5, 42)
	if old != domain.InvalidEstimate {
		t.Fatalf("expected no prior estimate, got %v", old)
	}
	if newEst != 42 || e.Estimate() != 42 {
		t.Fatalf("expected external estimate 42, got %v", newEst)
	}
}

func TestSubscriberNotifications(t *testing.T) {
	e, _ := New(LastObservation, "loss_rate")
	sub := &recordingSubscriber{}
	e.Subscribe(sub)
	e.Subscribe(sub) // duplicate, must stay a no-op

	e.AddObservation(0.5)
	if sub.observations != 1 {
		t.Fatalf("expected exactly one notification despite duplicate subscribe, got %d", sub.observations)
	}
	if sub.lastEstimator != "loss_rate" || sub.lastNew != 0.5 {
		t.Fatalf("unexpected notification payload: %+v", sub)
	}

	e.SetCondition(domain.AtMost, 1.0)
	if sub.conditionsHit != 1 {
		t.Fatalf("expected one conditions-changed notification, got %d", sub.conditionsHit)
	}

	e.Unsubscribe(sub)
	e.AddObservation(0.9)
	if sub.observations != 1 {
		t.Fatal("expected no further notifications after unsubscribe")
	}
}

func TestDestroyNotifiesSubscribers(t *testing.T) {
	e, _ := New(LastObservation, "flaky_link")
	sub := &recordingSubscriber{}
	e.Subscribe(sub)
	e.Destroy()
	if sub.destroyed != 1 {
		t.Fatalf("expected one destroyed notification, got %d", sub.destroyed)
	}
}

func TestRangeHints(t *testing.T) {
	e, _ := New(RunningMean, "energy")
	if _, _, _, ok := e.RangeHints(); ok {
		t.Fatal("expected no range hints by default")
	}
	e.SetRangeHints(0, 100, 10)
	min, max, bins, ok := e.RangeHints()
	if !ok || min != 0 || max != 100 || bins != 10 {
		t.Fatalf("unexpected range hints: %v %v %v %v", min, max, bins, ok)
	}
}

var _ domain.Subscriber = (*recordingSubscriber)(nil)
