package chooser

import (
	"testing"
	"time"

	"github.com/tutu-network/instruments/internal/domain"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/evaluator/oracle"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

type linearFn struct {
	bandwidthName string
	latencyName   string
	bytesArg      bool // not read: Eval always returns chooserArg/bw + latency
}

func (f linearFn) Kind() domain.CostFnKind { return domain.CustomCostFn }
func (f linearFn) Eval(ctx domain.EvalCtx, strategyArg, chooserArg float64) float64 {
	bw := ctx.Get(f.bandwidthName)
	lat := ctx.Get(f.latencyName)
	return chooserArg/bw + lat
}

func TestChooseNonredundantPicksFasterSingular(t *testing.T) {
	reg := estimator.NewRegistry()
	bw0, _ := estimator.New(estimator.LastObservation, "bw0")
	lat0, _ := estimator.New(estimator.LastObservation, "lat0")
	bw1, _ := estimator.New(estimator.LastObservation, "bw1")
	lat1, _ := estimator.New(estimator.LastObservation, "lat1")
	reg.Register(bw0)
	reg.Register(lat0)
	reg.Register(bw1)
	reg.Register(lat1)
	bw0.AddObservation(5000)
	lat0.AddObservation(1.0)
	bw1.AddObservation(2500)
	lat1.AddObservation(0.2)

	ev := oracle.New(reg)
	s0, _ := strategy.NewSingular("s0", linearFn{bandwidthName: "bw0", latencyName: "lat0"}, linearFn{}, linearFn{}, 0, 0)
	s1, _ := strategy.NewSingular("s1", linearFn{bandwidthName: "bw1", latencyName: "lat1"}, linearFn{}, linearFn{}, 0, 0)

	c := New(Fixed{Energy: 0, Data: 0})

	winner, err := c.ChooseNonredundant(ev, []strategy.Strategy{s0, s1}, 4001)
	if err != nil {
		t.Fatal(err)
	}
	if winner.Name() != "s0" {
		t.Fatalf("expected s0 to win with bytes=4001, got %s", winner.Name())
	}

	winner, err = c.ChooseNonredundant(ev, []strategy.Strategy{s0, s1}, 3999)
	if err != nil {
		t.Fatal(err)
	}
	if winner.Name() != "s1" {
		t.Fatalf("expected s1 to win with bytes=3999, got %s", winner.Name())
	}
}

func TestChooseRejectsEmptySingulars(t *testing.T) {
	c := New(Fixed{})
	_, err := c.Choose(nil, nil, nil, 0)
	if err != ErrNoSingularStrategies {
		t.Fatalf("expected ErrNoSingularStrategies, got %v", err)
	}
}

func TestGetLastStrategyTime(t *testing.T) {
	reg := estimator.NewRegistry()
	bw, _ := estimator.New(estimator.LastObservation, "bw")
	lat, _ := estimator.New(estimator.LastObservation, "lat")
	reg.Register(bw)
	reg.Register(lat)
	bw.AddObservation(1000)
	lat.AddObservation(0)

	ev := oracle.New(reg)
	s, _ := strategy.NewSingular("s", linearFn{bandwidthName: "bw", latencyName: "lat"}, linearFn{}, linearFn{}, 0, 0)
	c := New(Fixed{})

	if _, ok := c.GetLastStrategyTime("s"); ok {
		t.Fatal("expected no cached time before any choose call")
	}
	c.ChooseNonredundant(ev, []strategy.Strategy{s}, 500)
	got, ok := c.GetLastStrategyTime("s")
	if !ok || got != 0.5 {
		t.Fatalf("expected cached time 0.5, got %v %v", got, ok)
	}
}

func TestAdaptiveWeightProhibitiveWhenSupplyExhausted(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewAdaptiveWeight(100, fixedNow.Add(time.Hour), func() time.Time { return fixedNow })
	defer w.Stop()

	w.mu.Lock()
	w.supply = 0
	w.updateLocked()
	got := w.weight
	w.mu.Unlock()

	if got != ProhibitiveUpper {
		t.Fatalf("expected prohibitive upper weight when supply exhausted, got %v", got)
	}
}

func TestAdaptiveWeightProhibitiveWhenDeadlinePassed(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	deadline := fixedNow.Add(-time.Minute)
	w := NewAdaptiveWeight(100, deadline, func() time.Time { return fixedNow })
	defer w.Stop()

	w.mu.Lock()
	w.updateLocked()
	got := w.weight
	w.mu.Unlock()

	if got != ProhibitiveUpper {
		t.Fatalf("expected prohibitive upper weight when deadline has passed, got %v", got)
	}
}
