package bayesian

import (
	"bytes"
	"testing"

	"github.com/tutu-network/instruments/internal/domain"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

type identityFn struct{ name string }

func (f identityFn) Kind() domain.CostFnKind { return domain.CustomCostFn }
func (f identityFn) Eval(ctx domain.EvalCtx, strategyArg, chooserArg float64) float64 {
	return ctx.Get(f.name)
}

func TestExpectedValueFallsBackToOracleWithNoDecisions(t *testing.T) {
	reg := estimator.NewRegistry()
	e, _ := estimator.New(estimator.LastObservation, "rtt")
	reg.Register(e)
	e.AddObservation(42)

	ev := New(reg)
	s, _ := strategy.NewSingular("s", identityFn{name: "rtt"}, identityFn{}, identityFn{}, 0, 0)
	s.CalculateTime(ev, 0) // prime Uses()
	ev.SetStrategies([]strategy.Strategy{s})

	got := s.CalculateTime(ev, 0)
	if got != 42 {
		t.Fatalf("expected oracle fallback value 42, got %v", got)
	}
}

func TestRecordsDecisionOnceAllStrategiesReady(t *testing.T) {
	reg := estimator.NewRegistry()
	wifi, _ := estimator.New(estimator.LastObservation, "wifi_rtt")
	cell, _ := estimator.New(estimator.LastObservation, "cell_rtt")
	reg.Register(wifi)
	reg.Register(cell)

	ev := New(reg)
	wifiS, _ := strategy.NewSingular("wifi", identityFn{name: "wifi_rtt"}, identityFn{}, identityFn{}, 0, 0)
	cellS, _ := strategy.NewSingular("cellular", identityFn{name: "cell_rtt"}, identityFn{}, identityFn{}, 0, 0)
	wifiS.CalculateTime(ev, 0)
	cellS.CalculateTime(ev, 0)
	ev.SetStrategies([]strategy.Strategy{wifiS, cellS})

	wifi.AddObservation(100) // only wifi ready so far
	if len(ev.decisions) != 0 {
		t.Fatalf("expected no decision recorded yet, got %d", len(ev.decisions))
	}

	cell.AddObservation(200) // now both strategies are ready
	if len(ev.decisions) != 1 {
		t.Fatalf("expected exactly one decision recorded, got %d", len(ev.decisions))
	}
	if ev.decisions[0].bestStrategy != "wifi" {
		t.Fatalf("expected wifi (lower time) to be best, got %q", ev.decisions[0].bestStrategy)
	}
}

func TestExpectedValueUsesLikelihoodAfterDecisions(t *testing.T) {
	reg := estimator.NewRegistry()
	wifi, _ := estimator.New(estimator.LastObservation, "wifi_rtt")
	reg.Register(wifi)

	ev := New(reg)
	s, _ := strategy.NewSingular("wifi", identityFn{name: "wifi_rtt"}, identityFn{}, identityFn{}, 0, 0)
	s.CalculateTime(ev, 0)
	ev.SetStrategies([]strategy.Strategy{s})

	wifi.AddObservation(100)
	wifi.AddObservation(120)
	wifi.AddObservation(80)

	got := s.CalculateTime(ev, 0)
	if got <= 0 {
		t.Fatalf("expected a positive expected value, got %v", got)
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	reg := estimator.NewRegistry()
	wifi, _ := estimator.New(estimator.LastObservation, "wifi_rtt")
	reg.Register(wifi)

	ev := New(reg)
	s, _ := strategy.NewSingular("wifi", identityFn{name: "wifi_rtt"}, identityFn{}, identityFn{}, 0, 0)
	s.CalculateTime(ev, 0)
	ev.SetStrategies([]strategy.Strategy{s})

	wifi.AddObservation(100)
	wifi.AddObservation(120)

	var buf bytes.Buffer
	if err := ev.Save(&buf); err != nil {
		t.Fatal(err)
	}

	restoredReg := estimator.NewRegistry()
	restored := New(restoredReg)
	restoredS, _ := strategy.NewSingular("wifi", identityFn{name: "wifi_rtt"}, identityFn{}, identityFn{}, 0, 0)
	restoredS.CalculateTime(restored, 0)
	restored.SetStrategies([]strategy.Strategy{restoredS})

	if err := restored.Restore(&buf); err != nil {
		t.Fatal(err)
	}
	if len(restored.decisions) != len(ev.decisions) {
		t.Fatalf("expected %d restored decisions, got %d", len(ev.decisions), len(restored.decisions))
	}
}
