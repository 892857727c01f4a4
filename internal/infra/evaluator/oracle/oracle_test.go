package oracle

import (
	"testing"

	"github.com/tutu-network/instruments/internal/domain"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

type doubleFn struct{ estimatorName string }

func (f doubleFn) Kind() domain.CostFnKind { return domain.CustomCostFn }
func (f doubleFn) Eval(ctx domain.EvalCtx, strategyArg, chooserArg float64) float64 {
	return 2 * ctx.Get(f.estimatorName)
}

func TestExpectedValueUsesPointEstimate(t *testing.T) {
	reg := estimator.NewRegistry()
	e, _ := estimator.New(estimator.LastObservation, "wifi_rtt")
	reg.Register(e)
	e.AddObservation(50)

	ev := New(reg)
	s, _ := strategy.NewSingular("wifi", doubleFn{estimatorName: "wifi_rtt"}, doubleFn{}, doubleFn{}, 0, 0)

	got := s.CalculateTime(ev, 0)
	if got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
}

func TestExpectedValueUnknownEstimatorIsInvalid(t *testing.T) {
	reg := estimator.NewRegistry()
	ev := New(reg)
	got := ev.ExpectedValue(nil, doubleFn{estimatorName: "missing"}, 0, 0)
	if got != 2*domain.InvalidEstimate {
		t.Fatalf("expected invalid-estimate propagation, got %v", got)
	}
}
