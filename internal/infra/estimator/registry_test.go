package estimator

import (
	"testing"

	"github.com/tutu-network/instruments/internal/domain"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	e, _ := New(LastObservation, "wifi_bandwidth")
	if err := r.Register(e); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get("wifi_bandwidth")
	if err != nil || got != e {
		t.Fatalf("expected to retrieve the registered estimator, got %v %v", got, err)
	}

	if _, err := r.Get("missing"); err != domain.ErrUnknownEstimator {
		t.Fatalf("expected ErrUnknownEstimator, got %v", err)
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	a, _ := New(LastObservation, "cellular_rtt")
	b, _ := New(RunningMean, "cellular_rtt")
	if err := r.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(b); err != domain.ErrDuplicateEstimator {
		t.Fatalf("expected ErrDuplicateEstimator, got %v", err)
	}
}

func TestRegistryUnregisterNotifiesDestroy(t *testing.T) {
	r := NewRegistry()
	e, _ := New(LastObservation, "link_energy")
	sub := &recordingSubscriber{}
	e.Subscribe(sub)
	r.Register(e)

	r.Unregister("link_energy")
	if sub.destroyed != 1 {
		t.Fatalf("expected destroy notification, got %d", sub.destroyed)
	}
	if r.Len() != 0 {
		t.Fatalf("expected registry empty after unregister, got %d", r.Len())
	}

	r.Unregister("link_energy") // no-op, must not panic
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	a, _ := New(LastObservation, "a")
	b, _ := New(LastObservation, "b")
	r.Register(a)
	r.Register(b)

	names := map[string]bool{}
	for _, n := range r.Names() {
		names[n] = true
	}
	if !names["a"] || !names["b"] || len(names) != 2 {
		t.Fatalf("unexpected names: %v", names)
	}
}
