package api

import (
	"path/filepath"
	"testing"

	"github.com/tutu-network/instruments/internal/infra/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Estimators = []config.EstimatorConfig{
		{Name: "wifi_rtt", Kind: "running_mean"},
		{Name: "cellular_rtt", Kind: "last_observation"},
	}
	cfg.Strategies.Singular = []config.SingularConfig{
		{Name: "wifi", Time: config.CostFnConfig{Estimator: "wifi_rtt", Coefficient: 1}},
		{Name: "cellular", Time: config.CostFnConfig{Estimator: "cellular_rtt", Coefficient: 1}},
	}
	cfg.Strategies.Redundant = []config.RedundantConfig{
		{Name: "wifi_and_cellular", Children: []string{"wifi", "cellular"}},
	}
	cfg.Persistence.StatePath = filepath.Join(dir, "state.txt")
	cfg.Persistence.DecisionLogPath = filepath.Join(dir, "decisions.db")
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(testConfig(t))
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func TestNewAppBuildsFromConfig(t *testing.T) {
	app := newTestApp(t)

	if got := app.Registry.Len(); got != 2 {
		t.Errorf("Registry.Len() = %d, want 2", got)
	}
	if len(app.Singulars) != 2 {
		t.Errorf("len(Singulars) = %d, want 2", len(app.Singulars))
	}
	if len(app.Redundants) != 1 {
		t.Errorf("len(Redundants) = %d, want 1", len(app.Redundants))
	}
}

func TestAppSaveRestoreRoundtrip(t *testing.T) {
	app := newTestApp(t)

	e, err := app.Registry.Get("wifi_rtt")
	if err != nil {
		t.Fatal(err)
	}
	e.AddObservation(100)
	e.AddObservation(200)

	if err := app.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	app2, err := NewApp(app.Config)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app2.Close()

	if err := app2.Restore(); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
}

func TestAppSaveNoopForTrustedOracle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Evaluator.Method = "trusted-oracle"
	app, err := NewApp(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	if err := app.Save(); err != nil {
		t.Errorf("Save() on a non-saveable evaluator should be a no-op, got error: %v", err)
	}
	if err := app.Restore(); err != nil {
		t.Errorf("Restore() on a non-restorable evaluator should be a no-op, got error: %v", err)
	}
}
