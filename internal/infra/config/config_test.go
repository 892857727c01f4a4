package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8745 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8745)
	}
	if cfg.Evaluator.Method != "empirical-error-all-samples" {
		t.Errorf("Evaluator.Method = %q, want %q", cfg.Evaluator.Method, "empirical-error-all-samples")
	}
	if cfg.Chooser.WeightPolicy != "fixed" {
		t.Errorf("Chooser.WeightPolicy = %q, want %q", cfg.Chooser.WeightPolicy, "fixed")
	}
}

func sampleConfig() Config {
	cfg := Default()
	cfg.Estimators = []EstimatorConfig{
		{Name: "wifi_rtt", Kind: "running_mean"},
		{Name: "cellular_rtt", Kind: "last_observation"},
	}
	cfg.Strategies.Singular = []SingularConfig{
		{
			Name: "wifi",
			Time: CostFnConfig{Estimator: "wifi_rtt", Coefficient: 1},
		},
		{
			Name: "cellular",
			Time: CostFnConfig{Estimator: "cellular_rtt", Coefficient: 1},
		},
	}
	cfg.Strategies.Redundant = []RedundantConfig{
		{Name: "wifi_and_cellular", Children: []string{"wifi", "cellular"}},
	}
	return cfg
}

func TestBuildRegistry(t *testing.T) {
	cfg := sampleConfig()
	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Get("wifi_rtt"); err != nil {
		t.Errorf("expected wifi_rtt registered: %v", err)
	}
	if _, err := reg.Get("cellular_rtt"); err != nil {
		t.Errorf("expected cellular_rtt registered: %v", err)
	}
}

func TestBuildRegistryNoEstimators(t *testing.T) {
	cfg := Default()
	if _, err := cfg.BuildRegistry(); err == nil {
		t.Fatal("expected an error when no estimators are configured")
	}
}

func TestBuildStrategies(t *testing.T) {
	cfg := sampleConfig()
	singulars, redundants, err := cfg.BuildStrategies()
	if err != nil {
		t.Fatal(err)
	}
	if len(singulars) != 2 {
		t.Fatalf("expected 2 singular strategies, got %d", len(singulars))
	}
	if len(redundants) != 1 {
		t.Fatalf("expected 1 redundant strategy, got %d", len(redundants))
	}
	if len(redundants[0].Children()) != 2 {
		t.Fatalf("expected redundant strategy to have 2 children, got %d", len(redundants[0].Children()))
	}
}

func TestBuildStrategiesUnknownChild(t *testing.T) {
	cfg := sampleConfig()
	cfg.Strategies.Redundant[0].Children = []string{"wifi", "bluetooth"}
	if _, _, err := cfg.BuildStrategies(); err == nil {
		t.Fatal("expected an error for a redundant strategy referencing an unknown child")
	}
}

func TestBuildEvaluatorMethods(t *testing.T) {
	cfg := sampleConfig()
	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatal(err)
	}

	methods := []string{
		"trusted-oracle",
		"confidence-bounds", "confidence-bounds-weighted",
		"bayesian", "bayesian-weighted",
		"empirical-error-all-samples", "empirical-error-all-samples-weighted",
		"empirical-error-binned", "empirical-error-binned-weighted",
	}
	for _, method := range methods {
		cfg.Evaluator.Method = method
		if _, err := cfg.BuildEvaluator(reg); err != nil {
			t.Errorf("BuildEvaluator(%q) failed: %v", method, err)
		}
	}

	cfg.Evaluator.Method = "quantum"
	if _, err := cfg.BuildEvaluator(reg); err == nil {
		t.Fatal("expected an error for an unrecognized evaluator method")
	}
}

func TestBuildWeights(t *testing.T) {
	cfg := sampleConfig()
	cfg.Chooser.EnergyWeight = 2
	cfg.Chooser.DataWeight = 3
	w, err := cfg.BuildWeights()
	if err != nil {
		t.Fatal(err)
	}
	if w.EnergyWeight() != 2 || w.DataWeight() != 3 {
		t.Errorf("EnergyWeight/DataWeight = %v/%v, want 2/3", w.EnergyWeight(), w.DataWeight())
	}

	cfg.Chooser.WeightPolicy = "goal_adaptive_exotic"
	if _, err := cfg.BuildWeights(); err == nil {
		t.Fatal("expected an error for an unrecognized weight policy")
	}
}
