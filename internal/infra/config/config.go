// Package config loads instrumentsd's TOML configuration: estimator
// definitions, strategy definitions built from built-in cost functions,
// the evaluator method to run, and the chooser's resource-weight policy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/instruments/internal/domain"
	"github.com/tutu-network/instruments/internal/infra/chooser"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/evaluator/bayesian"
	"github.com/tutu-network/instruments/internal/infra/evaluator/confidence"
	"github.com/tutu-network/instruments/internal/infra/evaluator/empirical"
	"github.com/tutu-network/instruments/internal/infra/evaluator/oracle"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

// EstimatorConfig describes one estimator to register.
type EstimatorConfig struct {
	Name      string  `toml:"name"`
	Kind      string  `toml:"kind"` // last_observation | running_mean | external
	RangeMin  float64 `toml:"range_min"`
	RangeMax  float64 `toml:"range_max"`
	RangeBins int     `toml:"range_bins"`
}

// CostFnConfig describes one of a strategy's three cost functions. Exactly
// one of Estimator (linear) or Value (constant) is expected to be set;
// Estimator takes precedence if both are present.
type CostFnConfig struct {
	Estimator   string  `toml:"estimator"`
	Coefficient float64 `toml:"coefficient"`
	Intercept   float64 `toml:"intercept"`
	Value       float64 `toml:"value"`
}

func (c CostFnConfig) build() domain.CostFn {
	if c.Estimator != "" {
		return strategy.LinearCostFn{Estimator: c.Estimator, Coefficient: c.Coefficient, Intercept: c.Intercept}
	}
	return strategy.ConstantCostFn{Value: c.Value}
}

// SingularConfig describes one singular strategy.
type SingularConfig struct {
	Name              string       `toml:"name"`
	StrategyArg       float64      `toml:"strategy_arg"`
	DefaultChooserArg float64      `toml:"default_chooser_arg"`
	Time              CostFnConfig `toml:"time"`
	Energy            CostFnConfig `toml:"energy"`
	Data              CostFnConfig `toml:"data"`
}

// RedundantConfig describes one redundant strategy, naming its children
// by the singular (or earlier redundant) strategy names they combine.
type RedundantConfig struct {
	Name     string   `toml:"name"`
	Children []string `toml:"children"`
}

// StrategiesConfig groups all strategy definitions.
type StrategiesConfig struct {
	Singular  []SingularConfig  `toml:"singular"`
	Redundant []RedundantConfig `toml:"redundant"`
}

// EvaluatorConfig selects and parameterizes the evaluator method. Method
// uses §6's register_strategy_set_with_method tag grammar directly (e.g.
// "empirical-error-binned-weighted"), parsed via domain.ParseEvalMethod.
type EvaluatorConfig struct {
	Method     string `toml:"method"`
	ErrorMode  string `toml:"error_mode"` // relative | absolute (empirical)
	Concurrent bool   `toml:"concurrent"`
	Mode       string `toml:"mode"`    // aggressive | conservative (confidence)
	Formula    string `toml:"formula"` // student_t | chebyshev | plain_ci (confidence)
}

// ChooserConfig selects the resource weight policy.
type ChooserConfig struct {
	WeightPolicy string  `toml:"weight_policy"` // fixed | goal_adaptive
	EnergyWeight float64 `toml:"energy_weight"`
	DataWeight   float64 `toml:"data_weight"`
}

// ServerConfig configures instrumentsd's HTTP surface.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PersistenceConfig locates the save/restore state file and the
// supplemental sqlite decision log.
type PersistenceConfig struct {
	StatePath       string `toml:"state_path"`
	DecisionLogPath string `toml:"decision_log_path"`
}

// Config is instrumentsd's top-level TOML document.
type Config struct {
	Estimators  []EstimatorConfig `toml:"estimators"`
	Strategies  StrategiesConfig  `toml:"strategies"`
	Evaluator   EvaluatorConfig   `toml:"evaluator"`
	Chooser     ChooserConfig     `toml:"chooser"`
	Server      ServerConfig      `toml:"server"`
	Persistence PersistenceConfig `toml:"persistence"`
}

// Default returns the configuration instrumentsd falls back to when no
// config file is present: one fixed-policy chooser weighing energy and
// data equally, listening on localhost, state under ~/.instruments.
func Default() Config {
	return Config{
		Evaluator: EvaluatorConfig{Method: domain.EmpiricalErrorAllSamples.String(), ErrorMode: "relative"},
		Chooser:   ChooserConfig{WeightPolicy: "fixed", EnergyWeight: 1, DataWeight: 1},
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8745},
		Persistence: PersistenceConfig{
			StatePath:       expandHome("~/.instruments/state.txt"),
			DecisionLogPath: expandHome("~/.instruments/decisions.db"),
		},
	}
}

// Load parses the TOML file at path into a Config seeded with Default's
// values, so a partial config only overrides what it sets. Persistence
// paths starting with "~/" are expanded against the user's home
// directory, matching the teacher's ~/.tutu convention.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Persistence.StatePath = expandHome(cfg.Persistence.StatePath)
	cfg.Persistence.DecisionLogPath = expandHome(cfg.Persistence.DecisionLogPath)
	return cfg, nil
}

// expandHome replaces a leading "~/" with the user's home directory.
// Falls back to the unexpanded path if the home directory can't be
// determined.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func estimatorKind(s string) (estimator.Kind, error) {
	switch s {
	case "", "last_observation":
		return estimator.LastObservation, nil
	case "running_mean":
		return estimator.RunningMean, nil
	case "external":
		return estimator.External, nil
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrConfigUnknownEstKind, s)
	}
}

// BuildRegistry constructs and registers one estimator.Estimator per
// EstimatorConfig entry.
func (c Config) BuildRegistry() (*estimator.Registry, error) {
	if len(c.Estimators) == 0 {
		return nil, domain.ErrConfigNoEstimators
	}
	reg := estimator.NewRegistry()
	for _, ec := range c.Estimators {
		kind, err := estimatorKind(ec.Kind)
		if err != nil {
			return nil, err
		}
		e, err := estimator.New(kind, ec.Name)
		if err != nil {
			return nil, fmt.Errorf("config: estimator %q: %w", ec.Name, err)
		}
		if ec.RangeBins > 0 {
			e.SetRangeHints(ec.RangeMin, ec.RangeMax, ec.RangeBins)
		}
		if err := reg.Register(e); err != nil {
			return nil, fmt.Errorf("config: estimator %q: %w", ec.Name, err)
		}
	}
	return reg, nil
}

// BuildStrategies constructs every singular strategy, then every redundant
// strategy (which may reference singular or earlier redundant strategies
// by name), returning the singular and redundant sets separately since
// that is how chooser.Choose consumes them.
func (c Config) BuildStrategies() (singulars, redundants []strategy.Strategy, err error) {
	if len(c.Strategies.Singular) == 0 {
		return nil, nil, domain.ErrConfigNoStrategies
	}

	byName := make(map[string]strategy.Strategy, len(c.Strategies.Singular)+len(c.Strategies.Redundant))

	for _, sc := range c.Strategies.Singular {
		s, err := strategy.NewSingular(sc.Name, sc.Time.build(), sc.Energy.build(), sc.Data.build(), sc.StrategyArg, sc.DefaultChooserArg)
		if err != nil {
			return nil, nil, fmt.Errorf("config: strategy %q: %w", sc.Name, err)
		}
		singulars = append(singulars, s)
		byName[s.Name()] = s
	}

	for _, rc := range c.Strategies.Redundant {
		children := make([]strategy.Strategy, 0, len(rc.Children))
		for _, childName := range rc.Children {
			child, ok := byName[domain.NormalizeName(childName)]
			if !ok {
				return nil, nil, fmt.Errorf("config: redundant strategy %q: %w: %q", rc.Name, domain.ErrConfigUnknownChild, childName)
			}
			children = append(children, child)
		}
		r, err := strategy.NewRedundant(rc.Name, children)
		if err != nil {
			return nil, nil, fmt.Errorf("config: redundant strategy %q: %w", rc.Name, err)
		}
		redundants = append(redundants, r)
		byName[r.Name()] = r
	}

	return singulars, redundants, nil
}

// BuildWeights constructs the chooser's resource-weight policy. Only the
// fixed policy is config-driven; goal_adaptive weights require a runtime
// goal deadline and are constructed by the caller via chooser.NewAdaptiveWeight
// instead.
func (c Config) BuildWeights() (chooser.ResourceWeights, error) {
	switch c.Chooser.WeightPolicy {
	case "", "fixed":
		return chooser.Fixed{Energy: c.Chooser.EnergyWeight, Data: c.Chooser.DataWeight}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrConfigUnknownWeights, c.Chooser.WeightPolicy)
	}
}

func errorMode(s string) domain.ErrorMode {
	if s == "absolute" {
		return domain.Absolute
	}
	return domain.Relative
}

func confidenceMode(s string) confidence.Mode {
	if s == "conservative" {
		return confidence.Conservative
	}
	return confidence.Aggressive
}

func confidenceFormula(s string) confidence.BoundFormula {
	switch s {
	case "chebyshev":
		return confidence.FormulaChebyshev
	case "plain_ci":
		return confidence.FormulaPlainCI
	default:
		return confidence.FormulaStudentT
	}
}

// BuildEvaluator constructs the strategy.Evaluator selected by
// Evaluator.Method, a §6 eval-method tag (e.g. "trusted-oracle",
// "empirical-error-binned-weighted"). The concrete type's Save/Restore
// methods (empirical, confidence, bayesian; trusted-oracle has none) are
// reached by the caller type-asserting against persist's saver/restorer.
func (c Config) BuildEvaluator(reg *estimator.Registry) (strategy.Evaluator, error) {
	method, ok := domain.ParseEvalMethod(c.Evaluator.Method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrConfigUnknownEvalKind, c.Evaluator.Method)
	}

	switch method {
	case domain.TrustedOracle:
		return oracle.New(reg), nil
	case domain.ConfidenceBounds, domain.ConfidenceBoundsWeighted:
		return confidence.New(reg, confidenceMode(c.Evaluator.Mode), confidenceFormula(c.Evaluator.Formula)), nil
	case domain.Bayesian, domain.BayesianWeighted:
		return bayesian.New(reg), nil
	case domain.EmpiricalErrorAllSamples, domain.EmpiricalErrorAllSamplesWeighted:
		return empirical.New(reg, errorMode(c.Evaluator.ErrorMode), method.Weighted(), false, c.Evaluator.Concurrent), nil
	case domain.EmpiricalErrorBinned, domain.EmpiricalErrorBinnedWeighted:
		return empirical.New(reg, errorMode(c.Evaluator.ErrorMode), method.Weighted(), true, c.Evaluator.Concurrent), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrConfigUnknownEvalKind, c.Evaluator.Method)
	}
}
