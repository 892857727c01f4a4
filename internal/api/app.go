// Package api provides the HTTP surface over the evaluation engine: an
// explicit process boundary standing in for §6's opaque C ABI, since this
// is a Go service rather than a library with foreign-language bindings.
package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tutu-network/instruments/internal/infra/chooser"
	"github.com/tutu-network/instruments/internal/infra/config"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/observability"
	"github.com/tutu-network/instruments/internal/infra/persist"
	"github.com/tutu-network/instruments/internal/infra/schedule"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

// App wires the registry, strategy sets, evaluator, chooser, async
// schedule pool, and supplemental decision log into one unit the HTTP
// server and CLI both operate against.
type App struct {
	Config     config.Config
	Registry   *estimator.Registry
	Singulars  []strategy.Strategy
	Redundants []strategy.Strategy
	Evaluator  strategy.Evaluator
	Chooser    *chooser.Chooser
	Pool       *schedule.Pool
	Decisions  *persist.DecisionLog
	Log        *observability.Logger
	Tracer     *observability.Tracer
}

// NewApp constructs an App from cfg: registers every estimator, builds
// every strategy, selects the evaluator method, and opens the
// supplemental decision log. The async schedule pool is started with
// config-independent defaults (§4.8 gives no config knob for pool size).
func NewApp(cfg config.Config) (*App, error) {
	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, err
	}
	singulars, redundants, err := cfg.BuildStrategies()
	if err != nil {
		return nil, err
	}
	for _, s := range singulars {
		s.Prime()
	}
	for _, s := range redundants {
		s.Prime()
	}
	ev, err := cfg.BuildEvaluator(reg)
	if err != nil {
		return nil, err
	}
	if ss, ok := ev.(strategySetter); ok {
		all := make([]strategy.Strategy, 0, len(singulars)+len(redundants))
		all = append(all, singulars...)
		all = append(all, redundants...)
		ss.SetStrategies(all)
	}
	if sa, ok := ev.(allSubscriber); ok {
		sa.SubscribeAll()
	}
	weights, err := cfg.BuildWeights()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Persistence.DecisionLogPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("api: create persistence directory: %w", err)
		}
	}
	decisions, err := persist.OpenDecisionLog(cfg.Persistence.DecisionLogPath)
	if err != nil {
		return nil, fmt.Errorf("api: open decision log: %w", err)
	}

	return &App{
		Config:     cfg,
		Registry:   reg,
		Singulars:  singulars,
		Redundants: redundants,
		Evaluator:  ev,
		Chooser:    chooser.New(weights),
		Pool:       schedule.New(schedule.DefaultWorkers, schedule.DefaultMaxOutstanding, nil),
		Decisions:  decisions,
		Log:        observability.New("api"),
		Tracer:     observability.NewTracer(observability.DefaultTracerConfig()),
	}, nil
}

// Close releases the app's background resources: the schedule pool's
// worker goroutines and the decision log's database handle.
func (a *App) Close() error {
	a.Pool.Stop()
	return a.Decisions.Close()
}

// strategySetter is satisfied by the Bayesian evaluator, which must learn
// the full strategy set before any observation arrives so its readiness
// counters and likelihood tables are sized correctly (§4.6).
type strategySetter interface {
	SetStrategies([]strategy.Strategy)
}

// allSubscriber is satisfied by every evaluator that subscribes to
// estimators (empirical, confidence, bayesian); trusted-oracle reads
// estimates live and needs no subscription.
type allSubscriber interface {
	SubscribeAll()
}

// saveable is satisfied by the three evaluators with restorable state
// (empirical, confidence, bayesian); trusted-oracle has none.
type saveable interface {
	Save(w io.Writer) error
}

// restorable is saveable's counterpart for loading a prior snapshot.
type restorable interface {
	Restore(r io.Reader) error
}

// Save persists the configured evaluator's state to
// Config.Persistence.StatePath, a no-op if the evaluator carries no
// restorable state.
func (a *App) Save() error {
	s, ok := a.Evaluator.(saveable)
	if !ok {
		return nil
	}
	if dir := filepath.Dir(a.Config.Persistence.StatePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("api: create persistence directory: %w", err)
		}
	}
	return persist.SaveFile(a.Config.Persistence.StatePath, s)
}

// Restore repopulates the configured evaluator's state from
// Config.Persistence.StatePath, a no-op if the evaluator carries no
// restorable state or the file does not exist.
func (a *App) Restore() error {
	r, ok := a.Evaluator.(restorable)
	if !ok {
		return nil
	}
	if _, err := os.Stat(a.Config.Persistence.StatePath); os.IsNotExist(err) {
		return nil
	}
	return persist.RestoreFile(a.Config.Persistence.StatePath, r)
}
