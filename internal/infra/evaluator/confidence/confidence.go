// Package confidence implements the Confidence-Bounds evaluator (§4.5):
// a Student's-t (or Chebyshev / plain-CI) prediction interval over
// log-error, enumerated across the 2^n corners of the error hypercube.
package confidence

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/tutu-network/instruments/internal/domain"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

// BoundFormula selects the prediction-interval half-width formula.
type BoundFormula int

const (
	FormulaStudentT BoundFormula = iota
	FormulaChebyshev
	FormulaPlainCI
)

// Mode selects the aggressive/conservative bound-type selection table.
type Mode int

const (
	Aggressive Mode = iota
	Conservative
)

type boundKind int

const (
	boundLower boundKind = iota
	boundUpper
	boundCenter
)

type role int

const (
	roleTime role = iota
	roleEnergy
	roleData
)

// alpha is fixed at 0.05 (95% prediction interval), per §4.5.
const alpha = 0.05

// logHistoryCap bounds the raw log-error FIFO retained per estimator for
// conditional-pruning recomputation, mirroring the All-Samples ring size.
const logHistoryCap = 20

// Evaluator is the Confidence-Bounds strategy evaluator.
type Evaluator struct {
	reg     *estimator.Registry
	mode    Mode
	formula BoundFormula

	mu    sync.Mutex
	stats map[string]*logErrorStats

	// comparedToRedundant selects the aggressive mode's UPPER time bound
	// for singular strategies (§4.5's "singular compared to redundant"
	// case). It changes only through SetComparedToRedundant and keeps its
	// value until the next such call; chooser.Choose does not call it, so
	// it stays false unless a caller sets it.
	comparedToRedundant bool

	memoMu sync.Mutex
	memo   map[memoKey]float64
}

// New constructs a Confidence-Bounds evaluator.
func New(reg *estimator.Registry, mode Mode, formula BoundFormula) *Evaluator {
	return &Evaluator{
		reg:     reg,
		mode:    mode,
		formula: formula,
		stats:   make(map[string]*logErrorStats),
		memo:    make(map[memoKey]float64),
	}
}

// SetComparedToRedundant flags whether the next singular-strategy time
// evaluation is being weighed against a redundant alternative, selecting
// the aggressive mode's UPPER bound instead of CENTER.
func (ev *Evaluator) SetComparedToRedundant(v bool) {
	ev.mu.Lock()
	ev.comparedToRedundant = v
	ev.mu.Unlock()
}

// ─── per-estimator log-error statistics ────────────────────────────────────

type logErrorStats struct {
	n      int64
	mean   float64
	m2     float64 // Welford sum of squared deviations
	fifo   []float64

	flipFastInit bool
	flipFast     float64
	flipSlow     float64
}

// flipFlopAlphaFast/Slow and flipFlopThreshold tune the two-rate EWMA: the
// slow rate only ratchets to match the fast rate once they diverge beyond
// the threshold (in log-error units), smoothing out single-sample spikes.
const (
	flipFlopAlphaFast  = 0.5
	flipFlopAlphaSlow  = 0.1
	flipFlopThreshold  = 1.0
)

func (s *logErrorStats) flipFlopUpdate(raw float64) float64 {
	if !s.flipFastInit {
		s.flipFast = raw
		s.flipSlow = raw
		s.flipFastInit = true
		return s.flipSlow
	}
	s.flipFast = flipFlopAlphaFast*raw + (1-flipFlopAlphaFast)*s.flipFast
	if math.Abs(s.flipFast-s.flipSlow) > flipFlopThreshold {
		s.flipSlow = s.flipFast
	} else {
		s.flipSlow = flipFlopAlphaSlow*s.flipFast + (1-flipFlopAlphaSlow)*s.flipSlow
	}
	return s.flipSlow
}

func (s *logErrorStats) welfordAdd(v float64) {
	s.n++
	delta := v - s.mean
	s.mean += delta / float64(s.n)
	delta2 := v - s.mean
	s.m2 += delta * delta2
}

func (s *logErrorStats) variance() float64 {
	if s.n < 2 {
		return 0
	}
	return s.m2 / float64(s.n-1)
}

// ─── domain.Subscriber ──────────────────────────────────────────────────────

func (ev *Evaluator) OnObservation(name string, observation, oldEstimate, newEstimate float64) {
	if !domain.IsValidEstimate(oldEstimate) {
		return // first observation carries no error sample
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	s := ev.statsForLocked(name)
	raw := rawLogError(ev.errorModeFor(), oldEstimate, observation)
	if len(s.fifo) == logHistoryCap {
		s.fifo = s.fifo[1:]
	}
	s.fifo = append(s.fifo, raw)
	flipped := s.flipFlopUpdate(raw)
	s.welfordAdd(flipped)
}

// errorModeFor always uses Relative error: a log-normal error model
// requires strictly positive samples, which only the relative mode
// guarantees for any estimator whose values stay positive.
func (ev *Evaluator) errorModeFor() domain.ErrorMode { return domain.Relative }

func rawLogError(mode domain.ErrorMode, oldEstimate, observation float64) float64 {
	e := mode.CalculateError(oldEstimate, observation)
	if e <= 0 {
		e = 1e-9
	}
	return math.Log(e)
}

func (ev *Evaluator) OnConditionsChanged(name string) {
	ev.memoMu.Lock()
	defer ev.memoMu.Unlock()
	// Conservative invalidation: any conditions change clears every
	// memoized expected value, since a cheap per-estimator dependency
	// index would add bookkeeping this evaluator's working set doesn't
	// warrant.
	ev.memo = make(map[memoKey]float64)
}

func (ev *Evaluator) OnEstimatorDestroyed(name string) {
	ev.mu.Lock()
	delete(ev.stats, name)
	ev.mu.Unlock()
}

func (ev *Evaluator) statsForLocked(name string) *logErrorStats {
	s, ok := ev.stats[name]
	if !ok {
		s = &logErrorStats{}
		ev.stats[name] = s
	}
	return s
}

func (ev *Evaluator) ensureSubscribed(name string) {
	if e, err := ev.reg.Get(name); err == nil {
		e.Subscribe(ev)
	}
}

// SubscribeAll subscribes this evaluator to every estimator currently in
// the registry, independent of any strategy's Uses(). api.NewApp calls it
// once after construction so observations posted before the first Choose
// still feed the per-estimator log-error statistics instead of being
// silently dropped.
func (ev *Evaluator) SubscribeAll() {
	for _, name := range ev.reg.Names() {
		ev.ensureSubscribed(name)
	}
}

// ─── bounds ─────────────────────────────────────────────────────────────────

// estimatorBounds returns the lower, upper, and center adjusted-value
// bounds for name at the current confidence level, applying conditional
// pruning: when the estimator has an active condition, the bounds are
// recomputed over the subset of retained log-error samples whose
// adjusted value satisfies it.
func (ev *Evaluator) estimatorBounds(name string) (lower, upper, center float64) {
	est, err := ev.reg.Get(name)
	if err != nil {
		return domain.InvalidEstimate, domain.InvalidEstimate, domain.InvalidEstimate
	}
	cond := est.Conditions()
	mode := ev.errorModeFor()

	ev.mu.Lock()
	s, ok := ev.stats[name]
	var mean, variance float64
	var n int64
	if ok && cond.Any() {
		filtered := make([]float64, 0, len(s.fifo))
		for _, raw := range s.fifo {
			adjusted := mode.Adjust(est.Estimate(), math.Exp(raw))
			if cond.Satisfies(adjusted) {
				filtered = append(filtered, raw)
			}
		}
		if len(filtered) == 0 {
			synthetic := math.Log(mode.CalculateError(est.Estimate(), cond.Midpoint()))
			filtered = []float64{synthetic}
		}
		mean, variance, n = meanVariance(filtered)
	} else if ok {
		mean, variance, n = s.mean, s.variance(), s.n
	}
	ev.mu.Unlock()

	half := 0.0
	if n >= 2 {
		spread := math.Sqrt(variance * (1 + 1/float64(n)))
		switch ev.formula {
		case FormulaChebyshev:
			half = math.Sqrt(1/alpha) * spread
		case FormulaPlainCI:
			half = 1.96 * spread
		default:
			half = studentT(int(n-1)) * spread
		}
	}

	loErr := math.Exp(mean - half)
	hiErr := math.Exp(mean + half)
	loAdj := mode.Adjust(est.Estimate(), loErr)
	hiAdj := mode.Adjust(est.Estimate(), hiErr)
	if loAdj > hiAdj {
		loAdj, hiAdj = hiAdj, loAdj
	}
	return loAdj, hiAdj, mode.Midpoint(loAdj, hiAdj)
}

func meanVariance(samples []float64) (mean, variance float64, n int64) {
	n = int64(len(samples))
	if n == 0 {
		return 0, 0, 0
	}
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)
	if n < 2 {
		return mean, 0, n
	}
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n - 1)
	return mean, variance, n
}

// ─── strategy.Evaluator ─────────────────────────────────────────────────────

type memoKey struct {
	strategyName        string
	role                role
	comparedToRedundant bool
	chooserArg          float64
}

// ExpectedValue implements strategy.Evaluator.
func (ev *Evaluator) ExpectedValue(s strategy.Strategy, fn domain.CostFn, strategyArg, chooserArg float64) float64 {
	isRedundant := len(s.Children()) > 0
	r := roleOf(s, fn)

	ev.mu.Lock()
	comparedToRedundant := ev.comparedToRedundant
	ev.mu.Unlock()

	key := memoKey{strategyName: s.Name(), role: r, comparedToRedundant: comparedToRedundant, chooserArg: chooserArg}
	ev.memoMu.Lock()
	if v, ok := ev.memo[key]; ok {
		ev.memoMu.Unlock()
		return v
	}
	ev.memoMu.Unlock()

	names := s.Uses()
	for _, n := range names {
		ev.ensureSubscribed(n)
	}

	kind := selectBoundKind(ev.mode, isRedundant, r, comparedToRedundant)
	var v float64
	switch kind {
	case boundCenter:
		v = ev.evalAtBound(names, fn, strategyArg, chooserArg, func(lo, hi, center float64) float64 { return center })
	case boundLower:
		v = ev.evalCorners(names, fn, strategyArg, chooserArg, true)
	default:
		v = ev.evalCorners(names, fn, strategyArg, chooserArg, false)
	}

	ev.memoMu.Lock()
	ev.memo[key] = v
	ev.memoMu.Unlock()
	return v
}

func (ev *Evaluator) evalAtBound(names []string, fn domain.CostFn, strategyArg, chooserArg float64, pick func(lo, hi, center float64) float64) float64 {
	point := make(mapCtx, len(names))
	for _, n := range names {
		lo, hi, center := ev.estimatorBounds(n)
		point[n] = pick(lo, hi, center)
	}
	return fn.Eval(point, strategyArg, chooserArg)
}

// evalCorners enumerates the 2^n corners of the error hypercube over
// names, reading one bound per estimator per bit of step, and returns the
// min (wantMin) or max across all corners.
func (ev *Evaluator) evalCorners(names []string, fn domain.CostFn, strategyArg, chooserArg float64, wantMin bool) float64 {
	n := len(names)
	if n == 0 {
		return fn.Eval(mapCtx{}, strategyArg, chooserArg)
	}

	bounds := make([][2]float64, n)
	for i, name := range names {
		lo, hi, _ := ev.estimatorBounds(name)
		bounds[i] = [2]float64{lo, hi}
	}

	best := math.Inf(1)
	if !wantMin {
		best = math.Inf(-1)
	}

	corners := 1 << uint(n)
	point := make(mapCtx, n)
	for step := 0; step < corners; step++ {
		for i, name := range names {
			if step&(1<<uint(i)) != 0 {
				point[name] = bounds[i][1]
			} else {
				point[name] = bounds[i][0]
			}
		}
		v := fn.Eval(point, strategyArg, chooserArg)
		if wantMin && v < best {
			best = v
		}
		if !wantMin && v > best {
			best = v
		}
	}
	return best
}

// selectBoundKind is the lookup table of §4.5's aggressive/conservative
// rules, implemented as a short sequence of early returns.
func selectBoundKind(mode Mode, isRedundant bool, r role, comparedToRedundant bool) boundKind {
	if mode == Conservative {
		if isRedundant {
			return boundUpper
		}
		return boundLower
	}
	// Aggressive.
	if r == roleEnergy || r == roleData {
		return boundLower
	}
	// Time.
	if isRedundant {
		return boundLower
	}
	if comparedToRedundant {
		return boundUpper
	}
	return boundCenter
}

// roleOf identifies whether fn is s's time, energy, or data function.
// Redundant combiners carry their role in CostFnKind directly; singular
// cost functions are identified by value equality against the strategy's
// own stored functions.
func roleOf(s strategy.Strategy, fn domain.CostFn) role {
	switch fn.Kind() {
	case domain.RedundantMinTimeFn:
		return roleTime
	case domain.RedundantSumEnergyFn:
		return roleEnergy
	case domain.RedundantSumDataFn:
		return roleData
	}
	if fn == s.EnergyFn() {
		return roleEnergy
	}
	if fn == s.DataFn() {
		return roleData
	}
	return roleTime
}

type mapCtx map[string]float64

func (m mapCtx) Get(name string) float64 {
	if v, ok := m[name]; ok {
		return v
	}
	return domain.InvalidEstimate
}

// ─── Persistence (§6) ───────────────────────────────────────────────────────

// Save writes the running log-error statistics for every tracked
// estimator, in §6's positional grammar:
//
//	<k> estimator-bounds
//	<name> num_samples <n> mean <mean> variance <variance> M2 <m2> bounds <lo> <hi> samples <s1> <s2> ...
//
// bounds is the current center-excluded [lower, upper] adjusted-value
// interval, included for inspection; Restore recomputes it live rather
// than trusting the persisted copy. samples is the raw log-error FIFO
// used for conditional-pruning recomputation.
func (ev *Evaluator) Save(w io.Writer) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	names := make([]string, 0, len(ev.stats))
	for n := range ev.stats {
		names = append(names, n)
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d estimator-bounds\n", len(names)); err != nil {
		return err
	}
	for _, n := range names {
		s := ev.stats[n]
		lo, hi := ev.estimatorBoundsLocked(n, s)

		line := fmt.Sprintf("%s num_samples %d mean %s variance %s M2 %s bounds %s %s samples",
			n,
			s.n,
			strconv.FormatFloat(s.mean, 'g', -1, 64),
			strconv.FormatFloat(s.variance(), 'g', -1, 64),
			strconv.FormatFloat(s.m2, 'g', -1, 64),
			strconv.FormatFloat(lo, 'g', -1, 64),
			strconv.FormatFloat(hi, 'g', -1, 64))
		for _, v := range s.fifo {
			line += " " + strconv.FormatFloat(v, 'g', -1, 64)
		}
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// estimatorBoundsLocked is estimatorBounds's no-condition fast path, used
// only to report an informational bounds pair in Save. Caller must hold
// ev.mu.
func (ev *Evaluator) estimatorBoundsLocked(name string, s *logErrorStats) (lower, upper float64) {
	est, err := ev.reg.Get(name)
	if err != nil || s.n < 2 {
		return domain.InvalidEstimate, domain.InvalidEstimate
	}
	spread := math.Sqrt(s.variance() * (1 + 1/float64(s.n)))
	var half float64
	switch ev.formula {
	case FormulaChebyshev:
		half = math.Sqrt(1/alpha) * spread
	case FormulaPlainCI:
		half = 1.96 * spread
	default:
		half = studentT(int(s.n-1)) * spread
	}
	mode := ev.errorModeFor()
	loErr, hiErr := math.Exp(s.mean-half), math.Exp(s.mean+half)
	loAdj, hiAdj := mode.Adjust(est.Estimate(), loErr), mode.Adjust(est.Estimate(), hiErr)
	if loAdj > hiAdj {
		loAdj, hiAdj = hiAdj, loAdj
	}
	return loAdj, hiAdj
}

// Restore replaces every tracked estimator's running log-error statistics
// from the contents read from r, in the format written by Save. The
// running mean/variance/FIFO are rebuilt directly from the persisted
// fields; the persisted bounds column is informational and ignored, since
// bounds are always recomputed live from mean/variance at evaluation
// time. Restore clears existing stats and the expected-value memo first.
func (ev *Evaluator) Restore(r io.Reader) error {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return domain.ErrPersistFormat
	}
	header := strings.Fields(sc.Text())
	if len(header) != 2 || header[1] != "estimator-bounds" {
		return domain.ErrPersistFormat
	}
	k, err := strconv.Atoi(header[0])
	if err != nil {
		return domain.ErrPersistFormat
	}

	newStats := make(map[string]*logErrorStats, k)
	for i := 0; i < k; i++ {
		if !sc.Scan() {
			return domain.ErrPersistFormat
		}
		// <name> num_samples <n> mean <mean> variance <variance> M2 <m2>
		// bounds <lo> <hi> samples <v1> <v2> ...
		fields := strings.Fields(sc.Text())
		if len(fields) < 13 {
			return domain.ErrPersistFormat
		}
		name := fields[0]
		if fields[1] != "num_samples" || fields[3] != "mean" || fields[5] != "variance" ||
			fields[7] != "M2" || fields[9] != "bounds" || fields[12] != "samples" {
			return domain.ErrPersistFormat
		}

		s := &logErrorStats{}
		var n int
		var err1, err2, err3 error
		n, err1 = strconv.Atoi(fields[2])
		s.n = int64(n)
		s.mean, err2 = strconv.ParseFloat(fields[4], 64)
		// variance (fields[6]) is derived from m2/(n-1) on read; parse only to
		// validate the format.
		_, err3 = strconv.ParseFloat(fields[6], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return domain.ErrPersistFormat
		}
		var err4 error
		s.m2, err4 = strconv.ParseFloat(fields[8], 64)
		if err4 != nil {
			return domain.ErrPersistFormat
		}
		// bounds (fields[10], fields[11]) are informational; recomputed live.
		if _, err := strconv.ParseFloat(fields[10], 64); err != nil {
			return domain.ErrPersistFormat
		}
		if _, err := strconv.ParseFloat(fields[11], 64); err != nil {
			return domain.ErrPersistFormat
		}

		count := len(fields) - 13
		s.fifo = make([]float64, count)
		for i, f := range fields[13:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return domain.ErrPersistFormat
			}
			s.fifo[i] = v
		}
		if count > 0 {
			s.flipFastInit = true
			s.flipFast = s.fifo[count-1]
			s.flipSlow = s.fifo[count-1]
		}
		newStats[name] = s
	}
	if err := sc.Err(); err != nil {
		return err
	}

	ev.mu.Lock()
	ev.stats = newStats
	ev.mu.Unlock()

	ev.memoMu.Lock()
	ev.memo = make(map[memoKey]float64)
	ev.memoMu.Unlock()
	return nil
}

var (
	_ domain.Subscriber  = (*Evaluator)(nil)
	_ strategy.Evaluator = (*Evaluator)(nil)
)
