// Package bayesian implements the Bayesian evaluator (§4.6): a per-key
// likelihood built from decision-time snapshots, normalized over the full
// decision history.
package bayesian

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tutu-network/instruments/internal/domain"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/evaluator/oracle"
	"github.com/tutu-network/instruments/internal/infra/stats"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

// maxKeyDims bounds the number of estimators a single strategy may use
// for likelihood-key purposes, so the key can be a fixed-size comparable
// array instead of a slice (Go map keys must be comparable). Grounded on
// the source's fixed-capacity small_map containers.
const maxKeyDims = 6

// unusedDim marks a key coordinate beyond a strategy's actual estimator
// count; real bin midpoints are assumed never to take this exact value.
const unusedDim = math.MaxFloat64

type key [maxKeyDims]float64

type decisionsHistogram struct {
	total     int
	bestCount int
}

type decision struct {
	values       map[string]float64
	bestStrategy string
}

// observationRecord is one raw call to OnObservation, kept in arrival
// order — the full history §6 persists, so Restore can replay it exactly
// instead of reconstructing value distributions and likelihood tables
// from decision snapshots alone (which would requantize against bins
// that had already moved on by the time each decision was folded).
type observationRecord struct {
	name        string
	observation float64
	oldEst      float64
	hasOldEst   bool
	newEst      float64
}

// Evaluator is the Bayesian strategy evaluator. SetStrategies must be
// called once the full strategy set is known, before any observation is
// fed in, so readiness counters and likelihood tables can be sized.
type Evaluator struct {
	reg    *estimator.Registry
	oracle *oracle.Evaluator

	mu           sync.Mutex
	valueDist    map[string]*stats.Binned
	strategies   []strategy.Strategy
	usesLen      map[string]int
	seenForUse   map[string]map[string]bool
	readyCount   map[string]int
	readyTotal   int
	likelihood   map[string]map[key]*decisionsHistogram
	decisions    []decision
	observations []observationRecord
}

// New constructs a Bayesian evaluator. The internal SimpleEvaluator used
// to determine the best singular strategy at each decision point is the
// Trusted-Oracle evaluator over the same registry.
func New(reg *estimator.Registry) *Evaluator {
	return &Evaluator{
		reg:        reg,
		oracle:     oracle.New(reg),
		valueDist:  make(map[string]*stats.Binned),
		usesLen:    make(map[string]int),
		seenForUse: make(map[string]map[string]bool),
		readyCount: make(map[string]int),
		likelihood: make(map[string]map[key]*decisionsHistogram),
	}
}

// SetStrategies registers the full strategy set this evaluator scores
// decisions against.
func (ev *Evaluator) SetStrategies(strategies []strategy.Strategy) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.strategies = strategies
	for _, s := range strategies {
		uses := s.Uses()
		ev.usesLen[s.Name()] = len(uses)
		ev.seenForUse[s.Name()] = make(map[string]bool)
		ev.likelihood[s.Name()] = make(map[key]*decisionsHistogram)
		for _, name := range uses {
			if e, err := ev.reg.Get(name); err == nil {
				e.Subscribe(ev)
			}
			ev.valueDistFor(name)
		}
	}
}

// SubscribeAll subscribes this evaluator to every estimator currently in
// the registry, independent of any strategy's Uses(). SetStrategies only
// subscribes to estimators a strategy is already known to read; this
// covers the rest, so observations posted before the first Choose still
// feed valueDist instead of being silently dropped.
func (ev *Evaluator) SubscribeAll() {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	for _, name := range ev.reg.Names() {
		if e, err := ev.reg.Get(name); err == nil {
			e.Subscribe(ev)
		}
		ev.valueDistFor(name)
	}
}

func (ev *Evaluator) valueDistFor(name string) *stats.Binned {
	d, ok := ev.valueDist[name]
	if !ok {
		d = stats.NewBinned()
		if e, err := ev.reg.Get(name); err == nil {
			if min, max, n, ok := e.RangeHints(); ok {
				d.SetRangeHints(min, max, n)
			}
		}
		ev.valueDist[name] = d
	}
	return d
}

// ─── domain.Subscriber ──────────────────────────────────────────────────────

func (ev *Evaluator) OnObservation(name string, observation, oldEstimate, newEstimate float64) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	ev.observations = append(ev.observations, observationRecord{
		name:        name,
		observation: observation,
		oldEst:      oldEstimate,
		hasOldEst:   domain.IsValidEstimate(oldEstimate),
		newEst:      newEstimate,
	})
	ev.applyObservationLocked(name, newEstimate)
}

// applyObservationLocked folds one observation's new estimate into
// valueDist and the readiness/decision bookkeeping. Shared by live
// OnObservation and Restore's replay of the persisted observation log, so
// a restored evaluator reaches the identical state a live run would have.
// Caller must hold ev.mu.
func (ev *Evaluator) applyObservationLocked(name string, newEstimate float64) {
	ev.valueDistFor(name).AddSample(newEstimate)

	for _, s := range ev.strategies {
		if !usesContains(s, name) {
			continue
		}
		seen := ev.seenForUse[s.Name()]
		if seen[name] {
			continue
		}
		seen[name] = true
		ev.readyCount[s.Name()]++
		if ev.usesLen[s.Name()] > 0 && ev.readyCount[s.Name()] == ev.usesLen[s.Name()] {
			ev.readyTotal++
		}
	}

	if len(ev.strategies) > 0 && ev.readyTotal == len(ev.strategies) {
		ev.recordDecisionLocked()
	}
}

func (ev *Evaluator) OnConditionsChanged(name string) {}

func (ev *Evaluator) OnEstimatorDestroyed(name string) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	delete(ev.valueDist, name)
}

func usesContains(s strategy.Strategy, name string) bool {
	for _, n := range s.Uses() {
		if n == name {
			return true
		}
	}
	return false
}

// recordDecisionLocked snapshots current point estimates, determines the
// best singular strategy via the internal oracle sub-evaluator, and
// folds the outcome into every strategy's likelihood table plus the
// global normalizer. Caller must hold ev.mu.
func (ev *Evaluator) recordDecisionLocked() {
	snapshot := make(map[string]float64)
	for name := range ev.valueDist {
		if e, err := ev.reg.Get(name); err == nil {
			snapshot[name] = e.Estimate()
		}
	}

	ev.foldDecisionLocked(snapshot, ev.bestSingular())
}

// foldDecisionLocked appends one decision to history and updates every
// strategy's likelihood table. Shared by live recording and Restore, so a
// restored evaluator's likelihood tables match byte-for-byte what live
// observation would have produced for the same sequence of decisions.
// Caller must hold ev.mu.
func (ev *Evaluator) foldDecisionLocked(snapshot map[string]float64, best string) {
	ev.decisions = append(ev.decisions, decision{values: snapshot, bestStrategy: best})

	for _, s := range ev.strategies {
		k := ev.keyForLocked(s, snapshot)
		h, ok := ev.likelihood[s.Name()][k]
		if !ok {
			h = &decisionsHistogram{}
			ev.likelihood[s.Name()][k] = h
		}
		h.total++
		if s.Name() == best {
			h.bestCount++
		}
	}
}

// bestSingular picks the singular strategy with the smallest oracle time
// estimate. SimpleEvaluator.ExpectedValue ignores which strategy it is
// asked about and always reads raw point estimates, so this reduces to
// evaluating each singular strategy's time function once.
func (ev *Evaluator) bestSingular() string {
	best := ""
	bestTime := 0.0
	first := true
	for _, s := range ev.strategies {
		if len(s.Children()) > 0 {
			continue // redundant strategies are not candidates for S*
		}
		t := s.CalculateTime(ev.oracle, s.DefaultChooserArg())
		if first || t < bestTime {
			best, bestTime, first = s.Name(), t, false
		}
	}
	return best
}

func (ev *Evaluator) keyForLocked(s strategy.Strategy, snapshot map[string]float64) key {
	uses := append([]string(nil), s.Uses()...)
	sort.Strings(uses)
	var k key
	for i := range k {
		k[i] = unusedDim
	}
	for i, name := range uses {
		if i >= maxKeyDims {
			break
		}
		v, ok := snapshot[name]
		if !ok {
			continue
		}
		k[i] = ev.valueDistFor(name).BinMidpoint(v)
	}
	return k
}

// ─── strategy.Evaluator ─────────────────────────────────────────────────────

// ExpectedValue implements strategy.Evaluator: E[f|S] is the likelihood-
// weighted average of f evaluated at each key's assignment, normalized by
// the global probability that S was the best singular strategy.
func (ev *Evaluator) ExpectedValue(s strategy.Strategy, fn domain.CostFn, strategyArg, chooserArg float64) float64 {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	table, ok := ev.likelihood[s.Name()]
	if !ok || len(ev.decisions) == 0 {
		return ev.oracle.ExpectedValue(s, fn, strategyArg, chooserArg)
	}

	globalBestCount := 0
	for _, d := range ev.decisions {
		if d.bestStrategy == s.Name() {
			globalBestCount++
		}
	}
	normalizer := float64(globalBestCount) / float64(len(ev.decisions))
	if normalizer == 0 {
		return ev.oracle.ExpectedValue(s, fn, strategyArg, chooserArg)
	}

	sum := 0.0
	uses := append([]string(nil), s.Uses()...)
	sort.Strings(uses)

	for k, h := range table {
		fraction := 0.0
		if h.total > 0 {
			fraction = float64(h.bestCount) / float64(h.total)
		}
		if fraction == 0 {
			fraction = 1 / float64(h.total+1)
		}

		point := make(mapCtx, len(uses))
		for i, name := range uses {
			if i >= maxKeyDims {
				break
			}
			point[name] = k[i]
		}

		prior := float64(h.total) / float64(len(ev.decisions))
		value := fn.Eval(point, strategyArg, chooserArg)
		sum += value * prior * fraction
	}

	return sum / normalizer
}

type mapCtx map[string]float64

func (m mapCtx) Get(name string) float64 {
	if v, ok := m[name]; ok {
		return v
	}
	return domain.InvalidEstimate
}

// ─── Persistence (§6) ───────────────────────────────────────────────────────

// invalidToken marks a missing old estimate in a persisted observation
// line — every estimator's first observation, which has no prior
// estimate to report.
const invalidToken = "(invalid)"

// Save writes the value distributions' range hints and the full raw
// observation history in arrival order, per §6:
//
//	<k> estimators
//	<name> <has-hints> <min> <max> <num-bins>
//	...
//
//	<n> observations
//	<estimator-name> <observation> <old-est|(invalid)> <new-est>
//	...
//
// Persisting the raw observation stream, rather than the decision
// snapshots it was folded into, lets Restore replay it through the exact
// same readiness and value-distribution bookkeeping a live run used —
// required so BinMidpoint quantizes identically and the likelihood
// tables Restore rebuilds match a live run's (invariant 5).
func (ev *Evaluator) Save(w io.Writer) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	names := make([]string, 0, len(ev.valueDist))
	for n := range ev.valueDist {
		names = append(names, n)
	}
	sort.Strings(names)

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d estimators\n", len(names)); err != nil {
		return err
	}
	for _, n := range names {
		hasHints := 0
		var lo, hi float64
		var bins int
		if e, err := ev.reg.Get(n); err == nil {
			if mn, mx, nb, ok := e.RangeHints(); ok {
				hasHints, lo, hi, bins = 1, mn, mx, nb
			}
		}
		if _, err := fmt.Fprintf(bw, "%s %d %s %s %d\n", n, hasHints,
			strconv.FormatFloat(lo, 'g', -1, 64), strconv.FormatFloat(hi, 'g', -1, 64), bins); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(bw, "\n%d observations\n", len(ev.observations)); err != nil {
		return err
	}
	for _, rec := range ev.observations {
		oldTok := invalidToken
		if rec.hasOldEst {
			oldTok = strconv.FormatFloat(rec.oldEst, 'g', -1, 64)
		}
		if _, err := fmt.Fprintf(bw, "%s %s %s %s\n",
			rec.name,
			strconv.FormatFloat(rec.observation, 'g', -1, 64),
			oldTok,
			strconv.FormatFloat(rec.newEst, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Restore replaces the value distributions, decisions, and likelihood
// tables by replaying the persisted observation history through the same
// bookkeeping OnObservation uses live, in the format written by Save.
// SetStrategies must already have been called with the same strategy set
// used when the stream was saved, so readiness counters and likelihood
// tables are sized the same way; Restore clears all existing state first.
func (ev *Evaluator) Restore(r io.Reader) error {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return domain.ErrPersistFormat
	}
	k, err := parseHeader(sc.Text(), "estimators")
	if err != nil {
		return err
	}

	type hintRow struct {
		name     string
		hasHints bool
		lo, hi   float64
		bins     int
	}
	rows := make([]hintRow, 0, k)
	for i := 0; i < k; i++ {
		if !sc.Scan() {
			return domain.ErrPersistFormat
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 5 {
			return domain.ErrPersistFormat
		}
		hasHints := fields[1] == "1"
		lo, err1 := strconv.ParseFloat(fields[2], 64)
		hi, err2 := strconv.ParseFloat(fields[3], 64)
		bins, err3 := strconv.Atoi(fields[4])
		if err1 != nil || err2 != nil || err3 != nil {
			return domain.ErrPersistFormat
		}
		rows = append(rows, hintRow{fields[0], hasHints, lo, hi, bins})
	}

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "" {
		return domain.ErrPersistFormat
	}
	if !sc.Scan() {
		return domain.ErrPersistFormat
	}
	n, err := parseHeader(sc.Text(), "observations")
	if err != nil {
		return err
	}

	obs := make([]observationRecord, 0, n)
	for i := 0; i < n; i++ {
		if !sc.Scan() {
			return domain.ErrPersistFormat
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 {
			return domain.ErrPersistFormat
		}
		rec := observationRecord{name: fields[0]}
		var err1, err3 error
		rec.observation, err1 = strconv.ParseFloat(fields[1], 64)
		if fields[2] == invalidToken {
			rec.hasOldEst = false
		} else {
			var err2 error
			rec.oldEst, err2 = strconv.ParseFloat(fields[2], 64)
			if err2 != nil {
				return domain.ErrPersistFormat
			}
			rec.hasOldEst = true
		}
		rec.newEst, err3 = strconv.ParseFloat(fields[3], 64)
		if err1 != nil || err3 != nil {
			return domain.ErrPersistFormat
		}
		obs = append(obs, rec)
	}
	if err := sc.Err(); err != nil {
		return err
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()

	ev.valueDist = make(map[string]*stats.Binned, len(rows))
	for _, hr := range rows {
		d := stats.NewBinned()
		if hr.hasHints {
			d.SetRangeHints(hr.lo, hr.hi, hr.bins)
		}
		ev.valueDist[hr.name] = d
	}
	ev.decisions = nil
	ev.seenForUse = make(map[string]map[string]bool, len(ev.strategies))
	ev.readyCount = make(map[string]int, len(ev.strategies))
	ev.readyTotal = 0
	for _, s := range ev.strategies {
		ev.usesLen[s.Name()] = len(s.Uses())
		ev.seenForUse[s.Name()] = make(map[string]bool)
		ev.likelihood[s.Name()] = make(map[key]*decisionsHistogram)
	}

	ev.observations = nil
	for _, rec := range obs {
		ev.observations = append(ev.observations, rec)
		ev.applyObservationLocked(rec.name, rec.newEst)
	}
	return nil
}

func parseHeader(line, label string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[1] != label {
		return 0, domain.ErrPersistFormat
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, domain.ErrPersistFormat
	}
	return n, nil
}

var (
	_ domain.Subscriber  = (*Evaluator)(nil)
	_ strategy.Evaluator = (*Evaluator)(nil)
)
