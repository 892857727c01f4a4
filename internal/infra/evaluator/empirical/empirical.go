// Package empirical implements the Empirical-Error evaluator (§4.4): a
// Cartesian-product joint over per-estimator error distributions, with a
// hand-unrolled fast path for the common two-child redundant strategy.
package empirical

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/instruments/internal/domain"
	"github.com/tutu-network/instruments/internal/infra/estimator"
	"github.com/tutu-network/instruments/internal/infra/stats"
	"github.com/tutu-network/instruments/internal/infra/strategy"
)

// ConcurrencyThreshold is the minimum estimator count at which a joint
// dimension build fans out across goroutines. The single-threaded path is
// the default to match the source's behavior on common two/three-network
// configurations, where goroutine overhead would dominate.
const ConcurrencyThreshold = 8

// Evaluator is the Empirical-Error strategy evaluator. It subscribes to
// every estimator it is asked to evaluate and folds each observation into
// a per-estimator error distribution.
type Evaluator struct {
	reg      *estimator.Registry
	mode     domain.ErrorMode
	weighted bool
	binned   bool
	concurrent bool

	mu         sync.Mutex
	dists      map[string]stats.Distribution
	subscribed map[string]bool
	reentrant  bool
}

// New constructs an Empirical-Error evaluator. weighted selects
// exponentially decaying All-Samples weights; binned selects the Binned
// histogram distribution instead of All-Samples; concurrent opts into
// errgroup-based fan-out for wide joints (see ConcurrencyThreshold).
func New(reg *estimator.Registry, mode domain.ErrorMode, weighted, binned, concurrent bool) *Evaluator {
	return &Evaluator{
		reg:        reg,
		mode:       mode,
		weighted:   weighted,
		binned:     binned,
		concurrent: concurrent,
		dists:      make(map[string]stats.Distribution),
		subscribed: make(map[string]bool),
	}
}

// ─── domain.Subscriber ──────────────────────────────────────────────────────

func (ev *Evaluator) OnObservation(name string, observation, oldEstimate, newEstimate float64) {
	ev.mu.Lock()
	d := ev.distForLocked(name)
	ev.mu.Unlock()

	if !domain.IsValidEstimate(oldEstimate) {
		// First observation: seed with the identity error so the
		// distribution is never empty.
		d.AddSample(ev.mode.NoErrorValue())
		return
	}
	d.AddSample(ev.mode.CalculateError(oldEstimate, observation))
}

func (ev *Evaluator) OnConditionsChanged(name string) {
	// Pruning reads live Conditions() at evaluation time; nothing to
	// invalidate here.
}

func (ev *Evaluator) OnEstimatorDestroyed(name string) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	delete(ev.dists, name)
	delete(ev.subscribed, name)
}

func (ev *Evaluator) distForLocked(name string) stats.Distribution {
	d, ok := ev.dists[name]
	if !ok {
		if ev.binned {
			d = stats.NewBinned()
		} else {
			d = stats.NewAllSamples(ev.weighted)
		}
		ev.dists[name] = d
	}
	return d
}

// SubscribeAll subscribes this evaluator to every estimator currently in
// the registry, independent of any strategy's Uses(). api.NewApp calls it
// once after construction so observations posted before the first Choose
// still feed the error distributions instead of being silently dropped.
func (ev *Evaluator) SubscribeAll() {
	for _, name := range ev.reg.Names() {
		ev.ensureSubscribed(name)
	}
}

func (ev *Evaluator) ensureSubscribed(name string) {
	ev.mu.Lock()
	already := ev.subscribed[name]
	if !already {
		ev.subscribed[name] = true
	}
	ev.mu.Unlock()
	if already {
		return
	}
	if e, err := ev.reg.Get(name); err == nil {
		e.Subscribe(ev)
	}
}

// ─── strategy.Evaluator ─────────────────────────────────────────────────────

// ExpectedValue implements strategy.Evaluator. It panics via
// domain.PanicReentrantEvaluation if called again while a joint iteration
// from an outer call on this same evaluator is still in flight (§5).
func (ev *Evaluator) ExpectedValue(s strategy.Strategy, fn domain.CostFn, strategyArg, chooserArg float64) float64 {
	ev.mu.Lock()
	if ev.reentrant {
		ev.mu.Unlock()
		domain.PanicReentrantEvaluation()
	}
	ev.reentrant = true
	ev.mu.Unlock()
	defer func() {
		ev.mu.Lock()
		ev.reentrant = false
		ev.mu.Unlock()
	}()

	switch fn.Kind() {
	case domain.RedundantMinTimeFn, domain.RedundantSumEnergyFn, domain.RedundantSumDataFn:
		return ev.evaluateRedundant(s, fn.Kind(), chooserArg)
	default:
		return ev.evaluateSingular(s, fn, strategyArg, chooserArg)
	}
}

func (ev *Evaluator) evaluateSingular(s strategy.Strategy, fn domain.CostFn, strategyArg, chooserArg float64) float64 {
	dims := ev.buildDims(s.Uses())
	sum := 0.0
	genericJoint(dims, func(point mapCtx, prob float64) {
		sum += prob * fn.Eval(point, strategyArg, chooserArg)
	})
	return sum
}

func (ev *Evaluator) evaluateRedundant(s strategy.Strategy, kind domain.CostFnKind, chooserArg float64) float64 {
	children := s.Children()
	if len(children) == 2 && strategy.DisjointForFn(children[0], children[1]) {
		return ev.twoStrategyJoint(children[0], children[1], kind, chooserArg)
	}
	return ev.redundantGeneral(children, kind, chooserArg)
}

// twoStrategyJoint is the hand-unrolled fixed-topology path: each child's
// own fn values are tabulated once (a per-singular-strategy memo table,
// indexed implicitly by loop position rather than a pointer-nested map),
// then combined in a flat two-level loop that never re-invokes either
// child's cost function.
func (ev *Evaluator) twoStrategyJoint(a, b strategy.Strategy, kind domain.CostFnKind, chooserArg float64) float64 {
	aVals, aProbs := ev.singleStrategyFnTable(a, kind, chooserArg)
	bVals, bProbs := ev.singleStrategyFnTable(b, kind, chooserArg)

	sum := 0.0
	for i, av := range aVals {
		for j, bv := range bVals {
			sum += aProbs[i] * bProbs[j] * combine(kind, av, bv)
		}
	}
	return sum
}

func (ev *Evaluator) singleStrategyFnTable(s strategy.Strategy, kind domain.CostFnKind, chooserArg float64) (values, probs []float64) {
	fn := fnForKind(s, kind)
	dims := ev.buildDims(s.Uses())
	genericJoint(dims, func(point mapCtx, prob float64) {
		values = append(values, fn.Eval(point, s.StrategyArg(), chooserArg))
		probs = append(probs, prob)
	})
	return values, probs
}

// redundantGeneral handles N-way or non-disjoint redundant strategies: a
// single joint over the union of every child's estimators, combining each
// child's own fn value at every joint point.
func (ev *Evaluator) redundantGeneral(children []strategy.Strategy, kind domain.CostFnKind, chooserArg float64) float64 {
	union := unionUses(children)
	dims := ev.buildDims(union)

	sum := 0.0
	genericJoint(dims, func(point mapCtx, prob float64) {
		combined := 0.0
		for i, c := range children {
			fn := fnForKind(c, kind)
			v := fn.Eval(point, c.StrategyArg(), chooserArg)
			if kind == domain.RedundantMinTimeFn {
				if i == 0 || v < combined {
					combined = v
				}
			} else {
				combined += v
			}
		}
		sum += prob * combined
	})
	return sum
}

func fnForKind(s strategy.Strategy, kind domain.CostFnKind) domain.CostFn {
	switch kind {
	case domain.RedundantMinTimeFn:
		return s.TimeFn()
	case domain.RedundantSumEnergyFn:
		return s.EnergyFn()
	default:
		return s.DataFn()
	}
}

func combine(kind domain.CostFnKind, a, b float64) float64 {
	if kind == domain.RedundantMinTimeFn {
		return math.Min(a, b)
	}
	return a + b
}

func unionUses(children []strategy.Strategy) []string {
	seen := make(map[string]struct{})
	for _, c := range children {
		for _, name := range c.Uses() {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return names
}

// ─── Joint dimension construction ───────────────────────────────────────────

// jointDim is one estimator's pruned, adjusted sample set for a single
// joint iteration.
type jointDim struct {
	name   string
	values []float64
	probs  []float64
}

// buildDims ensures the evaluator is subscribed to every name, then
// constructs a pruned dimension for each, sorted by name for a
// deterministic iteration order across calls.
func (ev *Evaluator) buildDims(names []string) []jointDim {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for _, n := range sorted {
		ev.ensureSubscribed(n)
	}

	dims := make([]jointDim, len(sorted))
	if ev.concurrent && len(sorted) >= ConcurrencyThreshold {
		var g errgroup.Group
		for i, n := range sorted {
			i, n := i, n
			g.Go(func() error {
				dims[i] = ev.buildDim(n)
				return nil
			})
		}
		_ = g.Wait() // buildDim never returns an error
		return dims
	}

	for i, n := range sorted {
		dims[i] = ev.buildDim(n)
	}
	return dims
}

// buildDim applies conditional pruning (§4.4): samples whose adjusted
// value falls outside [at_least, at_most] are dropped and the remainder
// renormalized; if every sample is pruned (or none exist while a
// condition is set), a synthetic sample at the condition's bound midpoint
// is injected with probability 1. With no conditions and no history,
// evaluation proceeds with identity only — the estimator's raw estimate.
func (ev *Evaluator) buildDim(name string) jointDim {
	est, err := ev.reg.Get(name)
	if err != nil {
		return jointDim{name: name, values: []float64{domain.InvalidEstimate}, probs: []float64{1}}
	}

	cond := est.Conditions()

	ev.mu.Lock()
	dist, ok := ev.dists[name]
	ev.mu.Unlock()

	if !ok || dist.TotalCount() == 0 {
		if !cond.Any() {
			return jointDim{name: name, values: []float64{est.Estimate()}, probs: []float64{1}}
		}
		return jointDim{name: name, values: []float64{cond.Midpoint()}, probs: []float64{1}}
	}

	samples := dist.Samples()
	values := make([]float64, 0, len(samples))
	probs := make([]float64, 0, len(samples))
	survivingProb := 0.0

	for _, sm := range samples {
		adjusted := ev.mode.Adjust(est.Estimate(), sm.Value)
		if cond.Any() && !cond.Satisfies(adjusted) {
			continue
		}
		values = append(values, adjusted)
		probs = append(probs, sm.Probability)
		survivingProb += sm.Probability
	}

	if len(values) == 0 {
		return jointDim{name: name, values: []float64{cond.Midpoint()}, probs: []float64{1}}
	}
	if survivingProb > 0 && math.Abs(survivingProb-1) > 1e-12 {
		for i := range probs {
			probs[i] /= survivingProb
		}
	}
	return jointDim{name: name, values: values, probs: probs}
}

// genericJoint walks the Cartesian product of dims depth-first, threading
// the accumulated probability prefix into each recursive call so no
// dimension's probability product is ever recomputed from scratch — the
// same saving the source achieves by caching a probability suffix and
// recomputing only from the position that just advanced.
func genericJoint(dims []jointDim, visit func(point mapCtx, prob float64)) {
	point := make(mapCtx, len(dims))
	var rec func(i int, prob float64)
	rec = func(i int, prob float64) {
		if i == len(dims) {
			visit(point, prob)
			return
		}
		d := dims[i]
		for j, v := range d.values {
			point[d.name] = v
			rec(i+1, prob*d.probs[j])
		}
	}
	rec(0, 1)
}

// mapCtx implements domain.EvalCtx over one joint point.
type mapCtx map[string]float64

func (m mapCtx) Get(name string) float64 {
	if v, ok := m[name]; ok {
		return v
	}
	return domain.InvalidEstimate
}

// ─── Persistence (§6) ───────────────────────────────────────────────────────

// Save writes every estimator's error distribution. All-Samples
// distributions persist as a single line, the literal §6 grammar
// ("<name> <sample_count> v1 v2 ... vk"):
//
//	<k> estimators
//	<name> <sample-count> v1 v2 ... vk
//
// Binned distributions persist as the histogram block §6 allows instead,
// since a fitted Binned distribution discards the raw samples that
// produced its bin counts and so cannot be reconstructed by replaying
// values through AddSample:
//
//	<name> binned <fitted> <total> <num-breaks> <num-counts> <num-pending>
//	<break1> <break2> ... <breakN>
//	<count1> <count2> ... <countM>
//	<tail-lo-n> <tail-lo-sum> <tail-hi-n> <tail-hi-sum>
//	<pending1> <pending2> ... <pendingK>
//
// Save holds the evaluator lock for the whole write so the snapshot is
// consistent.
func (ev *Evaluator) Save(w io.Writer) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	names := make([]string, 0, len(ev.dists))
	for n := range ev.dists {
		names = append(names, n)
	}
	sort.Strings(names)

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d estimators\n", len(names)); err != nil {
		return err
	}
	for _, n := range names {
		if err := saveDist(bw, n, ev.dists[n]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func saveDist(bw *bufio.Writer, name string, d stats.Distribution) error {
	if binned, ok := d.(*stats.Binned); ok {
		return saveBinned(bw, name, binned)
	}
	all, ok := d.(*stats.AllSamples)
	if !ok {
		return fmt.Errorf("empirical: unsupported distribution type %T", d)
	}
	values := all.RawValues()
	fields := make([]string, 0, len(values)+2)
	fields = append(fields, name, strconv.Itoa(len(values)))
	for _, v := range values {
		fields = append(fields, formatFloat(v))
	}
	_, err := fmt.Fprintln(bw, strings.Join(fields, " "))
	return err
}

func saveBinned(bw *bufio.Writer, name string, d *stats.Binned) error {
	snap := d.Snapshot()
	fitted := 0
	if snap.Fitted {
		fitted = 1
	}
	if _, err := fmt.Fprintf(bw, "%s binned %d %d %d %d %d\n",
		name, fitted, snap.Total, len(snap.Breaks), len(snap.Counts), len(snap.Pending)); err != nil {
		return err
	}
	if err := writeFloats(bw, snap.Breaks); err != nil {
		return err
	}
	if err := writeInts(bw, snap.Counts); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "%d %s %d %s\n",
		snap.TailLoN, formatFloat(snap.TailLoSum), snap.TailHiN, formatFloat(snap.TailHiSum)); err != nil {
		return err
	}
	return writeFloats(bw, snap.Pending)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeFloats(bw *bufio.Writer, vs []float64) error {
	fields := make([]string, len(vs))
	for i, v := range vs {
		fields[i] = formatFloat(v)
	}
	_, err := fmt.Fprintln(bw, strings.Join(fields, " "))
	return err
}

func writeInts(bw *bufio.Writer, vs []int64) error {
	fields := make([]string, len(vs))
	for i, v := range vs {
		fields[i] = strconv.FormatInt(v, 10)
	}
	_, err := fmt.Fprintln(bw, strings.Join(fields, " "))
	return err
}

// Restore replaces every tracked distribution with the contents read from
// r, in the format written by Save. Restore clears existing state before
// populating it, so a partial or malformed stream never leaves stale and
// fresh data mixed together.
func (ev *Evaluator) Restore(r io.Reader) error {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return domain.ErrPersistFormat
	}
	k, err := parseHeader(sc.Text(), "estimators")
	if err != nil {
		return err
	}

	dists := make(map[string]stats.Distribution, k)
	for i := 0; i < k; i++ {
		name, d, err := restoreDist(sc, ev.weighted)
		if err != nil {
			return err
		}
		dists[name] = d
	}
	if err := sc.Err(); err != nil {
		return err
	}

	ev.mu.Lock()
	ev.dists = dists
	ev.mu.Unlock()
	return nil
}

func restoreDist(sc *bufio.Scanner, weighted bool) (string, stats.Distribution, error) {
	if !sc.Scan() {
		return "", nil, domain.ErrPersistFormat
	}
	fields := strings.Fields(sc.Text())
	if len(fields) < 2 {
		return "", nil, domain.ErrPersistFormat
	}
	name := fields[0]
	if fields[1] == "binned" {
		d, err := restoreBinnedBlock(sc, fields)
		return name, d, err
	}

	count, err := strconv.Atoi(fields[1])
	if err != nil || len(fields) != 2+count {
		return "", nil, domain.ErrPersistFormat
	}
	d := stats.NewAllSamples(weighted)
	for _, f := range fields[2:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return "", nil, domain.ErrPersistFormat
		}
		d.AddSample(v)
	}
	return name, d, nil
}

func restoreBinnedBlock(sc *bufio.Scanner, header []string) (stats.Distribution, error) {
	if len(header) != 7 {
		return nil, domain.ErrPersistFormat
	}
	fitted, err1 := strconv.Atoi(header[2])
	total, err2 := strconv.ParseInt(header[3], 10, 64)
	numBreaks, err3 := strconv.Atoi(header[4])
	numCounts, err4 := strconv.Atoi(header[5])
	numPending, err5 := strconv.Atoi(header[6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return nil, domain.ErrPersistFormat
	}

	breaks, err := scanFloats(sc, numBreaks)
	if err != nil {
		return nil, err
	}
	counts, err := scanInts(sc, numCounts)
	if err != nil {
		return nil, err
	}
	if !sc.Scan() {
		return nil, domain.ErrPersistFormat
	}
	tailFields := strings.Fields(sc.Text())
	if len(tailFields) != 4 {
		return nil, domain.ErrPersistFormat
	}
	tailLoN, e1 := strconv.ParseInt(tailFields[0], 10, 64)
	tailLoSum, e2 := strconv.ParseFloat(tailFields[1], 64)
	tailHiN, e3 := strconv.ParseInt(tailFields[2], 10, 64)
	tailHiSum, e4 := strconv.ParseFloat(tailFields[3], 64)
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
		return nil, domain.ErrPersistFormat
	}
	pending, err := scanFloats(sc, numPending)
	if err != nil {
		return nil, err
	}

	return stats.RestoreBinned(stats.BinnedSnapshot{
		Fitted:    fitted != 0,
		Breaks:    breaks,
		Counts:    counts,
		TailLoSum: tailLoSum,
		TailLoN:   tailLoN,
		TailHiSum: tailHiSum,
		TailHiN:   tailHiN,
		Pending:   pending,
		Total:     total,
	}), nil
}

func scanFloats(sc *bufio.Scanner, n int) ([]float64, error) {
	if !sc.Scan() {
		return nil, domain.ErrPersistFormat
	}
	fields := strings.Fields(sc.Text())
	if len(fields) != n {
		return nil, domain.ErrPersistFormat
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, domain.ErrPersistFormat
		}
		out[i] = v
	}
	return out, nil
}

func scanInts(sc *bufio.Scanner, n int) ([]int64, error) {
	if !sc.Scan() {
		return nil, domain.ErrPersistFormat
	}
	fields := strings.Fields(sc.Text())
	if len(fields) != n {
		return nil, domain.ErrPersistFormat
	}
	out := make([]int64, n)
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, domain.ErrPersistFormat
		}
		out[i] = v
	}
	return out, nil
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
