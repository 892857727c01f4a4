// Package stats implements the two StatsDistribution variants over error
// (or prior-value) samples: All-Samples and Binned (§3).
package stats

import (
	"math"
	"sort"
	"sync"
)

// Sample is one (value, probability) point of a distribution snapshot.
type Sample struct {
	Value       float64
	Probability float64
}

// Distribution is a restartable source of (value, probability) pairs. In
// Go, "restartable" is satisfied by Samples returning an immutable snapshot
// slice the caller can range over as many times as it likes — no lazy
// iterator state to reset.
type Distribution interface {
	AddSample(v float64)
	// Samples returns the current distribution, in a stable index order
	// so evaluators can use a sample's position as a memoization key.
	Samples() []Sample
	TotalCount() int64
}

// ─── All-Samples ────────────────────────────────────────────────────────────

// MaxSamples bounds the All-Samples ring buffer; the oldest sample is
// evicted once full.
const MaxSamples = 20

// decayRho is chosen so the oldest of MaxSamples samples carries weight
// 0.01 relative to the newest: rho^(MaxSamples-1) = 0.01.
var decayRho = math.Pow(0.01, 1.0/float64(MaxSamples-1))

// AllSamples holds up to MaxSamples observations as point masses, weighted
// either uniformly or by exponential decay favoring recent samples.
type AllSamples struct {
	mu       sync.Mutex
	weighted bool
	values   []float64 // ring buffer, oldest first
	total    int64
}

// NewAllSamples constructs an All-Samples distribution. weighted selects
// exponentially decaying weights (rho ~= 0.785); otherwise weights are
// uniform.
func NewAllSamples(weighted bool) *AllSamples {
	return &AllSamples{weighted: weighted}
}

func (d *AllSamples) AddSample(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.values) == MaxSamples {
		d.values = d.values[1:]
	}
	d.values = append(d.values, v)
	d.total++
}

func (d *AllSamples) Samples() []Sample {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.values)
	if n == 0 {
		return nil
	}
	out := make([]Sample, n)
	if !d.weighted {
		p := 1.0 / float64(n)
		for i, v := range d.values {
			out[i] = Sample{Value: v, Probability: p}
		}
		return out
	}

	// weight of sample i (0 = oldest, n-1 = newest) is rho^(n-1-i).
	weights := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		w := math.Pow(decayRho, float64(n-1-i))
		weights[i] = w
		sum += w
	}
	for i, v := range d.values {
		out[i] = Sample{Value: v, Probability: weights[i] / sum}
	}
	return out
}

func (d *AllSamples) TotalCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// RawValues returns the ring buffer's raw samples, oldest first, exactly
// as fed to AddSample — the form §6 persists for the all-samples variant
// ("<name> <sample_count> v1 v2 ... vk"), since replaying them through
// AddSample in the same order reconstructs an identical ring.
func (d *AllSamples) RawValues() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float64, len(d.values))
	copy(out, d.values)
	return out
}

// ─── Binned ─────────────────────────────────────────────────────────────────

// autoFitThreshold is the sample count after which Binned auto-fits breaks
// from observed data when none were pre-set from range hints.
const autoFitThreshold = 50

// Binned is a histogram over explicit breaks, with two open tail bins
// (index 0 and index len(breaks)) whose representative value is the
// running mean of whatever overflowed into them rather than a fixed
// midpoint.
type Binned struct {
	mu sync.Mutex

	breaks    []float64 // bin edges, ascending: len(breaks)-1 interior bins lie between them; values outside go to the tails
	fitted    bool
	pending   []float64 // buffered raw samples before breaks are fit

	counts    []int64 // length len(breaks)+1, indexed by search position: counts[i] is the interior bin ending at breaks[i]
	tailLoSum float64
	tailLoN   int64
	tailHiSum float64
	tailHiN   int64
	total     int64
}

// NewBinned constructs an unfitted Binned distribution; breaks are chosen
// automatically once autoFitThreshold samples accumulate, unless
// SetRangeHints pre-seeds them first.
func NewBinned() *Binned {
	return &Binned{}
}

// SetRangeHints pre-seeds breaks as numBins equal-width interior bins
// spanning [min, max], matching an estimator's range hints (§4.1).
func (d *Binned) SetRangeHints(min, max float64, numBins int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if numBins < 1 || !(max > min) {
		return
	}
	breaks := make([]float64, numBins+1)
	width := (max - min) / float64(numBins)
	for i := range breaks {
		breaks[i] = min + width*float64(i)
	}
	d.setBreaksLocked(breaks)
}

func (d *Binned) setBreaksLocked(breaks []float64) {
	d.breaks = breaks
	d.counts = make([]int64, len(breaks)+1)
	d.fitted = true
	for _, v := range d.pending {
		d.addLocked(v)
	}
	d.pending = nil
}

func (d *Binned) AddSample(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.total++

	if !d.fitted {
		d.pending = append(d.pending, v)
		if len(d.pending) >= autoFitThreshold {
			d.setBreaksLocked(scottBreaks(d.pending))
		}
		return
	}
	d.addLocked(v)
}

func (d *Binned) addLocked(v float64) {
	idx := sort.SearchFloat64s(d.breaks, v)
	switch {
	case len(d.breaks) == 0:
		// no interior bins yet: everything is an open tail until fitted.
		d.tailLoSum += v
		d.tailLoN++
	case idx == 0 && v < d.breaks[0]:
		d.tailLoSum += v
		d.tailLoN++
	case idx == len(d.breaks):
		d.tailHiSum += v
		d.tailHiN++
	default:
		d.counts[idx]++
	}
}

// Samples returns one sample per populated bin: the two open tails (using
// their running-mean representative value) followed by the interior bins
// in ascending order, using each interior bin's midpoint.
func (d *Binned) Samples() []Sample {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.total == 0 {
		return nil
	}

	var out []Sample
	n := float64(d.total)

	if d.tailLoN > 0 {
		out = append(out, Sample{Value: d.tailLoSum / float64(d.tailLoN), Probability: float64(d.tailLoN) / n})
	}
	for i, c := range d.counts {
		if c == 0 {
			continue
		}
		out = append(out, Sample{Value: d.interiorMidpoint(i), Probability: float64(c) / n})
	}
	if d.tailHiN > 0 {
		out = append(out, Sample{Value: d.tailHiSum / float64(d.tailHiN), Probability: float64(d.tailHiN) / n})
	}
	return out
}

func (d *Binned) interiorMidpoint(i int) float64 {
	lo := d.breaks[0]
	if i > 0 {
		lo = d.breaks[i-1]
	}
	hi := d.breaks[len(d.breaks)-1]
	if i < len(d.breaks) {
		hi = d.breaks[i]
	}
	return (lo + hi) / 2
}

func (d *Binned) TotalCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// BinnedSnapshot is an exact internal-state snapshot of a Binned
// distribution: the histogram block §6 persists for the binned variant,
// sufficient to reconstruct the distribution without replaying the
// original observation sequence (unlike All-Samples, fitted bin counts
// don't retain the raw values that produced them).
type BinnedSnapshot struct {
	Fitted    bool
	Breaks    []float64
	Counts    []int64
	TailLoSum float64
	TailLoN   int64
	TailHiSum float64
	TailHiN   int64
	Pending   []float64
	Total     int64
}

// Snapshot captures d's exact internal state.
func (d *Binned) Snapshot() BinnedSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := BinnedSnapshot{
		Fitted:    d.fitted,
		Breaks:    append([]float64(nil), d.breaks...),
		Counts:    append([]int64(nil), d.counts...),
		TailLoSum: d.tailLoSum,
		TailLoN:   d.tailLoN,
		TailHiSum: d.tailHiSum,
		TailHiN:   d.tailHiN,
		Pending:   append([]float64(nil), d.pending...),
		Total:     d.total,
	}
	return s
}

// RestoreBinned reconstructs a Binned distribution directly from a
// snapshot, bypassing AddSample/scottBreaks entirely so the restored
// state matches the saved state exactly rather than only approximately.
func RestoreBinned(s BinnedSnapshot) *Binned {
	return &Binned{
		fitted:    s.Fitted,
		breaks:    append([]float64(nil), s.Breaks...),
		counts:    append([]int64(nil), s.Counts...),
		tailLoSum: s.TailLoSum,
		tailLoN:   s.TailLoN,
		tailHiSum: s.TailHiSum,
		tailHiN:   s.TailHiN,
		pending:   append([]float64(nil), s.Pending...),
		total:     s.Total,
	}
}

// BinMidpoint reports the representative value of whichever bin v would
// fall into, without recording v as a sample. Used by the Bayesian
// evaluator to map a point estimate to a stable key coordinate (§4.6):
// equal observations must map to equal keys, which requires quantizing
// against the distribution's current bins rather than using the raw
// value directly.
func (d *Binned) BinMidpoint(v float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.fitted || len(d.breaks) == 0 {
		return v
	}
	idx := sort.SearchFloat64s(d.breaks, v)
	switch {
	case idx == 0 && v < d.breaks[0]:
		if d.tailLoN > 0 {
			return d.tailLoSum / float64(d.tailLoN)
		}
		return v
	case idx == len(d.breaks):
		if d.tailHiN > 0 {
			return d.tailHiSum / float64(d.tailHiN)
		}
		return v
	default:
		return d.interiorMidpoint(idx)
	}
}

// scottBreaks picks interior break points using Scott's normal-reference
// rule (bin width = 3.49*sigma*n^(-1/3)), a pure-Go stand-in for the
// R-based histogram fitting the source delegates to.
func scottBreaks(samples []float64) []float64 {
	n := len(samples)
	if n < 2 {
		return nil
	}
	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n - 1)
	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return nil
	}

	width := 3.49 * sigma * math.Pow(float64(n), -1.0/3.0)
	if width <= 0 {
		return nil
	}

	min, max := samples[0], samples[0]
	for _, v := range samples {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	numBins := int(math.Ceil((max - min) / width))
	if numBins < 1 {
		numBins = 1
	}
	if numBins > 64 {
		numBins = 64
	}

	breaks := make([]float64, numBins-1)
	binWidth := (max - min) / float64(numBins)
	for i := range breaks {
		breaks[i] = min + binWidth*float64(i+1)
	}
	return breaks
}

var (
	_ Distribution = (*AllSamples)(nil)
	_ Distribution = (*Binned)(nil)
)
