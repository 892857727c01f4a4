package observability

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// latencyHighestTrackableNanos bounds the histogram at 10 seconds, far
// above any realistic choose_strategy or expected_value call.
const latencyHighestTrackableNanos = int64(10 * time.Second)

// LatencyHistogram tracks span durations at high dynamic range, giving
// in-process callers tail-latency percentiles instead of the fixed
// Prometheus histogram buckets alone; it is not exported on /metrics. One LatencyHistogram is shared process-wide per
// operation name.
type LatencyHistogram struct {
	mu   sync.Mutex
	byOp map[string]*hdrhistogram.Histogram
}

// NewLatencyHistogram constructs an empty, per-operation latency tracker.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{byOp: make(map[string]*hdrhistogram.Histogram)}
}

// globalLatency is the process-wide histogram EndSpan records into.
var globalLatency = NewLatencyHistogram()

func (h *LatencyHistogram) record(operation string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.byOp[operation]
	if !ok {
		hist = hdrhistogram.New(1, latencyHighestTrackableNanos, 3)
		h.byOp[operation] = hist
	}
	_ = hist.RecordValue(int64(d))
}

// Percentiles reports the p50/p95/p99 latency, in nanoseconds, recorded
// for operation. ok is false if no span for that operation has completed.
func (h *LatencyHistogram) Percentiles(operation string) (p50, p95, p99 int64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, found := h.byOp[operation]
	if !found || hist.TotalCount() == 0 {
		return 0, 0, 0, false
	}
	return hist.ValueAtQuantile(50), hist.ValueAtQuantile(95), hist.ValueAtQuantile(99), true
}

// Operations lists every operation name with recorded latencies.
func (h *LatencyHistogram) Operations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.byOp))
	for op := range h.byOp {
		out = append(out, op)
	}
	return out
}

// GlobalLatency returns the process-wide latency tracker fed by every
// Tracer's EndSpan call.
func GlobalLatency() *LatencyHistogram { return globalLatency }
