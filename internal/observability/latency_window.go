package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// OpLatency summarizes recent latencies of one capability operation.
type OpLatency struct {
	Op         string  `json:"op"`
	Samples    int     `json:"samples"`
	Failures   int     `json:"failures"`
	LastMS     float64 `json:"last_ms"`
	AvgMS      float64 `json:"avg_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	BudgetP95M float64 `json:"budget_p95_ms,omitempty"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time   `json:"generated_at"`
	WindowSize  int         `json:"window_size"`
	Ops         []OpLatency `json:"ops"`
}

// latencyWindow keeps a fixed-size ring of samples per operation.
type latencyWindow struct {
	mu         sync.RWMutex
	maxSamples int
	ops        map[string]*latencyRing
}

type latencyRing struct {
	values   []float64
	next     int
	filled   bool
	last     float64
	failures int
}

func newLatencyWindow(maxSamples int) *latencyWindow {
	if maxSamples <= 0 {
		maxSamples = 128
	}
	return &latencyWindow{
		maxSamples: maxSamples,
		ops:        make(map[string]*latencyRing),
	}
}

func (w *latencyWindow) Observe(op string, ms float64, failed bool) {
	if op == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	ring, ok := w.ops[op]
	if !ok {
		ring = &latencyRing{values: make([]float64, w.maxSamples)}
		w.ops[op] = ring
	}
	if failed {
		ring.failures++
	}
	ring.values[ring.next] = ms
	ring.last = ms
	ring.next++
	if ring.next >= len(ring.values) {
		ring.next = 0
		ring.filled = true
	}
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.ops))
	for op := range w.ops {
		keys = append(keys, op)
	}
	sort.Strings(keys)

	out := make([]OpLatency, 0, len(keys))
	for _, op := range keys {
		ring := w.ops[op]
		n := ring.next
		if ring.filled {
			n = len(ring.values)
		}
		if n == 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, ring.values[:n])
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		out = append(out, OpLatency{
			Op:         op,
			Samples:    n,
			Failures:   ring.failures,
			LastMS:     round2(ring.last),
			AvgMS:      round2(sum / float64(n)),
			P50MS:      round2(quantile(samples, 0.50)),
			P95MS:      round2(quantile(samples, 0.95)),
			BudgetP95M: opBudgetP95MS(op),
		})
	}
	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Ops:         out,
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func opBudgetP95MS(op string) float64 {
	switch op {
	case "conversation/start":
		return 1500
	case "conversation/end":
		return 800
	case "audio/start_recording", "audio/play":
		return 400
	case "agents/fetch":
		return 1200
	default:
		return 0
	}
}
