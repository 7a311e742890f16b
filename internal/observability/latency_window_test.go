package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(4)
	w.Observe("conversation/start", 500, false)
	w.Observe("conversation/start", 700, false)
	w.Observe("conversation/start", 900, true)
	w.Observe("", 10, false)

	snap := w.Snapshot()
	if snap.WindowSize != 4 {
		t.Fatalf("WindowSize = %d, want 4", snap.WindowSize)
	}
	if len(snap.Ops) != 1 {
		t.Fatalf("len(Ops) = %d, want 1", len(snap.Ops))
	}
	op := snap.Ops[0]
	if op.Samples != 3 || op.Failures != 1 {
		t.Fatalf("Samples/Failures = %d/%d, want 3/1", op.Samples, op.Failures)
	}
	if op.LastMS != 900 || op.AvgMS != 700 || op.P50MS != 700 {
		t.Fatalf("unexpected stats: %+v", op)
	}
	if op.BudgetP95M != 1500 {
		t.Fatalf("BudgetP95M = %v, want 1500", op.BudgetP95M)
	}
}

func TestLatencyWindowWrapsRing(t *testing.T) {
	w := newLatencyWindow(2)
	for _, v := range []float64{100, 200, 300} {
		w.Observe("agents/fetch", v, false)
	}
	op := w.Snapshot().Ops[0]
	if op.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", op.Samples)
	}
	if op.AvgMS != 250 {
		t.Fatalf("AvgMS = %v, want 250", op.AvgMS)
	}
}
