package lifecycle

import "sync/atomic"

// OperationInFlight guards an asynchronous operation against duplicate
// concurrent invocation. A second TryAcquire while held fails; callers reject
// the attempt instead of queuing it.
type OperationInFlight struct {
	busy atomic.Bool
}

func (g *OperationInFlight) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *OperationInFlight) Release() {
	g.busy.Store(false)
}

func (g *OperationInFlight) Busy() bool {
	return g.busy.Load()
}
