package device

import (
	"io"
	"sync"
)

// pcmQueue is a byte FIFO between an audio callback and a blocking reader.
type pcmQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
	// silent makes a drained, closed queue yield zeros instead of EOF so an
	// output device can drain without underrun errors.
	silent bool
}

func newPCMQueue(capacity int, silent bool) *pcmQueue {
	q := &pcmQueue{buf: make([]byte, 0, capacity), silent: silent}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *pcmQueue) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, io.ErrClosedPipe
	}
	q.buf = append(q.buf, p...)
	q.cond.Signal()
	return len(p), nil
}

func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		if q.silent {
			clear(p)
			return len(p), nil
		}
		return 0, io.EOF
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

func (q *pcmQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	return nil
}
