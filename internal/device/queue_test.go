package device

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func TestPCMQueueBlocksUntilWrite(t *testing.T) {
	q := newPCMQueue(8, false)
	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		n, _ := q.Read(buf)
		got <- buf[:n]
	}()

	select {
	case <-got:
		t.Fatalf("Read() returned before any data was written")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := q.Write([]byte{1, 2}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	select {
	case b := <-got:
		if !bytes.Equal(b, []byte{1, 2}) {
			t.Fatalf("Read() = %v, want [1 2]", b)
		}
	case <-time.After(time.Second):
		t.Fatalf("Read() did not wake after Write")
	}
}

func TestPCMQueueDrainsThenEOF(t *testing.T) {
	q := newPCMQueue(8, false)
	_, _ = q.Write([]byte{1, 2, 3})
	_ = q.Close()

	data, err := io.ReadAll(q)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("ReadAll() = %v", data)
	}
	if _, err := q.Write([]byte{4}); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Write() after Close error = %v, want ErrClosedPipe", err)
	}
}

func TestPCMQueueSilentAfterClose(t *testing.T) {
	q := newPCMQueue(8, true)
	_ = q.Close()

	buf := []byte{9, 9, 9}
	n, err := q.Read(buf)
	if err != nil || n != 3 {
		t.Fatalf("Read() = %d, %v; want 3, nil", n, err)
	}
	if !bytes.Equal(buf, []byte{0, 0, 0}) {
		t.Fatalf("Read() filled %v, want silence", buf)
	}
}

func TestPCMQueueCloseWakesReader(t *testing.T) {
	q := newPCMQueue(8, false)
	done := make(chan error, 1)
	go func() {
		_, err := q.Read(make([]byte, 4))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	_ = q.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("Read() error = %v, want EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Close() did not wake blocked reader")
	}
}
