package audio

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/lifecycle"
)

func TestMockBackendDrivesManager(t *testing.T) {
	clock := lifecycle.NewManualClock(time.Unix(0, 0))
	backend := NewMockBackend(clock, 500*time.Millisecond)
	backend.PlaybackLength = time.Second
	m := NewManager(Options{Recorder: backend, Player: backend, Modes: backend, Clock: clock, Logger: zerolog.Nop()})
	ctx := context.Background()

	if _, err := m.RequestPermission(ctx); err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if err := m.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if err := m.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording() error = %v", err)
	}
	uri, ok := m.CompletedRecording()
	if !ok || !strings.HasPrefix(uri, "mock://recordings/") {
		t.Fatalf("CompletedRecording() = %q, %v", uri, ok)
	}

	if err := m.PlayRecording(ctx, uri); err != nil {
		t.Fatalf("PlayRecording() error = %v", err)
	}
	tickers := clock.Tickers()
	playTicker := tickers[len(tickers)-1]
	playTicker.Tick(time.Second)
	waitFor(t, "halfway", func() bool { return m.Snapshot().Playback.PositionMillis == 500 })
	playTicker.Tick(time.Second)
	waitFor(t, "finished", func() bool {
		pb := m.Snapshot().Playback
		return !pb.Playing && pb.PositionMillis == 0
	})

	if err := m.Teardown(ctx); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if backend.Mode() != ModeIdle {
		t.Fatalf("mode = %s, want idle", backend.Mode())
	}
}

func TestMockBackendDeniesPermission(t *testing.T) {
	backend := NewMockBackend(nil, 0)
	backend.DenyPermission = true
	granted, err := backend.RequestPermission(context.Background())
	if err != nil || granted {
		t.Fatalf("RequestPermission() = %v, %v; want denied", granted, err)
	}
}

func TestMockRecordingStopsOnce(t *testing.T) {
	backend := NewMockBackend(nil, 0)
	_ = backend.SetMode(context.Background(), ModeRecord)
	h, err := backend.CreateRecording(context.Background())
	if err != nil {
		t.Fatalf("CreateRecording() error = %v", err)
	}
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.Stop(context.Background())
		}(i)
	}
	wg.Wait()
	if (results[0] == nil) == (results[1] == nil) {
		t.Fatalf("Stop() results = %v, want exactly one success", results)
	}
}

func TestMockBackendWritesSilenceToDir(t *testing.T) {
	backend := NewMockBackend(nil, 0)
	backend.Dir = t.TempDir()
	backend.SampleRate = 8000
	_ = backend.SetMode(context.Background(), ModeRecord)

	h, err := backend.CreateRecording(context.Background())
	if err != nil {
		t.Fatalf("CreateRecording() error = %v", err)
	}
	uri, err := h.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	data, err := os.ReadFile(uri)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	pcm, rate, err := DecodeWAVPCM16(data)
	if err != nil {
		t.Fatalf("DecodeWAVPCM16() error = %v", err)
	}
	if rate != 8000 || PCMDurationMillis(len(pcm), rate) != 1000 {
		t.Fatalf("rate=%d pcm=%d, want one second at 8000", rate, len(pcm))
	}
}
