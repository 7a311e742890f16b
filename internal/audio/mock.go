package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/echo/internal/lifecycle"
)

// MockBackend is an in-process Recorder, Player and ModeSwitcher used when no
// audio device is available. With Dir set each recording is a second of
// silence written as a WAV file; otherwise recordings are bare uris. Playback
// runs for PlaybackLength.
type MockBackend struct {
	Dir            string
	SampleRate     int
	Clock          lifecycle.Clock
	Tick           time.Duration
	PlaybackLength time.Duration
	DenyPermission bool

	mu   sync.Mutex
	mode Mode
}

func NewMockBackend(clock lifecycle.Clock, tick time.Duration) *MockBackend {
	if clock == nil {
		clock = lifecycle.SystemClock{}
	}
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &MockBackend{Clock: clock, Tick: tick, PlaybackLength: 3 * time.Second, mode: ModeIdle}
}

func (b *MockBackend) RequestPermission(context.Context) (bool, error) {
	return !b.DenyPermission, nil
}

func (b *MockBackend) CreateRecording(context.Context) (RecordingHandle, error) {
	if b.Mode() != ModeRecord {
		return nil, errors.New("audio device not in record mode")
	}
	name := uuid.NewString() + ".wav"
	if b.Dir == "" {
		return &mockRecording{uri: "mock://recordings/" + name}, nil
	}
	return &mockRecording{uri: filepath.Join(b.Dir, name), sampleRate: b.SampleRate}, nil
}

func (b *MockBackend) SetMode(_ context.Context, mode Mode) error {
	b.mu.Lock()
	b.mode = mode
	b.mu.Unlock()
	return nil
}

func (b *MockBackend) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

func (b *MockBackend) CreatePlayback(_ context.Context, uri string, onStatus func(PlaybackStatus)) (PlaybackHandle, error) {
	if uri == "" {
		return nil, errors.New("empty uri")
	}
	if b.Mode() != ModePlayback {
		return nil, errors.New("audio device not in playback mode")
	}
	p := &mockPlayback{
		length: b.PlaybackLength.Milliseconds(),
		step:   b.Tick.Milliseconds(),
		ticker: b.Clock.NewTicker(b.Tick),
		stop:   make(chan struct{}),
	}
	go p.run(onStatus)
	return p, nil
}

type mockRecording struct {
	once       sync.Once
	uri        string
	sampleRate int
}

func (r *mockRecording) Stop(context.Context) (string, error) {
	var (
		uri string
		err error
	)
	r.once.Do(func() {
		uri = r.uri
		if strings.HasPrefix(uri, "mock://") {
			return
		}
		rate := r.sampleRate
		if rate <= 0 {
			rate = 16000
		}
		err = os.WriteFile(uri, silenceWAV(rate), 0o644)
	})
	if err != nil {
		return "", err
	}
	if uri == "" {
		return "", errors.New("recording already stopped")
	}
	return uri, nil
}

func silenceWAV(sampleRate int) []byte {
	wav, _ := EncodeWAVPCM16LE(make([]byte, sampleRate*pcm16BytesPerSec), sampleRate)
	return wav
}

type mockPlayback struct {
	length int64
	step   int64
	ticker lifecycle.Ticker
	stop   chan struct{}
	once   sync.Once
}

func (p *mockPlayback) run(onStatus func(PlaybackStatus)) {
	defer p.ticker.Stop()
	var pos int64
	for {
		select {
		case <-p.stop:
			return
		case <-p.ticker.C():
		}
		pos += p.step
		if pos >= p.length {
			onStatus(PlaybackStatus{PositionMillis: p.length, DurationMillis: p.length, IsLoaded: true, DidJustFinish: true})
			return
		}
		onStatus(PlaybackStatus{PositionMillis: pos, DurationMillis: p.length, IsLoaded: true, IsPlaying: true})
	}
}

func (p *mockPlayback) Stop(context.Context) error {
	p.once.Do(func() { close(p.stop) })
	return nil
}

func (p *mockPlayback) Unload(ctx context.Context) error {
	return p.Stop(ctx)
}
