package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/audio"
	"github.com/ent0n29/echo/internal/lifecycle"
	"github.com/ent0n29/echo/internal/logging"
)

const (
	DefaultSampleRate = 16000
	DefaultStatusTick = 100 * time.Millisecond

	periodMillis = 20
)

var errWrongMode = errors.New("audio device not configured for this operation")

type Options struct {
	RecordingsDir string
	SampleRate    int
	StatusTick    time.Duration
	Clock         lifecycle.Clock
	Logger        zerolog.Logger
}

// Backend drives the host microphone through malgo and the speaker through
// oto. It implements audio.Recorder, audio.Player and audio.ModeSwitcher, and
// supplies conversation audio streams. All audio is PCM16LE mono.
type Backend struct {
	dir        string
	sampleRate int
	statusTick time.Duration
	clock      lifecycle.Clock
	logger     zerolog.Logger

	malgo *malgo.AllocatedContext

	otoOnce sync.Once
	oto     *oto.Context
	otoErr  error

	mu   sync.Mutex
	mode audio.Mode
}

func New(opts Options) (*Backend, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.StatusTick <= 0 {
		opts.StatusTick = DefaultStatusTick
	}
	if opts.Clock == nil {
		opts.Clock = lifecycle.SystemClock{}
	}
	if opts.RecordingsDir == "" {
		opts.RecordingsDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.RecordingsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Backend{
		dir:        opts.RecordingsDir,
		sampleRate: opts.SampleRate,
		statusTick: opts.StatusTick,
		clock:      opts.Clock,
		logger:     logging.Component(opts.Logger, "audio_device"),
		malgo:      mctx,
		mode:       audio.ModeIdle,
	}, nil
}

// RequestPermission probes for a usable capture device. Operating systems
// that gate microphone access surface the prompt on first enumeration.
func (b *Backend) RequestPermission(context.Context) (bool, error) {
	devices, err := b.malgo.Devices(malgo.Capture)
	if err != nil {
		return false, fmt.Errorf("enumerate capture devices: %w", err)
	}
	return len(devices) > 0, nil
}

// SetMode records the active mode. Desktop hosts share one device between
// capture and playback, so the switch only gates which operations are
// accepted.
func (b *Backend) SetMode(_ context.Context, mode audio.Mode) error {
	b.mu.Lock()
	prev := b.mode
	b.mode = mode
	b.mu.Unlock()
	if prev != mode {
		b.logger.Debug().Str("from", string(prev)).Str("to", string(mode)).Msg("audio mode changed")
	}
	return nil
}

func (b *Backend) Mode() audio.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// speakerContext lazily creates the process-wide oto context. oto allows a
// single context per process.
func (b *Backend) speakerContext() (*oto.Context, error) {
	b.otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   b.sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			b.otoErr = fmt.Errorf("init speaker: %w", err)
			return
		}
		<-ready
		b.oto = ctx
	})
	return b.oto, b.otoErr
}

// startCapture opens the default capture device and feeds its samples to q.
func (b *Backend) startCapture(q *pcmQueue) (*malgo.Device, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(b.sampleRate)
	cfg.PeriodSizeInMilliseconds = periodMillis

	dev, err := malgo.InitDevice(b.malgo.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			_, _ = q.Write(input)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	return dev, nil
}

func stopCapture(dev *malgo.Device) error {
	err := dev.Stop()
	dev.Uninit()
	return err
}

func (b *Backend) Close() error {
	var err error
	if b.malgo != nil {
		err = b.malgo.Uninit()
		b.malgo.Free()
		b.malgo = nil
	}
	return err
}
