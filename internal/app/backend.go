package app

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/audio"
	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/device"
	"github.com/ent0n29/echo/internal/elevenlabs"
)

type audioBackend interface {
	audio.Recorder
	audio.Player
	audio.ModeSwitcher
}

type audioSetup struct {
	backend audioBackend
	// stream feeds the conversation microphone and speaker; nil means the
	// conversation runs text only.
	stream  elevenlabs.AudioIO
	kind    string
	detail  string
	cleanup func() error
}

func resolveAudioBackend(cfg config.Config, logger zerolog.Logger) (audioSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.AudioBackend))
	if mode == "" {
		mode = "auto"
	}

	tryDevice := func() (audioSetup, error) {
		b, err := device.New(device.Options{
			RecordingsDir: cfg.RecordingsDir,
			SampleRate:    cfg.AudioSampleRate,
			StatusTick:    cfg.PlaybackStatusTick,
			Logger:        logger,
		})
		if err != nil {
			return audioSetup{}, err
		}
		setup := audioSetup{
			backend: b,
			kind:    "device",
			detail:  fmt.Sprintf("device (%d Hz, recordings in %s)", cfg.AudioSampleRate, cfg.RecordingsDir),
			cleanup: b.Close,
		}
		if cfg.StreamMicrophone {
			setup.stream = b
		}
		return setup, nil
	}

	mock := func(detail string) audioSetup {
		b := audio.NewMockBackend(nil, cfg.PlaybackStatusTick)
		b.Dir = cfg.RecordingsDir
		b.SampleRate = cfg.AudioSampleRate
		return audioSetup{backend: b, kind: "mock", detail: detail}
	}

	switch mode {
	case "device":
		setup, err := tryDevice()
		if err != nil {
			return audioSetup{}, fmt.Errorf("audio device init failed: %w", err)
		}
		return setup, nil
	case "mock":
		return mock("mock"), nil
	case "auto":
		setup, err := tryDevice()
		if err == nil {
			return setup, nil
		}
		logger.Warn().Err(err).Msg("audio device unavailable, using mock backend")
		return mock("mock (audio device unavailable)"), nil
	default:
		return audioSetup{}, fmt.Errorf("invalid AUDIO_BACKEND: %q (expected auto|device|mock)", cfg.AudioBackend)
	}
}
