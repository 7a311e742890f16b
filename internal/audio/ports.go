package audio

import "context"

// Mode is the exclusive configuration of the audio subsystem.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeRecord   Mode = "record"
	ModePlayback Mode = "playback"
)

// Recorder captures microphone audio.
type Recorder interface {
	RequestPermission(ctx context.Context) (bool, error)
	CreateRecording(ctx context.Context) (RecordingHandle, error)
}

// RecordingHandle is one in-progress capture. Stop finalizes it and returns
// the uri of the recorded file.
type RecordingHandle interface {
	Stop(ctx context.Context) (string, error)
}

// PlaybackStatus is a periodic report from a playback handle.
type PlaybackStatus struct {
	PositionMillis int64
	DurationMillis int64
	IsLoaded       bool
	IsPlaying      bool
	DidJustFinish  bool
}

// Player loads a recorded uri and starts playing it. onStatus is invoked
// from the player's own goroutine.
type Player interface {
	CreatePlayback(ctx context.Context, uri string, onStatus func(PlaybackStatus)) (PlaybackHandle, error)
}

type PlaybackHandle interface {
	Stop(ctx context.Context) error
	Unload(ctx context.Context) error
}

// ModeSwitcher reconfigures the shared audio device between record and
// playback use.
type ModeSwitcher interface {
	SetMode(ctx context.Context, mode Mode) error
}
