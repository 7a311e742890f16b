package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/lifecycle"
	"github.com/ent0n29/echo/internal/observability"
)

type Permission string

const (
	PermissionUnrequested Permission = "unrequested"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
)

// Recording is the current or last completed capture. URI is empty while
// Active and set once the capture has stopped successfully.
type Recording struct {
	URI             string `json:"uri,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	Active          bool   `json:"active"`
}

// Completed reports whether the recording can be played or submitted.
func (r Recording) Completed() bool {
	return !r.Active && r.URI != ""
}

// Snapshot is the display state of the manager.
type Snapshot struct {
	Permission        Permission `json:"permission"`
	Mode              Mode       `json:"mode"`
	Recording         Recording  `json:"recording"`
	RecordingDuration string     `json:"recording_duration"`
	Playback          Playback   `json:"playback"`
	Progress          float64    `json:"progress"`
	PlaybackPosition  string     `json:"playback_position"`
	PlaybackDuration  string     `json:"playback_duration"`
	RecordingBusy     bool       `json:"recording_busy"`
	PlaybackBusy      bool       `json:"playback_busy"`
	LastError         string     `json:"last_error,omitempty"`
	Closed            bool       `json:"closed"`
}

type Options struct {
	Recorder Recorder
	Player   Player
	Modes    ModeSwitcher
	Clock    lifecycle.Clock
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

// Manager owns at most one recording handle and one playback handle and
// switches the audio device between record and playback mode.
type Manager struct {
	recorder Recorder
	player   Player
	modes    ModeSwitcher
	clock    lifecycle.Clock
	metrics  *observability.Metrics
	logger   zerolog.Logger

	permGuard   lifecycle.OperationInFlight
	recordGuard lifecycle.OperationInFlight
	playGuard   lifecycle.OperationInFlight

	mu         sync.Mutex
	permission Permission
	mode       Mode
	recording  Recording
	recHandle  RecordingHandle
	timer      *RecordingTimer
	playHandle PlaybackHandle
	playGen    uint64
	tracker    ProgressTracker
	lastError  string
	closed     bool
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = lifecycle.SystemClock{}
	}
	return &Manager{
		recorder:   opts.Recorder,
		player:     opts.Player,
		modes:      opts.Modes,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "audio").Logger(),
		permission: PermissionUnrequested,
		mode:       ModeIdle,
	}
}

// RequestPermission asks for microphone access. A refusal is returned as a
// PermissionError and recorded so later recordings are rejected.
func (m *Manager) RequestPermission(ctx context.Context) (Permission, error) {
	const op = "request permission"
	if !m.permGuard.TryAcquire() {
		return m.Permission(), m.reject("permission", op, "permission request in flight")
	}
	defer m.permGuard.Release()
	if err := m.checkOpen(op); err != nil {
		return m.Permission(), err
	}

	started := time.Now()
	granted, err := m.recorder.RequestPermission(ctx)
	m.metrics.ObserveCapability("audio", "permission", started, err)
	if err != nil {
		m.setError(err)
		return m.Permission(), lifecycle.Capability(op, err)
	}

	m.mu.Lock()
	if granted {
		m.permission = PermissionGranted
	} else {
		m.permission = PermissionDenied
	}
	p := m.permission
	m.mu.Unlock()

	m.event("permission_" + string(p))
	if !granted {
		m.logger.Warn().Msg("microphone permission denied")
		return p, lifecycle.Permission(op)
	}
	return p, nil
}

func (m *Manager) Permission() Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission
}

// StartRecording releases any playback handle, switches to record mode and
// starts a new capture with a fresh timer.
func (m *Manager) StartRecording(ctx context.Context) error {
	const op = "start recording"
	if !m.recordGuard.TryAcquire() {
		return m.reject("start_recording", op, "recording operation in flight")
	}
	defer m.recordGuard.Release()

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return m.reject("start_recording", op, "audio manager closed")
	case m.recording.Active:
		m.mu.Unlock()
		return m.reject("start_recording", op, "recording already active")
	case m.playGuard.Busy():
		m.mu.Unlock()
		return m.reject("start_recording", op, "playback load in flight")
	case m.permission == PermissionUnrequested:
		m.mu.Unlock()
		return m.reject("start_recording", op, "microphone permission not requested")
	case m.permission == PermissionDenied:
		m.mu.Unlock()
		m.metrics.ObserveRejection("audio", "start_recording")
		return lifecycle.Permission(op)
	}
	prev := m.detachPlaybackLocked()
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Unload(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("unload playback before recording failed")
		}
	}

	started := time.Now()
	if err := m.modes.SetMode(ctx, ModeRecord); err != nil {
		m.metrics.ObserveCapability("audio", "start_recording", started, err)
		m.setError(err)
		return lifecycle.Capability(op, err)
	}
	handle, err := m.recorder.CreateRecording(ctx)
	m.metrics.ObserveCapability("audio", "start_recording", started, err)
	if err != nil {
		m.setError(err)
		m.logger.Error().Err(err).Msg("start recording failed")
		return lifecycle.Capability(op, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_, _ = handle.Stop(context.WithoutCancel(ctx))
		return lifecycle.Precondition(op, "audio manager closed")
	}
	m.mode = ModeRecord
	m.recHandle = handle
	m.recording = Recording{Active: true}
	m.lastError = ""
	m.timer = NewRecordingTimer(m.clock)
	m.timer.Start()
	m.mu.Unlock()

	m.event("recording_started")
	m.logger.Info().Msg("recording started")
	return nil
}

// StopRecording stops the timer before the capture so no tick lands after
// the stop request, then finalizes the file.
func (m *Manager) StopRecording(ctx context.Context) error {
	const op = "stop recording"
	if !m.recordGuard.TryAcquire() {
		return m.reject("stop_recording", op, "recording operation in flight")
	}
	defer m.recordGuard.Release()

	m.mu.Lock()
	if !m.recording.Active || m.recHandle == nil {
		m.mu.Unlock()
		return m.reject("stop_recording", op, "no active recording")
	}
	m.recording.DurationSeconds = m.timer.Stop()
	m.timer = nil
	handle := m.recHandle
	m.recHandle = nil
	m.mu.Unlock()

	started := time.Now()
	uri, err := handle.Stop(ctx)
	m.metrics.ObserveCapability("audio", "stop_recording", started, err)

	m.mu.Lock()
	m.recording.Active = false
	if err != nil {
		m.recording.URI = ""
		m.lastError = lifecycle.Message(err)
		m.mu.Unlock()
		m.logger.Error().Err(err).Msg("stop recording failed")
		return lifecycle.Capability(op, err)
	}
	m.recording.URI = uri
	seconds := m.recording.DurationSeconds
	m.mu.Unlock()

	m.event("recording_stopped")
	m.logger.Info().Str("uri", uri).Int("duration_seconds", seconds).Msg("recording stopped")
	return nil
}

// DiscardRecording forgets the completed recording at uri. It does nothing
// when a different recording has replaced it.
func (m *Manager) DiscardRecording(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recording.Active {
		m.metrics.ObserveRejection("audio", "discard")
		return lifecycle.Precondition("discard recording", "recording still active")
	}
	if m.recording.URI != uri {
		return nil
	}
	m.recording = Recording{}
	return nil
}

// CompletedRecording returns the uri of the last completed recording.
func (m *Manager) CompletedRecording() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording.Completed() {
		return "", false
	}
	return m.recording.URI, true
}

// PlayRecording replaces any existing playback handle with a new one for uri.
// A load failure leaves playback stopped and is returned as a CapabilityError.
func (m *Manager) PlayRecording(ctx context.Context, uri string) error {
	const op = "play recording"
	if uri == "" {
		return m.reject("play", op, "no recording to play")
	}
	if !m.playGuard.TryAcquire() {
		return m.reject("play", op, "playback load in flight")
	}
	defer m.playGuard.Release()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return m.reject("play", op, "audio manager closed")
	}
	if m.recording.Active || m.recordGuard.Busy() {
		m.mu.Unlock()
		return m.reject("play", op, "recording in progress")
	}
	prev := m.detachPlaybackLocked()
	gen := m.playGen
	m.tracker.Begin()
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Unload(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("unload previous playback failed")
		}
	}

	started := time.Now()
	if err := m.modes.SetMode(ctx, ModePlayback); err != nil {
		m.metrics.ObserveCapability("audio", "play", started, err)
		m.failPlayback(gen, err)
		return lifecycle.Capability(op, err)
	}
	handle, err := m.player.CreatePlayback(ctx, uri, func(st PlaybackStatus) {
		m.onStatus(gen, st)
	})
	m.metrics.ObserveCapability("audio", "play", started, err)
	if err != nil {
		m.failPlayback(gen, err)
		m.logger.Error().Err(err).Str("uri", uri).Msg("playback load failed")
		return lifecycle.Capability(op, err)
	}

	m.mu.Lock()
	if m.closed || gen != m.playGen {
		m.mu.Unlock()
		_ = handle.Unload(context.WithoutCancel(ctx))
		return lifecycle.Precondition(op, "playback superseded")
	}
	m.playHandle = handle
	m.mode = ModePlayback
	m.lastError = ""
	m.mu.Unlock()

	m.event("playback_started")
	return nil
}

// StopPlayback stops the current playback and rewinds. The handle stays
// loaded until the next PlayRecording or Teardown.
func (m *Manager) StopPlayback(ctx context.Context) error {
	const op = "stop playback"
	m.mu.Lock()
	if m.playHandle == nil || !m.tracker.Snapshot().Playing {
		m.mu.Unlock()
		return m.reject("stop_playback", op, "no active playback")
	}
	handle := m.playHandle
	m.playGen++
	m.tracker.Stop()
	m.mu.Unlock()

	if err := handle.Stop(ctx); err != nil {
		m.setError(err)
		return lifecycle.Capability(op, err)
	}
	m.event("playback_stopped")
	return nil
}

// Teardown releases every handle and stops the timer. It is idempotent and
// the manager rejects all later operations.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.timer != nil {
		m.recording.DurationSeconds = m.timer.Stop()
		m.timer = nil
	}
	rec := m.recHandle
	m.recHandle = nil
	m.recording.Active = false
	play := m.detachPlaybackLocked()
	m.tracker.Stop()
	m.mode = ModeIdle
	m.mu.Unlock()

	var errs []error
	if rec != nil {
		if _, err := rec.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if play != nil {
		if err := play.Unload(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.modes.SetMode(ctx, ModeIdle); err != nil {
		errs = append(errs, err)
	}
	m.event("teardown")
	if err := errors.Join(errs...); err != nil {
		m.logger.Warn().Err(err).Msg("audio teardown finished with errors")
		return lifecycle.Capability("teardown audio", err)
	}
	return nil
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recording
	if rec.Active && m.timer != nil {
		rec.DurationSeconds = m.timer.Seconds()
	}
	pb := m.tracker.Snapshot()
	return Snapshot{
		Permission:        m.permission,
		Mode:              m.mode,
		Recording:         rec,
		RecordingDuration: FormatSeconds(rec.DurationSeconds),
		Playback:          pb,
		Progress:          m.tracker.Progress(),
		PlaybackPosition:  FormatMillis(pb.PositionMillis),
		PlaybackDuration:  FormatMillis(pb.DurationMillis),
		RecordingBusy:     m.recordGuard.Busy(),
		PlaybackBusy:      m.playGuard.Busy(),
		LastError:         m.lastError,
		Closed:            m.closed,
	}
}

func (m *Manager) onStatus(gen uint64, st PlaybackStatus) {
	m.mu.Lock()
	if gen != m.playGen {
		m.mu.Unlock()
		return
	}
	finished := m.tracker.Apply(st)
	m.mu.Unlock()
	if finished {
		m.event("playback_finished")
	}
}

// detachPlaybackLocked invalidates the current playback and returns its
// handle for the caller to unload outside the lock.
func (m *Manager) detachPlaybackLocked() PlaybackHandle {
	h := m.playHandle
	m.playHandle = nil
	m.playGen++
	m.tracker.Clear()
	return h
}

func (m *Manager) failPlayback(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.playGen {
		m.tracker.Clear()
	}
	m.lastError = lifecycle.Message(err)
}

func (m *Manager) checkOpen(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return lifecycle.Precondition(op, "audio manager closed")
	}
	return nil
}

func (m *Manager) setError(err error) {
	m.mu.Lock()
	m.lastError = lifecycle.Message(err)
	m.mu.Unlock()
}

func (m *Manager) reject(metricOp, op, reason string) error {
	m.metrics.ObserveRejection("audio", metricOp)
	m.logger.Debug().Str("op", op).Str("reason", reason).Msg("intent rejected")
	return lifecycle.Precondition(op, reason)
}

func (m *Manager) event(name string) {
	if m.metrics == nil {
		return
	}
	m.metrics.AudioEvents.WithLabelValues(name).Inc()
}
