package voiceclone

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/lifecycle"
	"github.com/ent0n29/echo/internal/observability"
)

// Submission is the multipart payload for a new cloned voice.
type Submission struct {
	Name        string
	Description string
	SampleURI   string
}

// Result describes a voice created from a submission.
type Result struct {
	VoiceID     string    `json:"voice_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SampleURI   string    `json:"sample_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// Submitter uploads a voice sample and returns the created voice id.
type Submitter interface {
	AddVoice(ctx context.Context, sub Submission) (string, error)
}

// Recordings is the audio side of the form: the completed sample and a way
// to forget it once it has been submitted.
type Recordings interface {
	CompletedRecording() (string, bool)
	DiscardRecording(uri string) error
}

type Options struct {
	Submitter  Submitter
	Recordings Recordings
	// OnCreated runs after a successful submission, before the form resets.
	OnCreated func(ctx context.Context, res Result)
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

// State is the display state of the form.
type State struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	HasSample   bool   `json:"has_sample"`
	Submitting  bool   `json:"submitting"`
	CanSubmit   bool   `json:"can_submit"`
	LastVoiceID string `json:"last_voice_id,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

type Form struct {
	submitter  Submitter
	recordings Recordings
	onCreated  func(context.Context, Result)
	metrics    *observability.Metrics
	logger     zerolog.Logger

	inFlight lifecycle.OperationInFlight

	mu          sync.Mutex
	name        string
	description string
	lastVoiceID string
	lastError   string
}

func NewForm(opts Options) *Form {
	return &Form{
		submitter:  opts.Submitter,
		recordings: opts.Recordings,
		onCreated:  opts.OnCreated,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "voiceclone").Logger(),
	}
}

func (f *Form) SetName(name string) {
	f.mu.Lock()
	f.name = name
	f.mu.Unlock()
}

func (f *Form) SetDescription(description string) {
	f.mu.Lock()
	f.description = description
	f.mu.Unlock()
}

// CanSubmit reports whether a non-empty name and a completed recording exist
// and no submission is in flight.
func (f *Form) CanSubmit() bool {
	return f.State().CanSubmit
}

func (f *Form) State() State {
	_, hasSample := f.recordings.CompletedRecording()
	submitting := f.inFlight.Busy()

	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Name:        f.name,
		Description: f.description,
		HasSample:   hasSample,
		Submitting:  submitting,
		CanSubmit:   hasSample && !submitting && strings.TrimSpace(f.name) != "",
		LastVoiceID: f.lastVoiceID,
		LastError:   f.lastError,
	}
}

// Submit uploads the completed recording. Precondition failures never reach
// the submitter. On success the form and the recording are cleared.
func (f *Form) Submit(ctx context.Context) (Result, error) {
	const op = "submit voice clone"

	f.mu.Lock()
	rawName, rawDescription := f.name, f.description
	f.mu.Unlock()
	name := strings.TrimSpace(rawName)
	description := strings.TrimSpace(rawDescription)

	uri, ok := f.recordings.CompletedRecording()
	if name == "" || !ok {
		f.metrics.ObserveRejection("voiceclone", "submit")
		return Result{}, lifecycle.Precondition(op, "a voice sample and a name are required")
	}
	if !f.inFlight.TryAcquire() {
		f.metrics.ObserveRejection("voiceclone", "submit")
		return Result{}, lifecycle.Precondition(op, "submission already in flight")
	}
	defer f.inFlight.Release()

	started := time.Now()
	voiceID, err := f.submitter.AddVoice(ctx, Submission{Name: name, Description: description, SampleURI: uri})
	f.metrics.ObserveCapability("voiceclone", "submit", started, err)
	if err != nil {
		f.mu.Lock()
		f.lastError = lifecycle.Message(err)
		f.mu.Unlock()
		f.logger.Error().Err(err).Msg("voice clone submission failed")
		return Result{}, lifecycle.Capability(op, fmt.Errorf("failed to create voice clone: %w", err))
	}

	res := Result{
		VoiceID:     voiceID,
		Name:        name,
		Description: description,
		SampleURI:   uri,
		CreatedAt:   time.Now().UTC(),
	}
	if f.onCreated != nil {
		f.onCreated(ctx, res)
	}

	// Edits made while the upload was in flight belong to the next clone.
	f.mu.Lock()
	if f.name == rawName {
		f.name = ""
	}
	if f.description == rawDescription {
		f.description = ""
	}
	f.lastVoiceID = voiceID
	f.lastError = ""
	f.mu.Unlock()
	if err := f.recordings.DiscardRecording(uri); err != nil {
		f.logger.Warn().Err(err).Msg("discard submitted recording failed")
	}
	f.logger.Info().Str("voice_id", voiceID).Str("name", name).Msg("voice clone created")
	return res, nil
}
