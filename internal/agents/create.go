package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ent0n29/echo/internal/lifecycle"
)

const (
	DefaultFirstMessage = "Hello! I'm your AI assistant. How can I help you today?"
	DefaultLanguage     = "en"
	DefaultPrompt       = "You are a helpful AI assistant. Be friendly, knowledgeable, and provide accurate information."
	DefaultLLM          = "gpt-4o-mini"
	DefaultTTSModel     = "eleven_turbo_v2"
	DefaultOutputFormat = "pcm_16000"
)

// CreateRequest is the agent creation document bound to one voice.
type CreateRequest struct {
	Name         string `json:"name"`
	VoiceID      string `json:"voice_id"`
	FirstMessage string `json:"first_message"`
	Language     string `json:"language"`
	Prompt       string `json:"prompt"`
	LLM          string `json:"llm"`
	TTSModelID   string `json:"tts_model_id"`
	OutputFormat string `json:"output_format"`
}

// Creator submits an agent creation document and returns the new agent id.
type Creator interface {
	CreateAgent(ctx context.Context, req CreateRequest) (string, error)
}

// VoiceRef is the voice an agent is created for.
type VoiceRef struct {
	ID   string
	Name string
}

// CreateForm holds agent creation input seeded with defaults.
type CreateForm struct {
	creator  Creator
	inFlight lifecycle.OperationInFlight

	mu  sync.Mutex
	req CreateRequest
}

func NewCreateForm(creator Creator, voice VoiceRef) *CreateForm {
	name := ""
	if n := strings.TrimSpace(voice.Name); n != "" {
		name = n + " Agent"
	}
	return &CreateForm{
		creator: creator,
		req: CreateRequest{
			Name:         name,
			VoiceID:      strings.TrimSpace(voice.ID),
			FirstMessage: DefaultFirstMessage,
			Language:     DefaultLanguage,
			Prompt:       DefaultPrompt,
			LLM:          DefaultLLM,
			TTSModelID:   DefaultTTSModel,
			OutputFormat: DefaultOutputFormat,
		},
	}
}

// Update overwrites the non-empty fields of patch. Voice binding and TTS
// settings are not editable.
func (f *CreateForm) Update(patch CreateRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if patch.Name != "" {
		f.req.Name = patch.Name
	}
	if patch.FirstMessage != "" {
		f.req.FirstMessage = patch.FirstMessage
	}
	if patch.Language != "" {
		f.req.Language = patch.Language
	}
	if patch.Prompt != "" {
		f.req.Prompt = patch.Prompt
	}
	if patch.LLM != "" {
		f.req.LLM = patch.LLM
	}
}

func (f *CreateForm) Request() CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.req
}

func (f *CreateForm) Submitting() bool { return f.inFlight.Busy() }

// Submit validates the form and posts it. Validation failures never reach
// the creator.
func (f *CreateForm) Submit(ctx context.Context) (string, error) {
	req := f.Request()
	if err := validateCreate(req); err != nil {
		return "", err
	}
	if !f.inFlight.TryAcquire() {
		return "", lifecycle.Precondition("create agent", "submission already in flight")
	}
	defer f.inFlight.Release()

	id, err := f.creator.CreateAgent(ctx, req)
	if err != nil {
		return "", lifecycle.Capability("create agent", fmt.Errorf("failed to create agent: %w", err))
	}
	return id, nil
}

func validateCreate(req CreateRequest) error {
	if strings.TrimSpace(req.VoiceID) == "" {
		return lifecycle.Precondition("create agent", "no voice selected")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.FirstMessage) == "" || strings.TrimSpace(req.Prompt) == "" {
		return lifecycle.Precondition("create agent", "name, first message and prompt are required")
	}
	return nil
}
