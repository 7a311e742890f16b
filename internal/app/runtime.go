package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/agents"
	"github.com/ent0n29/echo/internal/audio"
	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/conversation"
	"github.com/ent0n29/echo/internal/elevenlabs"
	"github.com/ent0n29/echo/internal/history"
	"github.com/ent0n29/echo/internal/lifecycle"
	"github.com/ent0n29/echo/internal/observability"
	"github.com/ent0n29/echo/internal/voiceclone"
)

var errNoAgentForm = lifecycle.Precondition("create agent", "no agent form open")

type AudioInfo struct {
	Backend string `json:"backend"`
	Detail  string `json:"detail"`
	// Streaming reports whether conversations carry microphone audio.
	Streaming bool `json:"streaming"`
}

// Runtime is the process context: every controller and the capabilities
// they were built with. It is created once by Build and released by Close.
type Runtime struct {
	Config       config.Config
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
	ElevenLabs   *elevenlabs.Client
	Agents       *agents.Cache
	Conversation *conversation.Controller
	Audio        *audio.Manager
	VoiceClone   *voiceclone.Form
	History      history.Store
	AudioInfo    AudioInfo

	journalDone chan struct{}
	cleanup     func() error

	formMu    sync.Mutex
	agentForm *agents.CreateForm

	closeOnce sync.Once
	closeErr  error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Runtime, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetricsWith(cfg.MetricsNamespace, reg, reg)

	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	if cfg.RecordingsDir != "" {
		if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("create recordings dir: %w", err)
		}
	}
	audioSetup, err := resolveAudioBackend(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client := elevenlabs.NewClient(elevenlabs.Config{
		APIKey:     cfg.ElevenLabsAPIKey,
		APIBaseURL: cfg.ElevenLabsAPIBaseURL,
		WSBaseURL:  cfg.ElevenLabsWSBaseURL,
	})
	if !client.Configured() {
		logger.Warn().Msg("ELEVENLABS_API_KEY is not set; remote operations will fail")
	}

	cache := agents.NewCache(client, agents.Identity{ID: cfg.DefaultAgentID, DisplayName: cfg.DefaultAgentName}, metrics, logger)

	controller := conversation.NewController(conversation.Options{
		Capability: client.Conversations(elevenlabs.ConversationOptions{Audio: audioSetup.stream, Logger: logger}),
		Agents:     cache,
		UserID:     cfg.UserID,
		EndGrace:   cfg.ConversationEndGrace,
		Metrics:    metrics,
		Logger:     logger,
	})

	manager := audio.NewManager(audio.Options{
		Recorder: audioSetup.backend,
		Player:   audioSetup.backend,
		Modes:    audioSetup.backend,
		Metrics:  metrics,
		Logger:   logger,
	})

	journal := history.NewJournal(store, cfg.UserID, logger)
	form := voiceclone.NewForm(voiceclone.Options{
		Submitter:  client,
		Recordings: manager,
		OnCreated:  journal.VoiceCreated,
		Metrics:    metrics,
		Logger:     logger,
	})

	rt := &Runtime{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		ElevenLabs:   client,
		Agents:       cache,
		Conversation: controller,
		Audio:        manager,
		VoiceClone:   form,
		History:      store,
		AudioInfo: AudioInfo{
			Backend:   audioSetup.kind,
			Detail:    audioSetup.detail,
			Streaming: audioSetup.stream != nil,
		},
		journalDone: make(chan struct{}),
		cleanup:     audioSetup.cleanup,
	}

	states, _ := controller.Subscribe()
	go func() {
		defer close(rt.journalDone)
		// Ends when the controller closes its subscribers.
		journal.Run(context.Background(), states)
	}()

	logger.Info().
		Str("audio", audioSetup.detail).
		Bool("history_postgres", cfg.DatabaseURL != "").
		Str("default_agent", cfg.DefaultAgentID).
		Msg("runtime ready")
	return rt, nil
}

// OpenAgentForm starts a new agent creation form for voice, replacing any
// previous one.
func (r *Runtime) OpenAgentForm(voice agents.VoiceRef) *agents.CreateForm {
	form := agents.NewCreateForm(r.ElevenLabs, voice)
	r.formMu.Lock()
	r.agentForm = form
	r.formMu.Unlock()
	return form
}

func (r *Runtime) AgentForm() (*agents.CreateForm, bool) {
	r.formMu.Lock()
	defer r.formMu.Unlock()
	return r.agentForm, r.agentForm != nil
}

// SubmitAgentForm submits the open form and refreshes the agent directory so
// the new agent is selectable.
func (r *Runtime) SubmitAgentForm(ctx context.Context) (string, error) {
	form, ok := r.AgentForm()
	if !ok {
		return "", errNoAgentForm
	}
	id, err := form.Submit(ctx)
	if err != nil {
		return "", err
	}
	r.formMu.Lock()
	if r.agentForm == form {
		r.agentForm = nil
	}
	r.formMu.Unlock()
	if _, err := r.Agents.FetchAll(ctx); err != nil {
		r.Logger.Warn().Err(err).Msg("agent refresh after create failed")
	}
	return id, nil
}

// Close ends the live session, releases audio resources and closes the
// history store. It is safe to call more than once.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		var errs []error
		if err := r.Conversation.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		select {
		case <-r.journalDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for history journal: %w", ctx.Err()))
		}
		if err := r.Audio.Teardown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := r.History.Close(); err != nil {
			errs = append(errs, err)
		}
		if r.cleanup != nil {
			if err := r.cleanup(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
