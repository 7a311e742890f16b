package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/agents"
	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/lifecycle"
)

type fakeElevenLabs struct {
	agentLists atomic.Int32
	creates    atomic.Int32
	voiceAdds  atomic.Int32
}

func (f *fakeElevenLabs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/convai/agents":
		f.agentLists.Add(1)
		_, _ = io.WriteString(w, `{"agents":[{"agent_id":"a1","name":"Support","created_at_unix_secs":1700000000}]}`)
	case "/v1/convai/agents/create":
		f.creates.Add(1)
		_, _ = io.WriteString(w, `{"agent_id":"a_new"}`)
	case "/v1/voices/add":
		f.voiceAdds.Add(1)
		_, _ = io.WriteString(w, `{"voice_id":"voice_1"}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestRuntime(t *testing.T) (*Runtime, *fakeElevenLabs) {
	t.Helper()
	fake := &fakeElevenLabs{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		MetricsNamespace:     "echo_test",
		ElevenLabsAPIKey:     "sk_test",
		ElevenLabsAPIBaseURL: srv.URL,
		ElevenLabsWSBaseURL:  "ws://127.0.0.1:1",
		DefaultAgentID:       "default_agent",
		DefaultAgentName:     "Default",
		UserID:               "u1",
		ConversationEndGrace: time.Second,
		AudioBackend:         "mock",
		RecordingsDir:        t.TempDir(),
		AudioSampleRate:      16000,
		PlaybackStatusTick:   10 * time.Millisecond,
	}
	rt, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt, fake
}

func TestBuildWiresMockAudio(t *testing.T) {
	rt, _ := newTestRuntime(t)
	if rt.AudioInfo.Backend != "mock" || rt.AudioInfo.Streaming {
		t.Fatalf("AudioInfo = %+v, want mock without streaming", rt.AudioInfo)
	}
	agent, ok := rt.Agents.Resolve(nil)
	if !ok || agent.ID != "default_agent" {
		t.Fatalf("Resolve(nil) = %+v, %v; want default agent", agent, ok)
	}
}

func TestRuntimeVoiceCloneFlow(t *testing.T) {
	rt, fake := newTestRuntime(t)
	ctx := context.Background()

	if _, err := rt.Audio.RequestPermission(ctx); err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if err := rt.Audio.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if err := rt.Audio.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording() error = %v", err)
	}
	uri, ok := rt.Audio.CompletedRecording()
	if !ok {
		t.Fatalf("CompletedRecording() ok = false")
	}
	if _, err := os.Stat(uri); err != nil {
		t.Fatalf("recording file missing: %v", err)
	}

	rt.VoiceClone.SetName("Mine")
	res, err := rt.VoiceClone.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.VoiceID != "voice_1" || fake.voiceAdds.Load() != 1 {
		t.Fatalf("Submit() = %+v, uploads = %d", res, fake.voiceAdds.Load())
	}
	if _, ok := rt.Audio.CompletedRecording(); ok {
		t.Fatalf("recording kept after successful clone")
	}

	clones, err := rt.History.RecentVoiceClones(ctx, 5)
	if err != nil {
		t.Fatalf("RecentVoiceClones() error = %v", err)
	}
	if len(clones) != 1 || clones[0].VoiceID != "voice_1" {
		t.Fatalf("journaled clones = %+v", clones)
	}
}

func TestRuntimeAgentFormRefreshesDirectory(t *testing.T) {
	rt, fake := newTestRuntime(t)
	ctx := context.Background()

	if _, err := rt.SubmitAgentForm(ctx); !errors.Is(err, lifecycle.ErrPrecondition) {
		t.Fatalf("SubmitAgentForm() without form error = %v, want precondition", err)
	}

	form := rt.OpenAgentForm(agents.VoiceRef{ID: "voice_1", Name: "Mine"})
	if form.Request().Name != "Mine Agent" {
		t.Fatalf("form name = %q", form.Request().Name)
	}
	id, err := rt.SubmitAgentForm(ctx)
	if err != nil {
		t.Fatalf("SubmitAgentForm() error = %v", err)
	}
	if id != "a_new" || fake.creates.Load() != 1 {
		t.Fatalf("SubmitAgentForm() = %q, creates = %d", id, fake.creates.Load())
	}
	if fake.agentLists.Load() != 1 || len(rt.Agents.Agents()) != 1 {
		t.Fatalf("directory not refreshed after create")
	}
	if _, ok := rt.AgentForm(); ok {
		t.Fatalf("form still open after successful submit")
	}
}

func TestRuntimeCloseIsIdempotent(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := rt.Conversation.Start(ctx, nil); !errors.Is(err, lifecycle.ErrPrecondition) {
		t.Fatalf("Start() after Close error = %v, want precondition", err)
	}
	if !rt.Audio.Snapshot().Closed {
		t.Fatalf("audio manager not torn down")
	}
}
