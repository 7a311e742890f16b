package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/app"
	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/elevenlabs"
	"github.com/ent0n29/echo/internal/lifecycle"
)

type fakeElevenLabs struct {
	t            *testing.T
	voicesStatus atomic.Int32
	received     chan map[string]any
}

func (f *fakeElevenLabs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v2/voices":
		if code := f.voicesStatus.Load(); code != 0 {
			w.WriteHeader(int(code))
			_, _ = io.WriteString(w, `{"detail":{"message":"bad key"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"voices":[{"voice_id":"v2","name":"Zed","category":"premade"},{"voice_id":"v1","name":"Mine","category":"cloned"}]}`)
	case "/v1/convai/agents":
		_, _ = io.WriteString(w, `{"agents":[{"agent_id":"a1","name":"Support","created_at_unix_secs":1700000000}]}`)
	case "/v1/convai/agents/create":
		_, _ = io.WriteString(w, `{"agent_id":"a_new"}`)
	case "/v1/voices/add":
		_, _ = io.WriteString(w, `{"voice_id":"voice_1"}`)
	case "/v1/convai/conversation":
		f.serveConversation(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeElevenLabs) serveConversation(w http.ResponseWriter, r *http.Request) {
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()
	var init map[string]any
	if err := conn.ReadJSON(&init); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv_http"}}`))
	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		f.received <- frame
	}
}

type testEnv struct {
	url  string
	rt   *app.Runtime
	fake *fakeElevenLabs
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	fake := &fakeElevenLabs{t: t, received: make(chan map[string]any, 16)}
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	cfg := config.Config{
		MetricsNamespace:     "echo_test",
		ElevenLabsAPIKey:     apiKey,
		ElevenLabsAPIBaseURL: upstream.URL,
		ElevenLabsWSBaseURL:  "ws" + strings.TrimPrefix(upstream.URL, "http"),
		UserID:               "u1",
		ConversationEndGrace: 2 * time.Second,
		AudioBackend:         "mock",
		RecordingsDir:        t.TempDir(),
		AudioSampleRate:      16000,
		PlaybackStatusTick:   10 * time.Millisecond,
	}
	rt, err := app.Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	ts := httptest.NewServer(New(rt).Router())
	t.Cleanup(func() {
		ts.Close()
		_ = rt.Close(context.Background())
	})
	return &testEnv{url: ts.URL, rt: rt, fake: fake}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.url+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	raw, _ := io.ReadAll(res.Body)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s decode %q: %v", method, path, raw, err)
		}
	}
	return res.StatusCode, out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthStatusAndMetrics(t *testing.T) {
	env := newTestEnv(t, "sk_test")

	if code, body := env.do(t, http.MethodGet, "/healthz", nil); code != http.StatusOK || body["audio_backend"] != "mock" {
		t.Fatalf("GET /healthz = %d %v", code, body)
	}
	code, body := env.do(t, http.MethodGet, "/v1/status", nil)
	if code != http.StatusOK {
		t.Fatalf("GET /v1/status = %d", code)
	}
	if body["history_store"] != "in-memory" {
		t.Fatalf("history_store = %v", body["history_store"])
	}
	if checks, _ := body["checks"].([]any); len(checks) == 0 {
		t.Fatalf("missing checks: %v", body)
	}

	code, body = env.do(t, http.MethodGet, "/v1/state", nil)
	if code != http.StatusOK || body["starting"] != false || body["agents_loaded"] != float64(0) {
		t.Fatalf("GET /v1/state = %d %v", code, body)
	}

	res, err := http.Get(env.url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(raw), "echo_test_active_conversations") {
		t.Fatalf("GET /metrics = %d, missing runtime gauge", res.StatusCode)
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestConversationPreconditionsMapToConflict(t *testing.T) {
	env := newTestEnv(t, "sk_test")

	code, body := env.do(t, http.MethodPost, "/v1/conversation/start", nil)
	if code != http.StatusConflict || body["code"] != "precondition_failed" {
		t.Fatalf("start without agent = %d %v, want 409", code, body)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/conversation/mute", nil); code != http.StatusConflict {
		t.Fatalf("mute while disconnected = %d, want 409", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/conversation/message", map[string]string{"text": "hi"}); code != http.StatusConflict {
		t.Fatalf("message while disconnected = %d, want 409", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/conversation/feedback", nil); code != http.StatusBadRequest {
		t.Fatalf("feedback without body = %d, want 400", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/conversation/activity", nil); code != http.StatusNoContent {
		t.Fatalf("activity while disconnected = %d, want 204", code)
	}
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t, "sk_test")

	code, body := env.do(t, http.MethodPost, "/v1/conversation/start", map[string]string{"agent_id": "a1", "agent_name": "Support"})
	if code != http.StatusAccepted {
		t.Fatalf("start = %d %v", code, body)
	}
	waitFor(t, "connected", func() bool {
		_, st := env.do(t, http.MethodGet, "/v1/conversation/", nil)
		return st["status"] == "connected" && st["session_id"] == "conv_http"
	})

	if code, _ := env.do(t, http.MethodPost, "/v1/conversation/start", map[string]string{"agent_id": "a1"}); code != http.StatusConflict {
		t.Fatalf("second start = %d, want 409", code)
	}

	if code, _ := env.do(t, http.MethodPost, "/v1/conversation/message", map[string]string{"text": "hello"}); code != http.StatusOK {
		t.Fatalf("message = %d", code)
	}
	select {
	case frame := <-env.fake.received:
		if frame["type"] != "user_message" || frame["text"] != "hello" {
			t.Fatalf("upstream frame = %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("upstream never received the message")
	}

	code, body = env.do(t, http.MethodPost, "/v1/conversation/mute", map[string]bool{"muted": true})
	if code != http.StatusOK || body["is_mic_muted"] != true {
		t.Fatalf("mute = %d %v", code, body)
	}

	code, body = env.do(t, http.MethodPost, "/v1/conversation/end", nil)
	if code != http.StatusOK || body["status"] != "disconnected" {
		t.Fatalf("end = %d %v", code, body)
	}
	if _, ok := body["session_id"]; ok {
		t.Fatalf("session_id present after end: %v", body)
	}

	waitFor(t, "journaled session", func() bool {
		_, h := env.do(t, http.MethodGet, "/v1/history/sessions", nil)
		sessions, _ := h["sessions"].([]any)
		return len(sessions) == 1
	})
}

func TestAudioAndVoiceCloneRoutes(t *testing.T) {
	env := newTestEnv(t, "sk_test")

	if code, _ := env.do(t, http.MethodPost, "/v1/audio/recording/start", nil); code != http.StatusConflict {
		t.Fatalf("record before permission = %d, want 409", code)
	}
	if code, body := env.do(t, http.MethodPost, "/v1/audio/permission", nil); code != http.StatusOK || body["permission"] != "granted" {
		t.Fatalf("permission = %d %v", code, body)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/audio/recording/start", nil); code != http.StatusOK {
		t.Fatalf("record start = %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/audio/playback/start", nil); code != http.StatusConflict {
		t.Fatalf("play while recording = %d, want 409", code)
	}
	code, body := env.do(t, http.MethodPost, "/v1/audio/recording/stop", nil)
	rec, _ := body["recording"].(map[string]any)
	if code != http.StatusOK || rec["uri"] == nil || rec["active"] != false {
		t.Fatalf("record stop = %d %v", code, body)
	}

	for _, uri := range []string{"/etc/passwd", "file:///etc/passwd", env.rt.Config.RecordingsDir + "/../escape.wav"} {
		if code, _ := env.do(t, http.MethodPost, "/v1/audio/playback/start", map[string]string{"uri": uri}); code != http.StatusBadRequest {
			t.Fatalf("play %q = %d, want 400", uri, code)
		}
	}
	if code, body := env.do(t, http.MethodPost, "/v1/audio/playback/start", map[string]any{"uri": rec["uri"]}); code != http.StatusOK {
		t.Fatalf("play completed uri = %d %v", code, body)
	}
	if code, body := env.do(t, http.MethodPost, "/v1/audio/playback/start", nil); code != http.StatusOK {
		t.Fatalf("play = %d %v", code, body)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/audio/playback/stop", nil); code != http.StatusOK {
		t.Fatalf("stop playback = %d", code)
	}

	if code, _ := env.do(t, http.MethodPost, "/v1/voice-clone/submit", nil); code != http.StatusConflict {
		t.Fatalf("submit without name = %d, want 409", code)
	}
	code, body = env.do(t, http.MethodPut, "/v1/voice-clone/", map[string]string{"name": "Mine", "description": "warm"})
	if code != http.StatusOK || body["can_submit"] != true {
		t.Fatalf("update form = %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPost, "/v1/voice-clone/submit", nil)
	if code != http.StatusCreated || body["voice_id"] != "voice_1" {
		t.Fatalf("submit = %d %v", code, body)
	}

	_, body = env.do(t, http.MethodGet, "/v1/history/voice-clones", nil)
	if clones, _ := body["voice_clones"].([]any); len(clones) != 1 {
		t.Fatalf("journaled clones = %v", body)
	}
}

func TestAgentRoutes(t *testing.T) {
	env := newTestEnv(t, "sk_test")

	code, body := env.do(t, http.MethodGet, "/v1/agents/", nil)
	if list, _ := body["agents"].([]any); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list agents = %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPost, "/v1/agents/selection", map[string]string{"id": "a1", "display_name": "Support"})
	if sel, _ := body["selected"].(map[string]any); code != http.StatusOK || sel["id"] != "a1" {
		t.Fatalf("select = %d %v", code, body)
	}

	if code, _ := env.do(t, http.MethodGet, "/v1/agents/form", nil); code != http.StatusNotFound {
		t.Fatalf("form before open = %d, want 404", code)
	}
	code, body = env.do(t, http.MethodPost, "/v1/agents/form", map[string]string{"voice_id": "voice_1", "voice_name": "Mine"})
	req, _ := body["request"].(map[string]any)
	if code != http.StatusCreated || req["name"] != "Mine Agent" || req["llm"] != "gpt-4o-mini" {
		t.Fatalf("open form = %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPatch, "/v1/agents/form", map[string]string{"first_message": "Hey!"})
	req, _ = body["request"].(map[string]any)
	if code != http.StatusOK || req["first_message"] != "Hey!" {
		t.Fatalf("patch form = %d %v", code, body)
	}
	code, body = env.do(t, http.MethodPost, "/v1/agents/form/submit", nil)
	if code != http.StatusCreated || body["agent_id"] != "a_new" {
		t.Fatalf("submit form = %d %v", code, body)
	}
}

func TestVoicesRoute(t *testing.T) {
	env := newTestEnv(t, "sk_test")
	code, body := env.do(t, http.MethodGet, "/v1/voices", nil)
	if code != http.StatusOK {
		t.Fatalf("voices = %d %v", code, body)
	}
	cloned, _ := body["cloned"].([]any)
	voices, _ := body["voices"].([]any)
	if len(cloned) != 1 || len(voices) != 2 {
		t.Fatalf("voices body = %v", body)
	}
	if first, _ := voices[0].(map[string]any); first["name"] != "Mine" {
		t.Fatalf("voices not sorted by name: %v", voices)
	}
}

func TestVoicesUnauthorizedMapsToBadGateway(t *testing.T) {
	env := newTestEnv(t, "sk_bad")
	env.fake.voicesStatus.Store(http.StatusUnauthorized)

	code, body := env.do(t, http.MethodGet, "/v1/voices", nil)
	if code != http.StatusBadGateway || body["code"] != "capability_failed" {
		t.Fatalf("voices = %d %v, want 502", code, body)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "Invalid API key") {
		t.Fatalf("error = %q, want invalid key message", msg)
	}
}

func TestMissingAPIKeyMapsToUnavailable(t *testing.T) {
	env := newTestEnv(t, "")
	for _, path := range []string{"/v1/voices", "/v1/agents/"} {
		code, body := env.do(t, http.MethodGet, path, nil)
		if code != http.StatusServiceUnavailable || body["code"] != "not_configured" {
			t.Fatalf("GET %s = %d %v, want 503", path, code, body)
		}
	}
}

func TestStateStream(t *testing.T) {
	env := newTestEnv(t, "sk_test")
	wsURL := "ws" + strings.TrimPrefix(env.url, "http") + "/v1/state/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	seen := map[string]map[string]any{}
	for len(seen) < 2 {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		typ, _ := msg["type"].(string)
		seen[typ] = msg
	}
	conv, _ := seen["conversation"]["conversation"].(map[string]any)
	if conv["status"] != "disconnected" {
		t.Fatalf("conversation snapshot = %v", seen["conversation"])
	}
	if _, ok := seen["audio"]["audio"].(map[string]any); !ok {
		t.Fatalf("audio snapshot = %v", seen["audio"])
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{lifecycle.Precondition("op", "busy"), http.StatusConflict},
		{lifecycle.Permission("record"), http.StatusForbidden},
		{lifecycle.Capability("op", errors.New("boom")), http.StatusBadGateway},
		{lifecycle.Capability("op", fmt.Errorf("list: %w", elevenlabs.ErrMissingAPIKey)), http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusForError(tt.err); got != tt.want {
			t.Fatalf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestInsideDir(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		uri  string
		want bool
	}{
		{filepath.Join(dir, "a.wav"), true},
		{"file://" + filepath.Join(dir, "sub", "b.wav"), true},
		{filepath.Join(dir, "..", "c.wav"), false},
		{dir, false},
		{"/etc/passwd", false},
	}
	for _, tt := range tests {
		if got := insideDir(dir, tt.uri); got != tt.want {
			t.Fatalf("insideDir(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
	if insideDir("", filepath.Join(dir, "a.wav")) {
		t.Fatalf("insideDir with empty dir = true")
	}
}
