package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/echo/internal/agents"
	"github.com/ent0n29/echo/internal/elevenlabs"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "voices", "agents"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("log-level") == nil {
		t.Fatalf("missing --log-level flag")
	}
}

func TestWriteVoicesSortsAndFilters(t *testing.T) {
	voices := []elevenlabs.Voice{
		{VoiceID: "v2", Name: "zed", Category: "premade"},
		{VoiceID: "v1", Name: "Amy", Category: "cloned"},
	}
	var buf bytes.Buffer
	if err := writeVoices(&buf, voices, false); err != nil {
		t.Fatalf("writeVoices() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "v1") {
		t.Fatalf("output = %q", buf.String())
	}

	buf.Reset()
	if err := writeVoices(&buf, voices, true); err != nil {
		t.Fatalf("writeVoices() error = %v", err)
	}
	if strings.Contains(buf.String(), "zed") {
		t.Fatalf("cloned filter kept premade voice: %q", buf.String())
	}
}

func TestWriteAgentsSkipsArchived(t *testing.T) {
	called := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	list := []agents.Agent{
		{ID: "a1", DisplayName: "Support", CreatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), LastCallTime: &called},
		{ID: "a2", DisplayName: "Old", Archived: true},
	}
	var buf bytes.Buffer
	if err := writeAgents(&buf, list); err != nil {
		t.Fatalf("writeAgents() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "2025-03-01 10:30") || strings.Contains(out, "a2") {
		t.Fatalf("output = %q", out)
	}
}

func TestVoicesCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "sk_cli" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"voices":[{"voice_id":"v1","name":"Amy","category":"cloned"}]}`)
	}))
	defer srv.Close()
	t.Setenv("ELEVENLABS_API_KEY", "sk_cli")
	t.Setenv("ELEVENLABS_API_BASE_URL", srv.URL)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"voices"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "Amy") {
		t.Fatalf("output = %q", out.String())
	}
}
