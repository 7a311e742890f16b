package httpapi

import (
	"fmt"
	"net/http"
	"strings"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	AudioBackend string        `json:"audio_backend"`
	HistoryStore string        `json:"history_store"`
	Checks       []statusCheck `json:"checks"`
}

// handleStatus reports what the client needs before a first conversation.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	historyStore := "in-memory"
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		historyStore = "postgres"
	}

	checks := make([]statusCheck, 0, 5)
	if s.rt.ElevenLabs.Configured() {
		checks = append(checks, statusCheck{
			ID:     "elevenlabs_key",
			Status: "ok",
			Label:  "ElevenLabs API key",
			Detail: "present",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "elevenlabs_key",
			Status: "error",
			Label:  "ElevenLabs API key",
			Detail: "ELEVENLABS_API_KEY is not set",
			Fix:    "Set ELEVENLABS_API_KEY in the environment or a .env file.",
		})
	}

	agent, ok := s.rt.Agents.Resolve(nil)
	switch {
	case ok:
		checks = append(checks, statusCheck{
			ID:     "agent",
			Status: "ok",
			Label:  "Conversation agent",
			Detail: agentLabel(agent.ID, agent.DisplayName),
		})
	default:
		checks = append(checks, statusCheck{
			ID:     "agent",
			Status: "warn",
			Label:  "Conversation agent",
			Detail: "no agent selected and no default configured",
			Fix:    "Select an agent or set ELEVENLABS_AGENT_ID.",
		})
	}

	audioCheck := statusCheck{ID: "audio_backend", Status: "ok", Label: "Audio backend", Detail: s.rt.AudioInfo.Detail}
	if s.rt.AudioInfo.Backend == "mock" {
		audioCheck.Status = "warn"
		audioCheck.Fix = "Set AUDIO_BACKEND=device on a host with a microphone and speaker."
	}
	checks = append(checks, audioCheck)

	if !s.rt.AudioInfo.Streaming {
		checks = append(checks, statusCheck{
			ID:     "conversation_audio",
			Status: "warn",
			Label:  "Conversation audio",
			Detail: "text only",
		})
	}

	historyCheck := statusCheck{ID: "history_store", Status: "ok", Label: "Session history", Detail: historyStore}
	if historyStore == "in-memory" {
		historyCheck.Status = "warn"
		historyCheck.Detail = "in-memory only"
		historyCheck.Fix = "Set DATABASE_URL to keep history across restarts."
	}
	checks = append(checks, historyCheck)

	respondJSON(w, http.StatusOK, statusResponse{
		AudioBackend: s.rt.AudioInfo.Backend,
		HistoryStore: historyStore,
		Checks:       checks,
	})
}

func agentLabel(id, name string) string {
	if strings.TrimSpace(name) == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
