package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/echo/internal/agents"
	"github.com/ent0n29/echo/internal/audio"
	"github.com/ent0n29/echo/internal/conversation"
	"github.com/ent0n29/echo/internal/voiceclone"
)

const (
	audioPollInterval = 250 * time.Millisecond
	streamWriteWait   = 10 * time.Second
)

type stateResponse struct {
	Conversation  conversation.State `json:"conversation"`
	Starting      bool               `json:"starting"`
	Ending        bool               `json:"ending"`
	Audio         audio.Snapshot     `json:"audio"`
	VoiceClone    voiceclone.State   `json:"voice_clone"`
	Agent         *agents.Identity   `json:"agent,omitempty"`
	AgentsLoaded  int                `json:"agents_loaded"`
	AgentsLoading bool               `json:"agents_loading"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := stateResponse{
		Conversation:  s.rt.Conversation.State(),
		Starting:      s.rt.Conversation.Starting(),
		Ending:        s.rt.Conversation.Ending(),
		Audio:         s.rt.Audio.Snapshot(),
		VoiceClone:    s.rt.VoiceClone.State(),
		AgentsLoaded:  len(s.rt.Agents.Agents()),
		AgentsLoading: s.rt.Agents.Loading(),
	}
	if agent, ok := s.rt.Agents.Resolve(nil); ok {
		resp.Agent = &agent
	}
	respondJSON(w, http.StatusOK, resp)
}

type streamMessage struct {
	Type         string              `json:"type"`
	Conversation *conversation.State `json:"conversation,omitempty"`
	Audio        *audio.Snapshot     `json:"audio,omitempty"`
}

// handleStateWS pushes a conversation snapshot after every controller state
// change and an audio snapshot whenever it differs from the last one sent.
// Client frames are ignored.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	states, unsubscribe := s.rt.Conversation.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(4096)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg streamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			s.metrics.StreamMessages.WithLabelValues("write_error").Inc()
			return false
		}
		s.metrics.StreamMessages.WithLabelValues("sent").Inc()
		return true
	}

	ticker := time.NewTicker(audioPollInterval)
	defer ticker.Stop()

	lastAudio := s.rt.Audio.Snapshot()
	if !write(streamMessage{Type: "audio", Audio: &lastAudio}) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			if !write(streamMessage{Type: "conversation", Conversation: &st}) {
				return
			}
		case <-ticker.C:
			snap := s.rt.Audio.Snapshot()
			if snap == lastAudio {
				continue
			}
			lastAudio = snap
			if !write(streamMessage{Type: "audio", Audio: &snap}) {
				return
			}
		}
	}
}
