package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/echo/internal/agents"
)

type startConversationRequest struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

type muteRequest struct {
	// Muted absent toggles the current state.
	Muted *bool `json:"muted"`
}

type textRequest struct {
	// Text absent sends the current input buffer.
	Text *string `json:"text"`
}

type feedbackRequest struct {
	Positive *bool `json:"positive"`
}

func (s *Server) handleConversationState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.rt.Conversation.State())
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	var provided *agents.Identity
	if id := strings.TrimSpace(req.AgentID); id != "" {
		provided = &agents.Identity{ID: id, DisplayName: strings.TrimSpace(req.AgentName)}
	}
	if err := s.rt.Conversation.Start(r.Context(), provided); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.rt.Conversation.State())
}

func (s *Server) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Conversation.End(r.Context()); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Conversation.State())
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	var err error
	if req.Muted == nil {
		err = s.rt.Conversation.ToggleMicMuted()
	} else {
		err = s.rt.Conversation.SetMicMuted(*req.Muted)
	}
	if err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Conversation.State())
}

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil || req.Text == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if err := s.rt.Conversation.SetInput(r.Context(), *req.Text); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Conversation.State())
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	s.handleSend(w, r, true)
}

func (s *Server) handleSendContext(w http.ResponseWriter, r *http.Request) {
	s.handleSend(w, r, false)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, asMessage bool) {
	var req textRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	c := s.rt.Conversation
	var err error
	switch {
	case req.Text == nil && asMessage:
		err = c.SubmitMessage(r.Context())
	case req.Text == nil:
		err = c.SubmitContext(r.Context())
	case asMessage:
		err = c.SendMessage(r.Context(), *req.Text)
	default:
		err = c.SendContext(r.Context(), *req.Text)
	}
	if err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.State())
}

func (s *Server) handleUserActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Conversation.OnUserActivity(r.Context()); err != nil {
		s.respondIntentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil || req.Positive == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "positive is required")
		return
	}
	if err := s.rt.Conversation.SendFeedback(r.Context(), *req.Positive); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Conversation.State())
}
