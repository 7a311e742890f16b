package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/echo/internal/agents"
)

type agentsResponse struct {
	Agents   []agents.Agent   `json:"agents"`
	Selected *agents.Identity `json:"selected,omitempty"`
	Default  agents.Identity  `json:"default"`
	Loading  bool             `json:"loading"`
}

type selectAgentRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type openAgentFormRequest struct {
	VoiceID   string `json:"voice_id"`
	VoiceName string `json:"voice_name"`
}

type agentFormResponse struct {
	Request    agents.CreateRequest `json:"request"`
	Submitting bool                 `json:"submitting"`
}

func (s *Server) agentsView(list []agents.Agent) agentsResponse {
	cache := s.rt.Agents
	resp := agentsResponse{Agents: list, Default: cache.Default(), Loading: cache.Loading()}
	if resp.Agents == nil {
		resp.Agents = []agents.Agent{}
	}
	if sel, ok := cache.Selected(); ok {
		resp.Selected = &sel
	}
	return resp
}

// handleListAgents is the directory view: it fetches lazily on first open.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.rt.Agents.Open(r.Context())
	if err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.agentsView(list))
}

func (s *Server) handleRefreshAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.rt.Agents.FetchAll(r.Context())
	if err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.agentsView(list))
}

func (s *Server) handleSelectAgent(w http.ResponseWriter, r *http.Request) {
	var req selectAgentRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.ID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}
	s.rt.Agents.Select(req.ID, req.DisplayName)
	respondJSON(w, http.StatusOK, s.agentsView(s.rt.Agents.Agents()))
}

func (s *Server) handleClearSelection(w http.ResponseWriter, _ *http.Request) {
	s.rt.Agents.ClearSelection()
	respondJSON(w, http.StatusOK, s.agentsView(s.rt.Agents.Agents()))
}

func (s *Server) handleOpenAgentForm(w http.ResponseWriter, r *http.Request) {
	var req openAgentFormRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.VoiceID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "voice_id is required")
		return
	}
	form := s.rt.OpenAgentForm(agents.VoiceRef{ID: req.VoiceID, Name: req.VoiceName})
	respondJSON(w, http.StatusCreated, agentFormResponse{Request: form.Request(), Submitting: form.Submitting()})
}

func (s *Server) handleGetAgentForm(w http.ResponseWriter, _ *http.Request) {
	form, ok := s.rt.AgentForm()
	if !ok {
		respondError(w, http.StatusNotFound, "form_not_open", "no agent form open")
		return
	}
	respondJSON(w, http.StatusOK, agentFormResponse{Request: form.Request(), Submitting: form.Submitting()})
}

func (s *Server) handleUpdateAgentForm(w http.ResponseWriter, r *http.Request) {
	form, ok := s.rt.AgentForm()
	if !ok {
		respondError(w, http.StatusNotFound, "form_not_open", "no agent form open")
		return
	}
	var patch agents.CreateRequest
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	form.Update(patch)
	respondJSON(w, http.StatusOK, agentFormResponse{Request: form.Request(), Submitting: form.Submitting()})
}

func (s *Server) handleSubmitAgentForm(w http.ResponseWriter, r *http.Request) {
	id, err := s.rt.SubmitAgentForm(r.Context())
	if err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"agent_id": id})
}
