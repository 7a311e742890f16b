package httpapi

import "net/http"

type updateVoiceCloneRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) handleVoiceCloneState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.rt.VoiceClone.State())
}

func (s *Server) handleUpdateVoiceClone(w http.ResponseWriter, r *http.Request) {
	var req updateVoiceCloneRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Name != nil {
		s.rt.VoiceClone.SetName(*req.Name)
	}
	if req.Description != nil {
		s.rt.VoiceClone.SetDescription(*req.Description)
	}
	respondJSON(w, http.StatusOK, s.rt.VoiceClone.State())
}

func (s *Server) handleSubmitVoiceClone(w http.ResponseWriter, r *http.Request) {
	res, err := s.rt.VoiceClone.Submit(r.Context())
	if err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
