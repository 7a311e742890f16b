package httpapi

import (
	"net/http"

	"github.com/ent0n29/echo/internal/history"
)

func (s *Server) handleRecentSessions(w http.ResponseWriter, r *http.Request) {
	items, err := s.rt.History.RecentSessions(r.Context(), s.cfg.UserID, limitParam(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if items == nil {
		items = []history.SessionRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

func (s *Server) handleRecentVoiceClones(w http.ResponseWriter, r *http.Request) {
	items, err := s.rt.History.RecentVoiceClones(r.Context(), limitParam(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if items == nil {
		items = []history.VoiceCloneRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"voice_clones": items})
}
