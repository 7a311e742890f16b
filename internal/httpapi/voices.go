package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ent0n29/echo/internal/elevenlabs"
	"github.com/ent0n29/echo/internal/lifecycle"
)

type listVoicesResponse struct {
	// Cloned lists the account's own voices first; they are the usual
	// targets for a new agent.
	Cloned []elevenlabs.Voice `json:"cloned"`
	Voices []elevenlabs.Voice `json:"voices"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.rt.ElevenLabs.ListVoices(r.Context())
	if err != nil {
		s.respondIntentError(w, lifecycle.Capability("list voices", err))
		return
	}
	sort.SliceStable(voices, func(i, j int) bool {
		return strings.ToLower(voices[i].Name) < strings.ToLower(voices[j].Name)
	})
	resp := listVoicesResponse{Cloned: []elevenlabs.Voice{}, Voices: voices}
	for _, v := range voices {
		if v.Category == "cloned" {
			resp.Cloned = append(resp.Cloned, v)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
