package httpapi

import (
	"net/http"
	"path/filepath"
	"strings"
)

type playRequest struct {
	// URI defaults to the last completed recording.
	URI string `json:"uri"`
}

func (s *Server) handleAudioSnapshot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.rt.Audio.Snapshot())
}

func (s *Server) handleRequestPermission(w http.ResponseWriter, r *http.Request) {
	if _, err := s.rt.Audio.RequestPermission(r.Context()); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Audio.Snapshot())
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Audio.StartRecording(r.Context()); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Audio.Snapshot())
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Audio.StopRecording(r.Context()); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Audio.Snapshot())
}

func (s *Server) handleDiscardRecording(w http.ResponseWriter, _ *http.Request) {
	uri, _ := s.rt.Audio.CompletedRecording()
	if err := s.rt.Audio.DiscardRecording(uri); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Audio.Snapshot())
}

func (s *Server) handlePlayRecording(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	completed, _ := s.rt.Audio.CompletedRecording()
	uri := strings.TrimSpace(req.URI)
	switch {
	case uri == "":
		uri = completed
	case uri != completed && !insideDir(s.cfg.RecordingsDir, uri):
		respondError(w, http.StatusBadRequest, "invalid_request", "uri must name a recording")
		return
	}
	if err := s.rt.Audio.PlayRecording(r.Context(), uri); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Audio.Snapshot())
}

func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Audio.StopPlayback(r.Context()); err != nil {
		s.respondIntentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.rt.Audio.Snapshot())
}

// insideDir reports whether the file uri resolves to a path under dir.
func insideDir(dir, uri string) bool {
	if strings.TrimSpace(dir) == "" {
		return false
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	path, err := filepath.Abs(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
