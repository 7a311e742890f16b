package httpapi

import (
	"errors"
	"net/http"

	"github.com/ent0n29/echo/internal/elevenlabs"
	"github.com/ent0n29/echo/internal/lifecycle"
)

// statusForError maps the controller error taxonomy onto HTTP.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, elevenlabs.ErrMissingAPIKey):
		return http.StatusServiceUnavailable, "not_configured"
	case errors.Is(err, lifecycle.ErrPrecondition):
		return http.StatusConflict, "precondition_failed"
	case errors.Is(err, lifecycle.ErrPermission):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, lifecycle.ErrCapability):
		return http.StatusBadGateway, "capability_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) respondIntentError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	resp := errorResponse{Error: lifecycle.Message(err), Code: code}
	var ce *lifecycle.CapabilityError
	if errors.As(err, &ce) {
		resp.Retryable = ce.Retryable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn().Err(err).Str("code", code).Msg("intent failed")
	}
	respondJSON(w, status, resp)
}
