package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	middleware "github.com/sairevanth-zz/signalsloop/internal/api/middlewares"
	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/scheduler"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps a service error onto a status code and a readable message.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		invalid     *core.InvalidInputError
		scheduling  *core.SchedulingComputationError
		unsupported *core.UnsupportedActionError
		execution   *core.ActionExecutionError
		routing     *core.RoutingError
		recoverable *core.RecoverableError
		transcribe  *core.TranscriptionError
	)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &scheduling), errors.As(err, &unsupported),
		errors.Is(err, scheduler.ErrQueryTextRequired):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrActionNotPending), errors.Is(err, core.ErrFeedbackAlreadySet),
		errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrRecorderBusy),
		errors.Is(err, core.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.As(err, &execution), errors.As(err, &routing), errors.As(err, &transcribe):
		return http.StatusBadGateway
	case errors.As(err, &recoverable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// authorize writes 403 and returns false unless the caller may act on projectID.
func authorize(w http.ResponseWriter, r *http.Request, projectID string) bool {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "projectId is required")
		return false
	}
	if !p.CanAccess(projectID) {
		writeError(w, http.StatusForbidden, "you do not have access to this project")
		return false
	}
	return true
}
