package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/models"
	"github.com/sairevanth-zz/signalsloop/internal/suggestions"
)

const actedUponTimeout = 10 * time.Second

type SuggestionHandler struct {
	suggestions *suggestions.Service
}

func NewSuggestionHandler(svc *suggestions.Service) *SuggestionHandler {
	return &SuggestionHandler{suggestions: svc}
}

func (h *SuggestionHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if !authorize(w, r, projectID) {
		return
	}
	list, err := h.suggestions.List(r.Context(), projectID, models.SuggestionStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *SuggestionHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	sg, ok := h.load(w, r)
	if !ok {
		return
	}
	out, err := h.suggestions.Dismiss(r.Context(), sg.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type patchSuggestionRequest struct {
	Status models.SuggestionStatus `json:"status"`
}

// Patch accepts {status: "acted_upon"} or {status: "dismissed"}. acted_upon
// is recorded in the background so the client can navigate immediately.
func (h *SuggestionHandler) Patch(w http.ResponseWriter, r *http.Request) {
	sg, ok := h.load(w, r)
	if !ok {
		return
	}
	var req patchSuggestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	switch req.Status {
	case models.SuggestionActedUpon:
		if sg.Status == models.SuggestionDismissed {
			writeError(w, http.StatusConflict, "suggestion was dismissed")
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), actedUponTimeout)
		go func() {
			defer cancel()
			if _, err := h.suggestions.MarkActedUpon(ctx, sg.ID); err != nil {
				log.Warn().Err(err).Str("suggestion_id", sg.ID).Msg("could not record acted_upon")
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"id": sg.ID, "status": string(models.SuggestionActedUpon)})
	case models.SuggestionDismissed:
		out, err := h.suggestions.Dismiss(r.Context(), sg.ID)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeError(w, http.StatusBadRequest, "status must be acted_upon or dismissed")
	}
}

func (h *SuggestionHandler) load(w http.ResponseWriter, r *http.Request) (*models.ProactiveSuggestion, bool) {
	sg, err := h.suggestions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return nil, false
	}
	if !authorize(w, r, sg.ProjectID) {
		return nil, false
	}
	return sg, true
}
