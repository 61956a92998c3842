package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/services"
)

type ActionHandler struct {
	actions *services.ActionService
}

func NewActionHandler(actions *services.ActionService) *ActionHandler {
	return &ActionHandler{actions: actions}
}

// Execute is the explicit confirmation of a pending intent.
func (h *ActionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req services.ExecuteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "messageId is required")
		return
	}
	if !authorize(w, r, req.ProjectID) {
		return
	}

	res, err := h.actions.Execute(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cancelActionRequest struct {
	MessageID string `json:"messageId"`
	ProjectID string `json:"projectId"`
}

func (h *ActionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorize(w, r, req.ProjectID) {
		return
	}
	if err := h.actions.Cancel(r.Context(), req.ProjectID, req.MessageID); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Confirmation returns what the confirm dialog should render, including the
// low-confidence warning and whether the confirm control is enabled.
func (h *ActionHandler) Confirmation(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if !authorize(w, r, projectID) {
		return
	}
	c, err := h.actions.Confirmation(r.Context(), projectID, chi.URLParam(r, "messageId"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Artifact downloads what an executed action produced, e.g. a generated report.
func (h *ActionHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if !authorize(w, r, projectID) {
		return
	}
	data, contentType, err := h.actions.Artifact(r.Context(), projectID, chi.URLParam(r, "messageId"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Warn().Err(err).Msg("write artifact")
	}
}
