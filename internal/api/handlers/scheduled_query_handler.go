package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/models"
	"github.com/sairevanth-zz/signalsloop/internal/scheduler"
)

type ScheduledQueryHandler struct {
	queries *scheduler.Service
}

func NewScheduledQueryHandler(queries *scheduler.Service) *ScheduledQueryHandler {
	return &ScheduledQueryHandler{queries: queries}
}

func (h *ScheduledQueryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in scheduler.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if !authorize(w, r, in.ProjectID) {
		return
	}
	q, err := h.queries.Create(r.Context(), in)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	log.Info().Str("scheduled_query_id", q.ID).Str("project_id", q.ProjectID).Time("next_run_at", q.NextRunAt).Msg("scheduled query created")
	writeJSON(w, http.StatusCreated, q)
}

func (h *ScheduledQueryHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if !authorize(w, r, projectID) {
		return
	}
	list, err := h.queries.List(r.Context(), projectID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []models.ScheduledQuery{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ScheduledQueryHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *ScheduledQueryHandler) Update(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r)
	if !ok {
		return
	}
	var in scheduler.UpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.queries.Update(r.Context(), q.ID, in)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ScheduledQueryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.queries.Delete(r.Context(), q.ID); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduledQueryHandler) load(w http.ResponseWriter, r *http.Request) (*models.ScheduledQuery, bool) {
	q, err := h.queries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return nil, false
	}
	if !authorize(w, r, q.ProjectID) {
		return nil, false
	}
	return q, true
}
