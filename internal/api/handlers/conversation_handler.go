package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
	"github.com/sairevanth-zz/signalsloop/internal/services"
)

type ConversationHandler struct {
	conversations *services.ConversationService
}

func NewConversationHandler(conversations *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

type startConversationRequest struct {
	ProjectID    string `json:"projectId"`
	QuestionText string `json:"questionText"`
}

type startConversationResponse struct {
	ConversationID string          `json:"conversationId"`
	Message        *models.Message `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Start creates a conversation from the first question. When routing fails
// the conversation still exists and its id is returned with the error.
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorize(w, r, req.ProjectID) {
		return
	}

	id, msg, err := h.conversations.StartNewConversation(r.Context(), req.ProjectID, req.QuestionText)
	if err != nil {
		var rerr *core.RoutingError
		if id != "" && errors.As(err, &rerr) {
			writeJSON(w, http.StatusBadGateway, startConversationResponse{ConversationID: id, Message: msg, Error: err.Error()})
			return
		}
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startConversationResponse{ConversationID: id, Message: msg})
}

// List returns the project's conversations, pinned first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if !authorize(w, r, projectID) {
		return
	}
	convs, err := h.conversations.Session(projectID).Load(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	msgs, err := h.conversations.ListMessages(r.Context(), conv.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// Send appends a question and returns the assistant's reply. On a routing
// failure the stored error message is returned with 502.
func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.conversations.SendMessage(r.Context(), conv.ID, req.Text)
	if err != nil {
		var rerr *core.RoutingError
		if msg != nil && errors.As(err, &rerr) {
			writeJSON(w, http.StatusBadGateway, msg)
			return
		}
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Resume answers a question left unanswered by a cancelled request.
func (h *ConversationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	msg, err := h.conversations.Resume(r.Context(), conv.ID)
	if err != nil {
		var rerr *core.RoutingError
		if msg != nil && errors.As(err, &rerr) {
			writeJSON(w, http.StatusBadGateway, msg)
			return
		}
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type patchConversationRequest struct {
	IsPinned *bool `json:"is_pinned"`
}

func (h *ConversationHandler) Patch(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	var req patchConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsPinned == nil {
		writeError(w, http.StatusBadRequest, "is_pinned is required")
		return
	}

	if err := h.conversations.Session(conv.ProjectID).Pin(r.Context(), conv.ID, *req.IsPinned); err != nil {
		writeErr(w, r, err)
		return
	}
	log.Info().Str("conversation_id", conv.ID).Bool("pinned", *req.IsPinned).Msg("conversation pin changed")
	conv.IsPinned = *req.IsPinned
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.conversations.Session(conv.ProjectID).Delete(r.Context(), conv.ID); err != nil {
		writeErr(w, r, err)
		return
	}
	log.Info().Str("conversation_id", conv.ID).Msg("conversation deleted")
	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequest struct {
	Feedback models.Feedback `json:"feedback"`
}

func (h *ConversationHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msgID := chi.URLParam(r, "messageId")
	msgs, err := h.conversations.ListMessages(r.Context(), conv.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	found := false
	for _, m := range msgs {
		if m.ID == msgID {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	if err := h.conversations.SetMessageFeedback(r.Context(), msgID, req.Feedback); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// load fetches the {id} conversation and checks the caller's project access.
func (h *ConversationHandler) load(w http.ResponseWriter, r *http.Request) (*models.Conversation, bool) {
	conv, err := h.conversations.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return nil, false
	}
	if !authorize(w, r, conv.ProjectID) {
		return nil, false
	}
	return conv, true
}
