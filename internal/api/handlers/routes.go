package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Handlers groups every API handler so the server and tests mount one table.
type Handlers struct {
	Conversations    *ConversationHandler
	Actions          *ActionHandler
	Suggestions      *SuggestionHandler
	ScheduledQueries *ScheduledQueryHandler
	Transcribe       *TranscribeHandler
}

// Mount registers the authenticated API routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/conversations", func(c chi.Router) {
		c.Get("/", h.Conversations.List)
		c.Post("/", h.Conversations.Start)
		c.Route("/{id}", func(one chi.Router) {
			one.Get("/", h.Conversations.Get)
			one.Patch("/", h.Conversations.Patch)
			one.Delete("/", h.Conversations.Delete)
			one.Get("/messages", h.Conversations.Messages)
			one.Post("/messages", h.Conversations.Send)
			one.Post("/resume", h.Conversations.Resume)
			one.Post("/messages/{messageId}/feedback", h.Conversations.Feedback)
		})
	})

	r.Post("/actions/execute", h.Actions.Execute)
	r.Post("/actions/cancel", h.Actions.Cancel)
	r.Get("/actions/{messageId}/confirmation", h.Actions.Confirmation)
	r.Get("/actions/{messageId}/artifact", h.Actions.Artifact)

	r.Get("/suggestions", h.Suggestions.List)
	r.Post("/suggestions/{id}/dismiss", h.Suggestions.Dismiss)
	r.Patch("/suggestions/{id}", h.Suggestions.Patch)

	r.Route("/scheduled-queries", func(s chi.Router) {
		s.Get("/", h.ScheduledQueries.List)
		s.Post("/", h.ScheduledQueries.Create)
		s.Get("/{id}", h.ScheduledQueries.Get)
		s.Patch("/{id}", h.ScheduledQueries.Update)
		s.Delete("/{id}", h.ScheduledQueries.Delete)
	})

	if h.Transcribe != nil {
		r.Post("/transcribe", h.Transcribe.Transcribe)
	}
}
