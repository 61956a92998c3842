package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/sairevanth-zz/signalsloop/internal/api/middlewares"
	"github.com/sairevanth-zz/signalsloop/internal/core"
	db "github.com/sairevanth-zz/signalsloop/internal/core/database"
	"github.com/sairevanth-zz/signalsloop/internal/core/stt"
	"github.com/sairevanth-zz/signalsloop/internal/models"
	"github.com/sairevanth-zz/signalsloop/internal/scheduler"
	"github.com/sairevanth-zz/signalsloop/internal/services"
	"github.com/sairevanth-zz/signalsloop/internal/suggestions"
	"github.com/sairevanth-zz/signalsloop/internal/voice"
)

const testSecret = "handler-secret"

type stubLLM struct {
	verdict string
	fail    bool
}

func (s *stubLLM) ModelName() string { return "stub" }

func (s *stubLLM) Generate(_ context.Context, system, _ string) (string, error) {
	if s.fail {
		return "", errors.New("model overloaded")
	}
	if strings.HasPrefix(system, "You route") {
		if s.verdict != "" {
			return s.verdict, nil
		}
		return `{"query_type":"informational"}`, nil
	}
	return "Users mostly mention billing.", nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, clip core.AudioClip) (*core.Transcription, error) {
	if s.err != nil {
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: s.err}
	}
	return &core.Transcription{Text: s.text, Duration: clip.Duration}, nil
}

type env struct {
	handler     http.Handler
	store       *db.MemoryClient
	llm         *stubLLM
	transcriber *stubTranscriber
	token       string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := db.NewMemoryClient()
	llm := &stubLLM{}
	tr := &stubTranscriber{text: "what changed in billing?"}

	router := services.NewRouter(llm, stubEmbedder{}, store, 5)
	actions := services.NewActionService(store, services.NewIntentTracker(store), 0.8)
	actions.Register(models.ActionCreateTicket, &services.TicketAction{DB: store, BaseURL: "https://app.test", Now: time.Now})

	h := &Handlers{
		Conversations:    NewConversationHandler(services.NewConversationService(store, router)),
		Actions:          NewActionHandler(actions),
		Suggestions:      NewSuggestionHandler(suggestions.NewService(store)),
		ScheduledQueries: NewScheduledQueryHandler(scheduler.NewService(store)),
		Transcribe:       NewTranscribeHandler(tr, 1<<20, 2*time.Minute),
	}
	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.JWTMiddleware(testSecret))
		h.Mount(api)
	})

	token, err := middleware.IssueToken(testSecret, "u1", []string{"p1"}, time.Hour)
	require.NoError(t, err)
	return &env{handler: r, store: store, llm: llm, transcriber: tr, token: token}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *env) start(t *testing.T, question string) startConversationResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/conversations", map[string]string{"projectId": "p1", "questionText": question})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[startConversationResponse](t, rec)
}

func TestConversationFlow(t *testing.T) {
	e := newEnv(t)

	started := e.start(t, "What do users say about billing?")
	require.NotEmpty(t, started.ConversationID)
	require.NotNil(t, started.Message)
	assert.Equal(t, models.RoleAssistant, started.Message.Role)
	assert.Equal(t, "Users mostly mention billing.", started.Message.Content)

	rec := e.do(t, http.MethodPost, "/api/conversations/"+started.ConversationID+"/messages", map[string]string{"text": "And pricing?"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/conversations/"+started.ConversationID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]models.Message](t, rec)
	require.Len(t, msgs, 4)
	assert.Equal(t, "And pricing?", msgs[2].Content)

	rec = e.do(t, http.MethodGet, "/api/conversations?projectId=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Conversation](t, rec), 1)
}

func TestStartConversationRoutingFailure(t *testing.T) {
	e := newEnv(t)
	e.llm.fail = true

	rec := e.do(t, http.MethodPost, "/api/conversations", map[string]string{"projectId": "p1", "questionText": "Why is churn up?"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	out := decode[startConversationResponse](t, rec)
	require.NotEmpty(t, out.ConversationID)
	assert.Contains(t, out.Error, "routing failed")

	rec = e.do(t, http.MethodGet, "/api/conversations/"+out.ConversationID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]models.Message](t, rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Why is churn up?", msgs[0].Content)
	require.NotNil(t, msgs[1].Metadata)
	assert.NotEmpty(t, msgs[1].Metadata.Error)
}

func TestProjectScoping(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/conversations", map[string]string{"projectId": "p2", "questionText": "hello"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/suggestions?projectId=p2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/conversations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e.token = ""
	rec = e.do(t, http.MethodGet, "/api/conversations?projectId=p1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPinAndDeleteConversation(t *testing.T) {
	e := newEnv(t)
	id := e.start(t, "first").ConversationID

	rec := e.do(t, http.MethodPatch, "/api/conversations/"+id, map[string]bool{"is_pinned": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.Conversation](t, rec).IsPinned)

	rec = e.do(t, http.MethodPatch, "/api/conversations/"+id, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/conversations/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageFeedbackOnce(t *testing.T) {
	e := newEnv(t)
	started := e.start(t, "what's new?")
	path := fmt.Sprintf("/api/conversations/%s/messages/%s/feedback", started.ConversationID, started.Message.ID)

	rec := e.do(t, http.MethodPost, path, map[string]string{"feedback": "thumbs"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, path, map[string]string{"feedback": "positive"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodPost, path, map[string]string{"feedback": "negative"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConfirmAndExecuteAction(t *testing.T) {
	e := newEnv(t)
	e.llm.verdict = `{"query_type":"actionable","action_type":"create_ticket","parameters":{"title":"Fix invoice emails"},"confidence":0.6,"confirmation_message":"Create a ticket titled \"Fix invoice emails\"?"}`

	started := e.start(t, "file a ticket to fix invoice emails")
	require.NotNil(t, started.Message.ActionIntent)
	msgID := started.Message.ID

	rec := e.do(t, http.MethodGet, "/api/actions/"+msgID+"/confirmation?projectId=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conf := decode[models.Confirmation](t, rec)
	assert.True(t, conf.LowConfidence)
	assert.NotEmpty(t, conf.Warning)
	assert.True(t, conf.ConfirmEnabled)

	rec = e.do(t, http.MethodPost, "/api/actions/execute", map[string]any{"messageId": msgID, "projectId": "p1", "actionType": "send_digest"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.store.Tickets())

	body := map[string]any{"messageId": msgID, "projectId": "p1"}
	rec = e.do(t, http.MethodPost, "/api/actions/execute", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[models.ActionResult](t, rec)
	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.CreatedResourceURL, "https://app.test/tickets/"))
	assert.Len(t, e.store.Tickets(), 1)

	rec = e.do(t, http.MethodPost, "/api/actions/execute", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, e.store.Tickets(), 1)

	rec = e.do(t, http.MethodGet, "/api/actions/"+msgID+"/confirmation?projectId=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Confirmation](t, rec).ConfirmEnabled)

	rec = e.do(t, http.MethodGet, "/api/actions/"+msgID+"/artifact?projectId=p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "tickets have nothing to download")
}

func TestExecuteUnsupportedAction(t *testing.T) {
	e := newEnv(t)
	e.llm.verdict = `{"query_type":"actionable","action_type":"send_digest","confidence":0.9}`
	started := e.start(t, "send me a digest")

	rec := e.do(t, http.MethodPost, "/api/actions/execute", map[string]any{"messageId": started.Message.ID, "projectId": "p1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported action")
}

func TestCancelAction(t *testing.T) {
	e := newEnv(t)
	e.llm.verdict = `{"query_type":"actionable","action_type":"create_ticket","parameters":{"title":"x"},"confidence":0.95}`
	started := e.start(t, "make a ticket")
	body := map[string]any{"messageId": started.Message.ID, "projectId": "p1"}

	rec := e.do(t, http.MethodPost, "/api/actions/cancel", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/actions/execute", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, e.store.Tickets())
}

func seedSuggestion(t *testing.T, store *db.MemoryClient, id string, p models.Priority) {
	t.Helper()
	stored, err := store.InsertSuggestion(context.Background(), &models.ProactiveSuggestion{
		ID:              id,
		ProjectID:       "p1",
		SuggestionType:  models.SuggestionChurnRisk,
		Priority:        p,
		Title:           "Customers are signalling churn",
		QuerySuggestion: "Which customers are at risk?",
		Subject:         id,
		Status:          models.SuggestionActive,
		CreatedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, stored)
}

func TestSuggestionLifecycle(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/suggestions?projectId=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	seedSuggestion(t, e.store, "s-low", models.PriorityLow)
	seedSuggestion(t, e.store, "s-crit", models.PriorityCritical)

	rec = e.do(t, http.MethodGet, "/api/suggestions?projectId=p1&status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.ProactiveSuggestion](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "s-crit", list[0].ID)

	rec = e.do(t, http.MethodPatch, "/api/suggestions/s-crit", map[string]string{"status": "acted_upon"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		sg, _ := e.store.GetSuggestion(context.Background(), "s-crit")
		return sg != nil && sg.Status == models.SuggestionActedUpon
	}, time.Second, 10*time.Millisecond)

	rec = e.do(t, http.MethodPost, "/api/suggestions/s-crit/dismiss", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	for i := 0; i < 2; i++ {
		rec = e.do(t, http.MethodPost, "/api/suggestions/s-low/dismiss", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.SuggestionDismissed, decode[models.ProactiveSuggestion](t, rec).Status)
	}

	rec = e.do(t, http.MethodPatch, "/api/suggestions/s-low", map[string]string{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/suggestions?projectId=p1&status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduledQueryCRUD(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/scheduled-queries", map[string]any{
		"projectId":       "p1",
		"query_text":      "What are the top complaints this week?",
		"frequency":       "weekly",
		"time_utc":        "09:00",
		"delivery_method": "email",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "weekly without day_of_week")
	assert.Contains(t, rec.Body.String(), "day_of_week")

	rec = e.do(t, http.MethodPost, "/api/scheduled-queries", map[string]any{
		"projectId":       "p1",
		"query_text":      "What are the top complaints this week?",
		"frequency":       "weekly",
		"day_of_week":     1,
		"time_utc":        "09:00",
		"delivery_method": "email",
		"email_to":        "pm@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	q := decode[models.ScheduledQuery](t, rec)
	assert.True(t, q.IsActive)
	assert.Equal(t, time.Monday, q.NextRunAt.Weekday())
	assert.True(t, q.NextRunAt.After(time.Now()))

	rec = e.do(t, http.MethodPatch, "/api/scheduled-queries/"+q.ID, map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.ScheduledQuery](t, rec).IsActive)

	rec = e.do(t, http.MethodGet, "/api/scheduled-queries?projectId=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.ScheduledQuery](t, rec), 1)

	rec = e.do(t, http.MethodDelete, "/api/scheduled-queries/"+q.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/scheduled-queries/"+q.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (e *env) upload(t *testing.T, audio []byte, duration string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "clip.webm")
	require.NoError(t, err)
	_, err = part.Write(audio)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("duration", duration))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestTranscribe(t *testing.T) {
	e := newEnv(t)

	rec := e.upload(t, []byte("audio-bytes"), "4.2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[voice.TranscribeResponse](t, rec)
	assert.True(t, out.Success)
	require.NotNil(t, out.Transcription)
	assert.Equal(t, "what changed in billing?", out.Transcription.Text)
	assert.InDelta(t, 4.2, out.Transcription.Duration, 0.001)

	rec = e.upload(t, nil, "1.5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out = decode[voice.TranscribeResponse](t, rec)
	assert.False(t, out.Success)
	assert.InDelta(t, 1.5, out.Duration, 0.001)

	rec = e.upload(t, []byte("audio-bytes"), "600")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e.transcriber.err = errors.New("speech service unavailable")
	rec = e.upload(t, []byte("audio-bytes"), "3")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	out = decode[voice.TranscribeResponse](t, rec)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "speech service unavailable")
	assert.InDelta(t, 3.0, out.Duration, 0.001)

	e.transcriber.err = stt.ErrNoSpeech
	rec = e.upload(t, []byte("hiss"), "2")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	out = decode[voice.TranscribeResponse](t, rec)
	assert.False(t, out.Success)
	assert.InDelta(t, 2.0, out.Duration, 0.001)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", core.ErrNotFound), http.StatusNotFound},
		{&core.RecoverableError{Op: "pin", Err: core.ErrNotFound}, http.StatusNotFound},
		{&core.RecoverableError{Op: "pin", Err: errors.New("db down")}, http.StatusServiceUnavailable},
		{&core.InvalidInputError{Reason: "bad"}, http.StatusBadRequest},
		{&core.SchedulingComputationError{Field: "time_utc"}, http.StatusBadRequest},
		{scheduler.ErrQueryTextRequired, http.StatusBadRequest},
		{&core.UnsupportedActionError{ActionType: "x"}, http.StatusBadRequest},
		{core.ErrActionNotPending, http.StatusConflict},
		{core.ErrInvalidTransition, http.StatusConflict},
		{fmt.Errorf("update: %w", core.ErrConcurrentUpdate), http.StatusConflict},
		{&core.ActionExecutionError{ActionType: "x", Err: errors.New("boom")}, http.StatusBadGateway},
		{&core.RoutingError{Stage: "answer", Err: errors.New("boom")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
