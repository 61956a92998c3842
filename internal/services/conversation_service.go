package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

const titleRunes = 80

// QuestionRouter is the part of Router the conversation flow depends on.
type QuestionRouter interface {
	Route(ctx context.Context, projectID, question string, history []models.Message) (*Reply, error)
}

// ConversationService owns conversation and message state. Sends to the same
// conversation are applied in arrival order.
type ConversationService struct {
	db     core.DbClient
	router QuestionRouter
	locks  *keyedLock
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*ProjectSession
}

func NewConversationService(db core.DbClient, router QuestionRouter) *ConversationService {
	return &ConversationService{
		db:       db,
		router:   router,
		locks:    newKeyedLock(),
		now:      time.Now,
		sessions: map[string]*ProjectSession{},
	}
}

// Session returns the project's session, creating it on first use.
func (s *ConversationService) Session(projectID string) *ProjectSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.sessions[projectID]
	if !ok {
		ps = newProjectSession(projectID, s.db)
		s.sessions[projectID] = ps
	}
	return ps
}

// StartNewConversation creates the conversation, stores the question and
// routes it. On a routing failure the conversation id is still returned along
// with the error, and an assistant error message stands in for the answer.
func (s *ConversationService) StartNewConversation(ctx context.Context, projectID, question string) (string, *models.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, &core.InvalidInputError{Reason: "question text is required"}
	}

	now := s.now().UTC()
	conv := &models.Conversation{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Title:         deriveTitle(question),
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return "", nil, fmt.Errorf("create conversation: %w", err)
	}
	log.Info().Str("conversation_id", conv.ID).Str("project_id", projectID).Msg("conversation started")

	reply, err := s.send(ctx, conv, question)
	s.remember(ctx, conv)
	return conv.ID, reply, err
}

// SendMessage appends the question and the assistant's reply. If ctx is
// cancelled while the answer is being produced, the question stays stored
// without a reply and Resume can answer it later.
func (s *ConversationService) SendMessage(ctx context.Context, conversationID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &core.InvalidInputError{Reason: "message text is required"}
	}
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	reply, err := s.send(ctx, conv, text)
	s.remember(ctx, conv)
	return reply, err
}

// Resume answers a trailing user question that never got a reply. When the
// conversation already ends with an assistant message it is returned as is.
func (s *ConversationService) Resume(ctx context.Context, conversationID string) (*models.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	msgs, err := s.db.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("conversation %s has no messages: %w", conv.ID, core.ErrNotFound)
	}
	last := msgs[len(msgs)-1]
	if last.Role == models.RoleAssistant {
		return &last, nil
	}
	reply, err := s.reply(ctx, conv, last.Content, msgs[:len(msgs)-1])
	s.remember(ctx, conv)
	return reply, err
}

// RecordExchange stores a question and a precomputed answer as a new conversation.
func (s *ConversationService) RecordExchange(ctx context.Context, projectID, question string, reply *Reply) (string, error) {
	now := s.now().UTC()
	conv := &models.Conversation{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Title:         deriveTitle(question),
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	q := &models.Message{ID: uuid.NewString(), ConversationID: conv.ID, Role: models.RoleUser, Content: question, CreatedAt: now}
	if err := s.db.AppendMessage(ctx, q); err != nil {
		return "", err
	}
	a := assistantMessage(conv.ID, reply, s.now().UTC())
	if err := s.db.AppendMessage(ctx, a); err != nil {
		return "", err
	}
	s.remember(ctx, conv)
	return conv.ID, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.db.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}
	return conv, nil
}

func (s *ConversationService) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.db.ListMessages(ctx, conversationID)
}

// SetMessageFeedback rates an assistant message. A rating can be set once.
func (s *ConversationService) SetMessageFeedback(ctx context.Context, messageID string, fb models.Feedback) error {
	if !fb.Valid() {
		return &core.InvalidInputError{Reason: fmt.Sprintf("feedback must be %q or %q", models.FeedbackPositive, models.FeedbackNegative)}
	}
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("message %s: %w", messageID, core.ErrNotFound)
	}
	if msg.Feedback != "" {
		return core.ErrFeedbackAlreadySet
	}
	return s.db.SetMessageFeedback(ctx, messageID, fb)
}

// send serializes on the conversation, stores the user message, then replies.
func (s *ConversationService) send(ctx context.Context, conv *models.Conversation, text string) (*models.Message, error) {
	unlock, err := s.locks.Lock(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	history, err := s.db.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        text,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.db.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return s.reply(ctx, conv, text, history)
}

func (s *ConversationService) reply(ctx context.Context, conv *models.Conversation, question string, history []models.Message) (*models.Message, error) {
	reply, err := s.router.Route(ctx, conv.ProjectID, question, history)
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Str("conversation_id", conv.ID).Msg("answer cancelled, question left for resume")
			return nil, ctx.Err()
		}
		var rerr *core.RoutingError
		if !errors.As(err, &rerr) {
			err = &core.RoutingError{Stage: "route", Err: err}
		}
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("routing failed")

		failed := &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           models.RoleAssistant,
			Content:        "Sorry, I couldn't answer that right now. Please try again.",
			Metadata:       &models.MessageMetadata{Error: err.Error()},
			CreatedAt:      s.now().UTC(),
		}
		if aerr := s.db.AppendMessage(context.WithoutCancel(ctx), failed); aerr != nil {
			return nil, errors.Join(err, aerr)
		}
		return failed, err
	}

	msg := assistantMessage(conv.ID, reply, s.now().UTC())
	if err := s.db.AppendMessage(context.WithoutCancel(ctx), msg); err != nil {
		return nil, fmt.Errorf("append reply: %w", err)
	}
	return msg, nil
}

// remember caches the stored copy of conv so its session sees the bumped
// last_message_at. A conversation deleted mid-answer leaves the cache.
func (s *ConversationService) remember(ctx context.Context, conv *models.Conversation) {
	fresh, err := s.db.GetConversation(context.WithoutCancel(ctx), conv.ID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("session not refreshed")
		return
	}
	if fresh == nil {
		s.Session(conv.ProjectID).applyDelete(conv.ID)
		return
	}
	s.Session(conv.ProjectID).track(*fresh)
}

func assistantMessage(conversationID string, r *Reply, at time.Time) *models.Message {
	return &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        r.Content,
		Sources:        r.Sources,
		Metadata:       r.Metadata,
		QueryType:      r.QueryType,
		ActionIntent:   r.Intent,
		CreatedAt:      at,
	}
}

func deriveTitle(question string) string {
	return truncateRunes(strings.Join(strings.Fields(question), " "), titleRunes)
}
