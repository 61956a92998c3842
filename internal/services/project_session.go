package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

// ProjectSession caches one project's conversation list. Pin and delete are
// applied to the cache first, confirmed against the store, and rolled back
// with a RecoverableError when the store refuses.
type ProjectSession struct {
	projectID string
	db        core.DbClient

	mu    sync.Mutex
	convs []models.Conversation
}

func newProjectSession(projectID string, db core.DbClient) *ProjectSession {
	return &ProjectSession{projectID: projectID, db: db}
}

func (p *ProjectSession) ProjectID() string { return p.projectID }

// Load reconciles the cache with the store and returns the ordered list.
func (p *ProjectSession) Load(ctx context.Context) ([]models.Conversation, error) {
	convs, err := p.db.ListConversations(ctx, p.projectID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	p.mu.Lock()
	p.convs = append([]models.Conversation(nil), convs...)
	models.SortConversations(p.convs)
	out := append([]models.Conversation(nil), p.convs...)
	p.mu.Unlock()
	return out, nil
}

// Conversations returns the cached list, pinned first.
func (p *ProjectSession) Conversations() []models.Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Conversation(nil), p.convs...)
}

func (p *ProjectSession) Pin(ctx context.Context, id string, pinned bool) error {
	prev, cached := p.applyPin(id, pinned)

	if err := p.db.SetConversationPinned(ctx, id, pinned); err != nil {
		if cached {
			p.applyPin(id, prev)
		}
		log.Warn().Err(err).Str("conversation_id", id).Bool("pinned", pinned).Msg("pin rolled back")
		return &core.RecoverableError{Op: "pin", Reason: reason(err), Err: err}
	}
	return nil
}

func (p *ProjectSession) Delete(ctx context.Context, id string) error {
	removed, cached := p.applyDelete(id)

	if err := p.db.DeleteConversation(ctx, id); err != nil {
		if cached {
			p.track(removed)
		}
		log.Warn().Err(err).Str("conversation_id", id).Msg("delete rolled back")
		return &core.RecoverableError{Op: "delete", Reason: reason(err), Err: err}
	}
	return nil
}

func (p *ProjectSession) applyPin(id string, pinned bool) (prev bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.convs {
		if p.convs[i].ID == id {
			prev = p.convs[i].IsPinned
			p.convs[i].IsPinned = pinned
			models.SortConversations(p.convs)
			return prev, true
		}
	}
	return false, false
}

func (p *ProjectSession) applyDelete(id string) (models.Conversation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.convs {
		if c.ID == id {
			p.convs = append(p.convs[:i:i], p.convs[i+1:]...)
			return c, true
		}
	}
	return models.Conversation{}, false
}

// track inserts or replaces conv in the cache.
func (p *ProjectSession) track(conv models.Conversation) {
	if conv.ProjectID != p.projectID {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.convs {
		if p.convs[i].ID == conv.ID {
			p.convs[i] = conv
			models.SortConversations(p.convs)
			return
		}
	}
	p.convs = append(p.convs, conv)
	models.SortConversations(p.convs)
}

func reason(err error) string {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return "conversation no longer exists"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request was cancelled"
	default:
		return "the change could not be saved"
	}
}
