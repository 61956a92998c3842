package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	db "github.com/sairevanth-zz/signalsloop/internal/core/database"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

type fakeLLM struct {
	classify func(ctx context.Context, user string) (string, error)
	answer   func(ctx context.Context, user string) (string, error)
	other    func(ctx context.Context, system, user string) (string, error)
}

func (f *fakeLLM) ModelName() string { return "fake-model" }

func (f *fakeLLM) Generate(ctx context.Context, system, user string) (string, error) {
	switch {
	case strings.HasPrefix(system, "You route"):
		if f.classify != nil {
			return f.classify(ctx, user)
		}
		return `{"query_type":"informational"}`, nil
	case strings.HasPrefix(system, "You are SignalsLoop"):
		if f.answer != nil {
			return f.answer(ctx, user)
		}
		return "Answer to " + lastQuestion(user), nil
	default:
		if f.other != nil {
			return f.other(ctx, system, user)
		}
		return "generated text", nil
	}
}

func lastQuestion(prompt string) string {
	i := strings.LastIndex(prompt, "Question: ")
	if i < 0 {
		return prompt
	}
	return prompt[i+len("Question: "):]
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []core.Delivery
	err  error
}

func (f *fakeNotifier) Deliver(_ context.Context, d core.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, d)
	return f.err
}

// flakyDB fails pin and delete calls on demand.
type flakyDB struct {
	*db.MemoryClient
	failPin    bool
	failDelete bool
}

var errStoreDown = errors.New("store unavailable")

func (f *flakyDB) SetConversationPinned(ctx context.Context, id string, pinned bool) error {
	if f.failPin {
		return errStoreDown
	}
	return f.MemoryClient.SetConversationPinned(ctx, id, pinned)
}

func (f *flakyDB) DeleteConversation(ctx context.Context, id string) error {
	if f.failDelete {
		return errStoreDown
	}
	return f.MemoryClient.DeleteConversation(ctx, id)
}

func roles(msgs []models.Message) []models.Role {
	out := make([]models.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}
