package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	db "github.com/sairevanth-zz/signalsloop/internal/core/database"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

func newConversationFixture(llm *fakeLLM) (*ConversationService, *db.MemoryClient) {
	mem := seededCorpus()
	svc := NewConversationService(mem, NewRouter(llm, &fakeEmbedder{}, mem, 5))
	return svc, mem
}

func TestStartNewConversation(t *testing.T) {
	svc, mem := newConversationFixture(&fakeLLM{})
	ctx := context.Background()

	id, reply, err := svc.StartNewConversation(ctx, "p1", "  What are users   saying about pricing? ")
	require.NoError(t, err)

	conv, err := svc.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "What are users saying about pricing?", conv.Title)
	assert.Equal(t, "p1", conv.ProjectID)

	msgs, err := mem.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant}, roles(msgs))
	assert.Equal(t, reply.ID, msgs[1].ID)
	assert.NotEmpty(t, msgs[1].Sources)
	assert.Equal(t, 0, msgs[0].Position)
	assert.Equal(t, 1, msgs[1].Position)

	assert.Len(t, svc.Session("p1").Conversations(), 1)
}

func TestStartNewConversation_RoutingFailureKeepsConversation(t *testing.T) {
	llm := &fakeLLM{answer: func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	}}
	svc, mem := newConversationFixture(llm)
	ctx := context.Background()

	id, reply, err := svc.StartNewConversation(ctx, "p1", "why is churn up?")

	var rerr *core.RoutingError
	require.True(t, errors.As(err, &rerr))
	require.NotEmpty(t, id)
	require.NotNil(t, reply)
	assert.NotEmpty(t, reply.Metadata.Error)

	msgs, err := mem.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant}, roles(msgs))
	assert.Equal(t, "why is churn up?", msgs[0].Content)
}

func TestStartNewConversation_EmptyQuestion(t *testing.T) {
	svc, _ := newConversationFixture(&fakeLLM{})
	_, _, err := svc.StartNewConversation(context.Background(), "p1", "   ")
	assert.Error(t, err)
}

func TestSendMessage_RapidSendsStayOrdered(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	llm := &fakeLLM{answer: func(_ context.Context, user string) (string, error) {
		q := lastQuestion(user)
		if q == "first" {
			entered <- struct{}{}
			<-release
		}
		return "re: " + q, nil
	}}
	svc, mem := newConversationFixture(llm)
	ctx := context.Background()

	id, _, err := svc.StartNewConversation(ctx, "p1", "opening")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.SendMessage(ctx, id, "first")
		assert.NoError(t, err)
	}()
	<-entered
	go func() {
		defer wg.Done()
		_, err := svc.SendMessage(ctx, id, "second")
		assert.NoError(t, err)
	}()

	time.Sleep(50 * time.Millisecond)
	msgs, err := mem.ListMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, 3, "second send must wait for the first to finish")

	close(release)
	wg.Wait()

	msgs, err = mem.ListMessages(ctx, id)
	require.NoError(t, err)
	var contents []string
	for _, m := range msgs[2:] {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "re: first", "second", "re: second"}, contents)
}

func TestSendMessage_IncludesHistory(t *testing.T) {
	var seen string
	llm := &fakeLLM{answer: func(_ context.Context, user string) (string, error) {
		seen = user
		return "ok", nil
	}}
	svc, _ := newConversationFixture(llm)
	ctx := context.Background()

	id, _, err := svc.StartNewConversation(ctx, "p1", "how is onboarding?")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, id, "and for enterprise?")
	require.NoError(t, err)

	assert.Contains(t, seen, "user: how is onboarding?")
	assert.True(t, strings.HasSuffix(seen, "Question: and for enterprise?"))
}

func TestSendMessage_CancelledLeavesQuestionForResume(t *testing.T) {
	entered := make(chan struct{}, 1)
	block := true
	var mu sync.Mutex
	llm := &fakeLLM{answer: func(ctx context.Context, user string) (string, error) {
		mu.Lock()
		b := block
		mu.Unlock()
		if b {
			entered <- struct{}{}
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "late answer", nil
	}}
	svc, mem := newConversationFixture(llm)

	mu.Lock()
	block = false
	mu.Unlock()
	id, _, err := svc.StartNewConversation(context.Background(), "p1", "opening")
	require.NoError(t, err)
	mu.Lock()
	block = true
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(ctx, id, "navigated away")
		errc <- err
	}()
	<-entered
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	msgs, err := mem.ListMessages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleUser, msgs[2].Role)

	mu.Lock()
	block = false
	mu.Unlock()
	reply, err := svc.Resume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "late answer", reply.Content)

	msgs, err = mem.ListMessages(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, msgs[len(msgs)-1].Role)

	again, err := svc.Resume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, again.ID)
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	svc, _ := newConversationFixture(&fakeLLM{})
	_, err := svc.SendMessage(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSendMessage_DeletedWhileAnsweringLeavesSession(t *testing.T) {
	var svc *ConversationService
	var convID string
	llm := &fakeLLM{answer: func(ctx context.Context, user string) (string, error) {
		if strings.Contains(user, "second") {
			require.NoError(t, svc.Session("p1").Delete(ctx, convID))
		}
		return "ok", nil
	}}
	svc, _ = newConversationFixture(llm)
	ctx := context.Background()

	id, _, err := svc.StartNewConversation(ctx, "p1", "first question")
	require.NoError(t, err)
	convID = id
	require.Len(t, svc.Session("p1").Conversations(), 1)

	_, err = svc.SendMessage(ctx, id, "second question")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, svc.Session("p1").Conversations())
}

func TestSetMessageFeedback_OnlyOnce(t *testing.T) {
	svc, _ := newConversationFixture(&fakeLLM{})
	ctx := context.Background()

	_, reply, err := svc.StartNewConversation(ctx, "p1", "question")
	require.NoError(t, err)

	require.NoError(t, svc.SetMessageFeedback(ctx, reply.ID, models.FeedbackPositive))
	assert.ErrorIs(t, svc.SetMessageFeedback(ctx, reply.ID, models.FeedbackNegative), core.ErrFeedbackAlreadySet)
	assert.Error(t, svc.SetMessageFeedback(ctx, reply.ID, "meh"))
}

func TestRecordExchange(t *testing.T) {
	svc, mem := newConversationFixture(&fakeLLM{})
	ctx := context.Background()

	id, err := svc.RecordExchange(ctx, "p1", "weekly churn summary", &Reply{
		Content:   "Churn is flat.",
		QueryType: models.QueryInformational,
		Metadata:  &models.MessageMetadata{Scheduled: true},
	})
	require.NoError(t, err)

	msgs, err := mem.ListMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Churn is flat.", msgs[1].Content)
	assert.True(t, msgs[1].Metadata.Scheduled)
}

func TestProjectSession_OrderAndPin(t *testing.T) {
	mem := db.NewMemoryClient()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, mem.CreateConversation(ctx, &models.Conversation{ID: id, ProjectID: "p1", LastMessageAt: at, CreatedAt: at}))
	}
	svc := NewConversationService(mem, nil)
	ps := svc.Session("p1")

	convs, err := ps.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, ids(convs))

	require.NoError(t, ps.Pin(ctx, "old", true))
	assert.Equal(t, []string{"old", "new", "mid"}, ids(ps.Conversations()))

	stored, err := mem.ListConversations(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new", "mid"}, ids(stored))
}

func TestProjectSession_PinRollsBack(t *testing.T) {
	mem := db.NewMemoryClient()
	flaky := &flakyDB{MemoryClient: mem, failPin: true}
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, mem.CreateConversation(ctx, &models.Conversation{ID: "a", ProjectID: "p1", LastMessageAt: now, CreatedAt: now}))
	require.NoError(t, mem.CreateConversation(ctx, &models.Conversation{ID: "b", ProjectID: "p1", LastMessageAt: now.Add(-time.Hour), CreatedAt: now}))

	ps := NewConversationService(flaky, nil).Session("p1")
	_, err := ps.Load(ctx)
	require.NoError(t, err)

	err = ps.Pin(ctx, "b", true)

	var rec *core.RecoverableError
	require.True(t, errors.As(err, &rec))
	assert.Equal(t, "pin", rec.Op)
	assert.NotEmpty(t, rec.Reason)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, []string{"a", "b"}, ids(ps.Conversations()))
	assert.False(t, ps.Conversations()[1].IsPinned)
}

func TestProjectSession_DeleteRollsBack(t *testing.T) {
	mem := db.NewMemoryClient()
	flaky := &flakyDB{MemoryClient: mem, failDelete: true}
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, mem.CreateConversation(ctx, &models.Conversation{ID: "a", ProjectID: "p1", LastMessageAt: now, CreatedAt: now}))

	ps := NewConversationService(flaky, nil).Session("p1")
	_, err := ps.Load(ctx)
	require.NoError(t, err)

	err = ps.Delete(ctx, "a")

	var rec *core.RecoverableError
	require.True(t, errors.As(err, &rec))
	assert.Equal(t, []string{"a"}, ids(ps.Conversations()))

	flaky.failDelete = false
	require.NoError(t, ps.Delete(ctx, "a"))
	assert.Empty(t, ps.Conversations())
}

func TestProjectSession_DeleteMissingIsRecoverableNotFound(t *testing.T) {
	ps := NewConversationService(db.NewMemoryClient(), nil).Session("p1")
	err := ps.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func ids(convs []models.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}
