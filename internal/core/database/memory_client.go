package db

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

// FeedbackItem is a corpus row held by MemoryClient.
type FeedbackItem struct {
	ID             string
	ProjectID      string
	Type           string
	Title          string
	Content        string
	Sentiment      float64
	Themes         []string
	FeatureRequest bool
	ChurnSignal    bool
	Competitors    []string
	Embedding      []float32
	CreatedAt      time.Time
}

// MemoryClient is an in-process implementation of DbClient and FeedbackCorpus.
// It backs tests and local runs without Postgres.
type MemoryClient struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
	results       map[string]models.ActionResult
	tickets       map[string]models.Ticket
	scheduled     map[string]models.ScheduledQuery
	suggestions   map[string]models.ProactiveSuggestion
	feedback      []FeedbackItem
}

var (
	_ core.DbClient       = (*MemoryClient)(nil)
	_ core.FeedbackCorpus = (*MemoryClient)(nil)
)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		conversations: map[string]models.Conversation{},
		messages:      map[string][]models.Message{},
		results:       map[string]models.ActionResult{},
		tickets:       map[string]models.Ticket{},
		scheduled:     map[string]models.ScheduledQuery{},
		suggestions:   map[string]models.ProactiveSuggestion{},
	}
}

func (c *MemoryClient) Close() error { return nil }

func (c *MemoryClient) CreateConversation(_ context.Context, conv *models.Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conversations[conv.ID]; ok {
		return fmt.Errorf("conversation %s already exists", conv.ID)
	}
	c.conversations[conv.ID] = *conv
	return nil
}

func (c *MemoryClient) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (c *MemoryClient) ListConversations(_ context.Context, projectID string) ([]models.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Conversation
	for _, conv := range c.conversations {
		if conv.ProjectID == projectID {
			out = append(out, conv)
		}
	}
	models.SortConversations(out)
	return out, nil
}

func (c *MemoryClient) SetConversationPinned(_ context.Context, id string, pinned bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}
	conv.IsPinned = pinned
	c.conversations[id] = conv
	return nil
}

func (c *MemoryClient) DeleteConversation(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conversations[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}
	for _, m := range c.messages[id] {
		delete(c.results, m.ID)
	}
	delete(c.conversations, id)
	delete(c.messages, id)
	return nil
}

func (c *MemoryClient) AppendMessage(_ context.Context, msg *models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[msg.ConversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, core.ErrNotFound)
	}
	msg.Position = len(c.messages[msg.ConversationID])
	c.messages[msg.ConversationID] = append(c.messages[msg.ConversationID], *msg)
	conv.LastMessageAt = msg.CreatedAt
	c.conversations[conv.ID] = conv
	return nil
}

func (c *MemoryClient) GetMessage(_ context.Context, id string) (*models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.findMessage(id); m != nil {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (c *MemoryClient) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages[conversationID]...), nil
}

func (c *MemoryClient) SetMessageFeedback(_ context.Context, id string, feedback models.Feedback) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findMessage(id)
	if m == nil {
		return fmt.Errorf("message %s: %w", id, core.ErrNotFound)
	}
	if m.Feedback != "" {
		return core.ErrFeedbackAlreadySet
	}
	m.Feedback = feedback
	return nil
}

func (c *MemoryClient) TransitionIntent(_ context.Context, messageID string, from, to models.IntentState) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findMessage(messageID)
	if m == nil || m.ActionIntent == nil {
		return false, nil
	}
	cur := m.ActionState
	if cur == "" {
		cur = models.IntentPending
	}
	if cur != from {
		return false, nil
	}
	m.ActionState = to
	return true, nil
}

func (c *MemoryClient) findMessage(id string) *models.Message {
	for convID := range c.messages {
		msgs := c.messages[convID]
		for i := range msgs {
			if msgs[i].ID == id {
				return &msgs[i]
			}
		}
	}
	return nil
}

func (c *MemoryClient) InsertActionResult(_ context.Context, res *models.ActionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.results[res.MessageID]; ok {
		return fmt.Errorf("action result for message %s already exists", res.MessageID)
	}
	c.results[res.MessageID] = *res
	return nil
}

func (c *MemoryClient) GetActionResult(_ context.Context, messageID string) (*models.ActionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[messageID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *MemoryClient) CreateTicket(_ context.Context, t *models.Ticket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets[t.ID] = *t
	return nil
}

// Tickets returns every ticket created so far.
func (c *MemoryClient) Tickets() []models.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Ticket, 0, len(c.tickets))
	for _, t := range c.tickets {
		out = append(out, t)
	}
	return out
}

func (c *MemoryClient) CreateScheduledQuery(_ context.Context, q *models.ScheduledQuery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduled[q.ID] = *q
	return nil
}

func (c *MemoryClient) GetScheduledQuery(_ context.Context, id string) (*models.ScheduledQuery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.scheduled[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (c *MemoryClient) ListScheduledQueries(_ context.Context, projectID string) ([]models.ScheduledQuery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.ScheduledQuery
	for _, q := range c.scheduled {
		if q.ProjectID == projectID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *MemoryClient) UpdateScheduledQuery(_ context.Context, q *models.ScheduledQuery, expectedNextRun time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.scheduled[q.ID]
	if !ok {
		return fmt.Errorf("scheduled query %s: %w", q.ID, core.ErrNotFound)
	}
	if !old.NextRunAt.Equal(expectedNextRun) {
		return fmt.Errorf("scheduled query %s: %w", q.ID, core.ErrConcurrentUpdate)
	}
	upd := *q
	upd.LastRunAt = old.LastRunAt
	upd.LastDeliveryError = old.LastDeliveryError
	c.scheduled[q.ID] = upd
	return nil
}

func (c *MemoryClient) DeleteScheduledQuery(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scheduled[id]; !ok {
		return fmt.Errorf("scheduled query %s: %w", id, core.ErrNotFound)
	}
	delete(c.scheduled, id)
	return nil
}

func (c *MemoryClient) ListDueScheduledQueries(_ context.Context, now time.Time) ([]models.ScheduledQuery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.ScheduledQuery
	for _, q := range c.scheduled {
		if q.IsActive && !q.NextRunAt.After(now) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(out[j].NextRunAt) })
	return out, nil
}

func (c *MemoryClient) AdvanceScheduledQuery(_ context.Context, id string, expected, next, ranAt time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.scheduled[id]
	if !ok || !q.IsActive || !q.NextRunAt.Equal(expected) {
		return false, nil
	}
	q.NextRunAt = next
	q.LastRunAt = &ranAt
	q.UpdatedAt = ranAt
	c.scheduled[id] = q
	return true, nil
}

func (c *MemoryClient) SetScheduledQueryDelivery(_ context.Context, id string, deliveryErr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.scheduled[id]
	if !ok {
		return fmt.Errorf("scheduled query %s: %w", id, core.ErrNotFound)
	}
	q.LastDeliveryError = deliveryErr
	c.scheduled[id] = q
	return nil
}

func (c *MemoryClient) InsertSuggestion(_ context.Context, s *models.ProactiveSuggestion) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Status == models.SuggestionActive {
		for _, cur := range c.suggestions {
			if cur.Status == models.SuggestionActive && cur.ProjectID == s.ProjectID &&
				cur.SuggestionType == s.SuggestionType && cur.Subject == s.Subject {
				return false, nil
			}
		}
	}
	c.suggestions[s.ID] = *s
	return true, nil
}

func (c *MemoryClient) GetSuggestion(_ context.Context, id string) (*models.ProactiveSuggestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.suggestions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *MemoryClient) ListSuggestions(_ context.Context, projectID string, status models.SuggestionStatus) ([]models.ProactiveSuggestion, error) {
	return c.filterSuggestions(func(s models.ProactiveSuggestion) bool {
		return s.ProjectID == projectID && (status == "" || s.Status == status)
	}), nil
}

func (c *MemoryClient) ListSuggestionsSince(_ context.Context, projectID string, since time.Time) ([]models.ProactiveSuggestion, error) {
	return c.filterSuggestions(func(s models.ProactiveSuggestion) bool {
		return s.ProjectID == projectID && !s.CreatedAt.Before(since)
	}), nil
}

func (c *MemoryClient) filterSuggestions(keep func(models.ProactiveSuggestion) bool) []models.ProactiveSuggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.ProactiveSuggestion
	for _, s := range c.suggestions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (c *MemoryClient) TransitionSuggestion(_ context.Context, id string, from, to models.SuggestionStatus) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.suggestions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	c.suggestions[id] = s
	return true, nil
}

// AddFeedback seeds the corpus.
func (c *MemoryClient) AddFeedback(items ...FeedbackItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback = append(c.feedback, items...)
}

func (c *MemoryClient) SearchFeedback(_ context.Context, projectID string, queryVec []float32, limit int) ([]models.FeedbackHit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hits []models.FeedbackHit
	for _, f := range c.feedback {
		if f.ProjectID != projectID || len(f.Embedding) == 0 {
			continue
		}
		hits = append(hits, models.FeedbackHit{
			ID:         f.ID,
			Type:       f.Type,
			Title:      f.Title,
			Content:    f.Content,
			Similarity: cosine(queryVec, f.Embedding),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (c *MemoryClient) WindowStats(_ context.Context, projectID string, start, end time.Time) (*models.WindowStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws := &models.WindowStats{Start: start, End: end, CompetitorMentions: map[string]int{}}
	type themeAcc struct {
		count   int
		sentSum float64
		ask     bool
	}
	themes := map[string]*themeAcc{}
	var sentSum float64
	for _, f := range c.feedback {
		if f.ProjectID != projectID || f.CreatedAt.Before(start) || !f.CreatedAt.Before(end) {
			continue
		}
		ws.Total++
		sentSum += f.Sentiment
		if f.ChurnSignal {
			ws.ChurnMentions++
		}
		for _, comp := range f.Competitors {
			ws.CompetitorMentions[comp]++
		}
		for _, t := range f.Themes {
			acc, ok := themes[t]
			if !ok {
				acc = &themeAcc{}
				themes[t] = acc
			}
			acc.count++
			acc.sentSum += f.Sentiment
			acc.ask = acc.ask || f.FeatureRequest
		}
	}
	if ws.Total > 0 {
		ws.AvgSentiment = sentSum / float64(ws.Total)
	}
	for name, acc := range themes {
		ws.Themes = append(ws.Themes, models.ThemeStat{
			Theme:        name,
			Count:        acc.count,
			AvgSentiment: acc.sentSum / float64(acc.count),
			FeatureAsk:   acc.ask,
		})
	}
	sort.Slice(ws.Themes, func(i, j int) bool {
		if ws.Themes[i].Count != ws.Themes[j].Count {
			return ws.Themes[i].Count > ws.Themes[j].Count
		}
		return ws.Themes[i].Theme < ws.Themes[j].Theme
	})
	return ws, nil
}

func (c *MemoryClient) ActiveProjects(_ context.Context, since time.Time) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, f := range c.feedback {
		if !f.CreatedAt.Before(since) && !seen[f.ProjectID] {
			seen[f.ProjectID] = true
			out = append(out, f.ProjectID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
