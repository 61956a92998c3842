package core

import (
	"context"
	"io"
	"time"

	"github.com/sairevanth-zz/signalsloop/internal/models"
)

// DbClient defines all persistence operations the assistant needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ListConversations returns pinned conversations first, each group ordered
	// by last_message_at descending.
	ListConversations(ctx context.Context, projectID string) ([]models.Conversation, error)
	SetConversationPinned(ctx context.Context, id string, pinned bool) error
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage assigns the next position and bumps the conversation's last_message_at.
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SetMessageFeedback(ctx context.Context, id string, feedback models.Feedback) error
	// TransitionIntent moves a message's action_state from one state to another
	// only if it still holds from. A message with no state is pending.
	TransitionIntent(ctx context.Context, messageID string, from, to models.IntentState) (bool, error)

	InsertActionResult(ctx context.Context, res *models.ActionResult) error
	GetActionResult(ctx context.Context, messageID string) (*models.ActionResult, error)
	CreateTicket(ctx context.Context, t *models.Ticket) error

	CreateScheduledQuery(ctx context.Context, q *models.ScheduledQuery) error
	GetScheduledQuery(ctx context.Context, id string) (*models.ScheduledQuery, error)
	ListScheduledQueries(ctx context.Context, projectID string) ([]models.ScheduledQuery, error)
	// UpdateScheduledQuery writes q only if next_run_at still equals
	// expectedNextRun, failing with ErrConcurrentUpdate otherwise.
	UpdateScheduledQuery(ctx context.Context, q *models.ScheduledQuery, expectedNextRun time.Time) error
	DeleteScheduledQuery(ctx context.Context, id string) error
	ListDueScheduledQueries(ctx context.Context, now time.Time) ([]models.ScheduledQuery, error)
	// AdvanceScheduledQuery moves next_run_at from expected to next only if the
	// row still holds expected and is active. It reports whether it won the claim.
	AdvanceScheduledQuery(ctx context.Context, id string, expected, next, ranAt time.Time) (bool, error)
	SetScheduledQueryDelivery(ctx context.Context, id string, deliveryErr string) error

	// InsertSuggestion reports false when an active suggestion with the same
	// key already exists and nothing was stored.
	InsertSuggestion(ctx context.Context, s *models.ProactiveSuggestion) (bool, error)
	GetSuggestion(ctx context.Context, id string) (*models.ProactiveSuggestion, error)
	ListSuggestions(ctx context.Context, projectID string, status models.SuggestionStatus) ([]models.ProactiveSuggestion, error)
	ListSuggestionsSince(ctx context.Context, projectID string, since time.Time) ([]models.ProactiveSuggestion, error)
	// TransitionSuggestion changes status only when the current status is from.
	TransitionSuggestion(ctx context.Context, id string, from, to models.SuggestionStatus) (bool, error)

	Close() error
}

// FeedbackCorpus is the query boundary to the accumulated feedback.
type FeedbackCorpus interface {
	SearchFeedback(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.FeedbackHit, error)
	WindowStats(ctx context.Context, projectID string, start, end time.Time) (*models.WindowStats, error)
	ActiveProjects(ctx context.Context, since time.Time) ([]string, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// Delivery is a message routed to one or more notification channels.
type Delivery struct {
	ProjectID    string
	Method       models.DeliveryMethod
	Subject      string
	Body         string
	EmailTo      string
	SlackChannel string
}

// Notifier delivers results outside a live session.
type Notifier interface {
	Deliver(ctx context.Context, d Delivery) error
}
