package models

import (
	"sort"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// QueryType is the router's classification of a question.
type QueryType string

const (
	QueryInformational QueryType = "informational"
	QueryActionable    QueryType = "actionable"
)

// Feedback is the user's rating of an assistant message.
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// Valid reports whether f is one of the accepted ratings.
func (f Feedback) Valid() bool {
	return f == FeedbackPositive || f == FeedbackNegative
}

// Conversation is a threaded sequence of messages scoped to one project.
type Conversation struct {
	ID            string    `db:"id" json:"id"`
	ProjectID     string    `db:"project_id" json:"project_id"`
	Title         string    `db:"title" json:"title"`
	IsPinned      bool      `db:"is_pinned" json:"is_pinned"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Message is one question or answer inside a conversation.
type Message struct {
	ID             string           `db:"id" json:"id"`
	ConversationID string           `db:"conversation_id" json:"conversation_id"`
	Role           Role             `db:"role" json:"role"`
	Content        string           `db:"content" json:"content"`
	Position       int              `db:"position" json:"position"`
	Sources        []MessageSource  `db:"sources" json:"sources,omitempty"`
	Metadata       *MessageMetadata `db:"metadata" json:"metadata,omitempty"`
	QueryType      QueryType        `db:"query_type" json:"query_type,omitempty"`
	ActionIntent   *ActionIntent    `db:"action_intent" json:"action_intent,omitempty"`
	ActionState    IntentState      `db:"action_state" json:"action_state,omitempty"`
	Feedback       Feedback         `db:"feedback" json:"feedback,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// MessageMetadata records how an assistant message was produced.
type MessageMetadata struct {
	Model     string    `json:"model,omitempty"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
	QueryType QueryType `json:"query_type,omitempty"`
	Error     string    `json:"error,omitempty"`
	Scheduled bool      `json:"scheduled,omitempty"`
}

// MessageSource cites a feedback item or document used for an answer.
type MessageSource struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Similarity *float64 `json:"similarity,omitempty"`
	Title      string   `json:"title,omitempty"`
	Preview    string   `json:"preview,omitempty"`
}

// ActionIntent is a proposed mutating operation awaiting confirmation.
type ActionIntent struct {
	RequiresAction      bool              `json:"requires_action"`
	ActionType          ActionType        `json:"action_type"`
	Parameters          map[string]string `json:"parameters,omitempty"`
	Confidence          float64           `json:"confidence"`
	ConfirmationMessage string            `json:"confirmation_message,omitempty"`
}

// IntentState is where an action intent sits in its confirmation lifecycle.
// A stored message with an intent and no state is pending.
type IntentState string

const (
	IntentPending   IntentState = "pending_confirmation"
	IntentConfirmed IntentState = "confirmed"
	IntentExecuting IntentState = "executing"
	IntentExecuted  IntentState = "executed"
	IntentFailed    IntentState = "failed"
	IntentCancelled IntentState = "cancelled"
)

// ActionResult is the durable outcome of a confirmed intent.
type ActionResult struct {
	ID                 string     `db:"id" json:"id"`
	MessageID          string     `db:"message_id" json:"message_id"`
	ProjectID          string     `db:"project_id" json:"project_id"`
	ActionType         ActionType `db:"action_type" json:"action_type"`
	Success            bool       `db:"success" json:"success"`
	CreatedResourceURL string     `db:"created_resource_url" json:"created_resource_url,omitempty"`
	Data               string     `db:"data" json:"data,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// Ticket is the resource created by the create_ticket action.
type Ticket struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"project_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Priority    string    `db:"priority" json:"priority"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Frequency of a scheduled query.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// DeliveryMethod selects the channel(s) a scheduled answer goes to.
type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "email"
	DeliverySlack DeliveryMethod = "slack"
	DeliveryBoth  DeliveryMethod = "both"
)

// Valid reports whether m is a known delivery method.
func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryEmail, DeliverySlack, DeliveryBoth:
		return true
	}
	return false
}

// ScheduledQuery is a recurring question with a delivery channel.
type ScheduledQuery struct {
	ID                string         `db:"id" json:"id"`
	ProjectID         string         `db:"project_id" json:"project_id"`
	QueryText         string         `db:"query_text" json:"query_text"`
	Frequency         Frequency      `db:"frequency" json:"frequency"`
	DayOfWeek         *int           `db:"day_of_week" json:"day_of_week,omitempty"`
	DayOfMonth        *int           `db:"day_of_month" json:"day_of_month,omitempty"`
	TimeUTC           string         `db:"time_utc" json:"time_utc"`
	DeliveryMethod    DeliveryMethod `db:"delivery_method" json:"delivery_method"`
	EmailTo           string         `db:"email_to" json:"email_to,omitempty"`
	SlackChannel      string         `db:"slack_channel" json:"slack_channel,omitempty"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	NextRunAt         time.Time      `db:"next_run_at" json:"next_run_at"`
	LastRunAt         *time.Time     `db:"last_run_at" json:"last_run_at,omitempty"`
	LastDeliveryError string         `db:"last_delivery_error" json:"last_delivery_error,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// SuggestionStatus is the one-way lifecycle of a suggestion.
type SuggestionStatus string

const (
	SuggestionActive    SuggestionStatus = "active"
	SuggestionDismissed SuggestionStatus = "dismissed"
	SuggestionActedUpon SuggestionStatus = "acted_upon"
)

// ProactiveSuggestion is a system-generated insight with a ready-to-run question.
type ProactiveSuggestion struct {
	ID              string           `db:"id" json:"id"`
	ProjectID       string           `db:"project_id" json:"project_id"`
	SuggestionType  SuggestionType   `db:"suggestion_type" json:"suggestion_type"`
	Priority        Priority         `db:"priority" json:"priority"`
	Title           string           `db:"title" json:"title"`
	Description     string           `db:"description" json:"description"`
	QuerySuggestion string           `db:"query_suggestion" json:"query_suggestion"`
	ContextData     map[string]any   `db:"context_data" json:"context_data,omitempty"`
	Subject         string           `db:"subject" json:"-"`
	Status          SuggestionStatus `db:"status" json:"status"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// DedupeKey groups suggestions that describe the same underlying signal.
func (s *ProactiveSuggestion) DedupeKey() string {
	return s.SuggestionType.String() + ":" + s.Subject
}

// SortConversations orders pinned conversations first, each group most
// recently active first.
func SortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
