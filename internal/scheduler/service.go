package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

var ErrQueryTextRequired = errors.New("query_text is required")

type CreateInput struct {
	ProjectID      string                `json:"projectId"`
	QueryText      string                `json:"query_text"`
	Frequency      models.Frequency      `json:"frequency"`
	DayOfWeek      *int                  `json:"day_of_week,omitempty"`
	DayOfMonth     *int                  `json:"day_of_month,omitempty"`
	TimeUTC        string                `json:"time_utc"`
	DeliveryMethod models.DeliveryMethod `json:"delivery_method"`
	EmailTo        string                `json:"email_to,omitempty"`
	SlackChannel   string                `json:"slack_channel,omitempty"`
}

// UpdateInput carries only the fields being changed.
type UpdateInput struct {
	QueryText      *string                `json:"query_text,omitempty"`
	Frequency      *models.Frequency      `json:"frequency,omitempty"`
	DayOfWeek      *int                   `json:"day_of_week,omitempty"`
	DayOfMonth     *int                   `json:"day_of_month,omitempty"`
	TimeUTC        *string                `json:"time_utc,omitempty"`
	DeliveryMethod *models.DeliveryMethod `json:"delivery_method,omitempty"`
	EmailTo        *string                `json:"email_to,omitempty"`
	SlackChannel   *string                `json:"slack_channel,omitempty"`
	IsActive       *bool                  `json:"is_active,omitempty"`
}

// Service is the CRUD surface for scheduled queries.
type Service struct {
	db  core.DbClient
	now func() time.Time
}

func NewService(db core.DbClient) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.ScheduledQuery, error) {
	in.QueryText = strings.TrimSpace(in.QueryText)
	if in.QueryText == "" {
		return nil, ErrQueryTextRequired
	}
	if !in.DeliveryMethod.Valid() {
		return nil, &core.SchedulingComputationError{Field: "delivery_method", Reason: fmt.Sprintf("must be email, slack or both, got %q", in.DeliveryMethod)}
	}

	now := s.now().UTC()
	q := &models.ScheduledQuery{
		ID:             uuid.NewString(),
		ProjectID:      in.ProjectID,
		QueryText:      in.QueryText,
		Frequency:      in.Frequency,
		DayOfWeek:      in.DayOfWeek,
		DayOfMonth:     in.DayOfMonth,
		TimeUTC:        strings.TrimSpace(in.TimeUTC),
		DeliveryMethod: in.DeliveryMethod,
		EmailTo:        in.EmailTo,
		SlackChannel:   in.SlackChannel,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	next, err := RecurrenceOf(q).Next(now)
	if err != nil {
		return nil, err
	}
	q.NextRunAt = next

	if err := s.db.CreateScheduledQuery(ctx, q); err != nil {
		return nil, fmt.Errorf("create scheduled query: %w", err)
	}
	return q, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.ScheduledQuery, error) {
	q, err := s.db.GetScheduledQuery(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("scheduled query %s: %w", id, core.ErrNotFound)
	}
	return q, nil
}

func (s *Service) List(ctx context.Context, projectID string) ([]models.ScheduledQuery, error) {
	return s.db.ListScheduledQueries(ctx, projectID)
}

// updateAttempts bounds how often Update re-reads a row a sweep keeps advancing.
const updateAttempts = 3

// Update applies in. Changing the schedule or reactivating recomputes
// next_run_at from now; deactivating leaves it untouched. If a sweep advances
// the row between read and write, the edit is re-applied to the fresh row.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.ScheduledQuery, error) {
	var err error
	for attempt := 0; attempt < updateAttempts; attempt++ {
		var q *models.ScheduledQuery
		q, err = s.update(ctx, id, in)
		if !errors.Is(err, core.ErrConcurrentUpdate) {
			return q, err
		}
	}
	return nil, err
}

func (s *Service) update(ctx context.Context, id string, in UpdateInput) (*models.ScheduledQuery, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	readNextRun := q.NextRunAt
	wasActive := q.IsActive
	reschedule := false

	if in.QueryText != nil {
		text := strings.TrimSpace(*in.QueryText)
		if text == "" {
			return nil, ErrQueryTextRequired
		}
		q.QueryText = text
	}
	if in.Frequency != nil && *in.Frequency != q.Frequency {
		q.Frequency = *in.Frequency
		q.DayOfWeek, q.DayOfMonth = nil, nil
		reschedule = true
	}
	if in.DayOfWeek != nil {
		q.DayOfWeek = in.DayOfWeek
		reschedule = true
	}
	if in.DayOfMonth != nil {
		q.DayOfMonth = in.DayOfMonth
		reschedule = true
	}
	if in.TimeUTC != nil {
		q.TimeUTC = strings.TrimSpace(*in.TimeUTC)
		reschedule = true
	}
	if in.DeliveryMethod != nil {
		if !in.DeliveryMethod.Valid() {
			return nil, &core.SchedulingComputationError{Field: "delivery_method", Reason: fmt.Sprintf("must be email, slack or both, got %q", *in.DeliveryMethod)}
		}
		q.DeliveryMethod = *in.DeliveryMethod
	}
	if in.EmailTo != nil {
		q.EmailTo = *in.EmailTo
	}
	if in.SlackChannel != nil {
		q.SlackChannel = *in.SlackChannel
	}
	if in.IsActive != nil {
		q.IsActive = *in.IsActive
		if q.IsActive && !wasActive {
			reschedule = true
		}
	}

	now := s.now().UTC()
	if err := RecurrenceOf(q).Validate(); err != nil {
		return nil, err
	}
	if reschedule && q.IsActive {
		next, err := RecurrenceOf(q).Next(now)
		if err != nil {
			return nil, err
		}
		q.NextRunAt = next
	}
	q.UpdatedAt = now

	if err := s.db.UpdateScheduledQuery(ctx, q, readNextRun); err != nil {
		return nil, fmt.Errorf("update scheduled query: %w", err)
	}
	return q, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.db.DeleteScheduledQuery(ctx, id)
}
