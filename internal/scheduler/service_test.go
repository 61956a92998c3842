package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	db "github.com/sairevanth-zz/signalsloop/internal/core/database"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

func newServiceAt(now *time.Time) (*Service, *db.MemoryClient) {
	mem := db.NewMemoryClient()
	s := NewService(mem)
	s.now = func() time.Time { return *now }
	return s, mem
}

func TestCreate_WeeklyComputesUpcomingMonday(t *testing.T) {
	now := utc(2024, 1, 3, 12, 0)
	s, _ := newServiceAt(&now)

	q, err := s.Create(context.Background(), CreateInput{
		ProjectID:      "p1",
		QueryText:      "What changed this week?",
		Frequency:      models.FrequencyWeekly,
		DayOfWeek:      intp(1),
		TimeUTC:        "09:00",
		DeliveryMethod: models.DeliveryEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2024, 1, 8, 9, 0), q.NextRunAt)
	assert.True(t, q.IsActive)
}

func TestCreate_RejectsMalformed(t *testing.T) {
	now := utc(2024, 1, 3, 12, 0)
	s, mem := newServiceAt(&now)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateInput{ProjectID: "p1", QueryText: "q", Frequency: models.FrequencyWeekly, TimeUTC: "09:00", DeliveryMethod: models.DeliveryEmail})
	var serr *core.SchedulingComputationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "day_of_week", serr.Field)

	_, err = s.Create(ctx, CreateInput{ProjectID: "p1", QueryText: "q", Frequency: models.FrequencyDaily, TimeUTC: "09:00", DeliveryMethod: "fax"})
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "delivery_method", serr.Field)

	_, err = s.Create(ctx, CreateInput{ProjectID: "p1", QueryText: " ", Frequency: models.FrequencyDaily, TimeUTC: "09:00", DeliveryMethod: models.DeliveryEmail})
	assert.ErrorIs(t, err, ErrQueryTextRequired)

	list, err := mem.ListScheduledQueries(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdate_ReactivationRecomputesNextRun(t *testing.T) {
	now := utc(2024, 1, 3, 12, 0)
	s, _ := newServiceAt(&now)
	ctx := context.Background()

	q, err := s.Create(ctx, CreateInput{
		ProjectID: "p1", QueryText: "daily pulse", Frequency: models.FrequencyDaily,
		TimeUTC: "09:00", DeliveryMethod: models.DeliverySlack,
	})
	require.NoError(t, err)
	stale := q.NextRunAt
	assert.Equal(t, utc(2024, 1, 4, 9, 0), stale)

	off := false
	q, err = s.Update(ctx, q.ID, UpdateInput{IsActive: &off})
	require.NoError(t, err)
	assert.False(t, q.IsActive)
	assert.Equal(t, stale, q.NextRunAt, "pausing keeps next_run_at")

	now = utc(2024, 1, 20, 15, 0)
	on := true
	q, err = s.Update(ctx, q.ID, UpdateInput{IsActive: &on})
	require.NoError(t, err)
	assert.True(t, q.IsActive)
	assert.Equal(t, utc(2024, 1, 21, 9, 0), q.NextRunAt)
	assert.True(t, q.NextRunAt.After(now))
}

func TestUpdate_FrequencyChange(t *testing.T) {
	now := utc(2024, 4, 10, 0, 0)
	s, _ := newServiceAt(&now)
	ctx := context.Background()

	q, err := s.Create(ctx, CreateInput{
		ProjectID: "p1", QueryText: "weekly", Frequency: models.FrequencyWeekly, DayOfWeek: intp(1),
		TimeUTC: "09:00", DeliveryMethod: models.DeliveryBoth,
	})
	require.NoError(t, err)

	monthly := models.FrequencyMonthly
	q, err = s.Update(ctx, q.ID, UpdateInput{Frequency: &monthly, DayOfMonth: intp(31)})
	require.NoError(t, err)
	assert.Nil(t, q.DayOfWeek)
	assert.Equal(t, utc(2024, 4, 30, 9, 0), q.NextRunAt)

	_, err = s.Update(ctx, q.ID, UpdateInput{DayOfWeek: intp(2)})
	var serr *core.SchedulingComputationError
	assert.True(t, errors.As(err, &serr))
}

func TestGetDelete(t *testing.T) {
	now := utc(2024, 1, 3, 12, 0)
	s, _ := newServiceAt(&now)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	q, err := s.Create(ctx, CreateInput{ProjectID: "p1", QueryText: "x", Frequency: models.FrequencyDaily, TimeUTC: "09:00", DeliveryMethod: models.DeliveryEmail})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, q.ID))
	assert.ErrorIs(t, s.Delete(ctx, q.ID), core.ErrNotFound)
}
