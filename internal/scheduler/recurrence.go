package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

// Recurrence is the schedule part of a ScheduledQuery. Weekdays count from
// 0 = Sunday. All instants are UTC.
type Recurrence struct {
	Frequency  models.Frequency
	DayOfWeek  *int
	DayOfMonth *int
	TimeUTC    string
}

func RecurrenceOf(q *models.ScheduledQuery) Recurrence {
	return Recurrence{
		Frequency:  q.Frequency,
		DayOfWeek:  q.DayOfWeek,
		DayOfMonth: q.DayOfMonth,
		TimeUTC:    q.TimeUTC,
	}
}

// Validate rejects malformed recurrences. Nothing is defaulted.
func (r Recurrence) Validate() error {
	if _, _, _, err := parseClock(r.TimeUTC); err != nil {
		return err
	}
	switch r.Frequency {
	case models.FrequencyDaily:
		if r.DayOfWeek != nil {
			return &core.SchedulingComputationError{Field: "day_of_week", Reason: "is only allowed for weekly schedules"}
		}
		if r.DayOfMonth != nil {
			return &core.SchedulingComputationError{Field: "day_of_month", Reason: "is only allowed for monthly schedules"}
		}
	case models.FrequencyWeekly:
		if r.DayOfWeek == nil {
			return &core.SchedulingComputationError{Field: "day_of_week", Reason: "is required for weekly schedules"}
		}
		if *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return &core.SchedulingComputationError{Field: "day_of_week", Reason: fmt.Sprintf("must be 0-6, got %d", *r.DayOfWeek)}
		}
		if r.DayOfMonth != nil {
			return &core.SchedulingComputationError{Field: "day_of_month", Reason: "is only allowed for monthly schedules"}
		}
	case models.FrequencyMonthly:
		if r.DayOfMonth == nil {
			return &core.SchedulingComputationError{Field: "day_of_month", Reason: "is required for monthly schedules"}
		}
		if *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return &core.SchedulingComputationError{Field: "day_of_month", Reason: fmt.Sprintf("must be 1-31, got %d", *r.DayOfMonth)}
		}
		if r.DayOfWeek != nil {
			return &core.SchedulingComputationError{Field: "day_of_week", Reason: "is only allowed for weekly schedules"}
		}
	default:
		return &core.SchedulingComputationError{Field: "frequency", Reason: fmt.Sprintf("must be daily, weekly or monthly, got %q", r.Frequency)}
	}
	return nil
}

// Next returns the first instant strictly after now that satisfies r.
// Monthly days past the end of a month land on that month's last day.
func (r Recurrence) Next(now time.Time) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}
	h, m, s, _ := parseClock(r.TimeUTC)
	now = now.UTC()
	y, mon, d := now.Date()

	switch r.Frequency {
	case models.FrequencyDaily:
		next := time.Date(y, mon, d, h, m, s, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case models.FrequencyWeekly:
		ahead := (*r.DayOfWeek - int(now.Weekday()) + 7) % 7
		next := time.Date(y, mon, d+ahead, h, m, s, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil

	default:
		next := monthly(y, mon, *r.DayOfMonth, h, m, s)
		if !next.After(now) {
			next = monthly(y, mon+1, *r.DayOfMonth, h, m, s)
		}
		return next, nil
	}
}

// monthly builds day dom of (y, mon), clamped to the month's length.
// time.Date normalizes mon overflow, so mon+1 past December rolls the year.
func monthly(y int, mon time.Month, dom, h, m, s int) time.Time {
	first := time.Date(y, mon, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if dom > last {
		dom = last
	}
	return time.Date(first.Year(), first.Month(), dom, h, m, s, 0, time.UTC)
}

// parseClock accepts "HH:MM" or "HH:MM:SS".
func parseClock(v string) (h, m, s int, err error) {
	bad := &core.SchedulingComputationError{Field: "time_utc", Reason: fmt.Sprintf("must be HH:MM or HH:MM:SS, got %q", v)}
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, bad
	}
	nums := make([]int, 3)
	limits := []int{23, 59, 59}
	for i, p := range parts {
		if len(p) != 2 {
			return 0, 0, 0, bad
		}
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 || n > limits[i] {
			return 0, 0, 0, bad
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
