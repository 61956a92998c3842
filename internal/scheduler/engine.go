package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/metrics"
	"github.com/sairevanth-zz/signalsloop/internal/models"
	"github.com/sairevanth-zz/signalsloop/internal/services"
)

const sweepParallelism = 4

// Answerer produces a fresh informational answer.
type Answerer interface {
	Answer(ctx context.Context, projectID, question string) (*services.Reply, error)
}

// ExchangeRecorder stores a question/answer pair as a new conversation.
type ExchangeRecorder interface {
	RecordExchange(ctx context.Context, projectID, question string, reply *services.Reply) (string, error)
}

// Engine runs due scheduled queries. It keeps no state between sweeps, so
// several engines may sweep the same table; the compare-and-swap on
// next_run_at decides which one runs an occurrence.
type Engine struct {
	db       core.DbClient
	answerer Answerer
	recorder ExchangeRecorder
	notifier core.Notifier
	baseURL  string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewEngine(db core.DbClient, answerer Answerer, recorder ExchangeRecorder, notifier core.Notifier, baseURL string, logger zerolog.Logger) *Engine {
	return &Engine{
		db:       db,
		answerer: answerer,
		recorder: recorder,
		notifier: notifier,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger.With().Str("component", "scheduled-queries").Logger(),
		now:      time.Now,
	}
}

// Sweep runs every active query whose next_run_at has elapsed and returns how
// many occurrences this call claimed. A failing query never stops the others.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	now := e.now().UTC()
	due, err := e.db.ListDueScheduledQueries(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due scheduled queries: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	claimed := make([]bool, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepParallelism)
	for i := range due {
		q := due[i]
		g.Go(func() error {
			claimed[i] = e.runOne(gctx, &q, now)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, c := range claimed {
		if c {
			n++
		}
	}
	e.logger.Debug().Int("due", len(due)).Int("claimed", n).Msg("sweep finished")
	return n, nil
}

// runOne claims the occurrence, answers, records and delivers it. The row is
// advanced before delivery so a failed delivery is never retried.
func (e *Engine) runOne(ctx context.Context, q *models.ScheduledQuery, now time.Time) bool {
	logger := e.logger.With().Str("scheduled_query_id", q.ID).Str("project_id", q.ProjectID).Logger()

	next, err := RecurrenceOf(q).Next(now)
	if err != nil {
		logger.Error().Err(err).Msg("stored recurrence is invalid, skipping")
		metrics.ScheduledRuns.WithLabelValues("invalid").Inc()
		return false
	}
	won, err := e.db.AdvanceScheduledQuery(ctx, q.ID, q.NextRunAt, next, now)
	if err != nil {
		logger.Error().Err(err).Msg("claim failed")
		return false
	}
	if !won {
		logger.Debug().Msg("occurrence already claimed elsewhere")
		return false
	}

	reply, err := e.answerer.Answer(ctx, q.ProjectID, q.QueryText)
	if err != nil {
		logger.Warn().Err(err).Msg("scheduled answer failed")
		metrics.ScheduledRuns.WithLabelValues("answer_error").Inc()
		e.recordOutcome(ctx, q.ID, fmt.Sprintf("could not produce an answer: %v", err))
		return true
	}
	if reply.Metadata == nil {
		reply.Metadata = &models.MessageMetadata{}
	}
	reply.Metadata.Scheduled = true

	convID, err := e.recorder.RecordExchange(ctx, q.ProjectID, q.QueryText, reply)
	if err != nil {
		logger.Warn().Err(err).Msg("could not record scheduled conversation")
	}

	err = e.notifier.Deliver(ctx, core.Delivery{
		ProjectID:    q.ProjectID,
		Method:       q.DeliveryMethod,
		Subject:      "Scheduled insight: " + truncate(q.QueryText, 60),
		Body:         e.render(q, reply, convID),
		EmailTo:      q.EmailTo,
		SlackChannel: q.SlackChannel,
	})
	metrics.Deliveries.WithLabelValues(string(q.DeliveryMethod), metrics.Outcome(err)).Inc()
	if err != nil {
		logger.Warn().Err(err).Msg("delivery failed, next occurrence still scheduled")
		metrics.ScheduledRuns.WithLabelValues("delivery_error").Inc()
		e.recordOutcome(ctx, q.ID, err.Error())
		return true
	}

	metrics.ScheduledRuns.WithLabelValues("ok").Inc()
	e.recordOutcome(ctx, q.ID, "")
	logger.Info().Time("next_run_at", next).Msg("scheduled query delivered")
	return true
}

func (e *Engine) recordOutcome(ctx context.Context, id, deliveryErr string) {
	if err := e.db.SetScheduledQueryDelivery(context.WithoutCancel(ctx), id, deliveryErr); err != nil {
		e.logger.Error().Err(err).Str("scheduled_query_id", id).Msg("could not record delivery outcome")
	}
}

func (e *Engine) render(q *models.ScheduledQuery, reply *services.Reply, convID string) string {
	var b strings.Builder
	b.WriteString("Q: " + q.QueryText + "\n\n")
	b.WriteString(reply.Content)
	if len(reply.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, s := range reply.Sources {
			b.WriteString("- " + s.Citation() + "\n")
		}
	}
	if convID != "" && e.baseURL != "" {
		b.WriteString("\nOpen the conversation: " + e.baseURL + "/conversations/" + convID + "\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
