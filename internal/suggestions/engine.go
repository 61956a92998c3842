package suggestions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/metrics"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

const (
	DefaultWindow         = 7 * 24 * time.Hour
	DefaultMaxSuggestions = 5
	projectParallelism    = 4
)

// Engine analyses one project's corpus at a time and stores new suggestions.
// Projects never share state, so a failing project does not affect others.
type Engine struct {
	db        core.DbClient
	corpus    core.FeedbackCorpus
	analyzers []Analyzer
	window    time.Duration
	max       int
	logger    zerolog.Logger
	now       func() time.Time
}

func NewEngine(db core.DbClient, corpus core.FeedbackCorpus, window time.Duration, max int, logger zerolog.Logger) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxSuggestions
	}
	return &Engine{
		db:        db,
		corpus:    corpus,
		analyzers: DefaultAnalyzers,
		window:    window,
		max:       max,
		logger:    logger.With().Str("component", "suggestions").Logger(),
		now:       time.Now,
	}
}

// RunProject compares the current window with the previous one and inserts
// up to max suggestions, highest priority first. It returns what was created.
func (e *Engine) RunProject(ctx context.Context, projectID string) ([]models.ProactiveSuggestion, error) {
	now := e.now().UTC()
	cur, err := e.corpus.WindowStats(ctx, projectID, now.Add(-e.window), now)
	if err != nil {
		return nil, fmt.Errorf("current window stats: %w", err)
	}
	prev, err := e.corpus.WindowStats(ctx, projectID, now.Add(-2*e.window), now.Add(-e.window))
	if err != nil {
		return nil, fmt.Errorf("previous window stats: %w", err)
	}

	candidates := Analyze(models.CorpusSignals{ProjectID: projectID, Current: *cur, Previous: *prev}, e.analyzers)
	if len(candidates) == 0 {
		return nil, nil
	}

	seen, err := e.existing(ctx, projectID, now)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().Str("project_id", projectID).Logger()
	var created []models.ProactiveSuggestion
	for _, c := range candidates {
		if len(created) >= e.max {
			break
		}
		key := c.DedupeKey()
		if prior, ok := seen[key]; ok && !resurfaces(prior, c) {
			logger.Debug().Str("key", key).Msg("suggestion already surfaced")
			continue
		}

		c.ID = uuid.NewString()
		c.ProjectID = projectID
		c.Status = models.SuggestionActive
		c.CreatedAt = now
		c.UpdatedAt = now
		stored, err := e.db.InsertSuggestion(ctx, &c)
		if err != nil {
			return created, fmt.Errorf("insert suggestion: %w", err)
		}
		if !stored {
			logger.Debug().Str("key", key).Msg("suggestion stored concurrently")
			continue
		}
		seen[key] = c
		created = append(created, c)
		metrics.SuggestionsCreated.WithLabelValues(c.SuggestionType.String()).Inc()
		logger.Info().Str("key", key).Str("priority", c.Priority.String()).Msg("suggestion created")
	}
	return created, nil
}

// ActiveProjects lists projects with feedback in the current window.
func (e *Engine) ActiveProjects(ctx context.Context) ([]string, error) {
	return e.corpus.ActiveProjects(ctx, e.now().UTC().Add(-e.window))
}

// RunAll analyses every active project in-process. Per-project failures are
// logged and counted; they never stop the remaining projects.
func (e *Engine) RunAll(ctx context.Context) (int, error) {
	projects, err := e.ActiveProjects(ctx)
	if err != nil {
		return 0, err
	}
	counts := make([]int, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(projectParallelism)
	for i, p := range projects {
		g.Go(func() error {
			created, err := e.RunProject(gctx, p)
			if err != nil {
				e.logger.Error().Err(err).Str("project_id", p).Msg("suggestion analysis failed")
			}
			counts[i] = len(created)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// existing indexes the suggestions a candidate must not duplicate: every
// active one, and resolved ones created within the current window.
func (e *Engine) existing(ctx context.Context, projectID string, now time.Time) (map[string]models.ProactiveSuggestion, error) {
	recent, err := e.db.ListSuggestionsSince(ctx, projectID, now.Add(-e.window))
	if err != nil {
		return nil, fmt.Errorf("list recent suggestions: %w", err)
	}
	active, err := e.db.ListSuggestions(ctx, projectID, models.SuggestionActive)
	if err != nil {
		return nil, fmt.Errorf("list active suggestions: %w", err)
	}

	out := make(map[string]models.ProactiveSuggestion, len(recent)+len(active))
	for _, s := range recent {
		if _, ok := out[s.DedupeKey()]; !ok {
			out[s.DedupeKey()] = s
		}
	}
	for _, s := range active {
		out[s.DedupeKey()] = s
	}
	return out, nil
}

// resurfaces reports whether candidate may be stored despite prior sharing its key.
func resurfaces(prior, candidate models.ProactiveSuggestion) bool {
	if prior.Status == models.SuggestionActive {
		return false
	}
	return MateriallyChanged(prior.ContextData, candidate.ContextData)
}
