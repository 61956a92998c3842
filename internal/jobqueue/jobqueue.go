package jobqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog"

	"github.com/sairevanth-zz/signalsloop/internal/models"
)

// SuggestionAnalysisArgs asks for one project's corpus to be analysed.
type SuggestionAnalysisArgs struct {
	ProjectID string `json:"project_id"`
}

// Kind returns the job kind for River
func (SuggestionAnalysisArgs) Kind() string {
	return "suggestion_analysis"
}

// ProjectAnalyzer is the suggestion engine entry point a job drives.
type ProjectAnalyzer interface {
	RunProject(ctx context.Context, projectID string) ([]models.ProactiveSuggestion, error)
}

// SuggestionAnalysisWorker runs a single project's analysis. A failure is
// retried by River and never touches other projects' jobs.
type SuggestionAnalysisWorker struct {
	river.WorkerDefaults[SuggestionAnalysisArgs]
	analyzer ProjectAnalyzer
	logger   zerolog.Logger
}

func (w *SuggestionAnalysisWorker) Work(ctx context.Context, job *river.Job[SuggestionAnalysisArgs]) error {
	args := job.Args
	if args.ProjectID == "" {
		return river.JobCancel(fmt.Errorf("suggestion analysis job without project id"))
	}

	created, err := w.analyzer.RunProject(ctx, args.ProjectID)
	if err != nil {
		w.logger.Error().Err(err).Str("project_id", args.ProjectID).Msg("suggestion analysis failed")
		return fmt.Errorf("analyse project %s: %w", args.ProjectID, err)
	}
	w.logger.Info().Str("project_id", args.ProjectID).Int("created", len(created)).Msg("suggestion analysis done")
	return nil
}

// JobQueue manages the River job queue. River's schema must already be
// migrated (`river migrate-up`) in the target database.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
	logger zerolog.Logger
}

func NewJobQueue(ctx context.Context, databaseURL string, analyzer ProjectAnalyzer, config *QueueConfig, logger zerolog.Logger) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}
	logger = logger.With().Str("component", "jobqueue").Logger()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &SuggestionAnalysisWorker{analyzer: analyzer, logger: logger})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:     config.RiverQueueConfig(),
		Workers:    workers,
		JobTimeout: config.JobTimeout,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool, config: config, logger: logger}, nil
}

func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop waits for running jobs, then releases the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueAnalysis queues one job per project.
func (jq *JobQueue) EnqueueAnalysis(ctx context.Context, projectIDs []string) error {
	if len(projectIDs) == 0 {
		return nil
	}
	params := make([]river.InsertManyParams, 0, len(projectIDs))
	for _, id := range projectIDs {
		params = append(params, river.InsertManyParams{
			Args:       SuggestionAnalysisArgs{ProjectID: id},
			InsertOpts: jq.config.insertOpts(),
		})
	}
	if _, err := jq.client.InsertMany(ctx, params); err != nil {
		return fmt.Errorf("failed to queue suggestion analysis: %w", err)
	}
	jq.logger.Info().Int("projects", len(projectIDs)).Msg("suggestion analysis queued")
	return nil
}
