package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/config"
	"github.com/sairevanth-zz/signalsloop/internal/core"
	db "github.com/sairevanth-zz/signalsloop/internal/core/database"
	"github.com/sairevanth-zz/signalsloop/internal/core/llm"
	objectclient "github.com/sairevanth-zz/signalsloop/internal/core/object-client"
	"github.com/sairevanth-zz/signalsloop/internal/core/stt"
	"github.com/sairevanth-zz/signalsloop/internal/jobqueue"
	"github.com/sairevanth-zz/signalsloop/internal/models"
	"github.com/sairevanth-zz/signalsloop/internal/notify"
	"github.com/sairevanth-zz/signalsloop/internal/scheduler"
	"github.com/sairevanth-zz/signalsloop/internal/services"
	"github.com/sairevanth-zz/signalsloop/internal/suggestions"
)

const jobTimeout = 10 * time.Minute

type App struct {
	DBClient *db.DatabaseClient
	Queue    *jobqueue.JobQueue
	Cron     *scheduler.Cron
	Server   *Server

	analyzer *suggestions.Engine
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database initialized and ready")

	var objClient core.ObjectClient
	if cfg.BucketName != "" {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		objClient = s3Client
	} else {
		log.Warn().Msg("BUCKET_NAME empty, reports are kept in memory")
		objClient = objectclient.NewMemoryStore(cfg.PublicBaseURL + "/reports")
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	notifier := newNotifier(cfg)

	router := services.NewRouter(llmProvider, embedder, dbClient, cfg.SourceLimit).
		WithLowConfidenceThreshold(cfg.LowConfidenceThreshold)
	conversations := services.NewConversationService(dbClient, router)

	actions := services.NewActionService(dbClient, services.NewIntentTracker(dbClient), cfg.LowConfidenceThreshold)
	actions.Register(models.ActionGenerateReport, &services.ReportAction{
		LLM:      llmProvider,
		Embedder: embedder,
		Corpus:   dbClient,
		Storage:  objClient,
		Bucket:   cfg.BucketName,
		Limit:    cfg.SourceLimit,
	})
	actions.Register(models.ActionCreateTicket, &services.TicketAction{DB: dbClient, BaseURL: cfg.PublicBaseURL, Now: time.Now})
	actions.Register(models.ActionSendDigest, &services.DigestAction{
		LLM:            llmProvider,
		Corpus:         dbClient,
		Notifier:       notifier,
		DefaultEmailTo: cfg.DigestDefaultEmail,
		Now:            time.Now,
	})

	var transcriber core.Transcriber
	if cfg.OpenAIAPIKey != "" {
		transcriber = stt.NewWhisperProvider(log.Logger, &stt.WhisperConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.WhisperModel})
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, /api/transcribe disabled")
	}

	sweeper := scheduler.NewEngine(dbClient, router, conversations, notifier, cfg.PublicBaseURL, log.Logger)
	analyzer := suggestions.NewEngine(dbClient, dbClient, cfg.SuggestionWindow, cfg.MaxSuggestions, log.Logger)

	qcfg := jobqueue.DefaultQueueConfig()
	if cfg.QueueWorkers > 0 {
		qcfg.MaxWorkers = cfg.QueueWorkers
	}
	queue, err := jobqueue.NewJobQueue(appCtx, cfg.DatabaseURL, analyzer, qcfg, log.Logger)
	if err != nil {
		// Suggestions still refresh in-process when the river schema is missing.
		log.Warn().Err(err).Msg("job queue unavailable, analysis runs inline")
		queue = nil
	}

	a := &App{DBClient: dbClient, Queue: queue, analyzer: analyzer}

	a.Cron = scheduler.NewCron(log.Logger, jobTimeout)
	if err := a.Cron.Add("scheduled-query-sweep", cfg.SweepSchedule, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if err := a.Cron.Add("suggestion-analysis", cfg.AnalysisSchedule, a.runAnalysis); err != nil {
		return nil, err
	}

	a.Server = NewServer(cfg, Deps{
		Conversations:    conversations,
		Actions:          actions,
		Suggestions:      suggestions.NewService(dbClient),
		ScheduledQueries: scheduler.NewService(dbClient),
		Transcriber:      transcriber,
	})
	return a, nil
}

// Start launches the background workers. The HTTP server is started separately.
func (a *App) Start(ctx context.Context) error {
	if a.Queue != nil {
		if err := a.Queue.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("job queue failed to start, analysis runs inline")
			_ = a.Queue.Stop(ctx)
			a.Queue = nil
		}
	}
	a.Cron.Start()
	return nil
}

func (a *App) Close(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Stop()
	}
	if a.Queue != nil {
		if err := a.Queue.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("job queue did not stop cleanly")
		}
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}

func newNotifier(cfg *config.Config) *notify.Dispatcher {
	d := &notify.Dispatcher{}
	if cfg.SMTPHost != "" {
		email, err := notify.NewEmailChannel(notify.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			From:      cfg.SMTPFrom,
			DefaultTo: cfg.DigestDefaultEmail,
		}, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("email delivery disabled")
		} else {
			d.Email = email
		}
	}
	if cfg.SlackBotToken != "" {
		d.Slack = notify.NewSlackChannel(cfg.SlackBotToken, cfg.SlackDefaultChannel, "", log.Logger)
	}
	return d
}

// runAnalysis fans active projects out to the queue, or analyzes them inline
// when no queue is running.
func (a *App) runAnalysis(ctx context.Context) error {
	if a.Queue == nil {
		n, err := a.analyzer.RunAll(ctx)
		log.Info().Int("created", n).Msg("suggestion analysis finished")
		return err
	}
	projects, err := a.analyzer.ActiveProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		return nil
	}
	return a.Queue.EnqueueAnalysis(ctx, projects)
}
