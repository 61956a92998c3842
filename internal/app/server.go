package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/api/handlers"
	appMiddleware "github.com/sairevanth-zz/signalsloop/internal/api/middlewares"
	"github.com/sairevanth-zz/signalsloop/internal/config"
	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/metrics"
	"github.com/sairevanth-zz/signalsloop/internal/scheduler"
	"github.com/sairevanth-zz/signalsloop/internal/services"
	"github.com/sairevanth-zz/signalsloop/internal/suggestions"
)

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Conversations    *services.ConversationService
	Actions          *services.ActionService
	Suggestions      *suggestions.Service
	ScheduledQueries *scheduler.Service
	Transcriber      core.Transcriber
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, deps Deps) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// NewRouter returns the full handler tree: health and metrics at the root and
// the authenticated API under /api.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	h := &handlers.Handlers{
		Conversations:    handlers.NewConversationHandler(deps.Conversations),
		Actions:          handlers.NewActionHandler(deps.Actions),
		Suggestions:      handlers.NewSuggestionHandler(deps.Suggestions),
		ScheduledQueries: handlers.NewScheduledQueryHandler(deps.ScheduledQueries),
	}
	if deps.Transcriber != nil {
		maxDuration := time.Duration(cfg.MaxVoiceSeconds) * time.Second
		h.Transcribe = handlers.NewTranscribeHandler(deps.Transcriber, cfg.MaxAudioBytes, maxDuration)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
		h.Mount(api)
	})

	return r
}

// Start runs the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
