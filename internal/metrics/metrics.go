package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalsloop_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "signalsloop_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	AnswerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "signalsloop_answer_latency_seconds",
			Help: "Time to classify and answer one question",
		},
	)

	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalsloop_actions_executed_total",
			Help: "Confirmed actions by type and outcome",
		},
		[]string{"action_type", "outcome"},
	)

	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalsloop_scheduled_runs_total",
			Help: "Scheduled query occurrences by outcome",
		},
		[]string{"outcome"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalsloop_deliveries_total",
			Help: "Out-of-session deliveries by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	SuggestionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalsloop_suggestions_created_total",
			Help: "Proactive suggestions created by type",
		},
		[]string{"suggestion_type"},
	)

	Transcriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalsloop_transcriptions_total",
			Help: "Transcription requests by outcome",
		},
		[]string{"outcome"},
	)

	ModelTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalsloop_model_tokens_total",
			Help: "Generative model tokens by model and direction",
		},
		[]string{"model", "direction"},
	)

	ModelRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalsloop_model_retries_total",
			Help: "Retried generative model calls by operation",
		},
		[]string{"op"},
	)
)

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware records request count and latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
