package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/sairevanth-zz/signalsloop/internal/metrics"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

// httpCoder matches API errors that expose the HTTP status they came from.
type httpCoder interface {
	HTTPCode() int
}

// retryable reports whether err is a rate limit or a server-side failure.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	code := 0
	var gerr *googleapi.Error
	var coder httpCoder
	switch {
	case errors.As(err, &gerr):
		code = gerr.Code
	case errors.As(err, &coder):
		code = coder.HTTPCode()
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// withRetry runs op up to attempts times, doubling the wait after each
// retryable failure. It stops early on ctx cancellation.
func withRetry(ctx context.Context, op string, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			metrics.ModelRetries.WithLabelValues(op).Inc()
			select {
			case <-ctx.Done():
				return err
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(ctx); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}
