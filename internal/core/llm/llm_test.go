package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type codedErr int

func (c codedErr) Error() string { return fmt.Sprintf("status %d", int(c)) }
func (c codedErr) HTTPCode() int { return int(c) }

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"unavailable", fmt.Errorf("wrap: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), true},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"http coder 500", codedErr(500), true},
		{"http coder 403", codedErr(403), false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test", 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return &googleapi.Error{Code: http.StatusTooManyRequests}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test", 5, time.Millisecond, func(context.Context) error {
		calls++
		return &googleapi.Error{Code: http.StatusBadRequest}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test", 2, time.Millisecond, func(context.Context) error {
		calls++
		return codedErr(503)
	})
	assert.Equal(t, codedErr(503), err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, "test", 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return codedErr(500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBatches(t *testing.T) {
	texts := make([]string, 205)
	got := batches(texts, 100)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 100)
	assert.Len(t, got[2], 5)
	assert.Nil(t, batches(nil, 100))
}

func TestCandidateText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("Billing "), genai.Blob{MIMEType: "image/png"}, genai.Text("complaints doubled.")}},
	}}}
	got, err := candidateText(resp)
	require.NoError(t, err)
	assert.Equal(t, "Billing complaints doubled.", got)

	_, err = candidateText(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	blocked := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
	_, err = candidateText(blocked)
	assert.ErrorIs(t, err, ErrBlocked)
}
