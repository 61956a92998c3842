package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sairevanth-zz/signalsloop/internal/models"
)

type fakeAnalyzer struct {
	projects []string
	err      error
}

func (f *fakeAnalyzer) RunProject(_ context.Context, projectID string) ([]models.ProactiveSuggestion, error) {
	f.projects = append(f.projects, projectID)
	if f.err != nil {
		return nil, f.err
	}
	return []models.ProactiveSuggestion{{ProjectID: projectID}}, nil
}

func TestSuggestionAnalysisKind(t *testing.T) {
	assert.Equal(t, "suggestion_analysis", SuggestionAnalysisArgs{}.Kind())
}

func TestWorkerRunsProject(t *testing.T) {
	fa := &fakeAnalyzer{}
	w := &SuggestionAnalysisWorker{analyzer: fa, logger: zerolog.Nop()}

	err := w.Work(context.Background(), &river.Job[SuggestionAnalysisArgs]{Args: SuggestionAnalysisArgs{ProjectID: "p1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, fa.projects)
}

func TestWorkerReturnsAnalysisError(t *testing.T) {
	boom := errors.New("corpus offline")
	w := &SuggestionAnalysisWorker{analyzer: &fakeAnalyzer{err: boom}, logger: zerolog.Nop()}

	err := w.Work(context.Background(), &river.Job[SuggestionAnalysisArgs]{Args: SuggestionAnalysisArgs{ProjectID: "p1"}})
	assert.ErrorIs(t, err, boom)
}

func TestWorkerCancelsJobWithoutProject(t *testing.T) {
	fa := &fakeAnalyzer{}
	w := &SuggestionAnalysisWorker{analyzer: fa, logger: zerolog.Nop()}

	err := w.Work(context.Background(), &river.Job[SuggestionAnalysisArgs]{})
	require.Error(t, err)
	assert.Empty(t, fa.projects)
}

func TestDefaultQueueConfig(t *testing.T) {
	c := DefaultQueueConfig()
	queues := c.RiverQueueConfig()
	require.Contains(t, queues, river.QueueDefault)
	assert.Equal(t, 4, queues[river.QueueDefault].MaxWorkers)

	opts := c.insertOpts()
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.Equal(t, time.Hour, opts.UniqueOpts.ByPeriod)
}
