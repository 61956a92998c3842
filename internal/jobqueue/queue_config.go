package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds the tunables of the analysis queue.
type QueueConfig struct {
	MaxWorkers int // concurrent analysis jobs (default: 4)

	MaxAttempts int           // attempts before a job is discarded (default: 3)
	JobTimeout  time.Duration // per-job limit (default: 2 minutes)

	// UniquePeriod collapses duplicate enqueues for one project within the period.
	UniquePeriod time.Duration
}

func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:   4,
		MaxAttempts:  3,
		JobTimeout:   2 * time.Minute,
		UniquePeriod: time.Hour,
	}
}

// RiverQueueConfig maps the config onto River's queue table.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}

func (c *QueueConfig) insertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		MaxAttempts: c.MaxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: c.UniquePeriod,
		},
	}
}
