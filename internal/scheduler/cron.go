package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Cron drives periodic jobs. Runs of the same job never overlap.
type Cron struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func NewCron(logger zerolog.Logger, timeout time.Duration) *Cron {
	l := logger.With().Str("component", "cron").Logger()
	adapter := cronLogger{l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{
		cron: cron.New(cron.WithChain(
			cron.Recover(adapter),
			cron.SkipIfStillRunning(adapter),
		)),
		logger:  l,
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
}

// Add registers fn under a standard cron spec or a descriptor such as "@every 1m".
func (c *Cron) Add(name, spec string, fn func(ctx context.Context) error) error {
	_, err := c.cron.AddFunc(spec, func() {
		ctx := c.ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		start := time.Now()
		if err := fn(ctx); err != nil {
			c.logger.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		c.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	})
	if err != nil {
		return err
	}
	c.logger.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

func (c *Cron) Start() {
	c.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (c *Cron) Stop() {
	c.cancel()
	ctx := c.cron.Stop()
	<-ctx.Done()
}

type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
