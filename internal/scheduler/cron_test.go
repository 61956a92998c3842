package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCron_RejectsBadSpec(t *testing.T) {
	c := NewCron(zerolog.Nop(), time.Second)
	err := c.Add("sweep", "every minute please", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestCron_RunsJobAndStops(t *testing.T) {
	c := NewCron(zerolog.Nop(), time.Second)
	ran := make(chan struct{}, 1)
	require.NoError(t, c.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	c.Start()
	defer c.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
}
