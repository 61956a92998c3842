package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

// Channel is one outbound transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, d core.Delivery) error
}

// Dispatcher routes a delivery to the channel(s) its method names.
// A nil channel counts as unconfigured and fails the delivery.
type Dispatcher struct {
	Email Channel
	Slack Channel
}

func (d *Dispatcher) Deliver(ctx context.Context, del core.Delivery) error {
	type target struct {
		name string
		ch   Channel
	}
	var targets []target
	switch del.Method {
	case models.DeliveryEmail:
		targets = []target{{"email", d.Email}}
	case models.DeliverySlack:
		targets = []target{{"slack", d.Slack}}
	case models.DeliveryBoth:
		targets = []target{{"email", d.Email}, {"slack", d.Slack}}
	default:
		return &core.DeliveryFailure{Method: string(del.Method), Err: fmt.Errorf("unknown delivery method")}
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		if t.ch == nil {
			errs = append(errs, &core.DeliveryFailure{Method: t.name, Err: fmt.Errorf("channel not configured")})
			continue
		}
		g.Go(func() error {
			if err := t.ch.Send(gctx, del); err != nil {
				mu.Lock()
				errs = append(errs, &core.DeliveryFailure{Method: t.name, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

var _ core.Notifier = (*Dispatcher)(nil)
