package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"github.com/sairevanth-zz/signalsloop/internal/core"
)

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	DefaultTo string
}

type sendFunc func(ctx context.Context, msgs ...*mail.Msg) error

// EmailChannel sends plain-text mail through an SMTP relay.
type EmailChannel struct {
	cfg    SMTPConfig
	send   sendFunc
	now    func() time.Time
	logger zerolog.Logger
}

func NewEmailChannel(cfg SMTPConfig, logger zerolog.Logger) (*EmailChannel, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &EmailChannel{
		cfg:    cfg,
		send:   client.DialAndSendWithContext,
		now:    time.Now,
		logger: logger.With().Str("channel", "email").Logger(),
	}, nil
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, d core.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := recipients(d.EmailTo)
	if len(to) == 0 {
		to = recipients(e.cfg.DefaultTo)
	}
	if len(to) == 0 {
		return fmt.Errorf("no email recipient configured")
	}

	msg, err := e.compose(to, d)
	if err != nil {
		return err
	}
	if err := e.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	e.logger.Debug().Strs("to", to).Msg("delivered")
	return nil
}

func (e *EmailChannel) compose(to []string, d core.Delivery) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", e.cfg.From, err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(strings.ReplaceAll(d.Subject, "\n", " "))
	msg.SetDateWithValue(e.now().UTC())
	msg.SetBodyString(mail.TypeTextPlain, d.Body)
	return msg, nil
}

func recipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
