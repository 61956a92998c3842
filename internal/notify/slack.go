package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/sairevanth-zz/signalsloop/internal/core"
)

// SlackChannel posts deliveries to a Slack channel with a bot token.
type SlackChannel struct {
	client         *slack.Client
	defaultChannel string
	logger         zerolog.Logger
}

// NewSlackChannel builds a Slack sender. apiURL overrides the Slack API base and
// is only set in tests.
func NewSlackChannel(token, defaultChannel, apiURL string, logger zerolog.Logger) *SlackChannel {
	opts := []slack.Option{}
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackChannel{
		client:         slack.New(token, opts...),
		defaultChannel: defaultChannel,
		logger:         logger.With().Str("channel", "slack").Logger(),
	}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, d core.Delivery) error {
	target := d.SlackChannel
	if target == "" {
		target = s.defaultChannel
	}
	if target == "" {
		return fmt.Errorf("no slack channel configured")
	}

	header := slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", "*"+d.Subject+"*", false, false), nil, nil)
	body := slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", d.Body, false, false), nil, nil)

	_, ts, err := s.client.PostMessageContext(ctx, target,
		slack.MsgOptionText(d.Subject+"\n\n"+d.Body, false),
		slack.MsgOptionBlocks(header, slack.NewDividerBlock(), body),
	)
	if err != nil {
		return fmt.Errorf("post to %s: %w", target, err)
	}
	s.logger.Debug().Str("target", target).Str("ts", ts).Msg("delivered")
	return nil
}
