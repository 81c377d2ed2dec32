package msgqueue

import (
	"context"

	"github.com/rs/zerolog"
)

// Provider delivers messages for one channel.
type Provider interface {
	Channel() Channel
	Send(ctx context.Context, msg *Message) error
	Receive(ctx context.Context, limit, offset int) ([]*Message, error)
}

// LogProvider accepts every message and logs it. It stands in for
// channels without a configured backend.
type LogProvider struct {
	channel Channel
	logger  zerolog.Logger
}

// NewLogProvider creates a log-only provider for the channel.
func NewLogProvider(channel Channel, logger zerolog.Logger) *LogProvider {
	return &LogProvider{
		channel: channel,
		logger:  logger.With().Str("component", "provider").Str("channel", string(channel)).Logger(),
	}
}

func (p *LogProvider) Channel() Channel { return p.channel }

func (p *LogProvider) Send(ctx context.Context, msg *Message) error {
	p.logger.Info().
		Str("message_id", msg.ID).
		Str("to", msg.To).
		Int("body_length", len(msg.Body)).
		Msg("message delivered")
	return nil
}

// Receive returns no messages. Send-only channels (signal, facebook)
// behave this way regardless of provider.
func (p *LogProvider) Receive(ctx context.Context, limit, offset int) ([]*Message, error) {
	return nil, nil
}
