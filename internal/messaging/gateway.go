package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"staffline/internal/domain"
	"staffline/internal/logger"
)

// ErrChannelUnavailable reports a channel with no sender configured.
var ErrChannelUnavailable = errors.New("channel unavailable")

// Sender delivers one message to one destination and returns the provider's
// message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Delivery describes one send attempt.
type Delivery struct {
	Channel   domain.Channel `json:"channel"`
	To        string         `json:"to"`
	MessageID string         `json:"message_id,omitempty"`
	// Skipped is set for channels that deliver nothing (the portal).
	Skipped bool `json:"skipped,omitempty"`
}

// Gateway routes messages to per-channel senders. SMS and WhatsApp go through
// the configured provider; Email is a log-only stub and Portal is a no-op since
// portal visibility comes from the participant record itself.
type Gateway struct {
	SMS         Sender
	WhatsApp    Sender
	Email       Sender
	Timeout     time.Duration
	Concurrency int
	Log         *zap.Logger
}

// NewLogGateway returns a gateway that only logs, for workspaces without a
// messaging provider.
func NewLogGateway(log *zap.Logger) *Gateway {
	log = logger.OrNop(log)
	return &Gateway{
		SMS:      LogSender{Channel: domain.ChannelSMS, Log: log},
		WhatsApp: LogSender{Channel: domain.ChannelWhatsApp, Log: log},
		Email:    LogSender{Channel: domain.ChannelEmail, Log: log},
		Log:      log,
	}
}

func (g *Gateway) sender(ch domain.Channel) (Sender, error) {
	var s Sender
	switch ch {
	case domain.ChannelSMS:
		s = g.SMS
	case domain.ChannelWhatsApp:
		s = g.WhatsApp
	case domain.ChannelEmail:
		s = g.Email
		if s == nil {
			s = LogSender{Channel: domain.ChannelEmail, Log: g.Log}
		}
	default:
		return nil, fmt.Errorf("unknown channel %q", ch)
	}
	if s == nil {
		return nil, fmt.Errorf("%s: %w", ch, ErrChannelUnavailable)
	}
	return s, nil
}

// Send makes one time-bounded delivery attempt. A timeout is returned as an error.
func (g *Gateway) Send(ctx context.Context, ch domain.Channel, to, body string) (Delivery, error) {
	d := Delivery{Channel: ch, To: to}
	if ch == domain.ChannelPortal {
		d.Skipped = true
		return d, nil
	}
	if to == "" {
		return d, fmt.Errorf("%s: empty destination", ch)
	}
	s, err := g.sender(ch)
	if err != nil {
		return d, err
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	id, err := s.Send(ctx, to, body)
	if err != nil {
		return d, err
	}
	d.MessageID = id
	return d, nil
}

// LogSender writes the message to the log instead of delivering it.
type LogSender struct {
	Channel domain.Channel
	Log     *zap.Logger
}

func (s LogSender) Send(ctx context.Context, to, body string) (string, error) {
	logger.OrNop(s.Log).Info("message not delivered: channel is log-only",
		zap.String(logger.FieldChannel, string(s.Channel)),
		zap.String("to", to),
		zap.String("body", logger.TruncateForLog(body, 80)),
	)
	return "", nil
}
