package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/venuely/apiserver/types"
)

// Notifier delivers verification passcodes to users.
type Notifier interface {
	NotifyVerification(ctx context.Context, event types.VerificationEvent) error
}

// Publisher is the subset of mq.MQ used for outbound events.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// MQNotifier publishes verification events for an out-of-process mailer.
type MQNotifier struct {
	publisher Publisher
	topic     string
}

func NewMQNotifier(publisher Publisher, topic string) *MQNotifier {
	return &MQNotifier{publisher: publisher, topic: topic}
}

func (n *MQNotifier) NotifyVerification(ctx context.Context, event types.VerificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode verification event: %w", err)
	}
	id, err := n.publisher.Publish(ctx, n.topic, data, map[string]string{
		"content-type": "application/json",
		"event":        "verification.requested",
	})
	if err != nil {
		return fmt.Errorf("publish verification event: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("message_id", id).Str("topic", n.topic).Msg("verification event published")
	return nil
}

// LogNotifier writes passcodes to the log. It is used when no broker is
// configured, typically in development.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyVerification(_ context.Context, event types.VerificationEvent) error {
	n.logger.Info().
		Str("email", event.Email).
		Str("code", event.Code).
		Time("expires_at", event.ExpiresAt).
		Msg("verification code issued")
	return nil
}
