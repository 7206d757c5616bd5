package livetablepush

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// MessageTypeMetadataKey carries the push message type for the transport layer.
const MessageTypeMetadataKey = "message_type"

// Publisher sends viewer messages to per-session subjects.
type Publisher struct {
	publisher message.Publisher
	prefix    string
	logger    *slog.Logger
}

func NewPublisher(publisher message.Publisher, subjectPrefix string, logger *slog.Logger) *Publisher {
	return &Publisher{publisher: publisher, prefix: subjectPrefix, logger: logger}
}

// Subject is the subject a session's messages are published on.
func (p *Publisher) Subject(sessionID string) string {
	return p.prefix + "." + sessionID
}

// Push marshals payload to JSON and publishes it for the session.
func (p *Publisher) Push(ctx context.Context, sessionID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if t := messageType(data); t != "" {
		msg.Metadata.Set(MessageTypeMetadataKey, t)
	}

	if err := p.publisher.Publish(p.Subject(sessionID), msg); err != nil {
		return fmt.Errorf("failed to publish to session %s: %w", sessionID, err)
	}
	p.logger.Debug("Pushed message",
		slog.String("session_id", sessionID),
		slog.String("message_id", msg.UUID),
	)
	return nil
}

func messageType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &head) != nil {
		return ""
	}
	return head.Type
}
