package natsutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EnsureStream creates the JetStream stream capturing subjects unless it
// already exists.
func EnsureStream(ctx context.Context, cfg Config, name string, subjects []string, logger *slog.Logger) error {
	opts, err := Options(cfg)
	if err != nil {
		return err
	}
	conn, err := nc.Connect(cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.Stream(ctx, name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: subjects,
			MaxAge:   24 * time.Hour,
		}); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}
		logger.InfoContext(ctx, "Created JetStream stream", slog.String("stream", name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check stream %s: %w", name, err)
	}
	return nil
}

// NewJetStreamSubscriber creates a durable JetStream subscriber that starts
// from new messages. A restarted gateway resumes where its durable left off.
func NewJetStreamSubscriber(cfg Config, durablePrefix string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:            cfg.URL,
		NatsOptions:    opts,
		Unmarshaler:    &nats.NATSMarshaler{},
		CloseTimeout:   10 * time.Second,
		AckWaitTimeout: 30 * time.Second,
		JetStream: nats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			SubscribeOptions: []nc.SubOpt{
				nc.DeliverNew(),
				nc.AckExplicit(),
			},
			DurablePrefix: durablePrefix,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream subscriber: %w", err)
	}
	return sub, nil
}
