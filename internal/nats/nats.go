package natsutil

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
)

// Config holds what the gateway needs to reach NATS.
type Config struct {
	URL string
	// NKeySeed is either a literal user seed or a path to a file holding one.
	NKeySeed string
	Name     string
}

// Options returns reconnect options plus nkey authentication when a seed is set.
func Options(cfg Config) ([]nc.Option, error) {
	opts := []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(2 * time.Second),
	}
	if cfg.Name != "" {
		opts = append(opts, nc.Name(cfg.Name))
	}
	if cfg.NKeySeed == "" {
		return opts, nil
	}
	nkeyOpt, err := nkeyOption(cfg.NKeySeed)
	if err != nil {
		return nil, err
	}
	return append(opts, nkeyOpt), nil
}

func nkeyOption(seedOrPath string) (nc.Option, error) {
	seed := []byte(strings.TrimSpace(seedOrPath))
	if !strings.HasPrefix(string(seed), "SU") {
		raw, err := os.ReadFile(seedOrPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read nkey seed file: %w", err)
		}
		seed = []byte(strings.TrimSpace(string(raw)))
	}
	kp, err := nkeys.FromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid nkey seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive nkey public key: %w", err)
	}
	return nc.Nkey(pub, func(nonce []byte) ([]byte, error) {
		return kp.Sign(nonce)
	}), nil
}

// NewPublisher creates a core NATS watermill publisher.
func NewPublisher(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: opts,
		Marshaler:   &nats.NATSMarshaler{},
		JetStream:   nats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Watermill publisher: %w", err)
	}
	return pub, nil
}

// NewSubscriber creates a core NATS watermill subscriber. Instances sharing a
// queue group split the stream between them.
func NewSubscriber(cfg Config, queueGroup string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	subCfg := nats.SubscriberConfig{
		URL:            cfg.URL,
		NatsOptions:    opts,
		Unmarshaler:    &nats.NATSMarshaler{},
		JetStream:      nats.JetStreamConfig{Disabled: true},
		CloseTimeout:   10 * time.Second,
		AckWaitTimeout: 30 * time.Second,
	}
	if queueGroup != "" {
		subCfg.QueueGroupPrefix = queueGroup
	}
	sub, err := nats.NewSubscriber(subCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Watermill subscriber: %w", err)
	}
	return sub, nil
}
