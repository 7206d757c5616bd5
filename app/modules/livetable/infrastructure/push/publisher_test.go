package livetablepush

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type FakePublisher struct {
	PublishFunc func(topic string, messages ...*message.Message) error
}

func (f *FakePublisher) Publish(topic string, messages ...*message.Message) error {
	if f.PublishFunc != nil {
		return f.PublishFunc(topic, messages...)
	}
	return nil
}

func (f *FakePublisher) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_PushDeliversToSessionSubject(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	p := NewPublisher(pubsub, "livetable.viewer", testLogger())
	assert.Equal(t, "livetable.viewer.s1", p.Subject("s1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := pubsub.Subscribe(ctx, p.Subject("s1"))
	require.NoError(t, err)

	sent := livetabletypes.ConfirmationMessage{
		Type:    livetabletypes.MessageConfirmation,
		Game:    livetabletypes.GameCraps,
		RoundID: 3,
		Status:  livetabletypes.StatusPending,
	}
	require.NoError(t, p.Push(ctx, "s1", sent))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, livetabletypes.MessageConfirmation, msg.Metadata.Get(MessageTypeMetadataKey))
		var got livetabletypes.ConfirmationMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, sent, got)
	case <-ctx.Done():
		t.Fatal("no message published")
	}
}

func TestPublisher_PushErrors(t *testing.T) {
	boom := errors.New("nats down")
	p := NewPublisher(&FakePublisher{PublishFunc: func(string, ...*message.Message) error { return boom }}, "viewer", testLogger())

	err := p.Push(context.Background(), "s1", map[string]string{"type": "x"})
	assert.ErrorIs(t, err, boom)

	err = p.Push(context.Background(), "s1", make(chan int))
	assert.Error(t, err)
}

func TestMessageType(t *testing.T) {
	assert.Equal(t, "live_table_state", messageType([]byte(`{"type":"live_table_state","game":"craps"}`)))
	assert.Empty(t, messageType([]byte(`[1,2]`)))
	assert.Empty(t, messageType([]byte(`{}`)))
}
