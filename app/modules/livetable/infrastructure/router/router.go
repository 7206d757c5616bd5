package livetablerouter

import (
	"context"
	"errors"
	"log/slog"
	"os"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	TestEnvironmentFlag  = "APP_ENV"
	TestEnvironmentValue = "test"

	handlerName = "livetable.ledger_events"
)

// EventSink receives decoded ledger events.
type EventSink interface {
	Deliver(ctx context.Context, ev livetabletypes.Event) error
}

// LiveTableRouter feeds the ledger's event subject into the coordinator.
type LiveTableRouter struct {
	logger     *slog.Logger
	Router     *message.Router
	subscriber message.Subscriber
	// eventSubscriber feeds ledger events; it defaults to subscriber.
	eventSubscriber message.Subscriber
	tracer          trace.Tracer

	metricsBuilder *metrics.PrometheusMetricsBuilder
	metricsEnabled bool
}

func NewLiveTableRouter(
	logger *slog.Logger,
	router *message.Router,
	subscriber message.Subscriber,
	tracer trace.Tracer,
	registry *prometheus.Registry,
) *LiveTableRouter {
	inTestEnv := os.Getenv(TestEnvironmentFlag) == TestEnvironmentValue

	var metricsBuilder *metrics.PrometheusMetricsBuilder
	if registry != nil && !inTestEnv {
		b := metrics.NewPrometheusMetricsBuilder(registry, "", "")
		metricsBuilder = &b
	}

	return &LiveTableRouter{
		logger:          logger,
		Router:          router,
		subscriber:      subscriber,
		eventSubscriber: subscriber,
		tracer:          tracer,
		metricsBuilder:  metricsBuilder,
		metricsEnabled:  metricsBuilder != nil,
	}
}

// UseEventSubscriber reads ledger events from sub instead of the shared
// subscriber. Call it before Configure.
func (r *LiveTableRouter) UseEventSubscriber(sub message.Subscriber) {
	if sub != nil {
		r.eventSubscriber = sub
	}
}

// Configure registers the event handler on topic.
func (r *LiveTableRouter) Configure(topic string, sink EventSink) error {
	if r.metricsEnabled && r.metricsBuilder != nil {
		r.metricsBuilder.AddPrometheusRouterMetrics(r.Router)
	}
	r.Router.AddNoPublisherHandler(handlerName, topic, r.eventSubscriber, r.HandleMessage(sink))
	return nil
}

// HandleMessage decodes one message. Undecodable and unknown events are acked
// and dropped so they cannot wedge the stream.
func (r *LiveTableRouter) HandleMessage(sink EventSink) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ctx, span := r.tracer.Start(msg.Context(), "LiveTableRouter.HandleMessage")
		defer span.End()

		logger := r.logger.With(
			slog.String("message_id", msg.UUID),
			slog.String("correlation_id", msg.Metadata.Get(middleware.CorrelationIDMetadataKey)),
		)

		ev, err := livetabletypes.DecodeEvent(msg.Payload)
		if errors.Is(err, livetabletypes.ErrUnknownEvent) {
			logger.Debug("Dropping unknown ledger event", slog.Any("error", err))
			return nil
		}
		if err != nil {
			logger.Warn("Dropping undecodable ledger event", slog.Any("error", err))
			return nil
		}
		span.SetAttributes(attribute.String("event", ev.Kind()))

		if err := sink.Deliver(ctx, ev); err != nil {
			logger.Error("Failed to deliver ledger event", slog.String("event", ev.Kind()), slog.Any("error", err))
			return err
		}
		return nil
	}
}

func (r *LiveTableRouter) Close() error {
	return r.Router.Close()
}
