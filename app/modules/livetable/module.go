package livetable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	livetableservice "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/application"
	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	ledgerclient "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/backend"
	livetablemetrics "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/metrics"
	nonceledger "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/nonce"
	livetablepush "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/push"
	livetablequeue "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/queue"
	noncedb "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/repositories"
	livetablerouter "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/router"
	txsubmitter "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/submitter"
	"github.com/Black-And-White-Club/livetable-gateway/config"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"
)

// Module represents the live table module.
type Module struct {
	Service     livetableservice.Service
	Coordinator *livetableservice.Coordinator
	Router      *livetablerouter.LiveTableRouter
	Ledger      *nonceledger.Ledger

	queue           *livetablequeue.Service
	persistInterval time.Duration
	logger          *slog.Logger
	cancelFunc      context.CancelFunc
	closeOnce       sync.Once
}

// NewLiveTableModule wires the live table. db is optional; without it nonces
// are kept in the configured file and persisted by a ticker instead of River.
// A nil eventSubscriber reads ledger events through subscriber.
func NewLiveTableModule(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	tracer trace.Tracer,
	registry *prometheus.Registry,
	router *message.Router,
	subscriber message.Subscriber,
	eventSubscriber message.Subscriber,
	publisher message.Publisher,
	db *bun.DB,
) (*Module, error) {
	logger.InfoContext(ctx, "livetable.NewLiveTableModule initializing")

	admin, err := livetabletypes.SignerFromSeedHex(cfg.LiveTable.AdminKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin signer: %w", err)
	}

	// 1. Ledger client
	client := ledgerclient.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, nil, logger)

	// 2. Nonce ledger
	var store nonceledger.Store = nonceledger.NewFileStore(cfg.LiveTable.NonceFile)
	if db != nil {
		store = noncedb.NewNonceDB(db)
	}
	ledger := nonceledger.NewLedger(client, store, logger)

	// 3. Metrics
	var metrics livetablemetrics.Metrics = livetablemetrics.NoOpMetrics{}
	if registry != nil {
		metrics = livetablemetrics.NewPrometheusMetrics(registry)
	}

	// 4. Submitter, pusher and coordinator
	submitter := txsubmitter.NewSubmitter(ledger, client, ledgerclient.IsNonceRejection, logger, metrics, tracer)
	pusher := livetablepush.NewPublisher(publisher, cfg.NATS.PushSubjectPrefix, logger)
	coordinator := livetableservice.NewCoordinator(
		cfg.LiveTable,
		admin,
		submitter,
		pusher,
		logger,
		metrics,
		tracer,
		livetableservice.WithHealthChecker(client),
	)

	// 5. Router
	liveTableRouter := livetablerouter.NewLiveTableRouter(logger, router, subscriber, tracer, registry)
	liveTableRouter.UseEventSubscriber(eventSubscriber)
	if err := liveTableRouter.Configure(cfg.NATS.EventSubject, coordinator); err != nil {
		return nil, fmt.Errorf("failed to configure live table router: %w", err)
	}
	liveTableRouter.ConfigureCommands(cfg.NATS.CommandSubject, coordinator, pusher)

	m := &Module{
		Service:         coordinator,
		Coordinator:     coordinator,
		Router:          liveTableRouter,
		Ledger:          ledger,
		persistInterval: cfg.LiveTable.NoncePersistInterval,
		logger:          logger,
	}

	// 6. Snapshot queue
	if cfg.Postgres.DSN != "" {
		queue, err := livetablequeue.NewService(ctx, cfg.Postgres.DSN, ledger, cfg.LiveTable.NoncePersistInterval, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create live table queue: %w", err)
		}
		m.queue = queue
	}

	return m, nil
}

// Run restores nonces, starts the coordinator and blocks until ctx is done.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	if wg != nil {
		defer wg.Done()
	}
	m.logger.InfoContext(ctx, "Starting live table module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if n, err := m.Ledger.Restore(ctx); err != nil {
		m.logger.WarnContext(ctx, "Nonce restore failed, accounts will sync from the ledger", slog.Any("error", err))
	} else {
		m.logger.InfoContext(ctx, "Nonces restored", slog.Int("accounts", n))
	}

	if err := m.Coordinator.Start(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to start live table coordinator", slog.Any("error", err))
		return
	}

	if m.queue != nil {
		if err := m.queue.Start(ctx); err != nil {
			m.logger.ErrorContext(ctx, "Queue start failed, falling back to periodic persist", slog.Any("error", err))
			m.queue = nil
		}
	}
	if m.queue == nil {
		go m.Ledger.RunPersistLoop(ctx, m.persistInterval)
	}

	<-ctx.Done()
	m.logger.Info("Live table module goroutine stopped")
}

// Close stops the coordinator and writes the nonce map one last time.
func (m *Module) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		m.logger.Info("Stopping live table module")
		if m.cancelFunc != nil {
			m.cancelFunc()
		}
		if err := m.Coordinator.Stop(); err != nil && !errors.Is(err, livetableservice.ErrStopped) {
			errs = append(errs, fmt.Errorf("error stopping coordinator: %w", err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if m.queue != nil {
			if err := m.queue.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := m.Ledger.Persist(ctx); err != nil {
			errs = append(errs, err)
		}
		if m.Router != nil {
			if err := m.Router.Close(); err != nil {
				errs = append(errs, fmt.Errorf("error closing LiveTableRouter: %w", err))
			}
		}
		m.logger.Info("Live table module stopped")
	})
	return errors.Join(errs...)
}
