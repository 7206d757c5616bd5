package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable"
	"github.com/Black-And-White-Club/livetable-gateway/config"
	"github.com/Black-And-White-Club/livetable-gateway/db/bundb"
	natsutil "github.com/Black-And-White-Club/livetable-gateway/internal/nats"
	watermillutil "github.com/Black-And-White-Club/livetable-gateway/internal/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
)

const serviceName = "livetable-gateway"

// App holds the gateway's shared infrastructure and its modules.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Router     *message.Router
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// EventSubscriber is set when ledger events come from a JetStream stream.
	EventSubscriber message.Subscriber
	DB              *bundb.DBService
	LiveTable       *livetable.Module

	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg config.ObservabilityConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With(slog.String("service", serviceName))
	if cfg.Environment != "" {
		logger = logger.With(slog.String("environment", cfg.Environment))
	}
	return logger
}

// Initialize connects to NATS and Postgres and builds the live table module.
func (app *App) Initialize(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	app.Config = cfg
	app.Logger = logger

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	wmLogger := watermillutil.NewLogger(logger)
	natsCfg := natsutil.Config{URL: cfg.NATS.URL, NKeySeed: cfg.NATS.NKeySeed, Name: serviceName}

	publisher, err := natsutil.NewPublisher(natsCfg, wmLogger)
	if err != nil {
		return err
	}
	app.Publisher = publisher

	subscriber, err := natsutil.NewSubscriber(natsCfg, cfg.NATS.QueueGroup, wmLogger)
	if err != nil {
		return err
	}
	app.Subscriber = subscriber

	if stream := cfg.NATS.EventStream; stream != "" {
		if err := natsutil.EnsureStream(ctx, natsCfg, stream, []string{cfg.NATS.EventSubject}, logger); err != nil {
			return err
		}
		eventSubscriber, err := natsutil.NewJetStreamSubscriber(natsCfg, cfg.NATS.QueueGroup, wmLogger)
		if err != nil {
			return err
		}
		app.EventSubscriber = eventSubscriber
	}

	router, err := watermillutil.NewRouter(wmLogger, 10*time.Second)
	if err != nil {
		return err
	}
	app.Router = router

	var db *bun.DB
	if cfg.Postgres.DSN != "" {
		dbService, err := bundb.NewBunDBService(ctx, cfg.Postgres, logger)
		if err != nil {
			return err
		}
		app.DB = dbService
		db = dbService.GetDB()
	}

	if !cfg.LiveTable.Enabled {
		logger.WarnContext(ctx, "Live table disabled; only the metrics endpoint will run")
		return nil
	}

	module, err := livetable.NewLiveTableModule(
		ctx,
		cfg,
		logger,
		otel.Tracer(serviceName),
		app.Registry,
		router,
		subscriber,
		app.EventSubscriber,
		publisher,
		db,
	)
	if err != nil {
		return fmt.Errorf("failed to create live table module: %w", err)
	}
	app.LiveTable = module
	return nil
}

// Run serves until ctx is done.
func (app *App) Run(ctx context.Context) error {
	if addr := app.Config.Observability.MetricsAddress; addr != "" {
		app.httpServer = &http.Server{
			Addr:              addr,
			Handler:           app.HTTPHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			app.Logger.Info("Serving metrics", slog.String("address", addr))
			if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Logger.Error("Metrics server failed", slog.Any("error", err))
			}
		}()
	}

	if app.LiveTable != nil {
		app.wg.Add(1)
		go app.LiveTable.Run(ctx, &app.wg)
	}

	if err := app.Router.Run(ctx); err != nil {
		return fmt.Errorf("watermill router stopped: %w", err)
	}
	return nil
}

// Close shuts everything down in reverse order of construction.
func (app *App) Close() error {
	var errs []error
	if app.LiveTable != nil {
		errs = append(errs, app.LiveTable.Close())
	}
	app.wg.Wait()
	if app.Router != nil {
		errs = append(errs, app.Router.Close())
	}
	if app.EventSubscriber != nil {
		errs = append(errs, app.EventSubscriber.Close())
	}
	if app.Subscriber != nil {
		errs = append(errs, app.Subscriber.Close())
	}
	if app.Publisher != nil {
		errs = append(errs, app.Publisher.Close())
	}
	if app.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, app.httpServer.Shutdown(ctx))
		cancel()
	}
	if app.DB != nil {
		errs = append(errs, app.DB.Close())
	}
	return errors.Join(errs...)
}
