package livetableservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	txcodec "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/codec"
	livetablemetrics "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/metrics"
	"github.com/Black-And-White-Club/livetable-gateway/config"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

// Coordinator drives the global table. Backend events are the only source of
// round and phase changes; the tick only asks the ledger to move on.
type Coordinator struct {
	cfg       config.LiveTableConfig
	admin     *livetabletypes.Signer
	submitter TxSubmitter
	pusher    Pusher
	health    HealthChecker
	logger    *slog.Logger
	metrics   livetablemetrics.Metrics
	tracer    trace.Tracer
	clock     Clock
	afterFunc AfterFunc

	mu         sync.Mutex
	round      livetabletypes.Round
	playerBets map[string]livetabletypes.BetBook
	registry   *Registry
	settlement *SettlementQueue
	settling   int
	inFlight   map[adminAction]bool
	limiters   map[adminAction]*rate.Limiter
	bots       *BotPool
	botsRound  uint64
	botsBusy   bool
	started    bool

	broadcaster *BroadcastScheduler
	events      chan livetabletypes.Event
	done        chan struct{}
	stopOnce    sync.Once
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock replaces wall time.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithAfterFunc replaces the timer used for deferred broadcasts.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Coordinator) { c.afterFunc = f }
}

// WithHealthChecker sets the ledger probe used at start.
func WithHealthChecker(h HealthChecker) Option {
	return func(c *Coordinator) { c.health = h }
}

// NewCoordinator builds a coordinator. admin signs every table-level
// instruction.
func NewCoordinator(
	cfg config.LiveTableConfig,
	admin *livetabletypes.Signer,
	submitter TxSubmitter,
	pusher Pusher,
	logger *slog.Logger,
	metrics livetablemetrics.Metrics,
	tracer trace.Tracer,
	opts ...Option,
) *Coordinator {
	if metrics == nil {
		metrics = livetablemetrics.NoOpMetrics{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("livetable")
	}
	c := &Coordinator{
		cfg:        cfg,
		admin:      admin,
		submitter:  submitter,
		pusher:     pusher,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		clock:      realClock{},
		playerBets: make(map[string]livetabletypes.BetBook),
		registry:   NewRegistry(),
		settlement: NewSettlementQueue(),
		inFlight:   make(map[adminAction]bool, len(adminActions)),
		limiters:   make(map[adminAction]*rate.Limiter, len(adminActions)),
		events:     make(chan livetabletypes.Event, max(cfg.EventBuffer, 1)),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	for _, a := range adminActions {
		c.limiters[a] = rate.NewLimiter(rate.Every(cfg.AdminRetryInterval), 1)
	}
	if cfg.BotCount > 0 {
		c.bots = NewBotPool(cfg)
	}
	c.broadcaster = NewBroadcastScheduler(
		cfg.BroadcastInterval,
		cfg.BroadcastBatchSize,
		c.broadcastPlan,
		pusher,
		logger,
		metrics,
		c.clock,
		c.afterFunc,
	)
	return c
}

// Start probes the ledger, creates bots and launches the event and tick loops.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.admin == nil {
		return ErrMissingAdminSigner
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	ctx, c.cancel = context.WithCancel(ctx)

	if c.health != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if !c.health.Health(probeCtx) {
			c.logger.Warn("Ledger health probe failed, starting anyway")
		}
		cancel()
	}

	if err := c.spawnBots(); err != nil {
		c.cancel()
		return err
	}

	if c.cfg.InitOnStart {
		if err := c.initTable(ctx); err != nil {
			c.logger.Warn("Table init not accepted", slog.Any("error", err))
		}
	}

	c.wg.Add(2)
	go c.eventLoop(ctx)
	go c.tickLoop(ctx)

	c.logger.Info("Live table coordinator started",
		slog.String("admin", c.admin.PublicKeyHex),
		slog.Duration("tick_interval", c.cfg.TickInterval),
	)
	return nil
}

// Stop halts the loops and waits for in-flight work. Safe to call twice.
func (c *Coordinator) Stop() error {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		c.broadcaster.Stop()
		c.logger.Info("Live table coordinator stopped")
	})
	return nil
}

func (c *Coordinator) initTable(ctx context.Context) error {
	instr := txcodec.EncodeInit(txcodec.TableConfig{
		GameType:        txcodec.GameCraps,
		BettingMs:       uint64(c.cfg.BettingDuration.Milliseconds()),
		LockMs:          uint64(c.cfg.LockDuration.Milliseconds()),
		PayoutMs:        uint64(c.cfg.PayoutDuration.Milliseconds()),
		CooldownMs:      uint64(c.cfg.CooldownDuration.Milliseconds()),
		MinBet:          c.cfg.MinBet,
		MaxBet:          c.cfg.MaxBet,
		MaxBetsPerRound: uint8(min(c.cfg.MaxBetsPerRound, 255)),
	})
	if _, err := c.submitter.Submit(ctx, c.admin, instr); err != nil {
		return fmt.Errorf("init table: %w", err)
	}
	c.logger.Info("Table init accepted")
	return nil
}

// Deliver queues a backend event for the event loop.
func (c *Coordinator) Deliver(ctx context.Context, ev livetabletypes.Event) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Coordinator) eventLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.safely("event", func() { c.HandleEvent(ctx, ev) })
		}
	}
}

func (c *Coordinator) tickLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.safely("tick", func() { c.Tick(ctx) })
		}
	}
}

func (c *Coordinator) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic",
				slog.String("in", what),
				slog.Any("panic", r),
			)
		}
	}()
	fn()
}

// Join registers a viewer and returns the state they should render first.
func (c *Coordinator) Join(ctx context.Context, p Participant) (JoinResult, error) {
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}
	if p.Signer == nil {
		signer, err := livetabletypes.NewSigner(nil)
		if err != nil {
			return JoinResult{}, fmt.Errorf("failed to create session signer: %w", err)
		}
		p.Signer = signer
	}

	c.mu.Lock()
	if !c.registry.AddSession(&Session{ID: p.SessionID, Signer: p.Signer, JoinedAt: c.clock.Now()}) {
		c.mu.Unlock()
		return JoinResult{}, ErrSessionExists
	}
	key := p.Signer.PublicKeyHex
	if p.Balance != nil {
		c.registry.SetBalance(key, *p.Balance)
	}
	state := c.stateForLocked(key)
	result, held := c.registry.TakeResult(key)
	c.mu.Unlock()

	c.logger.Debug("Viewer joined live table",
		slog.String("session_id", p.SessionID),
		slog.String("player", key),
	)
	if err := c.pusher.Push(ctx, p.SessionID, state); err != nil {
		c.logger.Debug("Initial state push failed", slog.String("session_id", p.SessionID), slog.Any("error", err))
	}
	if held {
		if err := c.pusher.Push(ctx, p.SessionID, result); err != nil {
			c.logger.Debug("Held result push failed", slog.String("session_id", p.SessionID), slog.Any("error", err))
		}
	}
	return JoinResult{SessionID: p.SessionID, PublicKeyHex: key, State: state}, nil
}

// Leave removes a viewer. Their bets stay on the table until settlement.
func (c *Coordinator) Leave(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	s, ok := c.registry.RemoveSession(sessionID)
	c.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	c.logger.Debug("Viewer left live table",
		slog.String("session_id", sessionID),
		slog.String("player", s.Signer.PublicKeyHex),
	)
	return nil
}

// Snapshot returns a copy of the coordinator's round.
func (c *Coordinator) Snapshot() livetabletypes.Round {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round.Clone()
}

// PlayerBets returns a copy of one player's open bets.
func (c *Coordinator) PlayerBets(publicKeyHex string) []livetabletypes.Bet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerBets[publicKeyHex].Sorted()
}

// PendingSettlements lists players still owed a settlement, sorted.
func (c *Coordinator) PendingSettlements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settlement.Keys()
}

// WaitBroadcasts blocks until no broadcast pass is running.
func (c *Coordinator) WaitBroadcasts() {
	c.broadcaster.Wait()
}

func (c *Coordinator) stateForLocked(key string) livetabletypes.StateMessage {
	snap := livetabletypes.NewTableSnapshot(c.round, c.clock.Now())
	var balance *uint64
	if b, ok := c.registry.Balance(key); ok {
		balance = &b
	}
	return snap.StateFor(c.playerBets[key], balance)
}

func (c *Coordinator) broadcastPlan() broadcastPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	plan := broadcastPlan{table: livetabletypes.NewTableSnapshot(c.round, c.clock.Now())}
	ids := c.registry.SessionIDs()
	plan.viewers = make([]viewerState, 0, len(ids))
	for _, id := range ids {
		key := c.registry.Session(id).Signer.PublicKeyHex
		v := viewerState{sessionID: id}
		if book := c.playerBets[key]; len(book) > 0 {
			v.bets = livetabletypes.BetBookFrom(book.Sorted())
		}
		if b, ok := c.registry.Balance(key); ok {
			v.balance = &b
		}
		plan.viewers = append(plan.viewers, v)
	}
	return plan
}

// recomputeTotalsLocked rebuilds table totals from every player's open bets.
func (c *Coordinator) recomputeTotalsLocked() {
	totals := make(map[livetabletypes.BetKey]uint64)
	for _, book := range c.playerBets {
		for k, b := range book {
			totals[k] += b.Amount
		}
	}
	c.round.Totals = totals
}

// activeBettorsLocked returns every player holding a non-zero bet, sorted.
func (c *Coordinator) activeBettorsLocked() []string {
	keys := make([]string, 0, len(c.playerBets))
	for k, book := range c.playerBets {
		if book.Total() > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (c *Coordinator) settlementPendingLocked() bool {
	return c.settlement.Len() > 0 || c.settling > 0
}
