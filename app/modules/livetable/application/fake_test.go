package livetableservice

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	txcodec "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/codec"
	"github.com/Black-And-White-Club/livetable-gateway/config"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// ------------------------
// Fake Submitter
// ------------------------

type submission struct {
	Account string
	Decoded txcodec.Decoded
}

type FakeSubmitter struct {
	mu    sync.Mutex
	calls []submission

	SubmitFunc func(ctx context.Context, signer *livetabletypes.Signer, instruction []byte) (bool, error)
}

func (f *FakeSubmitter) Submit(ctx context.Context, signer *livetabletypes.Signer, instruction []byte) (bool, error) {
	d, _, err := txcodec.DecodeInstruction(instruction)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.calls = append(f.calls, submission{Account: signer.PublicKeyHex, Decoded: d})
	f.mu.Unlock()
	if f.SubmitFunc != nil {
		return f.SubmitFunc(ctx, signer, instruction)
	}
	return true, nil
}

func (f *FakeSubmitter) Calls() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.calls...)
}

// Tags returns the instruction tags submitted so far, in order.
func (f *FakeSubmitter) Tags() []byte {
	var out []byte
	for _, c := range f.Calls() {
		out = append(out, c.Decoded.Tag)
	}
	return out
}

func (f *FakeSubmitter) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// ------------------------
// Fake Pusher
// ------------------------

type push struct {
	SessionID string
	Payload   any
}

type FakePusher struct {
	mu     sync.Mutex
	pushes []push

	PushFunc func(ctx context.Context, sessionID string, payload any) error
}

func (f *FakePusher) Push(ctx context.Context, sessionID string, payload any) error {
	f.mu.Lock()
	f.pushes = append(f.pushes, push{SessionID: sessionID, Payload: payload})
	f.mu.Unlock()
	if f.PushFunc != nil {
		return f.PushFunc(ctx, sessionID, payload)
	}
	return nil
}

func (f *FakePusher) Pushes() []push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push(nil), f.pushes...)
}

func (f *FakePusher) Confirmations(sessionID string) []livetabletypes.ConfirmationMessage {
	var out []livetabletypes.ConfirmationMessage
	for _, p := range f.Pushes() {
		if m, ok := p.Payload.(livetabletypes.ConfirmationMessage); ok && p.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func (f *FakePusher) Results(sessionID string) []livetabletypes.ResultMessage {
	var out []livetabletypes.ResultMessage
	for _, p := range f.Pushes() {
		if m, ok := p.Payload.(livetabletypes.ResultMessage); ok && p.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

// ------------------------
// Fake Health Checker
// ------------------------

type FakeHealthChecker struct {
	HealthFunc func(ctx context.Context) bool
}

func (f *FakeHealthChecker) Health(ctx context.Context) bool {
	if f.HealthFunc != nil {
		return f.HealthFunc(ctx)
	}
	return true
}

// ------------------------
// Fake Clock
// ------------------------

type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// ------------------------
// Fake Timer
// ------------------------

// FakeTimers records deferred callbacks so tests decide when they fire.
type FakeTimers struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]func()
}

func (f *FakeTimers) AfterFunc(_ time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = make(map[int]func())
	}
	id := f.nextID
	f.nextID++
	f.pending[id] = fn
	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.pending[id]; !ok {
			return false
		}
		delete(f.pending, id)
		return true
	}
}

// Fire runs every pending callback.
func (f *FakeTimers) Fire() int {
	f.mu.Lock()
	fns := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (f *FakeTimers) Armed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// ------------------------
// Harness
// ------------------------

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.LiveTableConfig {
	return config.LiveTableConfig{
		Enabled:            true,
		BettingDuration:    config.DefaultBettingDuration,
		LockDuration:       config.DefaultLockDuration,
		PayoutDuration:     config.DefaultPayoutDuration,
		CooldownDuration:   config.DefaultCooldownDuration,
		TickInterval:       config.DefaultTickInterval,
		MinBet:             config.DefaultMinBet,
		MaxBet:             config.DefaultMaxBet,
		MaxBetsPerRound:    config.DefaultMaxBetsPerRound,
		SettleBatchSize:    config.DefaultSettleBatchSize,
		SettleMaxAttempts:  config.DefaultSettleMaxAttempts,
		AdminRetryInterval: config.DefaultAdminRetryInterval,
		AdminGracePeriod:   config.DefaultAdminGracePeriod,
		BroadcastInterval:  config.DefaultBroadcastInterval,
		BroadcastBatchSize: config.DefaultBroadcastBatchSize,
		BotBatchSize:       config.DefaultBotBatchSize,
		BotBetMin:          config.DefaultBotBetMin,
		BotBetMax:          config.DefaultBotBetMax,
		BotBetsMin:         config.DefaultBotBetsMin,
		BotBetsMax:         config.DefaultBotBetsMax,
		BotMaxActiveBets:   config.DefaultBotMaxActiveBets,
		BotParticipation:   config.DefaultBotParticipation,
		BotSeed:            config.DefaultBotSeed,
		EventBuffer:        config.DefaultEventBuffer,
	}
}

type harness struct {
	c         *Coordinator
	admin     *livetabletypes.Signer
	submitter *FakeSubmitter
	pusher    *FakePusher
	clock     *FakeClock
	timers    *FakeTimers
}

func newHarness(t *testing.T, mutate func(*config.LiveTableConfig)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	admin := mustSigner(t)
	h := &harness{
		admin:     admin,
		submitter: &FakeSubmitter{},
		pusher:    &FakePusher{},
		clock:     NewFakeClock(),
		timers:    &FakeTimers{},
	}
	h.c = NewCoordinator(cfg, admin, h.submitter, h.pusher, discardLogger(), nil,
		noop.NewTracerProvider().Tracer("test"),
		WithClock(h.clock),
		WithAfterFunc(h.timers.AfterFunc),
	)
	t.Cleanup(func() { _ = h.c.Stop() })
	return h
}

func mustSigner(t *testing.T) *livetabletypes.Signer {
	t.Helper()
	s, err := livetabletypes.NewSigner(nil)
	require.NoError(t, err)
	return s
}

// join registers a session with a fresh signer and optional balance.
func (h *harness) join(t *testing.T, sessionID string, balance *uint64) *livetabletypes.Signer {
	t.Helper()
	signer := mustSigner(t)
	_, err := h.c.Join(context.Background(), Participant{SessionID: sessionID, Signer: signer, Balance: balance})
	require.NoError(t, err)
	return signer
}

func (h *harness) event(ev livetabletypes.Event) {
	h.c.HandleEvent(context.Background(), ev)
	h.c.WaitBroadcasts()
}

func (h *harness) tick() {
	h.c.Tick(context.Background())
	h.c.WaitBroadcasts()
}

// openRound delivers round_opened with a betting deadline in the future.
func (h *harness) openRound(id uint64) {
	h.event(livetabletypes.RoundOpened{Round: livetabletypes.Round{
		RoundID:     id,
		Phase:       livetabletypes.PhaseBetting,
		PhaseEndsAt: h.clock.Now().Add(10 * time.Second),
	}})
}

func ptr[T any](v T) *T { return &v }
