package livetableservice

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	livetablemetrics "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/metrics"
	"golang.org/x/sync/errgroup"
)

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// viewerState is one viewer's private part of a state message.
type viewerState struct {
	sessionID string
	bets      livetabletypes.BetBook
	balance   *uint64
}

// broadcastPlan is everything a pass needs, copied out under the state lock.
type broadcastPlan struct {
	table   livetabletypes.TableSnapshot
	viewers []viewerState
}

// BroadcastScheduler fans table state out to every viewer, coalescing
// requests that arrive while a pass is running.
type BroadcastScheduler struct {
	interval  time.Duration
	batchSize int
	collect   func() broadcastPlan
	pusher    Pusher
	logger    *slog.Logger
	metrics   livetablemetrics.Metrics
	clock     Clock
	afterFunc AfterFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	inFlight   bool
	queued     bool
	timerArmed bool
	stopTimer  func() bool
	last       time.Time
	stopped    bool
	passes     int
	// idle is signalled whenever inFlight drops to false.
	idle *sync.Cond
}

func NewBroadcastScheduler(
	interval time.Duration,
	batchSize int,
	collect func() broadcastPlan,
	pusher Pusher,
	logger *slog.Logger,
	metrics livetablemetrics.Metrics,
	clock Clock,
	afterFunc AfterFunc,
) *BroadcastScheduler {
	if batchSize <= 0 {
		batchSize = 1
	}
	if clock == nil {
		clock = realClock{}
	}
	if afterFunc == nil {
		afterFunc = timeAfterFunc
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &BroadcastScheduler{
		interval:  interval,
		batchSize: batchSize,
		collect:   collect,
		pusher:    pusher,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		afterFunc: afterFunc,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// RequestBroadcast asks for a pass. Forced requests skip the minimum interval.
func (s *BroadcastScheduler) RequestBroadcast(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.inFlight {
		s.queued = true
		return
	}
	if !force && !s.last.IsZero() {
		if wait := s.interval - s.clock.Now().Sub(s.last); wait > 0 {
			if !s.timerArmed {
				s.timerArmed = true
				s.stopTimer = s.afterFunc(wait, s.deferredFire)
			}
			return
		}
	}
	if s.timerArmed {
		s.stopTimer()
		s.timerArmed = false
	}
	s.inFlight = true
	go s.run()
}

func (s *BroadcastScheduler) deferredFire() {
	s.mu.Lock()
	s.timerArmed = false
	s.mu.Unlock()
	s.RequestBroadcast(true)
}

func (s *BroadcastScheduler) run() {
	for {
		s.mu.Lock()
		s.last = s.clock.Now()
		s.passes++
		s.mu.Unlock()

		s.pass()

		s.mu.Lock()
		if s.queued && !s.stopped {
			s.queued = false
			s.mu.Unlock()
			continue
		}
		s.queued = false
		s.inFlight = false
		s.idle.Broadcast()
		s.mu.Unlock()
		return
	}
}

func (s *BroadcastScheduler) pass() {
	start := time.Now()
	plan := s.collect()
	for i := 0; i < len(plan.viewers); i += s.batchSize {
		if s.ctx.Err() != nil {
			return
		}
		end := min(i+s.batchSize, len(plan.viewers))
		g, ctx := errgroup.WithContext(s.ctx)
		for _, v := range plan.viewers[i:end] {
			g.Go(func() error {
				msg := plan.table.StateFor(v.bets, v.balance)
				if err := s.pusher.Push(ctx, v.sessionID, msg); err != nil {
					s.logger.Debug("State push failed",
						slog.String("session_id", v.sessionID),
						slog.Any("error", err),
					)
				}
				return nil
			})
		}
		_ = g.Wait()
		runtime.Gosched()
	}
	s.metrics.RecordBroadcast(len(plan.viewers), time.Since(start))
}

// Passes reports how many passes have started.
func (s *BroadcastScheduler) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// Wait blocks until no pass is running. A request racing Wait may start a
// pass right after it returns.
func (s *BroadcastScheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inFlight {
		s.idle.Wait()
	}
}

// Stop cancels pending timers and waits for the running pass.
func (s *BroadcastScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timerArmed {
		s.stopTimer()
		s.timerArmed = false
	}
	s.mu.Unlock()
	s.cancel()
	s.Wait()
}
