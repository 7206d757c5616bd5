package livetableservice

import (
	"context"
	"log/slog"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	txcodec "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/codec"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Tick runs one coordinator iteration: at most one admin transition attempt,
// one settlement batch and the round's bot bets, then a throttled broadcast.
func (c *Coordinator) Tick(ctx context.Context) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "RoundCoordinator.Tick")
	defer span.End()

	action, roundID, ok := c.claimAdminAction()
	if ok {
		span.SetAttributes(
			attribute.String("admin_action", string(action)),
			attribute.Int64("round_id", int64(roundID)),
		)
	}

	var g errgroup.Group
	if ok {
		g.Go(func() error {
			c.runAdminAction(ctx, action, roundID)
			return nil
		})
	}
	g.Go(func() error {
		c.drainSettlement(ctx)
		return nil
	})
	g.Go(func() error {
		c.placeBotBets(ctx)
		return nil
	})
	_ = g.Wait()

	c.broadcaster.RequestBroadcast(false)
	c.metrics.RecordTick(time.Since(start))
}

// nextAdminActionLocked picks the transition the table is overdue for.
// A zero deadline counts as expired.
func (c *Coordinator) nextAdminActionLocked(now time.Time) (adminAction, bool) {
	r := c.round
	if r.RoundID == 0 {
		return actionOpenRound, true
	}
	expired := r.PhaseEndsAt.IsZero() || !now.Before(r.PhaseEndsAt.Add(c.cfg.AdminGracePeriod))
	if !expired {
		return "", false
	}
	switch r.Phase {
	case livetabletypes.PhaseBetting:
		return actionLock, true
	case livetabletypes.PhaseLocked, livetabletypes.PhaseRolling:
		return actionReveal, true
	case livetabletypes.PhasePayout:
		if c.settlementPendingLocked() {
			return "", false
		}
		return actionFinalize, true
	case livetabletypes.PhaseCooldown:
		if c.settlementPendingLocked() {
			return "", false
		}
		return actionOpenRound, true
	}
	return "", false
}

// claimAdminAction reserves the overdue action unless one of its kind is in
// flight or it was attempted within the retry interval.
func (c *Coordinator) claimAdminAction() (adminAction, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	action, ok := c.nextAdminActionLocked(now)
	if !ok || c.inFlight[action] {
		return "", 0, false
	}
	if !c.limiters[action].AllowN(now, 1) {
		return "", 0, false
	}
	c.inFlight[action] = true
	return action, c.round.RoundID, true
}

func (c *Coordinator) runAdminAction(ctx context.Context, action adminAction, roundID uint64) {
	defer func() {
		c.mu.Lock()
		c.inFlight[action] = false
		c.mu.Unlock()
	}()

	if !c.adminActionStillDue(action, roundID) {
		c.logger.Debug("Admin transition no longer due",
			slog.String("action", string(action)),
			slog.Uint64("round_id", roundID),
		)
		return
	}

	var instr []byte
	switch action {
	case actionOpenRound:
		instr = txcodec.EncodeOpenRound(txcodec.GameCraps)
	case actionLock:
		instr = txcodec.EncodeLock(txcodec.GameCraps, roundID)
	case actionReveal:
		instr = txcodec.EncodeReveal(txcodec.GameCraps, roundID)
	case actionFinalize:
		instr = txcodec.EncodeFinalize(txcodec.GameCraps, roundID)
	default:
		return
	}

	accepted, err := c.submitter.Submit(ctx, c.admin, instr)
	if err != nil {
		c.logger.Warn("Admin transition not accepted",
			slog.String("action", string(action)),
			slog.Uint64("round_id", roundID),
			slog.Any("error", err),
		)
		return
	}
	if accepted {
		c.logger.Debug("Admin transition accepted",
			slog.String("action", string(action)),
			slog.Uint64("round_id", roundID),
		)
	}
}

// adminActionStillDue re-reads the round after the claim; an event may have
// moved it on since.
func (c *Coordinator) adminActionStillDue(action adminAction, roundID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.round.RoundID != roundID {
		return false
	}
	next, ok := c.nextAdminActionLocked(c.clock.Now())
	return ok && next == action
}
