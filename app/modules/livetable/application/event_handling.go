package livetableservice

import (
	"context"
	"log/slog"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
)

// outbound is a push produced while handling an event, sent after unlock.
type outbound struct {
	sessionID string
	payload   any
}

// HandleEvent applies one backend event. Events overwrite local state; the
// ledger is always right.
func (c *Coordinator) HandleEvent(ctx context.Context, ev livetabletypes.Event) {
	c.mu.Lock()
	var (
		pushes []outbound
		force  bool
	)
	switch e := ev.(type) {
	case livetabletypes.RoundOpened:
		force = c.onRoundOpened(e)
	case livetabletypes.Locked:
		force = c.onLocked(e)
	case livetabletypes.Outcome:
		force = c.onOutcome(e)
	case livetabletypes.Finalized:
		force = c.onFinalized(e)
	case livetabletypes.BetAccepted:
		pushes, force = c.onBetAccepted(e)
	case livetabletypes.BetRejected:
		pushes = c.onBetRejected(e)
	case livetabletypes.PlayerSettled:
		pushes, force = c.onPlayerSettled(e)
	default:
		c.logger.Warn("Dropping unhandled live table event", slog.String("kind", ev.Kind()))
	}
	c.metrics.SetPhase(uint8(c.round.Phase), c.round.RoundID)
	c.mu.Unlock()

	for _, p := range pushes {
		if err := c.pusher.Push(ctx, p.sessionID, p.payload); err != nil {
			c.logger.Debug("Push failed",
				slog.String("session_id", p.sessionID),
				slog.String("event", ev.Kind()),
				slog.Any("error", err),
			)
		}
	}
	if force {
		c.broadcaster.RequestBroadcast(true)
	}
}

// adoptRoundLocked switches to roundID when an event names a round the
// coordinator has not seen open.
func (c *Coordinator) adoptRoundLocked(roundID uint64) {
	if roundID == 0 || roundID == c.round.RoundID {
		return
	}
	c.logger.Warn("Adopting round from event",
		slog.Uint64("local_round_id", c.round.RoundID),
		slog.Uint64("event_round_id", roundID),
	)
	c.round.RoundID = roundID
	c.round.Point = nil
	c.round.Dice = nil
	c.playerBets = make(map[string]livetabletypes.BetBook)
	c.recomputeTotalsLocked()
	c.settlement.Reset(nil)
}

func (c *Coordinator) onRoundOpened(e livetabletypes.RoundOpened) bool {
	now := c.clock.Now()
	if e.Round.RoundID != 0 && e.Round.RoundID < c.round.RoundID {
		c.logger.Warn("Round opened for an older round, trusting ledger",
			slog.Uint64("local_round_id", c.round.RoundID),
			slog.Uint64("event_round_id", e.Round.RoundID),
		)
	}
	c.round = e.Round.Clone()
	c.round.Phase = livetabletypes.PhaseBetting
	if c.round.PhaseEndsAt.IsZero() {
		c.round.PhaseEndsAt = now.Add(c.cfg.BettingDuration)
	}
	c.playerBets = make(map[string]livetabletypes.BetBook)
	c.recomputeTotalsLocked()
	if n := c.settlement.Len(); n > 0 {
		c.logger.Warn("Clearing stale settlement queue on round open",
			slog.Int("pending", n),
			slog.Uint64("round_id", c.round.RoundID),
		)
	}
	c.settlement.Reset(nil)
	c.botsRound = 0
	if id := c.round.RoundID; id > 0 {
		c.registry.Prune(id - 1)
	}
	c.logger.Info("Round opened", slog.Uint64("round_id", c.round.RoundID))
	return true
}

func (c *Coordinator) onLocked(e livetabletypes.Locked) bool {
	c.adoptRoundLocked(e.RoundID)
	c.round.Phase = livetabletypes.PhaseLocked
	c.round.PhaseEndsAt = e.PhaseEndsAt
	if c.round.PhaseEndsAt.IsZero() {
		c.round.PhaseEndsAt = c.clock.Now().Add(c.cfg.LockDuration)
	}
	c.logger.Info("Round locked", slog.Uint64("round_id", c.round.RoundID))
	return true
}

func (c *Coordinator) onOutcome(e livetabletypes.Outcome) bool {
	c.adoptRoundLocked(e.Round.RoundID)
	now := c.clock.Now()
	c.round.Phase = livetabletypes.PhasePayout
	if e.Round.Phase != livetabletypes.PhaseBetting {
		c.round.Phase = e.Round.Phase
	}
	c.round.PhaseEndsAt = e.Round.PhaseEndsAt
	if c.round.PhaseEndsAt.IsZero() {
		c.round.PhaseEndsAt = now.Add(c.cfg.PayoutDuration)
	}
	r := e.Round.Clone()
	c.round.Point, c.round.Dice = r.Point, r.Dice
	c.recomputeTotalsLocked()

	owed := c.activeBettorsLocked()
	c.settlement.Reset(owed)
	c.logger.Info("Round outcome",
		slog.Uint64("round_id", c.round.RoundID),
		slog.Int("settlements", len(owed)),
	)
	return true
}

func (c *Coordinator) onFinalized(e livetabletypes.Finalized) bool {
	c.adoptRoundLocked(e.RoundID)
	c.round.Phase = livetabletypes.PhaseCooldown
	c.round.PhaseEndsAt = c.clock.Now().Add(c.cfg.CooldownDuration)
	if n := c.settlement.Len(); n > 0 {
		c.logger.Warn("Round finalized with settlements pending",
			slog.Int("pending", n),
			slog.Uint64("round_id", c.round.RoundID),
		)
	}
	c.settlement.Reset(nil)
	c.logger.Info("Round finalized", slog.Uint64("round_id", c.round.RoundID))
	return true
}

func (c *Coordinator) onBetAccepted(e livetabletypes.BetAccepted) ([]outbound, bool) {
	if e.RoundID != 0 && e.RoundID < c.round.RoundID {
		c.logger.Debug("Ignoring bet accepted for an earlier round",
			slog.String("player", e.Player),
			slog.Uint64("event_round_id", e.RoundID),
		)
		return nil, false
	}
	c.adoptRoundLocked(e.RoundID)

	book := c.playerBets[e.Player]
	if book == nil {
		book = make(livetabletypes.BetBook)
		c.playerBets[e.Player] = book
	}
	for _, b := range e.Bets {
		book.Add(b)
	}
	if len(book) == 0 {
		delete(c.playerBets, e.Player)
	}
	c.recomputeTotalsLocked()
	c.registry.SetBalance(e.Player, e.Balances.Chips)

	balance := e.Balances.Chips
	msg := livetabletypes.ConfirmationMessage{
		Type:    livetabletypes.MessageConfirmation,
		Game:    livetabletypes.GameCraps,
		RoundID: c.round.RoundID,
		Status:  livetabletypes.StatusConfirmed,
		Bets:    livetabletypes.BetsView(c.playerBets[e.Player].Sorted()),
		Balance: livetabletypes.FormatBalance(&balance),
	}
	return c.toSessionsLocked(e.Player, msg), true
}

func (c *Coordinator) onBetRejected(e livetabletypes.BetRejected) []outbound {
	c.logger.Debug("Bet rejected by ledger",
		slog.String("player", e.Player),
		slog.Uint64("round_id", e.RoundID),
		slog.String("message", e.Message),
	)
	msg := livetabletypes.ConfirmationMessage{
		Type:    livetabletypes.MessageConfirmation,
		Game:    livetabletypes.GameCraps,
		RoundID: c.round.RoundID,
		Status:  livetabletypes.StatusFailed,
		Message: e.Message,
	}
	return c.toSessionsLocked(e.Player, msg)
}

func (c *Coordinator) onPlayerSettled(e livetabletypes.PlayerSettled) ([]outbound, bool) {
	c.settlement.Remove(e.Player)
	current := e.RoundID == 0 || e.RoundID == c.round.RoundID
	if current {
		if book := livetabletypes.BetBookFrom(e.MyBets); len(book) > 0 {
			c.playerBets[e.Player] = book
		} else {
			delete(c.playerBets, e.Player)
		}
		c.recomputeTotalsLocked()
	}
	c.registry.SetBalance(e.Player, e.Balances.Chips)

	balance := e.Balances.Chips
	msg := livetabletypes.ResultMessage{
		Type:    livetabletypes.MessageResult,
		Game:    livetabletypes.GameCraps,
		RoundID: e.RoundID,
		Payout:  e.Payout,
		Balance: livetabletypes.FormatBalance(&balance),
		MyBets:  livetabletypes.BetsView(livetabletypes.BetBookFrom(e.MyBets).Sorted()),
	}
	if current {
		r := c.round.Clone()
		msg.Dice, msg.Point = r.Dice, r.Point
		if r.Dice != nil {
			msg.Total = r.Dice[0] + r.Dice[1]
		}
	}
	if c.registry.HoldResult(e.Player, msg) {
		c.logger.Debug("Holding settlement result until rejoin",
			slog.String("player", e.Player),
			slog.Uint64("round_id", e.RoundID),
		)
	}
	return c.toSessionsLocked(e.Player, msg), current
}

func (c *Coordinator) toSessionsLocked(player string, payload any) []outbound {
	ids := c.registry.SessionsFor(player)
	out := make([]outbound, 0, len(ids))
	for _, id := range ids {
		out = append(out, outbound{sessionID: id, payload: payload})
	}
	return out
}
