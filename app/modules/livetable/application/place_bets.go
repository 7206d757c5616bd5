package livetableservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	txcodec "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/codec"
)

var errBetsNotAccepted = errors.New("bets not accepted")

// PlaceBets validates a viewer's bets and submits them as one instruction.
// The returned confirmation is "pending" on acceptance; the confirmed view
// arrives with bet_accepted.
func (c *Coordinator) PlaceBets(ctx context.Context, sessionID string, inputs []livetabletypes.BetInput) (livetabletypes.ConfirmationMessage, error) {
	c.mu.Lock()
	roundID := c.round.RoundID
	signer, bets, err := c.validateBetsLocked(sessionID, inputs)
	var balance *uint64
	if signer != nil {
		if b, ok := c.registry.Balance(signer.PublicKeyHex); ok {
			balance = &b
		}
	}
	c.mu.Unlock()

	if err != nil {
		return c.confirmation(roundID, livetabletypes.StatusFailed, nil, balance, err.Error()), err
	}

	instr := txcodec.EncodeSubmitBets(txcodec.GameCraps, roundID, bets)
	accepted, err := c.submitter.Submit(ctx, signer, instr)
	if err == nil && !accepted {
		err = errBetsNotAccepted
	}
	if err != nil {
		c.logger.Warn("Bet submission failed",
			slog.String("session_id", sessionID),
			slog.Uint64("round_id", roundID),
			slog.Any("error", err),
		)
		return c.confirmation(roundID, livetabletypes.StatusFailed, bets, balance, err.Error()),
			fmt.Errorf("submit bets: %w", err)
	}

	c.logger.Debug("Bets submitted",
		slog.String("session_id", sessionID),
		slog.Uint64("round_id", roundID),
		slog.Int("count", len(bets)),
	)
	return c.confirmation(roundID, livetabletypes.StatusPending, bets, balance, ""), nil
}

func (c *Coordinator) confirmation(roundID uint64, status string, bets []livetabletypes.Bet, balance *uint64, message string) livetabletypes.ConfirmationMessage {
	return livetabletypes.ConfirmationMessage{
		Type:    livetabletypes.MessageConfirmation,
		Game:    livetabletypes.GameCraps,
		RoundID: roundID,
		Status:  status,
		Bets:    livetabletypes.BetsView(bets),
		Balance: livetabletypes.FormatBalance(balance),
		Message: message,
	}
}

// validateBetsLocked returns the session's signer and the normalized bets,
// merged by key, or a *BetValidationError.
func (c *Coordinator) validateBetsLocked(sessionID string, inputs []livetabletypes.BetInput) (*livetabletypes.Signer, []livetabletypes.Bet, error) {
	s := c.registry.Session(sessionID)
	if s == nil {
		return nil, nil, livetabletypes.NewBetValidationError(livetabletypes.CodeNotSubscribed, "join the table before betting")
	}
	key := s.Signer.PublicKeyHex
	if c.round.RoundID == 0 {
		return s.Signer, nil, livetabletypes.NewBetValidationError(livetabletypes.CodeNoRound, "no round is open")
	}
	if c.round.Phase != livetabletypes.PhaseBetting {
		return s.Signer, nil, livetabletypes.NewBetValidationError(livetabletypes.CodeBettingClosed, "betting is closed")
	}
	balance, known := c.registry.Balance(key)
	if known && balance == 0 {
		return s.Signer, nil, livetabletypes.NewBetValidationError(livetabletypes.CodeInsufficientBalance, "no chips")
	}
	if len(inputs) == 0 {
		return s.Signer, nil, livetabletypes.NewBetValidationError(livetabletypes.CodeInvalidBet, "no bets")
	}

	book := make(livetabletypes.BetBook, len(inputs))
	for _, in := range inputs {
		betType, target, err := livetabletypes.NormalizeBetType(in.Type, in.Target)
		if err != nil {
			return s.Signer, nil, err
		}
		amount, err := livetabletypes.NormalizeAmount(in.Amount)
		if err != nil {
			return s.Signer, nil, err
		}
		if amount < c.cfg.MinBet || amount > c.cfg.MaxBet {
			return s.Signer, nil, livetabletypes.NewBetValidationError(livetabletypes.CodeInvalidBetAmount,
				fmt.Sprintf("amount must be between %d and %d", c.cfg.MinBet, c.cfg.MaxBet))
		}
		book.Add(livetabletypes.Bet{BetType: betType, Target: target, Amount: amount})
	}

	existing := c.playerBets[key]
	distinct := len(existing)
	for k := range book {
		if _, ok := existing[k]; !ok {
			distinct++
		}
	}
	if c.cfg.MaxBetsPerRound > 0 && distinct > c.cfg.MaxBetsPerRound {
		return s.Signer, nil, livetabletypes.NewBetValidationError(livetabletypes.CodeTooManyBets,
			fmt.Sprintf("at most %d bets per round", c.cfg.MaxBetsPerRound))
	}
	if known && book.Total() > balance {
		return s.Signer, nil, livetabletypes.NewBetValidationError(livetabletypes.CodeInsufficientBalance, "stake exceeds balance")
	}
	return s.Signer, book.Sorted(), nil
}
