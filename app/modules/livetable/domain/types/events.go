package livetabletypes

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event kinds carried on the ledger's event stream.
const (
	EventRoundOpened   = "round_opened"
	EventLocked        = "locked"
	EventOutcome       = "outcome"
	EventFinalized     = "finalized"
	EventBetAccepted   = "bet_accepted"
	EventBetRejected   = "bet_rejected"
	EventPlayerSettled = "player_settled"
)

// ErrUnknownEvent is returned by DecodeEvent for kinds the gateway does not handle.
var ErrUnknownEvent = errors.New("unknown event kind")

// Event is a backend notification about the global table. The set is closed.
type Event interface {
	Kind() string
	isEvent()
}

// BalanceSnapshot is the player's balances right after the event was applied.
type BalanceSnapshot struct {
	Chips           uint64  `json:"chips"`
	VUSDTBalance    uint64  `json:"vusdtBalance"`
	TournamentChips uint64  `json:"tournamentChips"`
	Shields         uint32  `json:"shields"`
	Doubles         uint32  `json:"doubles"`
	ActiveTourney   *uint64 `json:"activeTournament,omitempty"`
}

type RoundOpened struct{ Round Round }

type Locked struct {
	RoundID     uint64
	PhaseEndsAt time.Time
}

type Outcome struct{ Round Round }

type Finalized struct{ RoundID uint64 }

type BetAccepted struct {
	Player   string
	RoundID  uint64
	Bets     []Bet
	Balances BalanceSnapshot
}

type BetRejected struct {
	Player    string
	RoundID   uint64
	ErrorCode uint8
	Message   string
}

type PlayerSettled struct {
	Player   string
	RoundID  uint64
	Payout   int64
	Balances BalanceSnapshot
	MyBets   []Bet
}

func (RoundOpened) Kind() string   { return EventRoundOpened }
func (Locked) Kind() string        { return EventLocked }
func (Outcome) Kind() string       { return EventOutcome }
func (Finalized) Kind() string     { return EventFinalized }
func (BetAccepted) Kind() string   { return EventBetAccepted }
func (BetRejected) Kind() string   { return EventBetRejected }
func (PlayerSettled) Kind() string { return EventPlayerSettled }

func (RoundOpened) isEvent()   {}
func (Locked) isEvent()        {}
func (Outcome) isEvent()       {}
func (Finalized) isEvent()     {}
func (BetAccepted) isEvent()   {}
func (BetRejected) isEvent()   {}
func (PlayerSettled) isEvent() {}

// wireRound is the JSON shape of a round on the event stream.
type wireRound struct {
	RoundID       uint64 `json:"roundId"`
	Phase         Phase  `json:"phase"`
	PhaseEndsAtMs uint64 `json:"phaseEndsAtMs"`
	MainPoint     uint8  `json:"mainPoint"`
	D1            uint8  `json:"d1"`
	D2            uint8  `json:"d2"`
	Totals        []Bet  `json:"totals"`
}

func (w wireRound) round() Round {
	r := Round{
		RoundID:     w.RoundID,
		Phase:       w.Phase,
		PhaseEndsAt: msToTime(w.PhaseEndsAtMs),
		Totals:      make(map[BetKey]uint64, len(w.Totals)),
	}
	if w.MainPoint != 0 {
		p := w.MainPoint
		r.Point = &p
	}
	if w.D1 != 0 && w.D2 != 0 {
		r.Dice = &[2]uint8{w.D1, w.D2}
	}
	for _, t := range w.Totals {
		r.Totals[t.Key()] += t.Amount
	}
	return r
}

func toWireRound(r Round) wireRound {
	w := wireRound{RoundID: r.RoundID, Phase: r.Phase, PhaseEndsAtMs: timeToMs(r.PhaseEndsAt)}
	if r.Point != nil {
		w.MainPoint = *r.Point
	}
	if r.Dice != nil {
		w.D1, w.D2 = r.Dice[0], r.Dice[1]
	}
	for k, v := range r.Totals {
		w.Totals = append(w.Totals, Bet{BetType: k.BetType, Target: k.Target, Amount: v})
	}
	return w
}

type wireEvent struct {
	Type          string          `json:"type"`
	Round         *wireRound      `json:"round,omitempty"`
	RoundID       uint64          `json:"roundId,omitempty"`
	PhaseEndsAtMs uint64          `json:"phaseEndsAtMs,omitempty"`
	Player        string          `json:"player,omitempty"`
	Bets          []Bet           `json:"bets,omitempty"`
	MyBets        []Bet           `json:"myBets,omitempty"`
	Balances      BalanceSnapshot `json:"balances"`
	Payout        int64           `json:"payout,omitempty"`
	ErrorCode     uint8           `json:"errorCode,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// DecodeEvent reads one JSON event, dispatching on its "type" field.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	switch w.Type {
	case EventRoundOpened, EventOutcome:
		if w.Round == nil {
			return nil, fmt.Errorf("%s event without round", w.Type)
		}
		if w.Type == EventRoundOpened {
			return RoundOpened{Round: w.Round.round()}, nil
		}
		return Outcome{Round: w.Round.round()}, nil
	case EventLocked:
		return Locked{RoundID: w.RoundID, PhaseEndsAt: msToTime(w.PhaseEndsAtMs)}, nil
	case EventFinalized:
		return Finalized{RoundID: w.RoundID}, nil
	case EventBetAccepted:
		return BetAccepted{Player: w.Player, RoundID: w.RoundID, Bets: w.Bets, Balances: w.Balances}, nil
	case EventBetRejected:
		return BetRejected{Player: w.Player, RoundID: w.RoundID, ErrorCode: w.ErrorCode, Message: w.Message}, nil
	case EventPlayerSettled:
		return PlayerSettled{Player: w.Player, RoundID: w.RoundID, Payout: w.Payout, Balances: w.Balances, MyBets: w.MyBets}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, w.Type)
}

// EncodeEvent is the inverse of DecodeEvent.
func EncodeEvent(ev Event) ([]byte, error) {
	w := wireEvent{Type: ev.Kind()}
	switch e := ev.(type) {
	case RoundOpened:
		r := toWireRound(e.Round)
		w.Round = &r
	case Outcome:
		r := toWireRound(e.Round)
		w.Round = &r
	case Locked:
		w.RoundID, w.PhaseEndsAtMs = e.RoundID, timeToMs(e.PhaseEndsAt)
	case Finalized:
		w.RoundID = e.RoundID
	case BetAccepted:
		w.Player, w.RoundID, w.Bets, w.Balances = e.Player, e.RoundID, e.Bets, e.Balances
	case BetRejected:
		w.Player, w.RoundID, w.ErrorCode, w.Message = e.Player, e.RoundID, e.ErrorCode, e.Message
	case PlayerSettled:
		w.Player, w.RoundID, w.Payout, w.Balances, w.MyBets = e.Player, e.RoundID, e.Payout, e.Balances, e.MyBets
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return json.Marshal(w)
}

func msToTime(ms uint64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}

func timeToMs(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixMilli())
}
