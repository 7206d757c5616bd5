package livetabletypes

import (
	"sort"
	"strconv"
	"time"
)

// Push message types delivered to viewers.
const (
	MessageState        = "live_table_state"
	MessageConfirmation = "live_table_confirmation"
	MessageResult       = "live_table_result"

	GameCraps = "craps"
)

// Confirmation statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// BetView is a bet rendered for a viewer.
type BetView struct {
	Type   string `json:"type"`
	Amount uint64 `json:"amount"`
	Target *uint8 `json:"target,omitempty"`
}

// StateMessage is the per-viewer table snapshot.
type StateMessage struct {
	Type            string    `json:"type"`
	Game            string    `json:"game"`
	RoundID         uint64    `json:"roundId"`
	Phase           string    `json:"phase"`
	TimeRemainingMs *uint64   `json:"timeRemainingMs,omitempty"`
	Point           *uint8    `json:"point,omitempty"`
	Dice            *[2]uint8 `json:"dice,omitempty"`
	TableTotals     []BetView `json:"tableTotals,omitempty"`
	MyBets          []BetView `json:"myBets,omitempty"`
	Balance         *string   `json:"balance,omitempty"`
}

// ConfirmationMessage reports where a viewer's bet submission stands.
type ConfirmationMessage struct {
	Type    string    `json:"type"`
	Game    string    `json:"game"`
	RoundID uint64    `json:"roundId"`
	Status  string    `json:"status"`
	Bets    []BetView `json:"bets,omitempty"`
	Balance *string   `json:"balance,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ResultMessage is sent to a player once their settlement lands.
type ResultMessage struct {
	Type    string    `json:"type"`
	Game    string    `json:"game"`
	RoundID uint64    `json:"roundId"`
	Dice    *[2]uint8 `json:"dice,omitempty"`
	Total   uint8     `json:"total"`
	Point   *uint8    `json:"point,omitempty"`
	Payout  int64     `json:"payout"`
	Balance *string   `json:"balance,omitempty"`
	MyBets  []BetView `json:"myBets,omitempty"`
}

// TableSnapshot holds the fields shared by every viewer in one broadcast pass.
type TableSnapshot struct {
	RoundID         uint64
	Phase           Phase
	TimeRemainingMs uint64
	Point           *uint8
	Dice            *[2]uint8
	TableTotals     []BetView
}

// NewTableSnapshot renders the shared part of the state message once.
func NewTableSnapshot(r Round, now time.Time) TableSnapshot {
	return TableSnapshot{
		RoundID:         r.RoundID,
		Phase:           r.Phase,
		TimeRemainingMs: uint64(r.TimeRemaining(now).Milliseconds()),
		Point:           r.Point,
		Dice:            r.Dice,
		TableTotals:     TotalsView(r.Totals),
	}
}

// StateFor builds the viewer's message from the shared snapshot.
func (s TableSnapshot) StateFor(bets BetBook, balance *uint64) StateMessage {
	remaining := s.TimeRemainingMs
	msg := StateMessage{
		Type:            MessageState,
		Game:            GameCraps,
		RoundID:         s.RoundID,
		Phase:           s.Phase.String(),
		TimeRemainingMs: &remaining,
		Point:           s.Point,
		Dice:            s.Dice,
		TableTotals:     s.TableTotals,
		MyBets:          BetsView(bets.Sorted()),
		Balance:         FormatBalance(balance),
	}
	return msg
}

// BetsView renders bets for viewers.
func BetsView(bets []Bet) []BetView {
	if len(bets) == 0 {
		return nil
	}
	out := make([]BetView, 0, len(bets))
	for _, b := range bets {
		name, target := BetTypeName(b.BetType, b.Target)
		out = append(out, BetView{Type: name, Amount: b.Amount, Target: target})
	}
	return out
}

// TotalsView renders table totals sorted by bet key.
func TotalsView(totals map[BetKey]uint64) []BetView {
	bets := make([]Bet, 0, len(totals))
	for k, v := range totals {
		if v == 0 {
			continue
		}
		bets = append(bets, Bet{BetType: k.BetType, Target: k.Target, Amount: v})
	}
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].BetType != bets[j].BetType {
			return bets[i].BetType < bets[j].BetType
		}
		return bets[i].Target < bets[j].Target
	})
	return BetsView(bets)
}

// FormatBalance renders balances as decimal strings, matching the client protocol.
func FormatBalance(balance *uint64) *string {
	if balance == nil {
		return nil
	}
	s := strconv.FormatUint(*balance, 10)
	return &s
}
