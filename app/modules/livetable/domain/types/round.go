package livetabletypes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Phase is the live table's position inside a round.
type Phase uint8

const (
	PhaseBetting Phase = iota
	PhaseLocked
	PhaseRolling
	PhasePayout
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseBetting:
		return "betting"
	case PhaseLocked:
		return "locked"
	case PhaseRolling:
		return "rolling"
	case PhasePayout:
		return "payout"
	case PhaseCooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// ParsePhase accepts either the lower-case name or the numeric code used on chain.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "betting", "0":
		return PhaseBetting, nil
	case "locked", "1":
		return PhaseLocked, nil
	case "rolling", "revealing", "2":
		return PhaseRolling, nil
	case "payout", "settling", "3":
		return PhasePayout, nil
	case "cooldown", "4":
		return PhaseCooldown, nil
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// MarshalText lets phases travel as names in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalJSON accepts a phase name or the bare numeric chain code.
func (p *Phase) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	return p.UnmarshalText([]byte(raw))
}

// Round is the coordinator's local view of the authoritative round.
type Round struct {
	RoundID     uint64
	Phase       Phase
	PhaseEndsAt time.Time
	Point       *uint8
	Dice        *[2]uint8
	Totals      map[BetKey]uint64
}

// Open reports whether a round has ever been assigned by the backend.
func (r Round) Open() bool {
	return r.RoundID != 0
}

// TimeRemaining clamps to zero once the deadline has passed.
func (r Round) TimeRemaining(now time.Time) time.Duration {
	if r.PhaseEndsAt.IsZero() || !now.Before(r.PhaseEndsAt) {
		return 0
	}
	return r.PhaseEndsAt.Sub(now)
}

// Clone copies the round including its totals map.
func (r Round) Clone() Round {
	out := r
	out.Totals = make(map[BetKey]uint64, len(r.Totals))
	for k, v := range r.Totals {
		out.Totals[k] = v
	}
	if r.Point != nil {
		p := *r.Point
		out.Point = &p
	}
	if r.Dice != nil {
		d := *r.Dice
		out.Dice = &d
	}
	return out
}
