package livetabletypes

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// BetKey identifies a bet within a round. Two bets with the same key accumulate.
type BetKey struct {
	BetType uint8
	Target  uint8
}

// Bet is a single wager as recorded on chain.
type Bet struct {
	BetType uint8  `json:"betType"`
	Target  uint8  `json:"target"`
	Amount  uint64 `json:"amount"`
}

func (b Bet) Key() BetKey {
	return BetKey{BetType: b.BetType, Target: b.Target}
}

// BetBook is one participant's open bets for the current round.
type BetBook map[BetKey]Bet

// Add accumulates amount onto the entry for b's key.
func (bb BetBook) Add(b Bet) {
	if b.Amount == 0 {
		return
	}
	cur := bb[b.Key()]
	cur.BetType, cur.Target = b.BetType, b.Target
	cur.Amount += b.Amount
	bb[b.Key()] = cur
}

// Reduce subtracts amount from the entry and removes it once it reaches zero.
func (bb BetBook) Reduce(key BetKey, amount uint64) {
	cur, ok := bb[key]
	if !ok {
		return
	}
	if amount >= cur.Amount {
		delete(bb, key)
		return
	}
	cur.Amount -= amount
	bb[key] = cur
}

// Total is the sum of every open amount.
func (bb BetBook) Total() uint64 {
	var sum uint64
	for _, b := range bb {
		sum += b.Amount
	}
	return sum
}

// Sorted returns the bets ordered by type then target.
func (bb BetBook) Sorted() []Bet {
	out := make([]Bet, 0, len(bb))
	for _, b := range bb {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BetType != out[j].BetType {
			return out[i].BetType < out[j].BetType
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// BetBookFrom builds a book from a list, merging duplicate keys.
func BetBookFrom(bets []Bet) BetBook {
	bb := make(BetBook, len(bets))
	for _, b := range bets {
		bb.Add(b)
	}
	return bb
}

// Bet type codes understood by the table.
const (
	BetPass        uint8 = 0
	BetDontPass    uint8 = 1
	BetCome        uint8 = 2
	BetDontCome    uint8 = 3
	BetField       uint8 = 4
	BetYes         uint8 = 5
	BetNo          uint8 = 6
	BetNext        uint8 = 7
	BetHardway4    uint8 = 8
	BetHardway6    uint8 = 9
	BetHardway8    uint8 = 10
	BetHardway10   uint8 = 11
	BetFire        uint8 = 12
	BetAtsSmall    uint8 = 15
	BetAtsTall     uint8 = 16
	BetAtsAll      uint8 = 17
	BetMuggsy      uint8 = 18
	BetDiffDoubles uint8 = 19
	BetRideLine    uint8 = 20
	BetReplay      uint8 = 21
	BetHotRoller   uint8 = 22
)

var betNames = map[string]uint8{
	"PASS":         BetPass,
	"DONT_PASS":    BetDontPass,
	"DON'T_PASS":   BetDontPass,
	"COME":         BetCome,
	"DONT_COME":    BetDontCome,
	"DON'T_COME":   BetDontCome,
	"FIELD":        BetField,
	"YES":          BetYes,
	"NO":           BetNo,
	"NEXT":         BetNext,
	"HARDWAY_4":    BetHardway4,
	"HARDWAY_6":    BetHardway6,
	"HARDWAY_8":    BetHardway8,
	"HARDWAY_10":   BetHardway10,
	"FIRE":         BetFire,
	"ATS_SMALL":    BetAtsSmall,
	"ATS_TALL":     BetAtsTall,
	"ATS_ALL":      BetAtsAll,
	"MUGGSY":       BetMuggsy,
	"DIFF_DOUBLES": BetDiffDoubles,
	"RIDE_LINE":    BetRideLine,
	"REPLAY":       BetReplay,
	"HOT_ROLLER":   BetHotRoller,
}

var hardwayByTarget = map[uint8]uint8{4: BetHardway4, 6: BetHardway6, 8: BetHardway8, 10: BetHardway10}

// BetTypeName renders a (type, target) pair the way viewers see it.
func BetTypeName(betType, target uint8) (string, *uint8) {
	withTarget := func(t uint8) *uint8 { return &t }
	switch betType {
	case BetPass:
		return "PASS", nil
	case BetDontPass:
		return "DONT_PASS", nil
	case BetCome:
		return "COME", nil
	case BetDontCome:
		return "DONT_COME", nil
	case BetField:
		return "FIELD", nil
	case BetYes:
		return "YES", withTarget(target)
	case BetNo:
		return "NO", withTarget(target)
	case BetNext:
		return "NEXT", withTarget(target)
	case BetHardway4:
		return "HARDWAY", withTarget(4)
	case BetHardway6:
		return "HARDWAY", withTarget(6)
	case BetHardway8:
		return "HARDWAY", withTarget(8)
	case BetHardway10:
		return "HARDWAY", withTarget(10)
	case BetFire:
		return "FIRE", nil
	case BetAtsSmall:
		return "ATS_SMALL", nil
	case BetAtsTall:
		return "ATS_TALL", nil
	case BetAtsAll:
		return "ATS_ALL", nil
	case BetMuggsy:
		return "MUGGSY", nil
	case BetDiffDoubles:
		return "DIFF_DOUBLES", nil
	case BetRideLine:
		return "RIDE_LINE", nil
	case BetReplay:
		return "REPLAY", nil
	case BetHotRoller:
		return "HOT_ROLLER", nil
	}
	return fmt.Sprintf("BET_%d", betType), nil
}

// BetTypeInput is either a numeric bet code or a canonical name.
type BetTypeInput struct {
	Code *uint8
	Name string
}

func BetTypeCode(code uint8) BetTypeInput   { return BetTypeInput{Code: &code} }
func BetTypeNamed(name string) BetTypeInput { return BetTypeInput{Name: name} }

func (t *BetTypeInput) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*t = BetTypeInput{Name: name}
		return nil
	}
	var code float64
	if err := json.Unmarshal(b, &code); err != nil {
		return fmt.Errorf("bet type must be a number or a string: %w", err)
	}
	if code < 0 || code > math.MaxUint8 || code != math.Trunc(code) {
		return fmt.Errorf("bet type %v out of range", code)
	}
	c := uint8(code)
	*t = BetTypeInput{Code: &c}
	return nil
}

func (t BetTypeInput) MarshalJSON() ([]byte, error) {
	if t.Code != nil {
		return []byte(strconv.Itoa(int(*t.Code))), nil
	}
	return json.Marshal(t.Name)
}

// BetInput is a bet as submitted by a viewer, before validation.
type BetInput struct {
	Type   BetTypeInput `json:"type"`
	Amount float64      `json:"amount"`
	Target *uint8       `json:"target,omitempty"`
}

// NormalizeBetType maps the viewer's type and optional target to the on-chain pair.
func NormalizeBetType(in BetTypeInput, target *uint8) (uint8, uint8, error) {
	if in.Code != nil {
		code := *in.Code
		switch code {
		case BetHardway4, BetHardway6, BetHardway8, BetHardway10:
			return code, 0, nil
		case BetYes, BetNo, BetNext:
			if target == nil {
				return 0, 0, NewBetValidationError(CodeTargetRequired, "TARGET_REQUIRED")
			}
			return code, *target, nil
		}
		if target != nil {
			return code, *target, nil
		}
		return code, 0, nil
	}

	name := strings.ToUpper(strings.TrimSpace(in.Name))
	switch name {
	case "YES", "NO", "NEXT":
		if target == nil {
			return 0, 0, NewBetValidationError(CodeTargetRequired, "TARGET_REQUIRED")
		}
		return betNames[name], *target, nil
	case "HARDWAY":
		if target == nil {
			return 0, 0, NewBetValidationError(CodeTargetRequired, "TARGET_REQUIRED")
		}
		code, ok := hardwayByTarget[*target]
		if !ok {
			return 0, 0, NewBetValidationError(CodeInvalidBet, "INVALID_HARDWAY_TARGET")
		}
		return code, 0, nil
	}
	code, ok := betNames[name]
	if !ok {
		return 0, 0, NewBetValidationError(CodeUnsupportedBet, "UNSUPPORTED_BET:"+name)
	}
	return code, 0, nil
}

// NormalizeAmount floors a viewer-supplied amount. Non-finite, negative and
// sub-unit values are rejected.
func NormalizeAmount(amount float64) (uint64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, NewBetValidationError(CodeInvalidBetAmount, "INVALID_BET_AMOUNT")
	}
	floored := math.Floor(amount)
	if floored < 1 || floored > math.MaxUint64 {
		return 0, NewBetValidationError(CodeInvalidBetAmount, "INVALID_BET_AMOUNT")
	}
	return uint64(floored), nil
}
