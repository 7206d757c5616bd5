package txcodec

import (
	"encoding/binary"
	"errors"
	"fmt"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
)

// Instruction tags for the global table.
const (
	TagInit       byte = 60
	TagOpenRound  byte = 61
	TagSubmitBets byte = 62
	TagLock       byte = 63
	TagReveal     byte = 64
	TagSettle     byte = 65
	TagFinalize   byte = 66
)

// GameCraps is the ledger's game type code for the live craps table.
const GameCraps byte = 3

var (
	ErrShortInstruction = errors.New("instruction truncated")
	ErrUnknownTag       = errors.New("unknown instruction tag")
)

// TableConfig is the payload of an init instruction.
type TableConfig struct {
	GameType        byte
	BettingMs       uint64
	LockMs          uint64
	PayoutMs        uint64
	CooldownMs      uint64
	MinBet          uint64
	MaxBet          uint64
	MaxBetsPerRound uint8
}

func EncodeInit(cfg TableConfig) []byte {
	buf := make([]byte, 0, 2+8*6+1)
	buf = append(buf, TagInit, cfg.GameType)
	for _, v := range []uint64{cfg.BettingMs, cfg.LockMs, cfg.PayoutMs, cfg.CooldownMs, cfg.MinBet, cfg.MaxBet} {
		buf = binary.BigEndian.AppendUint64(buf, v)
	}
	return append(buf, cfg.MaxBetsPerRound)
}

func EncodeOpenRound(gameType byte) []byte {
	return []byte{TagOpenRound, gameType}
}

func EncodeSubmitBets(gameType byte, roundID uint64, bets []livetabletypes.Bet) []byte {
	buf := make([]byte, 0, 10+binary.MaxVarintLen32+len(bets)*10)
	buf = append(buf, TagSubmitBets, gameType)
	buf = binary.BigEndian.AppendUint64(buf, roundID)
	buf = binary.AppendUvarint(buf, uint64(len(bets)))
	for _, b := range bets {
		buf = append(buf, b.BetType, b.Target)
		buf = binary.BigEndian.AppendUint64(buf, b.Amount)
	}
	return buf
}

func EncodeLock(gameType byte, roundID uint64) []byte {
	return roundInstruction(TagLock, gameType, roundID)
}

func EncodeReveal(gameType byte, roundID uint64) []byte {
	return roundInstruction(TagReveal, gameType, roundID)
}

func EncodeSettle(gameType byte, roundID uint64) []byte {
	return roundInstruction(TagSettle, gameType, roundID)
}

func EncodeFinalize(gameType byte, roundID uint64) []byte {
	return roundInstruction(TagFinalize, gameType, roundID)
}

func roundInstruction(tag, gameType byte, roundID uint64) []byte {
	buf := make([]byte, 0, 10)
	buf = append(buf, tag, gameType)
	return binary.BigEndian.AppendUint64(buf, roundID)
}

// Decoded is a parsed global-table instruction, used by tests and tooling.
type Decoded struct {
	Tag      byte
	GameType byte
	RoundID  uint64
	Bets     []livetabletypes.Bet
	Config   *TableConfig
}

// DecodeInstruction parses one instruction and returns how many bytes it used.
func DecodeInstruction(b []byte) (Decoded, int, error) {
	if len(b) < 2 {
		return Decoded{}, 0, ErrShortInstruction
	}
	d := Decoded{Tag: b[0], GameType: b[1]}
	switch d.Tag {
	case TagOpenRound:
		return d, 2, nil
	case TagInit:
		if len(b) < 2+48+1 {
			return Decoded{}, 0, ErrShortInstruction
		}
		cfg := TableConfig{GameType: b[1]}
		vals := []*uint64{&cfg.BettingMs, &cfg.LockMs, &cfg.PayoutMs, &cfg.CooldownMs, &cfg.MinBet, &cfg.MaxBet}
		for i, v := range vals {
			*v = binary.BigEndian.Uint64(b[2+8*i:])
		}
		cfg.MaxBetsPerRound = b[50]
		d.Config = &cfg
		return d, 51, nil
	case TagLock, TagReveal, TagSettle, TagFinalize, TagSubmitBets:
		if len(b) < 10 {
			return Decoded{}, 0, ErrShortInstruction
		}
		d.RoundID = binary.BigEndian.Uint64(b[2:10])
		if d.Tag != TagSubmitBets {
			return d, 10, nil
		}
		count, n := binary.Uvarint(b[10:])
		if n <= 0 {
			return Decoded{}, 0, ErrShortInstruction
		}
		off := 10 + n
		if count > uint64(len(b)) || uint64(len(b)-off) < count*10 {
			return Decoded{}, 0, ErrShortInstruction
		}
		d.Bets = make([]livetabletypes.Bet, 0, count)
		for i := uint64(0); i < count; i++ {
			d.Bets = append(d.Bets, livetabletypes.Bet{
				BetType: b[off],
				Target:  b[off+1],
				Amount:  binary.BigEndian.Uint64(b[off+2:]),
			})
			off += 10
		}
		return d, off, nil
	}
	return Decoded{}, 0, fmt.Errorf("%w: %d", ErrUnknownTag, d.Tag)
}
