package txcodec

import (
	"encoding/binary"
	"testing"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionRoundTrip(t *testing.T) {
	bets := []livetabletypes.Bet{
		{BetType: livetabletypes.BetPass, Amount: 25},
		{BetType: livetabletypes.BetYes, Target: 8, Amount: 1_000},
	}
	tests := []struct {
		name  string
		instr []byte
		want  Decoded
	}{
		{name: "open round", instr: EncodeOpenRound(GameCraps), want: Decoded{Tag: TagOpenRound, GameType: GameCraps}},
		{name: "lock", instr: EncodeLock(GameCraps, 42), want: Decoded{Tag: TagLock, GameType: GameCraps, RoundID: 42}},
		{name: "reveal", instr: EncodeReveal(GameCraps, 42), want: Decoded{Tag: TagReveal, GameType: GameCraps, RoundID: 42}},
		{name: "settle", instr: EncodeSettle(GameCraps, 42), want: Decoded{Tag: TagSettle, GameType: GameCraps, RoundID: 42}},
		{name: "finalize", instr: EncodeFinalize(GameCraps, 42), want: Decoded{Tag: TagFinalize, GameType: GameCraps, RoundID: 42}},
		{
			name:  "submit bets",
			instr: EncodeSubmitBets(GameCraps, 42, bets),
			want:  Decoded{Tag: TagSubmitBets, GameType: GameCraps, RoundID: 42, Bets: bets},
		},
		{
			name:  "init",
			instr: EncodeInit(TableConfig{GameType: GameCraps, BettingMs: 18_000, LockMs: 2_000, PayoutMs: 2_000, CooldownMs: 8_000, MinBet: 5, MaxBet: 1_000, MaxBetsPerRound: 12}),
			want: Decoded{Tag: TagInit, GameType: GameCraps, Config: &TableConfig{
				GameType: GameCraps, BettingMs: 18_000, LockMs: 2_000, PayoutMs: 2_000, CooldownMs: 8_000, MinBet: 5, MaxBet: 1_000, MaxBetsPerRound: 12,
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := DecodeInstruction(tt.instr)
			require.NoError(t, err)
			assert.Equal(t, len(tt.instr), n)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubmitBetsLayout(t *testing.T) {
	instr := EncodeSubmitBets(GameCraps, 7, []livetabletypes.Bet{{BetType: livetabletypes.BetField, Target: 0, Amount: 9}})
	want := []byte{TagSubmitBets, GameCraps}
	want = binary.BigEndian.AppendUint64(want, 7)
	want = append(want, 1, livetabletypes.BetField, 0)
	want = binary.BigEndian.AppendUint64(want, 9)
	assert.Equal(t, want, instr)
}

func TestDecodeInstructionErrors(t *testing.T) {
	_, _, err := DecodeInstruction([]byte{TagLock})
	assert.ErrorIs(t, err, ErrShortInstruction)

	_, _, err = DecodeInstruction([]byte{TagLock, GameCraps, 0, 0})
	assert.ErrorIs(t, err, ErrShortInstruction)

	_, _, err = DecodeInstruction([]byte{99, GameCraps})
	assert.ErrorIs(t, err, ErrUnknownTag)

	huge := EncodeSettle(GameCraps, 1)
	huge[0] = TagSubmitBets
	huge = binary.AppendUvarint(huge, 1<<40)
	_, _, err = DecodeInstruction(huge)
	assert.ErrorIs(t, err, ErrShortInstruction)
}

func TestSignAndSubmissionRoundTrip(t *testing.T) {
	signer, err := livetabletypes.NewSigner(nil)
	require.NoError(t, err)

	a := Sign(signer, 0, EncodeOpenRound(GameCraps))
	b := Sign(signer, 1, EncodeSettle(GameCraps, 3))
	assert.True(t, a.Verify())

	txs, err := DecodeSubmission(EncodeSubmission(a, b))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, uint64(1), txs[1].Nonce)
	assert.Equal(t, b.Instruction, txs[1].Instruction)
	assert.Equal(t, signer.PublicKey, txs[1].PublicKey)

	tampered := Sign(signer, 5, EncodeLock(GameCraps, 3))
	tampered.Nonce = 6
	assert.False(t, tampered.Verify())
	_, err = DecodeSubmission(EncodeSubmission(tampered))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSignedMessageBindsNamespace(t *testing.T) {
	msg := SignedMessage(2, []byte{TagOpenRound, GameCraps})
	assert.Equal(t, byte(len(Namespace)), msg[0])
	assert.Equal(t, Namespace, msg[1:1+len(Namespace)])
	assert.Equal(t, uint64(2), binary.BigEndian.Uint64(msg[1+len(Namespace):]))
}
