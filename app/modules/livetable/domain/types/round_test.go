package livetabletypes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhase(t *testing.T) {
	for in, want := range map[string]Phase{
		"betting":   PhaseBetting,
		"LOCKED":    PhaseLocked,
		"revealing": PhaseRolling,
		"settling":  PhasePayout,
		"4":         PhaseCooldown,
	} {
		got, err := ParsePhase(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePhase("napping")
	assert.Error(t, err)
}

func TestPhaseUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Phase
		wantErr bool
	}{
		{name: "name", data: `"payout"`, want: PhasePayout},
		{name: "upper-case name", data: `"COOLDOWN"`, want: PhaseCooldown},
		{name: "numeric code", data: `2`, want: PhaseRolling},
		{name: "numeric code as string", data: `"1"`, want: PhaseLocked},
		{name: "null keeps the zero phase", data: `null`, want: PhaseBetting},
		{name: "unknown code", data: `9`, wantErr: true},
		{name: "wrong type", data: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				Phase Phase `json:"phase"`
			}
			err := json.Unmarshal([]byte(`{"phase":`+tt.data+`}`), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Phase)
		})
	}
}

func TestRoundTimeRemaining(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	r := Round{PhaseEndsAt: now.Add(3 * time.Second)}
	assert.Equal(t, 3*time.Second, r.TimeRemaining(now))
	assert.Zero(t, r.TimeRemaining(now.Add(time.Minute)))
	assert.Zero(t, Round{}.TimeRemaining(now))
}

func TestRoundCloneIsDeep(t *testing.T) {
	r := Round{RoundID: 1, Point: u8(4), Dice: &[2]uint8{1, 3}, Totals: map[BetKey]uint64{{BetType: BetPass}: 5}}
	c := r.Clone()
	c.Totals[BetKey{BetType: BetPass}] = 99
	*c.Point = 9
	c.Dice[0] = 6
	assert.Equal(t, uint64(5), r.Totals[BetKey{BetType: BetPass}])
	assert.Equal(t, uint8(4), *r.Point)
	assert.Equal(t, uint8(1), r.Dice[0])
}
