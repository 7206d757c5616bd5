package livetableservice

import (
	"context"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
)

// Service is what the transport layer and the event router use.
type Service interface {
	Join(ctx context.Context, p Participant) (JoinResult, error)
	Leave(ctx context.Context, sessionID string) error
	PlaceBets(ctx context.Context, sessionID string, bets []livetabletypes.BetInput) (livetabletypes.ConfirmationMessage, error)
	Deliver(ctx context.Context, ev livetabletypes.Event) error
	Start(ctx context.Context) error
	Stop() error
}

// TxSubmitter sends one instruction under the signer's next nonce.
type TxSubmitter interface {
	Submit(ctx context.Context, signer *livetabletypes.Signer, instruction []byte) (bool, error)
}

// Pusher delivers a message to one viewer session.
type Pusher interface {
	Push(ctx context.Context, sessionID string, payload any) error
}

// HealthChecker probes the ledger.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// Clock abstracts wall time for the tick and the broadcast throttle.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
