package noncedb

import (
	"time"

	"github.com/uptrace/bun"
)

// NonceState is the persisted next nonce for one signer.
type NonceState struct {
	bun.BaseModel `bun:"table:nonce_states,alias:ns"`
	PublicKeyHex  string    `bun:"public_key_hex,pk"`
	Nonce         uint64    `bun:"nonce,notnull"`
	UpdatedAt     time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
