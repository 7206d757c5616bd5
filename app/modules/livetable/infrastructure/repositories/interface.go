package noncedb

import "context"

// Repository persists the nonce ledger's map.
type Repository interface {
	Load(ctx context.Context) (map[string]uint64, error)
	Save(ctx context.Context, nonces map[string]uint64) error
	Get(ctx context.Context, publicKeyHex string) (uint64, error)
}
