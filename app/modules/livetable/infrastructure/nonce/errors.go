package nonceledger

import "errors"

var (
	// ErrNoFetcher is returned when a backend sync is needed but no fetcher is wired.
	ErrNoFetcher = errors.New("nonce ledger has no backend fetcher")

	// ErrSync wraps failures of the backend nonce query.
	ErrSync = errors.New("failed to sync nonce from backend")
)
