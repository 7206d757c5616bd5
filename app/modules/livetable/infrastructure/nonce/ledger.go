package nonceledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AccountNonceFetcher returns the ledger's authoritative next nonce for a key.
type AccountNonceFetcher interface {
	AccountNonce(ctx context.Context, publicKeyHex string) (uint64, error)
}

// Store persists the nonce map between restarts.
type Store interface {
	Load(ctx context.Context) (map[string]uint64, error)
	Save(ctx context.Context, nonces map[string]uint64) error
}

// NonceFunc consumes one nonce. Returning true commits it.
type NonceFunc func(ctx context.Context, nonce uint64) (bool, error)

// chain is the FIFO of callers waiting on one account. tail is closed when
// the most recent holder finishes.
type chain struct {
	tail chan struct{}
	refs int
}

// Ledger hands out nonces, one in-flight operation per account at a time.
type Ledger struct {
	mu       sync.Mutex
	nonces   map[string]uint64
	known    map[string]bool
	chains   map[string]*chain
	version  uint64
	saved    uint64
	fetcher  AccountNonceFetcher
	store    Store
	logger   *slog.Logger
	persistM sync.Mutex
}

// NewLedger creates an empty ledger. store may be nil.
func NewLedger(fetcher AccountNonceFetcher, store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		nonces:  make(map[string]uint64),
		known:   make(map[string]bool),
		chains:  make(map[string]*chain),
		fetcher: fetcher,
		store:   store,
		logger:  logger,
	}
}

// WithSerializedNonce runs fn with the account's current nonce once every
// earlier caller for the same account has finished. Callers for different
// accounts do not wait on each other. The nonce advances by one only when fn
// returns true with no error.
func (l *Ledger) WithSerializedNonce(ctx context.Context, accountKey string, fn NonceFunc) (bool, error) {
	ticket := make(chan struct{})

	l.mu.Lock()
	c := l.chains[accountKey]
	if c == nil {
		c = &chain{}
		l.chains[accountKey] = c
	}
	prev := c.tail
	c.tail = ticket
	c.refs++
	l.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// The ticket cannot be released before prev, or the next
			// caller would run alongside it.
			go func() {
				<-prev
				l.release(accountKey, ticket)
			}()
			return false, ctx.Err()
		}
	}
	defer l.release(accountKey, ticket)

	if err := l.ensureKnown(ctx, accountKey); err != nil {
		return false, err
	}

	l.mu.Lock()
	nonce := l.nonces[accountKey]
	l.mu.Unlock()

	ok, err := fn(ctx, nonce)
	if err != nil || !ok {
		return ok, err
	}

	l.mu.Lock()
	l.nonces[accountKey]++
	l.version++
	l.mu.Unlock()
	return true, nil
}

func (l *Ledger) release(accountKey string, ticket chan struct{}) {
	close(ticket)
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.chains[accountKey]
	if c == nil {
		return
	}
	c.refs--
	if c.refs <= 0 {
		delete(l.chains, accountKey)
	}
}

// ensureKnown syncs an account the ledger has never seen. The caller holds
// the account's ticket.
func (l *Ledger) ensureKnown(ctx context.Context, accountKey string) error {
	l.mu.Lock()
	known := l.known[accountKey]
	l.mu.Unlock()
	if known {
		return nil
	}
	if l.fetcher == nil {
		l.mu.Lock()
		l.known[accountKey] = true
		l.mu.Unlock()
		return nil
	}
	_, err := l.SyncFromBackend(ctx, accountKey)
	return err
}

// SyncFromBackend overwrites the local nonce with the ledger's view. It is a
// recovery path and does not take the account's ticket.
func (l *Ledger) SyncFromBackend(ctx context.Context, accountKey string) (uint64, error) {
	if l.fetcher == nil {
		return 0, ErrNoFetcher
	}
	nonce, err := l.fetcher.AccountNonce(ctx, accountKey)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSync, accountKey, err)
	}

	l.mu.Lock()
	prev, had := l.nonces[accountKey], l.known[accountKey]
	l.nonces[accountKey] = nonce
	l.known[accountKey] = true
	l.version++
	l.mu.Unlock()

	if had && prev != nonce {
		l.logger.Info("Nonce resynced from backend",
			slog.String("account", accountKey),
			slog.Uint64("local", prev),
			slog.Uint64("backend", nonce),
		)
	}
	return nonce, nil
}

// SetCurrentNonce sets the next nonce to use for the account.
func (l *Ledger) SetCurrentNonce(accountKey string, nonce uint64) {
	l.mu.Lock()
	l.nonces[accountKey] = nonce
	l.known[accountKey] = true
	l.version++
	l.mu.Unlock()
}

// GetCurrentNonce returns the next nonce and whether the account is known.
func (l *Ledger) GetCurrentNonce(accountKey string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nonces[accountKey]
	return n, ok && l.known[accountKey]
}

// Snapshot copies the nonce map.
func (l *Ledger) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.nonces))
	for k, v := range l.nonces {
		out[k] = v
	}
	return out
}

// Persist writes the nonce map if it changed since the last successful write.
func (l *Ledger) Persist(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.persistM.Lock()
	defer l.persistM.Unlock()

	l.mu.Lock()
	version := l.version
	if version == l.saved {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.store.Save(ctx, l.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist nonces: %w", err)
	}

	l.mu.Lock()
	l.saved = version
	l.mu.Unlock()
	return nil
}

// Restore loads persisted nonces. Entries already present are kept. Missing
// or unreadable state leaves the ledger to sync from the backend on first use.
func (l *Ledger) Restore(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	loaded, err := l.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore nonces: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	restored := 0
	for k, v := range loaded {
		if l.known[k] {
			continue
		}
		l.nonces[k] = v
		l.known[k] = true
		restored++
	}
	l.saved = l.version
	return restored, nil
}

// RunPersistLoop persists on every interval until ctx is done, then once more.
func (l *Ledger) RunPersistLoop(ctx context.Context, interval time.Duration) {
	if l.store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := l.Persist(shutdownCtx); err != nil {
				l.logger.Error("Final nonce persist failed", slog.Any("error", err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := l.Persist(ctx); err != nil {
				l.logger.Warn("Nonce persist failed", slog.Any("error", err))
			}
		}
	}
}
