package noncedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// ErrNotFound is returned when no nonce is stored for the key.
var ErrNotFound = errors.New("nonce state not found")

// saveChunk bounds the rows written per upsert statement.
const saveChunk = 500

type NonceDBImpl struct {
	DB  *bun.DB
	now func() time.Time
}

var _ Repository = (*NonceDBImpl)(nil)

func NewNonceDB(db *bun.DB) *NonceDBImpl {
	return &NonceDBImpl{DB: db, now: time.Now}
}

func (db *NonceDBImpl) Load(ctx context.Context) (map[string]uint64, error) {
	var rows []NonceState
	if err := db.DB.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load nonce states: %w", err)
	}
	out := make(map[string]uint64, len(rows))
	for _, r := range rows {
		out[r.PublicKeyHex] = r.Nonce
	}
	return out, nil
}

// Save upserts every entry in one transaction.
func (db *NonceDBImpl) Save(ctx context.Context, nonces map[string]uint64) error {
	if len(nonces) == 0 {
		return nil
	}
	keys := make([]string, 0, len(nonces))
	for k := range nonces {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := db.now().UTC()
	rows := make([]NonceState, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, NonceState{PublicKeyHex: k, Nonce: nonces[k], UpdatedAt: now})
	}

	return db.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(rows); start += saveChunk {
			end := min(start+saveChunk, len(rows))
			chunk := rows[start:end]
			_, err := tx.NewInsert().
				Model(&chunk).
				On("CONFLICT (public_key_hex) DO UPDATE").
				Set("nonce = EXCLUDED.nonce").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to upsert nonce states: %w", err)
			}
		}
		return nil
	})
}

func (db *NonceDBImpl) Get(ctx context.Context, publicKeyHex string) (uint64, error) {
	row := new(NonceState)
	err := db.DB.NewSelect().
		Model(row).
		Where("public_key_hex = ?", publicKeyHex).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch nonce state: %w", err)
	}
	return row.Nonce, nil
}
