package livetableintegrationtests

import (
	"context"
	"fmt"
	"testing"

	nonceledger "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/nonce"
	noncedb "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/repositories"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetDB(t *testing.T) {
	t.Helper()
	require.NoError(t, testEnv.ResetDatabase(context.Background()))
}

func TestNonceDB_SaveLoadGet(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := noncedb.NewNonceDB(testEnv.DB)

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, noncedb.ErrNotFound)

	require.NoError(t, repo.Save(ctx, map[string]uint64{"aa": 1, "bb": 7}))
	require.NoError(t, repo.Save(ctx, map[string]uint64{"bb": 9, "cc": 0}))

	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"aa": 1, "bb": 9, "cc": 0}, loaded)

	n, err := repo.Get(ctx, "bb")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n)
}

func TestNonceDB_SaveManyRowsAcrossChunks(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := noncedb.NewNonceDB(testEnv.DB)
	faker := gofakeit.New(11)

	want := make(map[string]uint64, 1200)
	for i := 0; i < 1200; i++ {
		want[fmt.Sprintf("%064x", i)] = uint64(faker.IntRange(0, 1_000_000))
	}
	require.NoError(t, repo.Save(ctx, want))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, loaded)
}

func TestNonceLedger_PersistRestoreThroughPostgres(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := noncedb.NewNonceDB(testEnv.DB)

	ledger := nonceledger.NewLedger(nil, repo, testEnv.Logger)
	for i := 0; i < 3; i++ {
		ok, err := ledger.WithSerializedNonce(ctx, "player", func(context.Context, uint64) (bool, error) { return true, nil })
		require.NoError(t, err)
		require.True(t, ok)
	}
	ledger.SetCurrentNonce("admin", 40)
	require.NoError(t, ledger.Persist(ctx))

	restarted := nonceledger.NewLedger(nil, repo, testEnv.Logger)
	n, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	next, ok := restarted.GetCurrentNonce("player")
	assert.True(t, ok)
	assert.Equal(t, uint64(3), next)
	next, _ = restarted.GetCurrentNonce("admin")
	assert.Equal(t, uint64(40), next)
}
