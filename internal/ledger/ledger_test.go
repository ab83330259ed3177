package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skillchain/reputation-engine/internal/errors"
	"github.com/skillchain/reputation-engine/internal/types"
)

const testUser = "0.0.1001"

func newTx(id string, event types.EventType, createdAt time.Time) *types.Transaction {
	return &types.Transaction{
		ID:          id,
		UserAddress: testUser,
		EventType:   event,
		ImpactScore: 10,
		Context:     map[string]any{"category": "technical_skill"},
		CreatedAt:   createdAt,
	}
}

func TestMemoryStoreQueryOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Append oldest first; reads must come back newest first.
	for i, id := range []string{"tx-a", "tx-b", "tx-c"} {
		_, err := store.Append(ctx, newTx(id, types.EventJobCompletion, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	txs, err := store.Query(ctx, testUser, Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "tx-c", txs[0].ID)
	assert.Equal(t, "tx-b", txs[1].ID)
	assert.Equal(t, "tx-a", txs[2].ID)
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, newTx("tx-old", types.EventJobCompletion, base.Add(-48*time.Hour)))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTx("tx-review", types.EventPeerReview, base.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTx("tx-job", types.EventJobCompletion, base))
	require.NoError(t, err)

	t.Run("filter by event type", func(t *testing.T) {
		txs, err := store.Query(ctx, testUser, Filter{EventType: types.EventPeerReview})
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "tx-review", txs[0].ID)
	})

	t.Run("filter by category", func(t *testing.T) {
		other := newTx("tx-collab", types.EventPeerReview, base.Add(-3*time.Hour))
		other.Context = map[string]any{"category": "collaboration"}
		_, err := store.Append(ctx, other)
		require.NoError(t, err)

		txs, err := store.Query(ctx, testUser, Filter{Category: types.CategoryCollaboration})
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "tx-collab", txs[0].ID)
	})

	t.Run("filter by since", func(t *testing.T) {
		txs, err := store.Query(ctx, testUser, Filter{Since: base.Add(-2 * time.Hour)})
		require.NoError(t, err)
		assert.Len(t, txs, 2)
	})

	t.Run("limit caps results after ordering", func(t *testing.T) {
		txs, err := store.Query(ctx, testUser, Filter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "tx-job", txs[0].ID)
	})

	t.Run("unknown user yields empty result", func(t *testing.T) {
		txs, err := store.Query(ctx, "0.0.9999", Filter{})
		require.NoError(t, err)
		assert.Empty(t, txs)
	})
}

func TestMemoryStoreCountSince(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, newTx(
			time.Duration(i).String(), types.EventJobCompletion, base.Add(-time.Duration(i)*24*time.Hour)))
		require.NoError(t, err)
	}

	count, err := store.CountSince(ctx, testUser, base.Add(-36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// failingStore errors on every call.
type failingStore struct{}

func (failingStore) Append(context.Context, *types.Transaction) (string, error) {
	return "", errors.New("store down")
}

func (failingStore) Query(context.Context, string, Filter) ([]types.Transaction, error) {
	return nil, errors.New("store down")
}

func (failingStore) CountSince(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("store down")
}

func TestFallbackStoreDegradesOnce(t *testing.T) {
	ctx := context.Background()
	store := NewFallbackStore(failingStore{}, NewMemoryStore())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, store.Degraded())

	id, err := store.Append(ctx, newTx("tx-1", types.EventJobCompletion, now))
	require.NoError(t, err)
	assert.Equal(t, "tx-1", id)
	assert.True(t, store.Degraded(), "first primary failure must degrade the store")

	// Subsequent operations stay on the fallback and see earlier writes.
	txs, err := store.Query(ctx, testUser, Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-1", txs[0].ID)

	count, err := store.CountSince(ctx, testUser, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFallbackStoreHealthyPrimary(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	fallback := NewMemoryStore()
	store := NewFallbackStore(primary, fallback)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, newTx("tx-1", types.EventJobCompletion, now))
	require.NoError(t, err)
	assert.False(t, store.Degraded())

	// The write went to the primary, not the fallback.
	primaryTxs, err := primary.Query(ctx, testUser, Filter{})
	require.NoError(t, err)
	assert.Len(t, primaryTxs, 1)

	fallbackTxs, err := fallback.Query(ctx, testUser, Filter{})
	require.NoError(t, err)
	assert.Empty(t, fallbackTxs)
}

func TestFallbackStoreBothBackendsDown(t *testing.T) {
	ctx := context.Background()
	store := NewFallbackStore(failingStore{}, failingStore{})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, newTx("tx-1", types.EventJobCompletion, now))
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))
}

func TestFallbackStoreContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewFallbackStore(NewMemoryStore(), NewMemoryStore())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, newTx("tx-1", types.EventJobCompletion, now))
	require.Error(t, err)
	assert.False(t, store.Degraded(), "a caller cancellation must not degrade the store")
}
