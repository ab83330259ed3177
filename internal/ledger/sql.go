package ledger

import (
	"context"
	"time"

	"github.com/skillchain/reputation-engine/internal/database"
	"github.com/skillchain/reputation-engine/internal/types"
)

// SQLStore is the structured primary ledger backed by the repository.
type SQLStore struct {
	repo *database.Repository
}

// NewSQLStore creates a ledger over the database repository.
func NewSQLStore(repo *database.Repository) *SQLStore {
	return &SQLStore{repo: repo}
}

// Append inserts the transaction row. The insert is atomic at the storage layer.
func (s *SQLStore) Append(ctx context.Context, tx *types.Transaction) (string, error) {
	if err := s.repo.InsertTransaction(ctx, tx); err != nil {
		return "", err
	}
	return tx.ID, nil
}

// Query returns matching entries, most recent first.
func (s *SQLStore) Query(ctx context.Context, user string, f Filter) ([]types.Transaction, error) {
	return s.repo.QueryTransactions(ctx, user, database.TxFilter{
		EventType: f.EventType,
		Category:  f.Category,
		Since:     f.Since,
		Limit:     f.Limit,
	})
}

// CountSince counts entries newer than the cutoff.
func (s *SQLStore) CountSince(ctx context.Context, user string, since time.Time) (int, error) {
	return s.repo.CountTransactionsSince(ctx, user, since)
}
