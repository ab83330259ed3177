package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skillchain/reputation-engine/internal/types"
)

// MemoryStore is an in-memory ledger keyed by user address. It backs tests
// and serves as the degraded fallback when the structured store is down.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string][]types.Transaction
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string][]types.Transaction),
	}
}

// Append records a copy of the transaction.
func (s *MemoryStore) Append(ctx context.Context, tx *types.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions[tx.UserAddress] = append(s.transactions[tx.UserAddress], *tx)
	return tx.ID, nil
}

// Query returns matching entries, most recent first.
func (s *MemoryStore) Query(ctx context.Context, user string, f Filter) ([]types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []types.Transaction
	for _, tx := range s.transactions[user] {
		if f.EventType != "" && tx.EventType != f.EventType {
			continue
		}
		if f.Category != "" && tx.CategoryValue() != string(f.Category) {
			continue
		}
		if !f.Since.IsZero() && tx.CreatedAt.Before(f.Since) {
			continue
		}
		matched = append(matched, tx)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	return matched, nil
}

// CountSince counts entries newer than the cutoff.
func (s *MemoryStore) CountSince(ctx context.Context, user string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, tx := range s.transactions[user] {
		if !tx.CreatedAt.Before(since) {
			count++
		}
	}

	return count, nil
}
