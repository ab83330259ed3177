package ledger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/skillchain/reputation-engine/internal/errors"
	"github.com/skillchain/reputation-engine/internal/types"
)

// FallbackStore wraps a primary structured store with an in-memory fallback.
// The first primary failure degrades the store for the remainder of the
// process lifetime; the degradation is logged once, not per call.
type FallbackStore struct {
	primary  Store
	fallback Store
	degraded atomic.Bool
	logOnce  sync.Once
}

// NewFallbackStore creates a dual-backend ledger.
func NewFallbackStore(primary, fallback Store) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
	}
}

// Degraded reports whether the store has switched to the fallback backend.
func (s *FallbackStore) Degraded() bool {
	return s.degraded.Load()
}

func (s *FallbackStore) degrade(cause error) {
	s.degraded.Store(true)
	s.logOnce.Do(func() {
		slog.Warn("Primary ledger store unavailable, degrading to in-memory fallback",
			"error", cause)
	})
}

// Append writes to the primary store, degrading to the fallback on failure.
// A context cancellation is surfaced as-is without degrading.
func (s *FallbackStore) Append(ctx context.Context, tx *types.Transaction) (string, error) {
	if !s.degraded.Load() {
		id, err := s.primary.Append(ctx, tx)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		s.degrade(err)
	}

	id, err := s.fallback.Append(ctx, tx)
	if err != nil {
		return "", apperrors.NewPersistenceError("ledger append failed on both stores", err)
	}
	return id, nil
}

// Query reads from whichever backend is live.
func (s *FallbackStore) Query(ctx context.Context, user string, f Filter) ([]types.Transaction, error) {
	if !s.degraded.Load() {
		txs, err := s.primary.Query(ctx, user, f)
		if err == nil {
			return txs, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		s.degrade(err)
	}

	txs, err := s.fallback.Query(ctx, user, f)
	if err != nil {
		return nil, apperrors.NewPersistenceError("ledger query failed on both stores", err)
	}
	return txs, nil
}

// CountSince counts from whichever backend is live.
func (s *FallbackStore) CountSince(ctx context.Context, user string, since time.Time) (int, error) {
	if !s.degraded.Load() {
		count, err := s.primary.CountSince(ctx, user, since)
		if err == nil {
			return count, nil
		}
		if ctx.Err() != nil {
			return 0, err
		}
		s.degrade(err)
	}

	count, err := s.fallback.CountSince(ctx, user, since)
	if err != nil {
		return 0, apperrors.NewPersistenceError("ledger count failed on both stores", err)
	}
	return count, nil
}
