package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skillchain/reputation-engine/internal/types"
)

// MemoryScoreStore is an in-process ScoreStore. It backs tests and the
// degraded mode where the SQL store is unavailable.
type MemoryScoreStore struct {
	mu     sync.RWMutex
	scores map[string]map[types.Category]types.CategoryScore
}

func NewMemoryScoreStore() *MemoryScoreStore {
	return &MemoryScoreStore{scores: make(map[string]map[types.Category]types.CategoryScore)}
}

func (m *MemoryScoreStore) GetCategoryScore(ctx context.Context, user string, category types.Category) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.scores[user][category]
	if !ok {
		return 0, false, nil
	}
	return row.Score, true, nil
}

func (m *MemoryScoreStore) UpsertCategoryScore(ctx context.Context, user string, category types.Category, score float64, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores[user] == nil {
		m.scores[user] = make(map[types.Category]types.CategoryScore)
	}
	m.scores[user][category] = types.CategoryScore{
		UserAddress: user,
		Category:    category,
		Score:       score,
		UpdatedAt:   now,
	}
	return nil
}

func (m *MemoryScoreStore) ListCategoryScores(ctx context.Context, user string) ([]types.CategoryScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]types.CategoryScore, 0, len(m.scores[user]))
	for _, row := range m.scores[user] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
	return rows, nil
}
