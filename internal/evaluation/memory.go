package evaluation

import (
	"context"
	"sync"
	"time"

	"github.com/skillchain/reputation-engine/internal/types"
)

// MemoryStore is an in-process evaluation store for tests and degraded mode.
type MemoryStore struct {
	mu          sync.RWMutex
	evaluations map[string]types.WorkEvaluation
	challenges  map[string]types.EvaluationChallenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evaluations: make(map[string]types.WorkEvaluation),
		challenges:  make(map[string]types.EvaluationChallenge),
	}
}

func (m *MemoryStore) InsertEvaluation(ctx context.Context, e *types.WorkEvaluation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[e.EvaluationID] = *e
	return nil
}

func (m *MemoryStore) GetEvaluation(ctx context.Context, evaluationID string) (*types.WorkEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.evaluations[evaluationID]
	if !ok {
		return nil, nil
	}
	copied := e
	return &copied, nil
}

func (m *MemoryStore) ListEvaluationsByUser(ctx context.Context, user string) ([]types.WorkEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []types.WorkEvaluation
	for _, e := range m.evaluations {
		if e.UserAddress == user {
			results = append(results, e)
		}
	}
	return results, nil
}

func (m *MemoryStore) UpdateEvaluationStatus(ctx context.Context, evaluationID string, status types.EvaluationStatus, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evaluations[evaluationID]
	if !ok {
		return nil
	}
	e.Status = status
	e.UpdatedAt = now
	m.evaluations[evaluationID] = e
	return nil
}

func (m *MemoryStore) InsertChallenge(ctx context.Context, c *types.EvaluationChallenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[c.ChallengeID] = *c
	return nil
}

func (m *MemoryStore) GetChallenge(ctx context.Context, challengeID string) (*types.EvaluationChallenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.challenges[challengeID]
	if !ok {
		return nil, nil
	}
	copied := c
	return &copied, nil
}

func (m *MemoryStore) UpdateChallengeResolution(ctx context.Context, challengeID, resolution string, upholdOriginal bool, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[challengeID]
	if !ok {
		return nil
	}
	c.Status = types.ChallengeResolved
	c.Resolution = resolution
	c.UpholdOriginal = upholdOriginal
	c.ResolvedAt = now
	m.challenges[challengeID] = c
	return nil
}
