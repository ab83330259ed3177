package oracle

import (
	"context"
	"sort"
	"sync"

	"github.com/skillchain/reputation-engine/internal/types"
)

// MemoryStore is an in-process oracle store for tests and degraded mode.
type MemoryStore struct {
	mu      sync.RWMutex
	oracles map[string]types.Oracle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{oracles: make(map[string]types.Oracle)}
}

func (m *MemoryStore) InsertOracle(ctx context.Context, o *types.Oracle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oracles[o.OracleAddress] = *o
	return nil
}

func (m *MemoryStore) GetOracleByAddress(ctx context.Context, address string) (*types.Oracle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.oracles[address]
	if !ok {
		return nil, nil
	}
	copied := o
	return &copied, nil
}

func (m *MemoryStore) UpdateOracle(ctx context.Context, o *types.Oracle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oracles[o.OracleAddress] = *o
	return nil
}

func (m *MemoryStore) ListActiveOracles(ctx context.Context) ([]types.Oracle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := make([]types.Oracle, 0, len(m.oracles))
	for _, o := range m.oracles {
		if o.IsActive {
			active = append(active, o)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].OracleAddress < active[j].OracleAddress })
	return active, nil
}
