package leaderboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillchain/reputation-engine/internal/types"
)

type staticScores []types.CategoryScore

func (s staticScores) ListAllCategoryScores(context.Context) ([]types.CategoryScore, error) {
	return s, nil
}

type failingScores struct{}

func (failingScores) ListAllCategoryScores(context.Context) ([]types.CategoryScore, error) {
	return nil, errors.New("store down")
}

func TestTopRanksByWeightedOverall(t *testing.T) {
	scores := staticScores{
		{UserAddress: "0.0.1001", Category: types.CategoryTechnicalSkill, Score: 90},
		{UserAddress: "0.0.1001", Category: types.CategoryReliability, Score: 80},
		{UserAddress: "0.0.2002", Category: types.CategoryTechnicalSkill, Score: 60},
		{UserAddress: "0.0.3003", Category: types.CategoryGovernance, Score: 100},
	}

	svc := NewService(scores, nil)
	entries, err := svc.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// 0.0.1001: .25*90 + .20*80 + neutral elsewhere = 66.0
	assert.Equal(t, "0.0.1001", entries[0].UserAddress)
	assert.InDelta(t, 66.0, entries[0].OverallScore, 0.01)
	assert.Equal(t, 1, entries[0].Rank)

	// 0.0.2002 and 0.0.3003 both land at 52.5; the tie breaks on address
	// for a stable order.
	assert.Equal(t, "0.0.2002", entries[1].UserAddress)
	assert.InDelta(t, 52.5, entries[1].OverallScore, 0.01)
	assert.Equal(t, "0.0.3003", entries[2].UserAddress)
	assert.InDelta(t, 52.5, entries[2].OverallScore, 0.01)
	assert.Equal(t, 3, entries[2].Rank)
}

func TestTopHonorsLimit(t *testing.T) {
	scores := staticScores{
		{UserAddress: "0.0.1001", Category: types.CategoryTechnicalSkill, Score: 90},
		{UserAddress: "0.0.2002", Category: types.CategoryTechnicalSkill, Score: 80},
		{UserAddress: "0.0.3003", Category: types.CategoryTechnicalSkill, Score: 70},
	}

	svc := NewService(scores, nil)
	entries, err := svc.Top(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "0.0.1001", entries[0].UserAddress)
}

func TestTopEmptyStore(t *testing.T) {
	svc := NewService(staticScores{}, nil)
	entries, err := svc.Top(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTopSurfacesStoreErrors(t *testing.T) {
	svc := NewService(failingScores{}, nil)
	_, err := svc.Top(context.Background(), 10)
	assert.Error(t, err)
}
