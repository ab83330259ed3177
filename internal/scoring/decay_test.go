package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillchain/reputation-engine/internal/types"
)

func TestApplyTimeDecay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no history takes the flat penalty", func(t *testing.T) {
		decayed := ApplyTimeDecay(nil, 80, now)
		assert.InDelta(t, 64.0, decayed, 0.0001)
	})

	t.Run("activity right now leaves the score untouched", func(t *testing.T) {
		txs := []types.Transaction{txAt("technical_skill", 10, now)}
		decayed := ApplyTimeDecay(txs, 80, now)
		assert.InDelta(t, 80.0, decayed, 0.0001)
	})

	t.Run("thirty days inactive costs one monthly factor", func(t *testing.T) {
		txs := []types.Transaction{txAt("technical_skill", 10, now.Add(-30*24*time.Hour))}
		decayed := ApplyTimeDecay(txs, 80, now)
		assert.InDelta(t, 80*0.98, decayed, 0.0001)
	})

	t.Run("ninety days inactive compounds three factors", func(t *testing.T) {
		txs := []types.Transaction{txAt("technical_skill", 10, now.Add(-90*24*time.Hour))}
		decayed := ApplyTimeDecay(txs, 80, now)
		assert.InDelta(t, 80*math.Pow(0.98, 3), decayed, 0.0001)
	})

	t.Run("future timestamp clamps to no decay", func(t *testing.T) {
		txs := []types.Transaction{txAt("technical_skill", 10, now.Add(time.Hour))}
		decayed := ApplyTimeDecay(txs, 80, now)
		assert.InDelta(t, 80.0, decayed, 0.0001)
	})
}

func TestDecayMonotonicity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := 75.0

	recent := []types.Transaction{txAt("technical_skill", 10, now.Add(-2*24*time.Hour))}
	stale := []types.Transaction{txAt("technical_skill", 10, now.Add(-60*24*time.Hour))}

	recentScore := ApplyTimeDecay(recent, base, now)
	staleScore := ApplyTimeDecay(stale, base, now)

	assert.GreaterOrEqual(t, recentScore, staleScore,
		"the user with more recent activity must never score below the staler one")
}
