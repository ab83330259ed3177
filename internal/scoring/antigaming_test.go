package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillchain/reputation-engine/internal/types"
)

const testUser = "0.0.1001"

func recentTxs(n int, now time.Time) []types.Transaction {
	txs := make([]types.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, txAt("technical_skill", 5, now.Add(-time.Duration(i)*time.Hour)))
	}
	return txs
}

func TestApplyAntiGamingVolume(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := 80.0

	t.Run("twenty events in the window is tolerated", func(t *testing.T) {
		score := ApplyAntiGaming(recentTxs(20, now), testUser, base, now)
		assert.InDelta(t, base, score, 0.0001)
	})

	t.Run("twenty-one events costs exactly the volume factor", func(t *testing.T) {
		score := ApplyAntiGaming(recentTxs(21, now), testUser, base, now)
		assert.InDelta(t, base*0.95, score, 0.0001)
	})

	t.Run("events outside the window do not count", func(t *testing.T) {
		txs := recentTxs(15, now)
		for i := 0; i < 10; i++ {
			txs = append(txs, txAt("technical_skill", 5, now.Add(-8*24*time.Hour)))
		}
		score := ApplyAntiGaming(txs, testUser, base, now)
		assert.InDelta(t, base, score, 0.0001)
	})
}

func TestApplyAntiGamingSelfValidation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := 80.0

	selfValidated := func(n int) []types.Transaction {
		txs := make([]types.Transaction, 0, n)
		for i := 0; i < n; i++ {
			tx := txAt("technical_skill", 5, now.Add(-time.Duration(i)*time.Hour))
			tx.ValidatorAddress = testUser
			txs = append(txs, tx)
		}
		return txs
	}

	t.Run("two self-validations are tolerated", func(t *testing.T) {
		score := ApplyAntiGaming(selfValidated(2), testUser, base, now)
		assert.InDelta(t, base, score, 0.0001)
	})

	t.Run("three self-validations cost the self-validation factor", func(t *testing.T) {
		score := ApplyAntiGaming(selfValidated(3), testUser, base, now)
		assert.InDelta(t, base*0.90, score, 0.0001)
	})

	t.Run("validations by other parties do not count", func(t *testing.T) {
		txs := selfValidated(3)
		for i := range txs {
			txs[i].ValidatorAddress = "0.0.9999"
		}
		score := ApplyAntiGaming(txs, testUser, base, now)
		assert.InDelta(t, base, score, 0.0001)
	})

	t.Run("empty validator address never counts as self-validation", func(t *testing.T) {
		txs := selfValidated(3)
		for i := range txs {
			txs[i].ValidatorAddress = ""
		}
		score := ApplyAntiGaming(txs, testUser, base, now)
		assert.InDelta(t, base, score, 0.0001)
	})
}

func TestApplyAntiGamingPenaltiesCompound(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := 80.0

	txs := recentTxs(21, now)
	for i := 0; i < 3; i++ {
		txs[i].ValidatorAddress = testUser
	}

	score := ApplyAntiGaming(txs, testUser, base, now)
	assert.InDelta(t, base*0.95*0.90, score, 0.0001)
}
