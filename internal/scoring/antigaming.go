package scoring

import (
	"time"

	"github.com/skillchain/reputation-engine/internal/types"
)

var (
	// suspicionWindow is the lookback for gaming heuristics.
	suspicionWindow = 7 * 24 * time.Hour

	// Volume heuristic: more than maxRecentEvents in the window smells like
	// score farming.
	maxRecentEvents     = 20
	volumePenaltyFactor = 0.95

	// Self-validation heuristic: more than maxSelfValidations events
	// validated by the user themselves in the window.
	maxSelfValidations    = 2
	selfValidationPenalty = 0.90
)

// ApplyAntiGaming suppresses scores showing suspicious activity patterns in
// the trailing window. The two adjustments are independent and multiplicative,
// and are applied after time decay.
func ApplyAntiGaming(transactions []types.Transaction, user string, score float64, now time.Time) float64 {
	cutoff := now.Add(-suspicionWindow)

	recentCount := 0
	selfValidations := 0
	for _, tx := range transactions {
		if tx.CreatedAt.Before(cutoff) {
			continue
		}
		recentCount++
		if tx.ValidatorAddress != "" && tx.ValidatorAddress == user {
			selfValidations++
		}
	}

	if recentCount > maxRecentEvents {
		score *= volumePenaltyFactor
	}
	if selfValidations > maxSelfValidations {
		score *= selfValidationPenalty
	}

	return score
}
