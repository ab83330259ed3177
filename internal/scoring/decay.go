package scoring

import (
	"math"
	"time"

	"github.com/skillchain/reputation-engine/internal/types"
)

var (
	// monthlyDecayFactor is applied once per 30 days of inactivity (~2%/month).
	monthlyDecayFactor = 0.98

	// noActivityPenalty is the flat multiplier for users with no history at all.
	noActivityPenalty = 0.8
)

// ApplyTimeDecay reduces a score based on how long the user has been
// inactive. Transactions must be ordered most recent first. Users with no
// transactions take the flat penalty.
func ApplyTimeDecay(transactions []types.Transaction, score float64, now time.Time) float64 {
	if len(transactions) == 0 {
		return score * noActivityPenalty
	}

	daysInactive := now.Sub(transactions[0].CreatedAt).Hours() / 24
	if daysInactive < 0 {
		daysInactive = 0
	}

	monthsInactive := daysInactive / 30
	return score * math.Pow(monthlyDecayFactor, monthsInactive)
}
