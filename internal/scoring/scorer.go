package scoring

import (
	"time"

	"github.com/skillchain/reputation-engine/internal/types"
)

var (
	// CategoryWeights combine the seven dimension scores into the overall
	// score. They sum to 1.0.
	CategoryWeights = map[types.Category]float64{
		types.CategoryTechnicalSkill: 0.25,
		types.CategoryCollaboration:  0.20,
		types.CategoryReliability:    0.20,
		types.CategoryCommunication:  0.15,
		types.CategoryLeadership:     0.10,
		types.CategoryInnovation:     0.05,
		types.CategoryGovernance:     0.05,
	}

	// NeutralScore is the default for users or categories with no history.
	NeutralScore = 50.0

	// recencyWindow lists how many latest matching transactions feed a
	// category score.
	recencyWindow = 20

	// decayHorizon is the linear recency-weight horizon. Weights floor at
	// minRecencyWeight instead of reaching zero.
	decayHorizon     = 30 * 24 * time.Hour
	minRecencyWeight = 0.1
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// recencyWeight assigns newer transactions a higher weight, decaying
// linearly over the horizon and flooring at minRecencyWeight.
func recencyWeight(age time.Duration) float64 {
	w := 1.0 - age.Hours()/decayHorizon.Hours()
	if w < minRecencyWeight {
		return minRecencyWeight
	}
	return w
}

// ScoreCategory computes a 0..100 category score from a user's transactions,
// most recent first. Only entries whose context category matches contribute;
// the latest recencyWindow of those are recency-weighted around the neutral
// midpoint. No matches yields the neutral default.
func ScoreCategory(transactions []types.Transaction, category types.Category, now time.Time) float64 {
	var relevant []types.Transaction
	for _, tx := range transactions {
		if tx.CategoryValue() == string(category) {
			relevant = append(relevant, tx)
		}
	}

	if len(relevant) == 0 {
		return NeutralScore
	}
	if len(relevant) > recencyWindow {
		relevant = relevant[:recencyWindow]
	}

	totalWeight := 0.0
	weightedScore := 0.0
	for _, tx := range relevant {
		w := recencyWeight(now.Sub(tx.CreatedAt))
		weightedScore += (NeutralScore + tx.ImpactScore) * w
		totalWeight += w
	}

	// The weight floor makes a zero total unreachable, but guard anyway.
	if totalWeight == 0 {
		return NeutralScore
	}

	return clamp(weightedScore/totalWeight, 0, 100)
}

// NudgeScore applies the damped incremental update used on every reputation
// event: only 10% of the raw impact propagates, and the result stays in
// [0,100].
func NudgeScore(current, impact float64) float64 {
	return clamp(current+impact*0.1, 0, 100)
}
