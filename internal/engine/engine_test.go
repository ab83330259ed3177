package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skillchain/reputation-engine/internal/errors"
	"github.com/skillchain/reputation-engine/internal/ledger"
	"github.com/skillchain/reputation-engine/internal/types"
)

const testUser = "0.0.1001"

func newTestEngine(clock func() time.Time) *Engine {
	return New(Config{
		Ledger: ledger.NewMemoryStore(),
		Scores: NewMemoryScoreStore(),
		Clock:  clock,
	})
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func validUpdate(impact float64) UpdateRequest {
	return UpdateRequest{
		UserAddress: testUser,
		EventType:   types.EventJobCompletion,
		ImpactScore: impact,
		Context: map[string]any{
			"job_id":             "job-42",
			"completion_quality": "high",
			"category":           "technical_skill",
		},
	}
}

func TestUpdateReputationValidation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*UpdateRequest)
	}{
		{
			name:   "malformed user address",
			mutate: func(r *UpdateRequest) { r.UserAddress = "not-an-address" },
		},
		{
			name:   "malformed validator address",
			mutate: func(r *UpdateRequest) { r.ValidatorAddress = "bogus" },
		},
		{
			name:   "unknown event type",
			mutate: func(r *UpdateRequest) { r.EventType = "mystery_event" },
		},
		{
			name:   "impact above range",
			mutate: func(r *UpdateRequest) { r.ImpactScore = 101 },
		},
		{
			name:   "impact below range",
			mutate: func(r *UpdateRequest) { r.ImpactScore = -101 },
		},
		{
			name:   "missing required context field",
			mutate: func(r *UpdateRequest) { delete(r.Context, "job_id") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(fixedClock(now))
			req := validUpdate(20)
			tt.mutate(&req)

			_, err := e.UpdateReputation(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))

			// A rejected update leaves no ledger trace.
			txs, err := e.GetHistory(context.Background(), testUser, ledger.Filter{})
			require.NoError(t, err)
			assert.Empty(t, txs)
		})
	}
}

func TestUpdateReputationRequiredContextByEvent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		event   types.EventType
		context map[string]any
		wantErr bool
	}{
		{types.EventJobCompletion, map[string]any{"job_id": "j", "completion_quality": "high"}, false},
		{types.EventJobCompletion, map[string]any{"job_id": "j"}, true},
		{types.EventPeerReview, map[string]any{"reviewer_address": "0.0.2", "review_score": 4}, false},
		{types.EventPeerReview, map[string]any{"review_score": 4}, true},
		{types.EventSkillValidation, map[string]any{"skill_id": "s", "validation_type": "exam"}, false},
		{types.EventSkillValidation, map[string]any{}, true},
		{types.EventGovernanceParticipation, map[string]any{"proposal_id": "p", "participation_type": "vote"}, false},
		{types.EventGovernanceParticipation, map[string]any{"proposal_id": "p"}, true},
		{types.EventBonusAwarded, map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			e := newTestEngine(fixedClock(now))
			_, err := e.UpdateReputation(context.Background(), UpdateRequest{
				UserAddress: testUser,
				EventType:   tt.event,
				ImpactScore: 10,
				Context:     tt.context,
			})
			if tt.wantErr {
				assert.True(t, apperrors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateReputationCategoryMapping(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		event      types.EventType
		context    map[string]any
		categories []types.Category
	}{
		{
			event:      types.EventJobCompletion,
			context:    map[string]any{"job_id": "j", "completion_quality": "high"},
			categories: []types.Category{types.CategoryTechnicalSkill, types.CategoryReliability},
		},
		{
			event:      types.EventPeerReview,
			context:    map[string]any{"reviewer_address": "0.0.2", "review_score": 4},
			categories: []types.Category{types.CategoryCollaboration, types.CategoryCommunication},
		},
		{
			event:      types.EventSkillValidation,
			context:    map[string]any{"skill_id": "s", "validation_type": "exam"},
			categories: []types.Category{types.CategoryTechnicalSkill},
		},
		{
			event:      types.EventGovernanceParticipation,
			context:    map[string]any{"proposal_id": "p", "participation_type": "vote"},
			categories: []types.Category{types.CategoryGovernance, types.CategoryLeadership},
		},
		{
			event:      types.EventCommunityContribution,
			context:    map[string]any{},
			categories: []types.Category{types.CategoryInnovation, types.CategoryCollaboration},
		},
		{
			event:      types.EventMilestoneAchieved,
			context:    map[string]any{},
			categories: []types.Category{types.CategoryTechnicalSkill},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			e := newTestEngine(fixedClock(now))
			result, err := e.UpdateReputation(context.Background(), UpdateRequest{
				UserAddress: testUser,
				EventType:   tt.event,
				ImpactScore: 20,
				Context:     tt.context,
			})
			require.NoError(t, err)
			require.Len(t, result.AffectedCategories, len(tt.categories))
			for _, cat := range tt.categories {
				// 50 default nudged by 10% of impact 20.
				assert.InDelta(t, 52.0, result.AffectedCategories[cat], 0.0001)
			}
		})
	}
}

func TestUpdateReputationRateLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := e.UpdateReputation(ctx, validUpdate(1))
		require.NoError(t, err, "update %d within the quota must succeed", i+1)
	}

	_, err := e.UpdateReputation(ctx, validUpdate(1))
	require.Error(t, err, "the 11th update within 24 hours must be rejected")
	assert.True(t, apperrors.IsRateLimit(err))
}

func TestUpdateReputationRateLimitWindowSlides(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(func() time.Time { return current })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := e.UpdateReputation(ctx, validUpdate(1))
		require.NoError(t, err)
	}
	_, err := e.UpdateReputation(ctx, validUpdate(1))
	require.True(t, apperrors.IsRateLimit(err))

	// A day later the quota is free again.
	current = current.Add(25 * time.Hour)
	_, err = e.UpdateReputation(ctx, validUpdate(1))
	assert.NoError(t, err)
}

func TestCategoryScoreStaysInRange(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(func() time.Time { return current })
	ctx := context.Background()

	// Hammer the maximum positive impact; each day allows ten events.
	for i := 0; i < 150; i++ {
		if i%10 == 0 {
			current = current.Add(25 * time.Hour)
		}
		_, err := e.UpdateReputation(ctx, validUpdate(100))
		require.NoError(t, err)
	}

	scores, err := e.GetCategoryScores(ctx, testUser)
	require.NoError(t, err)
	require.NotEmpty(t, scores)
	for _, s := range scores {
		assert.LessOrEqual(t, s.Score, 100.0)
		assert.GreaterOrEqual(t, s.Score, 0.0)
	}

	// Now hammer the maximum negative impact.
	for i := 0; i < 150; i++ {
		if i%10 == 0 {
			current = current.Add(25 * time.Hour)
		}
		_, err := e.UpdateReputation(ctx, validUpdate(-100))
		require.NoError(t, err)
	}

	scores, err = e.GetCategoryScores(ctx, testUser)
	require.NoError(t, err)
	for _, s := range scores {
		assert.LessOrEqual(t, s.Score, 100.0)
		assert.GreaterOrEqual(t, s.Score, 0.0)
	}
}

func TestCalculateScoreIdempotentReads(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(fixedClock(now))
	ctx := context.Background()

	_, err := e.UpdateReputation(ctx, validUpdate(30))
	require.NoError(t, err)

	first, err := e.CalculateScore(ctx, testUser, nil)
	require.NoError(t, err)
	second, err := e.CalculateScore(ctx, testUser, nil)
	require.NoError(t, err)

	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, first.CategoryScores, second.CategoryScores)
}

func TestCalculateScoreSingleCategory(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(fixedClock(now))
	ctx := context.Background()

	_, err := e.UpdateReputation(ctx, validUpdate(30))
	require.NoError(t, err)

	cat := types.CategoryTechnicalSkill
	result, err := e.CalculateScore(ctx, testUser, &cat)
	require.NoError(t, err)

	// One fresh transaction tagged technical_skill: 50 + 30.
	assert.InDelta(t, 80.0, result.OverallScore, 0.01)
	assert.Contains(t, result.CategoryScores, cat)
	assert.NotEmpty(t, result.Breakdown)
	assert.InDelta(t, 0.4, result.Breakdown["recent_performance"], 0.0001)
}

func TestCalculateScoreUnknownUserIsNeutralDecayed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(fixedClock(now))

	result, err := e.CalculateScore(context.Background(), "0.0.7777", nil)
	require.NoError(t, err)

	// All categories neutral, then the no-activity penalty on the aggregate.
	assert.InDelta(t, 40.0, result.OverallScore, 0.01)
	for _, cat := range types.Categories() {
		assert.InDelta(t, 50.0, result.CategoryScores[cat], 0.0001)
	}
}

func TestCalculateScoreRejectsBadInput(t *testing.T) {
	e := newTestEngine(time.Now)

	_, err := e.CalculateScore(context.Background(), "garbage", nil)
	assert.True(t, apperrors.IsValidation(err))

	bad := types.Category("astrology")
	_, err = e.CalculateScore(context.Background(), testUser, &bad)
	assert.True(t, apperrors.IsValidation(err))
}

func TestConcurrentUpdatesLoseNoNudges(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(fixedClock(now))
	ctx := context.Background()

	// One update per event kind, each touching disjoint or overlapping
	// category sets, fired concurrently for the same user.
	requests := []UpdateRequest{
		{UserAddress: testUser, EventType: types.EventJobCompletion, ImpactScore: 20,
			Context: map[string]any{"job_id": "j", "completion_quality": "high"}},
		{UserAddress: testUser, EventType: types.EventPeerReview, ImpactScore: 20,
			Context: map[string]any{"reviewer_address": "0.0.2", "review_score": 5}},
		{UserAddress: testUser, EventType: types.EventGovernanceParticipation, ImpactScore: 20,
			Context: map[string]any{"proposal_id": "p", "participation_type": "vote"}},
		{UserAddress: testUser, EventType: types.EventCommunityContribution, ImpactScore: 20,
			Context: map[string]any{}},
	}

	var wg sync.WaitGroup
	for _, req := range requests {
		wg.Add(1)
		go func(r UpdateRequest) {
			defer wg.Done()
			_, err := e.UpdateReputation(ctx, r)
			assert.NoError(t, err)
		}(req)
	}
	wg.Wait()

	scores, err := e.GetCategoryScores(ctx, testUser)
	require.NoError(t, err)

	byCategory := make(map[types.Category]float64)
	for _, s := range scores {
		byCategory[s.Category] = s.Score
	}

	// Every category hit exactly once lands at 52; collaboration is hit by
	// both peer_review and community_contribution, so it lands at 54.
	assert.InDelta(t, 52.0, byCategory[types.CategoryTechnicalSkill], 0.0001)
	assert.InDelta(t, 52.0, byCategory[types.CategoryReliability], 0.0001)
	assert.InDelta(t, 54.0, byCategory[types.CategoryCollaboration], 0.0001)
	assert.InDelta(t, 52.0, byCategory[types.CategoryCommunication], 0.0001)
	assert.InDelta(t, 52.0, byCategory[types.CategoryGovernance], 0.0001)
	assert.InDelta(t, 52.0, byCategory[types.CategoryLeadership], 0.0001)
	assert.InDelta(t, 52.0, byCategory[types.CategoryInnovation], 0.0001)
}

func TestPostCorrectiveBypassesRateLimitAndForcesNegative(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(fixedClock(now))
	ctx := context.Background()

	// Exhaust the daily quota first.
	for i := 0; i < 10; i++ {
		_, err := e.UpdateReputation(ctx, validUpdate(1))
		require.NoError(t, err)
	}

	txID, err := e.PostCorrective(ctx, testUser, 10, map[string]any{"reason": "evaluation_overturned"})
	require.NoError(t, err, "corrective posts must not be rate limited")
	require.NotEmpty(t, txID)

	txs, err := e.GetHistory(ctx, testUser, ledger.Filter{EventType: types.EventPenaltyApplied})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Negative(t, txs[0].ImpactScore, "corrective impact is always a penalty")
}
