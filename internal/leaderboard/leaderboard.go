package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/skillchain/reputation-engine/internal/cache"
	"github.com/skillchain/reputation-engine/internal/scoring"
	"github.com/skillchain/reputation-engine/internal/types"
)

const DefaultLimit = 50

// ScoreLister provides every stored category score row.
type ScoreLister interface {
	ListAllCategoryScores(ctx context.Context) ([]types.CategoryScore, error)
}

// Entry is one ranked leaderboard row.
type Entry struct {
	Rank           int                        `json:"rank"`
	UserAddress    string                     `json:"user_address"`
	OverallScore   float64                    `json:"overall_score"`
	CategoryScores map[types.Category]float64 `json:"category_scores"`
}

// Service ranks users by their weighted overall score. Results are cached;
// reputation updates invalidate the cache, so stale reads are bounded by the
// cache TTL.
type Service struct {
	scores ScoreLister
	cache  *cache.Cache
}

func NewService(scores ScoreLister, c *cache.Cache) *Service {
	return &Service{scores: scores, cache: c}
}

// Top returns the highest-scoring users, best first. Categories a user never
// touched count at the neutral default so sparse users are comparable to
// active ones.
func (s *Service) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if s.cache != nil {
		if raw, ok := s.cache.Get(cache.LeaderboardKey()); ok {
			var cached []Entry
			if err := json.Unmarshal(raw, &cached); err == nil {
				if len(cached) > limit {
					cached = cached[:limit]
				}
				return cached, nil
			}
		}
	}

	rows, err := s.scores.ListAllCategoryScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load category scores: %w", err)
	}

	byUser := make(map[string]map[types.Category]float64)
	for _, row := range rows {
		if byUser[row.UserAddress] == nil {
			byUser[row.UserAddress] = make(map[types.Category]float64)
		}
		byUser[row.UserAddress][row.Category] = row.Score
	}

	entries := make([]Entry, 0, len(byUser))
	for user, scores := range byUser {
		overall := 0.0
		for _, cat := range types.Categories() {
			score, ok := scores[cat]
			if !ok {
				score = scoring.NeutralScore
			}
			overall += score * scoring.CategoryWeights[cat]
		}
		entries = append(entries, Entry{
			UserAddress:    user,
			OverallScore:   math.Round(overall*100) / 100,
			CategoryScores: scores,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].OverallScore != entries[j].OverallScore {
			return entries[i].OverallScore > entries[j].OverallScore
		}
		return entries[i].UserAddress < entries[j].UserAddress
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	if s.cache != nil {
		if raw, err := json.Marshal(entries); err == nil {
			s.cache.Set(cache.LeaderboardKey(), raw)
		}
	}

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
