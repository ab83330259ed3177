package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/skillchain/reputation-engine/internal/audit"
	"github.com/skillchain/reputation-engine/internal/cache"
	"github.com/skillchain/reputation-engine/internal/chain"
	apperrors "github.com/skillchain/reputation-engine/internal/errors"
	"github.com/skillchain/reputation-engine/internal/ledger"
	"github.com/skillchain/reputation-engine/internal/monitoring"
	"github.com/skillchain/reputation-engine/internal/scoring"
	"github.com/skillchain/reputation-engine/internal/types"
)

const (
	rateLimitWindow    = 24 * time.Hour
	maxEventsPerWindow = 10
	scoreCacheTTL      = 5 * time.Minute
)

// categoryTargets maps each event type to the categories it nudges.
// Unlisted event types fall through to technical_skill.
var categoryTargets = map[types.EventType][]types.Category{
	types.EventJobCompletion:           {types.CategoryTechnicalSkill, types.CategoryReliability},
	types.EventPeerReview:              {types.CategoryCollaboration, types.CategoryCommunication},
	types.EventSkillValidation:         {types.CategoryTechnicalSkill},
	types.EventGovernanceParticipation: {types.CategoryGovernance, types.CategoryLeadership},
	types.EventCommunityContribution:   {types.CategoryInnovation, types.CategoryCollaboration},
}

// ScoreStore persists per-user category scores. Get reports ok=false when no
// row exists yet; callers treat that as the neutral default.
type ScoreStore interface {
	GetCategoryScore(ctx context.Context, user string, category types.Category) (float64, bool, error)
	UpsertCategoryScore(ctx context.Context, user string, category types.Category, score float64, now time.Time) error
	ListCategoryScores(ctx context.Context, user string) ([]types.CategoryScore, error)
}

// UpdateRequest carries one reputation event to record.
type UpdateRequest struct {
	UserAddress      string         `json:"user_address"`
	EventType        types.EventType `json:"event_type"`
	ImpactScore      float64        `json:"impact_score"`
	Context          map[string]any `json:"context"`
	ValidatorAddress string         `json:"validator_address,omitempty"`
	Evidence         string         `json:"evidence,omitempty"`
}

// UpdateResult reports the outcome of a recorded reputation event.
type UpdateResult struct {
	TransactionID      string                     `json:"transaction_id"`
	AffectedCategories map[types.Category]float64 `json:"affected_categories"`
	BlockchainVerified bool                       `json:"blockchain_verified"`
	CreatedAt          time.Time                  `json:"created_at"`
}

// ScoreResult is the response payload for score reads.
type ScoreResult struct {
	UserAddress    string                     `json:"user_address"`
	OverallScore   float64                    `json:"overall_score"`
	CategoryScores map[types.Category]float64 `json:"category_scores"`
	Weights        map[types.Category]float64 `json:"weights"`
	Breakdown      map[string]float64         `json:"breakdown,omitempty"`
	CalculatedAt   time.Time                  `json:"calculated_at"`
}

// scoreBreakdown is the descriptive factor payload attached to
// single-category reads. The factors document how a category score should be
// interpreted; they do not enter the arithmetic.
var scoreBreakdown = map[string]float64{
	"recent_performance":  0.4,
	"consistency":         0.3,
	"peer_validation":     0.2,
	"blockchain_evidence": 0.1,
}

// Engine orchestrates the ledger, scorer, and score store. It is the single
// writer of category scores; per-user locking keeps concurrent updates for
// one user from losing nudges.
type Engine struct {
	ledger      ledger.Store
	scores      ScoreStore
	chainClient chain.Client
	invalidator cache.Invalidator
	scoreCache  *cache.Cache
	auditor     audit.Recorder
	metrics     *monitoring.Metrics
	locks       *keyedMutex
	logger      *slog.Logger
	clock       func() time.Time
}

// Config wires an Engine. Ledger and Scores are required; the rest default
// to inert implementations.
type Config struct {
	Ledger      ledger.Store
	Scores      ScoreStore
	Chain       chain.Client
	Invalidator cache.Invalidator
	ScoreCache  *cache.Cache
	Auditor     audit.Recorder
	Metrics     *monitoring.Metrics
	Logger      *slog.Logger
	Clock       func() time.Time
}

// New creates a reputation engine.
func New(cfg Config) *Engine {
	if cfg.Chain == nil {
		cfg.Chain = chain.NewDisabled()
	}
	if cfg.Invalidator == nil {
		cfg.Invalidator = cache.NoopInvalidator{}
	}
	if cfg.Auditor == nil {
		cfg.Auditor = audit.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		ledger:      cfg.Ledger,
		scores:      cfg.Scores,
		chainClient: cfg.Chain,
		invalidator: cfg.Invalidator,
		scoreCache:  cfg.ScoreCache,
		auditor:     cfg.Auditor,
		metrics:     cfg.Metrics,
		locks:       newKeyedMutex(),
		logger:      cfg.Logger,
		clock:       cfg.Clock,
	}
}

// UpdateReputation validates and records one reputation event, then nudges
// the affected category scores by 10% of the raw impact. Validation and
// rate-limit failures reject before any write; the ledger append itself is
// all-or-nothing.
func (e *Engine) UpdateReputation(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	e.locks.Lock(req.UserAddress)
	defer e.locks.Unlock(req.UserAddress)

	now := e.clock()

	count, err := e.ledger.CountSince(ctx, req.UserAddress, now.Add(-rateLimitWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if count >= maxEventsPerWindow {
		return nil, apperrors.NewRateLimitError(maxEventsPerWindow, rateLimitWindow)
	}

	tx := types.NewTransaction(req.UserAddress, req.EventType, req.ImpactScore, req.Context, now)
	tx.ValidatorAddress = req.ValidatorAddress
	tx.BlockchainEvidence = req.Evidence

	txID, err := e.ledger.Append(ctx, tx)
	if err != nil {
		return nil, err
	}

	affected := make(map[types.Category]float64)
	for _, category := range targetCategories(req.EventType) {
		current, ok, err := e.scores.GetCategoryScore(ctx, req.UserAddress, category)
		if err != nil {
			return nil, fmt.Errorf("failed to read category score: %w", err)
		}
		if !ok {
			current = scoring.NeutralScore
		}
		next := scoring.NudgeScore(current, req.ImpactScore)
		if err := e.scores.UpsertCategoryScore(ctx, req.UserAddress, category, next, now); err != nil {
			return nil, fmt.Errorf("failed to write category score: %w", err)
		}
		affected[category] = next
	}

	verified := e.submitEvidence(ctx, txID, req.Evidence)

	if err := e.invalidator.InvalidateUser(ctx, req.UserAddress); err != nil {
		e.logger.Warn("cache invalidation failed", "user", req.UserAddress, "error", err)
	}
	if err := e.invalidator.InvalidateLeaderboard(ctx); err != nil {
		e.logger.Warn("leaderboard invalidation failed", "error", err)
	}

	e.auditor.Record(ctx, audit.Entry{
		Actor:        req.UserAddress,
		Action:       "update_reputation",
		ResourceType: "reputation_transaction",
		ResourceID:   txID,
		Details: map[string]any{
			"event_type":   string(req.EventType),
			"impact_score": req.ImpactScore,
		},
		Success: true,
	})

	return &UpdateResult{
		TransactionID:      txID,
		AffectedCategories: affected,
		BlockchainVerified: verified,
		CreatedAt:          now,
	}, nil
}

// submitEvidence forwards the transaction digest to the external ledger.
// Failures are logged and reflected as blockchain_verified=false; they never
// fail the local operation.
func (e *Engine) submitEvidence(ctx context.Context, txID, evidence string) bool {
	if evidence == "" {
		return false
	}
	result, err := e.chainClient.SubmitEvidence(ctx, txID, evidence)
	if err != nil {
		e.logger.Warn("evidence submission failed", "transaction_id", txID, "error", err)
		return false
	}
	if !result.Success {
		e.logger.Warn("evidence submission rejected", "transaction_id", txID, "reason", result.Err)
		return false
	}
	return true
}

// CalculateScore derives a user's reputation from the ledger. With a category
// it returns that category's recency-weighted score plus the interpretive
// breakdown; without one it aggregates all seven categories under fixed
// weights and applies decay and anti-gaming to the aggregate.
func (e *Engine) CalculateScore(ctx context.Context, user string, category *types.Category) (*ScoreResult, error) {
	if !types.ValidAddress(user) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid user address: %s", user))
	}
	if category != nil && !category.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown category: %s", *category))
	}

	key := e.cacheKey(user, category)
	if e.scoreCache != nil {
		if raw, ok := e.scoreCache.Get(key); ok {
			var cached ScoreResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				if e.metrics != nil {
					e.metrics.IncrementCacheHit()
				}
				return &cached, nil
			}
		}
		if e.metrics != nil {
			e.metrics.IncrementCacheMiss()
		}
	}

	transactions, err := e.ledger.Query(ctx, user, ledger.Filter{})
	if err != nil {
		return nil, err
	}

	now := e.clock()
	var result *ScoreResult
	if category != nil {
		score := scoring.ScoreCategory(transactions, *category, now)
		result = &ScoreResult{
			UserAddress:    user,
			OverallScore:   round2(score),
			CategoryScores: map[types.Category]float64{*category: round2(score)},
			Weights:        map[types.Category]float64{*category: scoring.CategoryWeights[*category]},
			Breakdown:      scoreBreakdown,
			CalculatedAt:   now,
		}
	} else {
		perCategory := make(map[types.Category]float64, len(types.Categories()))
		overall := 0.0
		for _, cat := range types.Categories() {
			score := scoring.ScoreCategory(transactions, cat, now)
			perCategory[cat] = round2(score)
			overall += score * scoring.CategoryWeights[cat]
		}
		overall = scoring.ApplyTimeDecay(transactions, overall, now)
		overall = scoring.ApplyAntiGaming(transactions, user, overall, now)
		result = &ScoreResult{
			UserAddress:    user,
			OverallScore:   round2(overall),
			CategoryScores: perCategory,
			Weights:        scoring.CategoryWeights,
			CalculatedAt:   now,
		}
	}

	if e.scoreCache != nil {
		if raw, err := json.Marshal(result); err == nil {
			e.scoreCache.Set(key, raw)
		}
	}
	return result, nil
}

// GetHistory returns a user's reputation transactions, most recent first.
func (e *Engine) GetHistory(ctx context.Context, user string, f ledger.Filter) ([]types.Transaction, error) {
	if !types.ValidAddress(user) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid user address: %s", user))
	}
	return e.ledger.Query(ctx, user, f)
}

// GetCategoryScores returns the stored per-category scores for a user.
// Categories never touched by an update are absent.
func (e *Engine) GetCategoryScores(ctx context.Context, user string) ([]types.CategoryScore, error) {
	if !types.ValidAddress(user) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid user address: %s", user))
	}
	return e.scores.ListCategoryScores(ctx, user)
}

// PostCorrective appends a penalty transaction outside the normal update
// path, bypassing the rate limit. Used when a challenge overturns an
// evaluation; the correction must never be dropped because the user was busy.
func (e *Engine) PostCorrective(ctx context.Context, user string, impact float64, context map[string]any) (string, error) {
	if impact > 0 {
		impact = -impact
	}

	e.locks.Lock(user)
	defer e.locks.Unlock(user)

	now := e.clock()
	tx := types.NewTransaction(user, types.EventPenaltyApplied, impact, context, now)
	txID, err := e.ledger.Append(ctx, tx)
	if err != nil {
		return "", err
	}

	for _, category := range targetCategories(types.EventPenaltyApplied) {
		current, ok, err := e.scores.GetCategoryScore(ctx, user, category)
		if err != nil {
			return "", fmt.Errorf("failed to read category score: %w", err)
		}
		if !ok {
			current = scoring.NeutralScore
		}
		next := scoring.NudgeScore(current, impact)
		if err := e.scores.UpsertCategoryScore(ctx, user, category, next, now); err != nil {
			return "", fmt.Errorf("failed to write category score: %w", err)
		}
	}

	if err := e.invalidator.InvalidateUser(ctx, user); err != nil {
		e.logger.Warn("cache invalidation failed", "user", user, "error", err)
	}
	return txID, nil
}

func (e *Engine) cacheKey(user string, category *types.Category) cache.Key {
	if category != nil {
		return cache.UserCategoryKey(user, *category)
	}
	return cache.UserKey(user)
}

func targetCategories(event types.EventType) []types.Category {
	if targets, ok := categoryTargets[event]; ok {
		return targets
	}
	return []types.Category{types.CategoryTechnicalSkill}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
