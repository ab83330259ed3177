package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillchain/reputation-engine/internal/audit"
	"github.com/skillchain/reputation-engine/internal/chain"
	apperrors "github.com/skillchain/reputation-engine/internal/errors"
	"github.com/skillchain/reputation-engine/internal/oracle"
	"github.com/skillchain/reputation-engine/internal/types"
)

const maxFixedPointScore = 10000

// overturnPenalty is the raw impact posted against a user when a challenge
// overturns the evaluation that scored them. It damps to a one-point category
// move through the standard 10% propagation.
const overturnPenalty = 10.0

// Store persists evaluations and challenges. Lookups return (nil, nil) when
// no record exists.
type Store interface {
	InsertEvaluation(ctx context.Context, e *types.WorkEvaluation) error
	GetEvaluation(ctx context.Context, evaluationID string) (*types.WorkEvaluation, error)
	ListEvaluationsByUser(ctx context.Context, user string) ([]types.WorkEvaluation, error)
	UpdateEvaluationStatus(ctx context.Context, evaluationID string, status types.EvaluationStatus, now time.Time) error
	InsertChallenge(ctx context.Context, c *types.EvaluationChallenge) error
	GetChallenge(ctx context.Context, challengeID string) (*types.EvaluationChallenge, error)
	UpdateChallengeResolution(ctx context.Context, challengeID, resolution string, upholdOriginal bool, now time.Time) error
}

// OracleDirectory answers authorization questions and tracks oracle
// performance counters.
type OracleDirectory interface {
	IsActiveOracle(ctx context.Context, address string) (bool, error)
	RecordEvaluation(ctx context.Context, address string, successful bool) error
	MarkOverturned(ctx context.Context, address string) error
}

// ReputationPoster posts corrective transactions when a resolution demands
// one.
type ReputationPoster interface {
	PostCorrective(ctx context.Context, user string, impact float64, context map[string]any) (string, error)
}

// SubmitRequest carries an oracle's evaluation of a user's work.
type SubmitRequest struct {
	OracleAddress   string  `json:"oracle_address"`
	UserAddress     string  `json:"user_address"`
	SkillTokenIDs   []int64 `json:"skill_token_ids"`
	WorkDescription string  `json:"work_description"`
	WorkContent     string  `json:"work_content"`
	OverallScore    int64   `json:"overall_score"`
	SkillScores     []int64 `json:"skill_scores"`
	Feedback        string  `json:"feedback"`
	IPFSHash        string  `json:"ipfs_hash,omitempty"`
}

// ChallengeRequest carries a staked dispute against a completed evaluation.
type ChallengeRequest struct {
	ChallengerAddress string   `json:"challenger_address"`
	EvaluationID      string   `json:"evaluation_id"`
	Reason            string   `json:"reason"`
	Evidence          []string `json:"evidence"`
	StakeAmount       float64  `json:"stake_amount"`
}

// Workflow drives the evaluation and challenge state machine. State
// transitions for one evaluation serialize on a per-evaluation lock.
type Workflow struct {
	store       Store
	oracles     OracleDirectory
	reputation  ReputationPoster
	chainClient chain.Client
	auditor     audit.Recorder
	logger      *slog.Logger
	clock       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Config wires a Workflow. Store, Oracles, and Reputation are required.
type Config struct {
	Store      Store
	Oracles    OracleDirectory
	Reputation ReputationPoster
	Chain      chain.Client
	Auditor    audit.Recorder
	Logger     *slog.Logger
	Clock      func() time.Time
}

func NewWorkflow(cfg Config) *Workflow {
	if cfg.Chain == nil {
		cfg.Chain = chain.NewDisabled()
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
	return &Workflow{
		store:       cfg.Store,
		oracles:     cfg.Oracles,
		reputation:  cfg.Reputation,
		chainClient: cfg.Chain,
		auditor:     cfg.Auditor,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (w *Workflow) lock(evaluationID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.locks[evaluationID]
	if !ok {
		m = &sync.Mutex{}
		w.locks[evaluationID] = m
	}
	return m
}

// SubmitWorkEvaluation records an active oracle's scoring of a user's work.
// The evaluation lands as completed once persisted; on-chain submission is
// best-effort evidence.
func (w *Workflow) SubmitWorkEvaluation(ctx context.Context, req SubmitRequest) (*types.WorkEvaluation, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	active, err := w.oracles.IsActiveOracle(ctx, req.OracleAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to check oracle status: %w", err)
	}
	if !active {
		return nil, apperrors.NewUnauthorizedOracleError(req.OracleAddress)
	}

	now := w.clock()
	eval := &types.WorkEvaluation{
		EvaluationID:    uuid.New().String(),
		UserAddress:     req.UserAddress,
		OracleAddress:   req.OracleAddress,
		SkillTokenIDs:   req.SkillTokenIDs,
		WorkDescription: req.WorkDescription,
		WorkContent:     req.WorkContent,
		OverallScore:    req.OverallScore,
		SkillScores:     req.SkillScores,
		Feedback:        req.Feedback,
		IPFSHash:        req.IPFSHash,
		Status:          types.EvaluationSubmitted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result, err := w.chainClient.SubmitEvaluation(ctx, chain.EvaluationSubmission{
		UserAddress:     req.UserAddress,
		OracleAddress:   req.OracleAddress,
		SkillTokenIDs:   req.SkillTokenIDs,
		WorkDescription: req.WorkDescription,
		OverallScore:    req.OverallScore,
		SkillScores:     req.SkillScores,
		IPFSHash:        req.IPFSHash,
	})
	if err != nil {
		w.logger.Warn("on-chain evaluation submission failed", "oracle", req.OracleAddress, "error", err)
	} else if result.Success {
		eval.TransactionID = result.TransactionID
		eval.BlockchainVerified = true
	}

	if err := w.store.InsertEvaluation(ctx, eval); err != nil {
		return nil, fmt.Errorf("failed to persist evaluation: %w", err)
	}
	if err := w.store.UpdateEvaluationStatus(ctx, eval.EvaluationID, types.EvaluationCompleted, now); err != nil {
		return nil, fmt.Errorf("failed to complete evaluation: %w", err)
	}
	eval.Status = types.EvaluationCompleted

	if err := w.oracles.RecordEvaluation(ctx, req.OracleAddress, true); err != nil {
		w.logger.Warn("failed to update oracle counters", "oracle", req.OracleAddress, "error", err)
	}

	w.auditor.Record(ctx, audit.Entry{
		Actor:        req.OracleAddress,
		Action:       "submit_work_evaluation",
		ResourceType: "work_evaluation",
		ResourceID:   eval.EvaluationID,
		Details: map[string]any{
			"user_address":  req.UserAddress,
			"overall_score": req.OverallScore,
		},
		Success: true,
	})

	return eval, nil
}

// ChallengeEvaluation opens a staked dispute against a completed evaluation.
func (w *Workflow) ChallengeEvaluation(ctx context.Context, req ChallengeRequest) (*types.EvaluationChallenge, error) {
	if !types.ValidAddress(req.ChallengerAddress) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid challenger address: %s", req.ChallengerAddress))
	}
	if req.Reason == "" {
		return nil, apperrors.NewValidationError("challenge reason is required")
	}
	if req.StakeAmount < oracle.MinValidationStake {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("challenge stake %.2f below minimum %.2f", req.StakeAmount, oracle.MinValidationStake))
	}

	m := w.lock(req.EvaluationID)
	m.Lock()
	defer m.Unlock()

	eval, err := w.store.GetEvaluation(ctx, req.EvaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up evaluation: %w", err)
	}
	if eval == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("evaluation not found: %s", req.EvaluationID))
	}
	if eval.Status != types.EvaluationCompleted {
		return nil, apperrors.NewInvalidStateError(
			fmt.Sprintf("evaluation %s is %s, only completed evaluations can be challenged", eval.EvaluationID, eval.Status))
	}

	now := w.clock()
	challenge := &types.EvaluationChallenge{
		ChallengeID:       uuid.New().String(),
		EvaluationID:      req.EvaluationID,
		ChallengerAddress: req.ChallengerAddress,
		Reason:            req.Reason,
		Evidence:          req.Evidence,
		StakeAmount:       req.StakeAmount,
		Status:            types.ChallengePending,
		CreatedAt:         now,
	}
	if err := w.store.InsertChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to persist challenge: %w", err)
	}
	if err := w.store.UpdateEvaluationStatus(ctx, req.EvaluationID, types.EvaluationChallenged, now); err != nil {
		return nil, fmt.Errorf("failed to mark evaluation challenged: %w", err)
	}

	w.auditor.Record(ctx, audit.Entry{
		Actor:        req.ChallengerAddress,
		Action:       "challenge_evaluation",
		ResourceType: "evaluation_challenge",
		ResourceID:   challenge.ChallengeID,
		Details: map[string]any{
			"evaluation_id": req.EvaluationID,
			"stake_amount":  req.StakeAmount,
		},
		Success: true,
	})

	return challenge, nil
}

// ResolveChallenge closes a pending challenge. When the original evaluation
// is not upheld, a corrective penalty is posted for the evaluated user and
// the oracle loses one successful-evaluation credit.
func (w *Workflow) ResolveChallenge(ctx context.Context, actor, challengeID string, upholdOriginal bool, resolution string) (*types.EvaluationChallenge, error) {
	if resolution == "" {
		return nil, apperrors.NewValidationError("resolution text is required")
	}

	challenge, err := w.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up challenge: %w", err)
	}
	if challenge == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("challenge not found: %s", challengeID))
	}

	m := w.lock(challenge.EvaluationID)
	m.Lock()
	defer m.Unlock()

	// Re-read under the lock so concurrent resolvers see the final state.
	challenge, err = w.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up challenge: %w", err)
	}
	if challenge == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("challenge not found: %s", challengeID))
	}
	if challenge.Status != types.ChallengePending {
		return nil, apperrors.NewInvalidStateError(fmt.Sprintf("challenge %s already resolved", challengeID))
	}

	eval, err := w.store.GetEvaluation(ctx, challenge.EvaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up evaluation: %w", err)
	}
	if eval == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("evaluation not found: %s", challenge.EvaluationID))
	}

	now := w.clock()
	if err := w.store.UpdateChallengeResolution(ctx, challengeID, resolution, upholdOriginal, now); err != nil {
		return nil, fmt.Errorf("failed to persist resolution: %w", err)
	}
	if err := w.store.UpdateEvaluationStatus(ctx, challenge.EvaluationID, types.EvaluationResolved, now); err != nil {
		return nil, fmt.Errorf("failed to mark evaluation resolved: %w", err)
	}

	if !upholdOriginal {
		txID, err := w.reputation.PostCorrective(ctx, eval.UserAddress, -overturnPenalty, map[string]any{
			"challenge_id":  challengeID,
			"evaluation_id": eval.EvaluationID,
			"reason":        "evaluation_overturned",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to post corrective transaction: %w", err)
		}
		w.logger.Info("corrective transaction posted",
			"user", eval.UserAddress, "transaction_id", txID, "challenge_id", challengeID)

		if err := w.oracles.MarkOverturned(ctx, eval.OracleAddress); err != nil {
			w.logger.Warn("failed to decrement oracle counters", "oracle", eval.OracleAddress, "error", err)
		}
	}

	if _, err := w.chainClient.ResolveChallenge(ctx, challengeID, upholdOriginal, resolution); err != nil {
		w.logger.Warn("on-chain challenge resolution failed", "challenge_id", challengeID, "error", err)
	}

	w.auditor.Record(ctx, audit.Entry{
		Actor:        actor,
		Action:       "resolve_challenge",
		ResourceType: "evaluation_challenge",
		ResourceID:   challengeID,
		Details: map[string]any{
			"evaluation_id":   challenge.EvaluationID,
			"uphold_original": upholdOriginal,
			"resolution":      resolution,
		},
		Success: true,
	})

	challenge.Status = types.ChallengeResolved
	challenge.Resolution = resolution
	challenge.UpholdOriginal = upholdOriginal
	challenge.ResolvedAt = now
	return challenge, nil
}

// GetEvaluation returns one evaluation, or nil when it does not exist.
func (w *Workflow) GetEvaluation(ctx context.Context, evaluationID string) (*types.WorkEvaluation, error) {
	return w.store.GetEvaluation(ctx, evaluationID)
}

// GetUserEvaluations returns every evaluation recorded for a user.
func (w *Workflow) GetUserEvaluations(ctx context.Context, user string) ([]types.WorkEvaluation, error) {
	if !types.ValidAddress(user) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid user address: %s", user))
	}
	return w.store.ListEvaluationsByUser(ctx, user)
}

func validateSubmit(req SubmitRequest) error {
	if !types.ValidAddress(req.OracleAddress) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid oracle address: %s", req.OracleAddress))
	}
	if !types.ValidAddress(req.UserAddress) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid user address: %s", req.UserAddress))
	}
	if len(req.SkillTokenIDs) == 0 {
		return apperrors.NewValidationError("at least one skill token is required")
	}
	if len(req.SkillScores) != len(req.SkillTokenIDs) {
		return apperrors.NewValidationError(
			fmt.Sprintf("skill_scores length %d does not match skill_token_ids length %d",
				len(req.SkillScores), len(req.SkillTokenIDs)))
	}
	if req.OverallScore < 0 || req.OverallScore > maxFixedPointScore {
		return apperrors.NewValidationError(
			fmt.Sprintf("overall score %d out of range [0, %d]", req.OverallScore, maxFixedPointScore))
	}
	for i, s := range req.SkillScores {
		if s < 0 || s > maxFixedPointScore {
			return apperrors.NewValidationError(
				fmt.Sprintf("skill score %d at index %d out of range [0, %d]", s, i, maxFixedPointScore))
		}
	}
	return nil
}
