package chain

import (
	"context"
	"time"
)

// CallResult is the outcome of a contract call submitted through the gateway.
// Success reports whether the call was accepted on-chain; Err carries the
// gateway-reported reason when it was not.
type CallResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	TokenID       string `json:"token_id,omitempty"`
	Err           string `json:"error,omitempty"`
}

// EvaluationSubmission carries the payload for an on-chain work evaluation record.
type EvaluationSubmission struct {
	UserAddress     string  `json:"user_address"`
	OracleAddress   string  `json:"oracle_address"`
	SkillTokenIDs   []int64 `json:"skill_token_ids"`
	WorkDescription string  `json:"work_description"`
	OverallScore    int64   `json:"overall_score"`
	SkillScores     []int64 `json:"skill_scores"`
	IPFSHash        string  `json:"ipfs_hash,omitempty"`
}

// ReputationMirror is the on-chain snapshot of a user's reputation. It is
// advisory evidence only; the ledger-derived score stays authoritative.
type ReputationMirror struct {
	OverallScore     float64   `json:"overall_score"`
	TotalEvaluations int       `json:"total_evaluations"`
	LastUpdated      time.Time `json:"last_updated"`
	IsActive         bool      `json:"is_active"`
}

// Client submits oracle lifecycle and evaluation operations to the contract
// gateway. All calls are best-effort from the caller's point of view: local
// state is the source of truth and a gateway failure never blocks it.
type Client interface {
	RegisterOracle(ctx context.Context, address, name string, specializations []string, stake float64) (CallResult, error)
	UpdateOracleStatus(ctx context.Context, address string, active bool, reason string) (CallResult, error)
	SlashOracle(ctx context.Context, address string, amount float64, reason string) (CallResult, error)
	WithdrawStake(ctx context.Context, address string) (CallResult, error)
	SubmitEvaluation(ctx context.Context, sub EvaluationSubmission) (CallResult, error)
	ResolveChallenge(ctx context.Context, challengeID string, upholdOriginal bool, resolution string) (CallResult, error)
	SubmitEvidence(ctx context.Context, transactionID, evidence string) (CallResult, error)
	GetReputationScore(ctx context.Context, user string) (*ReputationMirror, error)
}

// Disabled is a no-op client used when no gateway is configured. Every call
// reports a clean non-success so callers fall through to local-only behavior.
type Disabled struct{}

func NewDisabled() *Disabled { return &Disabled{} }

func (Disabled) RegisterOracle(context.Context, string, string, []string, float64) (CallResult, error) {
	return CallResult{}, nil
}

func (Disabled) UpdateOracleStatus(context.Context, string, bool, string) (CallResult, error) {
	return CallResult{}, nil
}

func (Disabled) SlashOracle(context.Context, string, float64, string) (CallResult, error) {
	return CallResult{}, nil
}

func (Disabled) WithdrawStake(context.Context, string) (CallResult, error) {
	return CallResult{}, nil
}

func (Disabled) SubmitEvaluation(context.Context, EvaluationSubmission) (CallResult, error) {
	return CallResult{}, nil
}

func (Disabled) ResolveChallenge(context.Context, string, bool, string) (CallResult, error) {
	return CallResult{}, nil
}

func (Disabled) SubmitEvidence(context.Context, string, string) (CallResult, error) {
	return CallResult{}, nil
}

func (Disabled) GetReputationScore(context.Context, string) (*ReputationMirror, error) {
	return nil, nil
}
