package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of reputation event recorded in the ledger.
type EventType string

const (
	EventSkillValidation         EventType = "skill_validation"
	EventJobCompletion           EventType = "job_completion"
	EventPeerReview              EventType = "peer_review"
	EventCommunityContribution   EventType = "community_contribution"
	EventGovernanceParticipation EventType = "governance_participation"
	EventPenaltyApplied          EventType = "penalty_applied"
	EventBonusAwarded            EventType = "bonus_awarded"
	EventMilestoneAchieved       EventType = "milestone_achieved"
)

// IsValid reports whether the event type is one of the known kinds.
func (e EventType) IsValid() bool {
	switch e {
	case EventSkillValidation, EventJobCompletion, EventPeerReview,
		EventCommunityContribution, EventGovernanceParticipation,
		EventPenaltyApplied, EventBonusAwarded, EventMilestoneAchieved:
		return true
	}
	return false
}

// Category is one of the seven fixed reputation dimensions.
type Category string

const (
	CategoryTechnicalSkill Category = "technical_skill"
	CategoryCollaboration  Category = "collaboration"
	CategoryReliability    Category = "reliability"
	CategoryCommunication  Category = "communication"
	CategoryLeadership     Category = "leadership"
	CategoryInnovation     Category = "innovation"
	CategoryGovernance     Category = "governance"
)

// Categories lists every reputation dimension in a stable order.
func Categories() []Category {
	return []Category{
		CategoryTechnicalSkill,
		CategoryCollaboration,
		CategoryReliability,
		CategoryCommunication,
		CategoryLeadership,
		CategoryInnovation,
		CategoryGovernance,
	}
}

// IsValid reports whether the category is one of the seven dimensions.
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// EvaluationStatus tracks the lifecycle of a work evaluation.
type EvaluationStatus string

const (
	EvaluationSubmitted  EvaluationStatus = "submitted"
	EvaluationCompleted  EvaluationStatus = "completed"
	EvaluationChallenged EvaluationStatus = "challenged"
	EvaluationResolved   EvaluationStatus = "resolved"
)

// ChallengeStatus tracks the lifecycle of an evaluation challenge.
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeResolved ChallengeStatus = "resolved"
)

// Transaction is an immutable reputation ledger entry.
type Transaction struct {
	ID                 string         `json:"id"`
	UserAddress        string         `json:"user_address"`
	EventType          EventType      `json:"event_type"`
	ImpactScore        float64        `json:"impact_score"`
	Context            map[string]any `json:"context"`
	ValidatorAddress   string         `json:"validator_address,omitempty"`
	BlockchainEvidence string         `json:"blockchain_evidence,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// NewTransaction builds a ledger entry with a generated ID and the given clock time.
func NewTransaction(user string, event EventType, impact float64, ctx map[string]any, now time.Time) *Transaction {
	if ctx == nil {
		ctx = map[string]any{}
	}
	return &Transaction{
		ID:          uuid.New().String(),
		UserAddress: user,
		EventType:   event,
		ImpactScore: impact,
		Context:     ctx,
		CreatedAt:   now,
	}
}

// CategoryValue returns the category string attached to the transaction
// context, or empty when none is present.
func (t *Transaction) CategoryValue() string {
	if t.Context == nil {
		return ""
	}
	if v, ok := t.Context["category"].(string); ok {
		return v
	}
	return ""
}

// CategoryScore is the mutable per-(user, category) score row.
type CategoryScore struct {
	UserAddress string    `json:"user_address"`
	Category    Category  `json:"category"`
	Score       float64   `json:"score"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Oracle is a staked actor authorized to submit work evaluations.
type Oracle struct {
	OracleID              string    `json:"oracle_id"`
	OracleAddress         string    `json:"oracle_address"`
	Name                  string    `json:"name"`
	Specializations       []string  `json:"specializations"`
	StakeAmount           float64   `json:"stake_amount"`
	IsActive              bool      `json:"is_active"`
	TotalEvaluations      int       `json:"total_evaluations"`
	SuccessfulEvaluations int       `json:"successful_evaluations"`
	ReputationScore       float64   `json:"reputation_score"`
	SlashedAmount         float64   `json:"slashed_amount,omitempty"`
	SlashReason           string    `json:"slash_reason,omitempty"`
	RegisteredAt          time.Time `json:"registered_at"`
	SlashedAt             time.Time `json:"slashed_at,omitempty"`
}

// WorkEvaluation is an oracle's scoring of a user's submitted work.
// Scores are 0..10000 fixed-point (two implied decimals).
type WorkEvaluation struct {
	EvaluationID       string           `json:"evaluation_id"`
	UserAddress        string           `json:"user_address"`
	OracleAddress      string           `json:"oracle_address"`
	SkillTokenIDs      []int64          `json:"skill_token_ids"`
	WorkDescription    string           `json:"work_description"`
	WorkContent        string           `json:"work_content"`
	OverallScore       int64            `json:"overall_score"`
	SkillScores        []int64          `json:"skill_scores"`
	Feedback           string           `json:"feedback"`
	IPFSHash           string           `json:"ipfs_hash,omitempty"`
	Status             EvaluationStatus `json:"status"`
	TransactionID      string           `json:"transaction_id,omitempty"`
	BlockchainVerified bool             `json:"blockchain_verified"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// EvaluationChallenge is a staked dispute against a completed evaluation.
type EvaluationChallenge struct {
	ChallengeID       string          `json:"challenge_id"`
	EvaluationID      string          `json:"evaluation_id"`
	ChallengerAddress string          `json:"challenger_address"`
	Reason            string          `json:"reason"`
	Evidence          []string        `json:"evidence"`
	StakeAmount       float64         `json:"stake_amount"`
	Status            ChallengeStatus `json:"status"`
	Resolution        string          `json:"resolution,omitempty"`
	UpholdOriginal    bool            `json:"uphold_original"`
	CreatedAt         time.Time       `json:"created_at"`
	ResolvedAt        time.Time       `json:"resolved_at,omitempty"`
}

// ValidAddress reports whether s is a well-formed account address of the
// shard.realm.num form used by the external ledger, e.g. "0.0.123456".
func ValidAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
