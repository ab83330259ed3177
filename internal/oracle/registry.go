package oracle

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
	"github.com/skillchain/reputation-engine/internal/types"
)

// MinValidationStake is the minimum stake required to register as an oracle.
const MinValidationStake = 1.0

const initialReputation = 100.0

// Store persists oracle records. GetOracleByAddress returns (nil, nil) when
// no oracle exists for the address.
type Store interface {
	InsertOracle(ctx context.Context, o *types.Oracle) error
	GetOracleByAddress(ctx context.Context, address string) (*types.Oracle, error)
	UpdateOracle(ctx context.Context, o *types.Oracle) error
	ListActiveOracles(ctx context.Context) ([]types.Oracle, error)
}

// RegisterRequest carries a registration attempt. The caller address and
// stake come from the authorization context, never from defaults.
type RegisterRequest struct {
	CallerAddress   string   `json:"caller_address"`
	Name            string   `json:"name"`
	Specializations []string `json:"specializations"`
	StakeAmount     float64  `json:"stake_amount"`
}

// Registry manages oracle identity, stake, and activation state. Stake and
// slash mutations for one oracle serialize on a per-oracle lock.
type Registry struct {
	store       Store
	chainClient chain.Client
	auditor     audit.Recorder
	logger      *slog.Logger
	clock       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Config wires a Registry. Store is required.
type Config struct {
	Store   Store
	Chain   chain.Client
	Auditor audit.Recorder
	Logger  *slog.Logger
	Clock   func() time.Time
}

func NewRegistry(cfg Config) *Registry {
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
	return &Registry{
		store:       cfg.Store,
		chainClient: cfg.Chain,
		auditor:     cfg.Auditor,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lock(address string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[address]
	if !ok {
		m = &sync.Mutex{}
		r.locks[address] = m
	}
	return m
}

// Register creates an active oracle for the caller. The stake must meet the
// minimum and at least one specialization is required. Registering twice for
// the same address fails.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*types.Oracle, error) {
	if !types.ValidAddress(req.CallerAddress) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid oracle address: %s", req.CallerAddress))
	}
	if req.Name == "" {
		return nil, apperrors.NewValidationError("oracle name is required")
	}
	if req.StakeAmount < MinValidationStake {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("stake %.2f below minimum %.2f", req.StakeAmount, MinValidationStake))
	}
	if len(req.Specializations) == 0 {
		return nil, apperrors.NewValidationError("at least one specialization is required")
	}

	m := r.lock(req.CallerAddress)
	m.Lock()
	defer m.Unlock()

	existing, err := r.store.GetOracleByAddress(ctx, req.CallerAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to look up oracle: %w", err)
	}
	if existing != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("oracle already registered: %s", req.CallerAddress))
	}

	now := r.clock()
	oracle := &types.Oracle{
		OracleID:        uuid.New().String(),
		OracleAddress:   req.CallerAddress,
		Name:            req.Name,
		Specializations: req.Specializations,
		StakeAmount:     req.StakeAmount,
		IsActive:        true,
		ReputationScore: initialReputation,
		RegisteredAt:    now,
	}
	if err := r.store.InsertOracle(ctx, oracle); err != nil {
		return nil, fmt.Errorf("failed to persist oracle: %w", err)
	}

	result, err := r.chainClient.RegisterOracle(ctx, oracle.OracleAddress, oracle.Name, oracle.Specializations, oracle.StakeAmount)
	if err != nil {
		r.logger.Warn("on-chain oracle registration failed", "oracle", oracle.OracleAddress, "error", err)
	}

	r.auditor.Record(ctx, audit.Entry{
		Actor:        req.CallerAddress,
		Action:       "register_oracle",
		ResourceType: "oracle",
		ResourceID:   oracle.OracleID,
		Details: map[string]any{
			"name":            oracle.Name,
			"stake_amount":    oracle.StakeAmount,
			"specializations": oracle.Specializations,
			"chain_tx":        result.TransactionID,
		},
		Success: true,
	})

	return oracle, nil
}

// Slash forfeits part of an oracle's stake and deactivates it. An oracle
// cannot be slashed below zero stake, and a second slash of an already
// deactivated oracle is still recorded against its remaining stake.
func (r *Registry) Slash(ctx context.Context, actor, address string, amount float64, reason string) (*types.Oracle, error) {
	if amount <= 0 {
		return nil, apperrors.NewValidationError("slash amount must be positive")
	}

	m := r.lock(address)
	m.Lock()
	defer m.Unlock()

	oracle, err := r.store.GetOracleByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to look up oracle: %w", err)
	}
	if oracle == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("oracle not found: %s", address))
	}
	if amount > oracle.StakeAmount {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("slash amount %.2f exceeds remaining stake %.2f", amount, oracle.StakeAmount))
	}

	now := r.clock()
	oracle.StakeAmount -= amount
	oracle.SlashedAmount += amount
	oracle.SlashReason = reason
	oracle.SlashedAt = now
	oracle.IsActive = false
	if err := r.store.UpdateOracle(ctx, oracle); err != nil {
		return nil, fmt.Errorf("failed to persist slash: %w", err)
	}

	if _, err := r.chainClient.SlashOracle(ctx, address, amount, reason); err != nil {
		r.logger.Warn("on-chain slash failed", "oracle", address, "error", err)
	}

	r.auditor.Record(ctx, audit.Entry{
		Actor:        actor,
		Action:       "slash_oracle",
		ResourceType: "oracle",
		ResourceID:   oracle.OracleID,
		Details: map[string]any{
			"amount": amount,
			"reason": reason,
		},
		Success: true,
	})

	return oracle, nil
}

// UpdateStatus is an administrative activation override.
func (r *Registry) UpdateStatus(ctx context.Context, actor, address string, active bool, reason string) (*types.Oracle, error) {
	m := r.lock(address)
	m.Lock()
	defer m.Unlock()

	oracle, err := r.store.GetOracleByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to look up oracle: %w", err)
	}
	if oracle == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("oracle not found: %s", address))
	}

	oracle.IsActive = active
	if err := r.store.UpdateOracle(ctx, oracle); err != nil {
		return nil, fmt.Errorf("failed to persist status: %w", err)
	}

	if _, err := r.chainClient.UpdateOracleStatus(ctx, address, active, reason); err != nil {
		r.logger.Warn("on-chain status update failed", "oracle", address, "error", err)
	}

	r.auditor.Record(ctx, audit.Entry{
		Actor:        actor,
		Action:       "update_oracle_status",
		ResourceType: "oracle",
		ResourceID:   oracle.OracleID,
		Details: map[string]any{
			"is_active": active,
			"reason":    reason,
		},
		Success: true,
	})

	return oracle, nil
}

// WithdrawStake releases an oracle's remaining stake. Only a voluntarily
// deactivated, never-slashed oracle may withdraw; the contract enforces the
// same precondition and this call reflects its outcome.
func (r *Registry) WithdrawStake(ctx context.Context, address string) (*types.Oracle, error) {
	m := r.lock(address)
	m.Lock()
	defer m.Unlock()

	oracle, err := r.store.GetOracleByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to look up oracle: %w", err)
	}
	if oracle == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("oracle not found: %s", address))
	}
	if oracle.IsActive {
		return nil, apperrors.NewInvalidStateError("oracle must deactivate before withdrawing stake")
	}
	if oracle.SlashedAmount > 0 {
		return nil, apperrors.NewInvalidStateError("slashed stake cannot be withdrawn")
	}

	result, err := r.chainClient.WithdrawStake(ctx, address)
	if err != nil {
		return nil, apperrors.NewExternalLedgerError("withdraw_stake", err)
	}
	if !result.Success && result.Err != "" {
		return nil, apperrors.NewInvalidStateError(fmt.Sprintf("stake withdrawal rejected: %s", result.Err))
	}

	withdrawn := oracle.StakeAmount
	oracle.StakeAmount = 0
	if err := r.store.UpdateOracle(ctx, oracle); err != nil {
		return nil, fmt.Errorf("failed to persist withdrawal: %w", err)
	}

	r.auditor.Record(ctx, audit.Entry{
		Actor:        address,
		Action:       "withdraw_stake",
		ResourceType: "oracle",
		ResourceID:   oracle.OracleID,
		Details: map[string]any{
			"amount":   withdrawn,
			"chain_tx": result.TransactionID,
		},
		Success: true,
	})

	return oracle, nil
}

// GetActiveOracles returns every oracle currently allowed to evaluate.
func (r *Registry) GetActiveOracles(ctx context.Context) ([]types.Oracle, error) {
	return r.store.ListActiveOracles(ctx)
}

// GetOracle returns the oracle for an address, or nil when none exists.
func (r *Registry) GetOracle(ctx context.Context, address string) (*types.Oracle, error) {
	return r.store.GetOracleByAddress(ctx, address)
}

// IsActiveOracle reports whether the address belongs to an active oracle.
func (r *Registry) IsActiveOracle(ctx context.Context, address string) (bool, error) {
	oracle, err := r.store.GetOracleByAddress(ctx, address)
	if err != nil {
		return false, err
	}
	return oracle != nil && oracle.IsActive, nil
}

// RecordEvaluation bumps the oracle's evaluation counters.
func (r *Registry) RecordEvaluation(ctx context.Context, address string, successful bool) error {
	m := r.lock(address)
	m.Lock()
	defer m.Unlock()

	oracle, err := r.store.GetOracleByAddress(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to look up oracle: %w", err)
	}
	if oracle == nil {
		return apperrors.NewValidationError(fmt.Sprintf("oracle not found: %s", address))
	}

	oracle.TotalEvaluations++
	if successful {
		oracle.SuccessfulEvaluations++
	}
	return r.store.UpdateOracle(ctx, oracle)
}

// MarkOverturned reverses one successful-evaluation credit after a challenge
// overturns the oracle's verdict.
func (r *Registry) MarkOverturned(ctx context.Context, address string) error {
	m := r.lock(address)
	m.Lock()
	defer m.Unlock()

	oracle, err := r.store.GetOracleByAddress(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to look up oracle: %w", err)
	}
	if oracle == nil {
		return apperrors.NewValidationError(fmt.Sprintf("oracle not found: %s", address))
	}

	if oracle.SuccessfulEvaluations > 0 {
		oracle.SuccessfulEvaluations--
	}
	return r.store.UpdateOracle(ctx, oracle)
}
