package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skillchain/reputation-engine/internal/errors"
)

const oracleAddress = "0.0.5005"

func newTestRegistry() *Registry {
	return NewRegistry(Config{
		Store: NewMemoryStore(),
		Clock: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func validRegister() RegisterRequest {
	return RegisterRequest{
		CallerAddress:   oracleAddress,
		Name:            "Acme Validation",
		Specializations: []string{"technical"},
		StakeAmount:     1.0,
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
	}{
		{
			name:   "stake below minimum",
			mutate: func(r *RegisterRequest) { r.StakeAmount = 0.5 },
		},
		{
			name:   "no specializations",
			mutate: func(r *RegisterRequest) { r.Specializations = nil },
		},
		{
			name:   "empty name",
			mutate: func(r *RegisterRequest) { r.Name = "" },
		},
		{
			name:   "malformed address",
			mutate: func(r *RegisterRequest) { r.CallerAddress = "nope" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newTestRegistry()
			req := validRegister()
			tt.mutate(&req)

			_, err := registry.Register(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestRegisterSucceedsAtMinimumStake(t *testing.T) {
	registry := newTestRegistry()
	ctx := context.Background()

	registered, err := registry.Register(ctx, validRegister())
	require.NoError(t, err)

	assert.NotEmpty(t, registered.OracleID)
	assert.Equal(t, oracleAddress, registered.OracleAddress)
	assert.True(t, registered.IsActive)
	assert.Equal(t, 100.0, registered.ReputationScore)
	assert.Zero(t, registered.TotalEvaluations)

	active, err := registry.GetActiveOracles(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, oracleAddress, active[0].OracleAddress)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	registry := newTestRegistry()
	ctx := context.Background()

	_, err := registry.Register(ctx, validRegister())
	require.NoError(t, err)

	_, err = registry.Register(ctx, validRegister())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSlashDeactivatesOracle(t *testing.T) {
	registry := newTestRegistry()
	ctx := context.Background()

	_, err := registry.Register(ctx, validRegister())
	require.NoError(t, err)

	slashed, err := registry.Slash(ctx, "0.0.1", oracleAddress, 0.4, "bad evaluation")
	require.NoError(t, err)

	assert.False(t, slashed.IsActive)
	assert.InDelta(t, 0.6, slashed.StakeAmount, 0.0001)
	assert.InDelta(t, 0.4, slashed.SlashedAmount, 0.0001)
	assert.Equal(t, "bad evaluation", slashed.SlashReason)
	assert.False(t, slashed.SlashedAt.IsZero())

	active, err := registry.GetActiveOracles(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "slashed oracle must leave the active list")
}

func TestSlashCannotExceedStake(t *testing.T) {
	registry := newTestRegistry()
	ctx := context.Background()

	_, err := registry.Register(ctx, validRegister())
	require.NoError(t, err)

	_, err = registry.Slash(ctx, "0.0.1", oracleAddress, 1.5, "overreach")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	// The failed slash left the oracle untouched.
	oracle, err := registry.GetOracle(ctx, oracleAddress)
	require.NoError(t, err)
	assert.True(t, oracle.IsActive)
	assert.Equal(t, 1.0, oracle.StakeAmount)
}

func TestSlashUnknownOracle(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.Slash(context.Background(), "0.0.1", "0.0.404", 0.5, "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateStatusTogglesActivation(t *testing.T) {
	registry := newTestRegistry()
	ctx := context.Background()

	_, err := registry.Register(ctx, validRegister())
	require.NoError(t, err)

	updated, err := registry.UpdateStatus(ctx, "0.0.1", oracleAddress, false, "maintenance")
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	updated, err = registry.UpdateStatus(ctx, "0.0.1", oracleAddress, true, "back online")
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
}

func TestWithdrawStake(t *testing.T) {
	ctx := context.Background()

	t.Run("active oracle cannot withdraw", func(t *testing.T) {
		registry := newTestRegistry()
		_, err := registry.Register(ctx, validRegister())
		require.NoError(t, err)

		_, err = registry.WithdrawStake(ctx, oracleAddress)
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidState(err))
	})

	t.Run("slashed oracle cannot withdraw", func(t *testing.T) {
		registry := newTestRegistry()
		_, err := registry.Register(ctx, validRegister())
		require.NoError(t, err)
		_, err = registry.Slash(ctx, "0.0.1", oracleAddress, 0.5, "misconduct")
		require.NoError(t, err)

		_, err = registry.WithdrawStake(ctx, oracleAddress)
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidState(err))
	})

	t.Run("voluntarily deactivated oracle withdraws remaining stake", func(t *testing.T) {
		registry := newTestRegistry()
		_, err := registry.Register(ctx, validRegister())
		require.NoError(t, err)
		_, err = registry.UpdateStatus(ctx, oracleAddress, oracleAddress, false, "retiring")
		require.NoError(t, err)

		withdrawn, err := registry.WithdrawStake(ctx, oracleAddress)
		require.NoError(t, err)
		assert.Zero(t, withdrawn.StakeAmount)
	})
}

func TestEvaluationCounters(t *testing.T) {
	registry := newTestRegistry()
	ctx := context.Background()

	_, err := registry.Register(ctx, validRegister())
	require.NoError(t, err)

	require.NoError(t, registry.RecordEvaluation(ctx, oracleAddress, true))
	require.NoError(t, registry.RecordEvaluation(ctx, oracleAddress, true))
	require.NoError(t, registry.RecordEvaluation(ctx, oracleAddress, false))

	oracle, err := registry.GetOracle(ctx, oracleAddress)
	require.NoError(t, err)
	assert.Equal(t, 3, oracle.TotalEvaluations)
	assert.Equal(t, 2, oracle.SuccessfulEvaluations)

	require.NoError(t, registry.MarkOverturned(ctx, oracleAddress))
	oracle, err = registry.GetOracle(ctx, oracleAddress)
	require.NoError(t, err)
	assert.Equal(t, 1, oracle.SuccessfulEvaluations)
	assert.Equal(t, 3, oracle.TotalEvaluations, "overturns do not rewrite the total")
}

func TestMarkOverturnedFloorsAtZero(t *testing.T) {
	registry := newTestRegistry()
	ctx := context.Background()

	_, err := registry.Register(ctx, validRegister())
	require.NoError(t, err)

	require.NoError(t, registry.MarkOverturned(ctx, oracleAddress))
	oracle, err := registry.GetOracle(ctx, oracleAddress)
	require.NoError(t, err)
	assert.Zero(t, oracle.SuccessfulEvaluations)
}
