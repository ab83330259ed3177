package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{name: "standard account", address: "0.0.123456", valid: true},
		{name: "nonzero shard and realm", address: "1.2.3", valid: true},
		{name: "missing realm", address: "0.123456", valid: false},
		{name: "too many parts", address: "0.0.0.1", valid: false},
		{name: "empty part", address: "0..1", valid: false},
		{name: "letters", address: "0.0.abc", valid: false},
		{name: "empty string", address: "", valid: false},
		{name: "hex style", address: "0x1234", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidAddress(tt.address))
		})
	}
}

func TestEventTypeIsValid(t *testing.T) {
	for _, e := range []EventType{
		EventSkillValidation, EventJobCompletion, EventPeerReview,
		EventCommunityContribution, EventGovernanceParticipation,
		EventPenaltyApplied, EventBonusAwarded, EventMilestoneAchieved,
	} {
		assert.True(t, e.IsValid(), string(e))
	}
	assert.False(t, EventType("something_else").IsValid())
}

func TestCategoriesStableAndValid(t *testing.T) {
	cats := Categories()
	assert.Len(t, cats, 7)
	for _, c := range cats {
		assert.True(t, c.IsValid(), string(c))
	}
	assert.False(t, Category("astrology").IsValid())
}

func TestNewTransaction(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tx := NewTransaction("0.0.1001", EventJobCompletion, 25, map[string]any{"category": "reliability"}, now)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "0.0.1001", tx.UserAddress)
	assert.Equal(t, now, tx.CreatedAt)
	assert.Equal(t, "reliability", tx.CategoryValue())

	// A nil context is normalized so callers can index it safely.
	tx = NewTransaction("0.0.1001", EventBonusAwarded, 5, nil, now)
	assert.NotNil(t, tx.Context)
	assert.Empty(t, tx.CategoryValue())
}
