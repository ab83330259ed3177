package engine

import (
	"fmt"

	apperrors "github.com/skillchain/reputation-engine/internal/errors"
	"github.com/skillchain/reputation-engine/internal/types"
)

// requiredContextFields lists the context keys each event type must carry.
// Event types absent from the map accept any context.
var requiredContextFields = map[types.EventType][]string{
	types.EventJobCompletion:           {"job_id", "completion_quality"},
	types.EventPeerReview:              {"reviewer_address", "review_score"},
	types.EventSkillValidation:         {"skill_id", "validation_type"},
	types.EventGovernanceParticipation: {"proposal_id", "participation_type"},
}

// validateUpdate checks an update request before any state is touched.
// Failures surface as ValidationError and leave no trace in the ledger.
func validateUpdate(req UpdateRequest) error {
	if !types.ValidAddress(req.UserAddress) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid user address: %s", req.UserAddress))
	}
	if req.ValidatorAddress != "" && !types.ValidAddress(req.ValidatorAddress) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid validator address: %s", req.ValidatorAddress))
	}
	if !req.EventType.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown event type: %s", req.EventType))
	}
	if req.ImpactScore < -100 || req.ImpactScore > 100 {
		return apperrors.NewValidationError(fmt.Sprintf("impact score %.2f out of range [-100, 100]", req.ImpactScore))
	}

	required, ok := requiredContextFields[req.EventType]
	if !ok {
		return nil
	}
	for _, field := range required {
		if _, present := req.Context[field]; !present {
			return apperrors.NewValidationError(fmt.Sprintf("event type %s requires context field %q", req.EventType, field))
		}
	}
	return nil
}
