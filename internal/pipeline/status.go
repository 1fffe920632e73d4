package pipeline

import "github.com/sells-group/claimcheck/internal/model"

// DeriveStatus is the single business rule governing acceptance: a claim is
// APPROVED iff the verdict reports damage with confidence at or above the
// threshold. Total over all verdicts, pure, and independent of any transport.
func DeriveStatus(verdict model.DamageVerdict, confidenceThreshold float64) model.ClaimStatus {
	if verdict.Confidence >= confidenceThreshold && verdict.DamageDetected {
		return model.StatusApproved
	}
	return model.StatusRejected
}

// RejectionReason reports which clause of the approval rule failed for a
// rejected record. Used for user messaging only, never persisted.
func RejectionReason(rec *model.ClaimRecord, confidenceThreshold float64) model.RejectionReason {
	if !rec.DamageDetected && rec.Confidence >= confidenceThreshold {
		return model.ReasonNoDamage
	}
	if rec.Confidence < confidenceThreshold {
		return model.ReasonLowConfidence
	}
	return model.ReasonUnknown
}

// OverrideAllowed reports whether a stored record is eligible for override.
// Any record that exists already passed the quality gate once, so the only
// condition is that the current effective status is REJECTED.
func OverrideAllowed(rec *model.ClaimRecord) bool {
	return rec.EffectiveStatus == model.StatusRejected
}

// StatusMessage renders the user-facing summary for a record.
func StatusMessage(rec *model.ClaimRecord) string {
	if rec.EffectiveStatus == model.StatusApproved {
		return "Damage detected. Claim approved for processing."
	}
	return "Claim rejected. See reason and next_steps for details."
}

// NextSteps renders the user-facing guidance for a record.
func NextSteps(rec *model.ClaimRecord) string {
	if rec.EffectiveStatus == model.StatusApproved {
		return "Your claim will be reviewed by an adjuster within 2 business days."
	}
	if OverrideAllowed(rec) {
		return "If you believe damage is visible, you can override this decision or upload a different photo."
	}
	return "Please upload a higher quality image to proceed."
}
