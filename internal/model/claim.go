package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ClaimStatus represents the decision on a claim. The string values are the
// wire representation at every serialization boundary; nothing else encodes
// status.
type ClaimStatus string

const (
	StatusApproved ClaimStatus = "APPROVED"
	StatusRejected ClaimStatus = "REJECTED"
)

// ParseClaimStatus maps a wire string back to a ClaimStatus.
func ParseClaimStatus(s string) (ClaimStatus, error) {
	switch ClaimStatus(s) {
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", eris.Errorf("model: unknown claim status %q", s)
}

// RejectionReason explains which clause of the approval rule failed.
// It is derived for responses, never persisted.
type RejectionReason string

const (
	ReasonNoDamage      RejectionReason = "no_damage"
	ReasonLowConfidence RejectionReason = "low_confidence"
	ReasonUnknown       RejectionReason = "unknown"
)

// QualityBreakdown holds the three normalized sub-scores of an assessment.
type QualityBreakdown struct {
	Sharpness  float64 `json:"sharpness"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
}

// QualityAssessment is the result of scoring an image's usability.
// It is produced fresh per submission and never persisted; only Overall
// survives into the claim record.
type QualityAssessment struct {
	IsUsable  bool             `json:"is_usable"`
	Overall   float64          `json:"quality_score"`
	Breakdown QualityBreakdown `json:"quality_breakdown"`
	Issues    []string         `json:"issues,omitempty"`
}

// DamageVerdict is the classifier output for one image.
type DamageVerdict struct {
	DamageDetected bool               `json:"damage_detected"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities"`
}

// ClaimRecord is the durable claim entity, keyed by ClaimID.
//
// SystemStatus is set once at creation and never mutated — it is the audit
// anchor. EffectiveStatus is the user-visible status and moves only
// REJECTED → APPROVED via override.
type ClaimRecord struct {
	ClaimID    string `json:"claim_id"`
	CustomerID string `json:"customer_id"`

	DamageDetected bool    `json:"damage_detected"`
	Confidence     float64 `json:"confidence"`
	QualityScore   float64 `json:"quality_score"`

	SystemStatus    ClaimStatus `json:"system_status"`
	EffectiveStatus ClaimStatus `json:"effective_status"`

	UserOverride      bool       `json:"user_override"`
	OverrideReason    *string    `json:"override_reason,omitempty"`
	OverrideTimestamp *time.Time `json:"override_timestamp,omitempty"`

	SubmittedAt      time.Time `json:"submitted_at"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	ModelVersion     string    `json:"model_version"`
}

// SubmissionOutcome is the result of a submit operation. Exactly one of the
// two shapes is populated: a quality rejection (no record persisted) or a
// classified, persisted record.
type SubmissionOutcome struct {
	ClaimID         string            `json:"claim_id"`
	QualityRejected bool              `json:"quality_rejected"`
	Quality         QualityAssessment `json:"quality"`
	Record          *ClaimRecord      `json:"record,omitempty"`
	Reason          RejectionReason   `json:"reason,omitempty"`
}
