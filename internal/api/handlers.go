package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/pipeline"
	"github.com/sells-group/claimcheck/internal/quality"
)

type validateRequest struct {
	ClaimID    string `json:"claim_id"`
	CustomerID string `json:"customer_id"`
	Image      string `json:"image"`
}

type overrideRequest struct {
	Reason string `json:"reason"`
}

// handleValidate runs a submission through the pipeline.
// POST /v1/claims/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, claimerr.New(claimerr.CodeValidation, "invalid request body"))
		return
	}

	var imageBytes []byte
	if req.Image != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			writeError(w, claimerr.New(claimerr.CodeInvalidImage, "image must be valid base64-encoded data"))
			return
		}
		imageBytes = decoded
	}

	outcome, err := s.pipeline.Submit(r.Context(), pipeline.SubmitRequest{
		ClaimID:    req.ClaimID,
		CustomerID: req.CustomerID,
		Image:      imageBytes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if outcome.QualityRejected {
		writeError(w, claimerr.New(claimerr.CodeQualityTooLow,
			"Image quality insufficient for automated processing").
			WithDetails(map[string]any{
				"quality_score":     outcome.Quality.Overall,
				"quality_breakdown": outcome.Quality.Breakdown,
				"issues":            outcome.Quality.Issues,
			}).
			WithFeedback(quality.Feedback(outcome.Quality)))
		return
	}

	rec := outcome.Record
	resp := map[string]any{
		"claim_id":         rec.ClaimID,
		"effective_status": rec.EffectiveStatus,
		"result": map[string]any{
			"damage_detected":   rec.DamageDetected,
			"confidence":        rec.Confidence,
			"quality_score":     rec.QualityScore,
			"quality_breakdown": outcome.Quality.Breakdown,
		},
		"message":               pipeline.StatusMessage(rec),
		"user_override_allowed": pipeline.OverrideAllowed(rec),
		"next_steps":            pipeline.NextSteps(rec),
		"processing_time_ms":    rec.ProcessingTimeMS,
		"timestamp":             rec.SubmittedAt.Format(time.RFC3339),
	}
	if rec.EffectiveStatus == model.StatusRejected {
		resp["reason"] = outcome.Reason
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGet retrieves claim details with the audit trail.
// GET /v1/claims/{claimID}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	rec, err := s.pipeline.Fetch(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"claim_id":         rec.ClaimID,
		"customer_id":      rec.CustomerID,
		"effective_status": rec.EffectiveStatus,
		"system_status":    rec.SystemStatus,
		"result": map[string]any{
			"damage_detected": rec.DamageDetected,
			"confidence":      rec.Confidence,
			"quality_score":   rec.QualityScore,
		},
		"user_override":      rec.UserOverride,
		"submitted_at":       rec.SubmittedAt.Format(time.RFC3339),
		"processing_time_ms": rec.ProcessingTimeMS,
	}
	if rec.UserOverride {
		resp["override_timestamp"] = rec.OverrideTimestamp.Format(time.RFC3339)
		resp["override_reason"] = rec.OverrideReason
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleOverride applies a user override to a rejected claim.
// PUT /v1/claims/{claimID}/override
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, claimerr.New(claimerr.CodeValidation, "invalid request body"))
		return
	}

	rec, err := s.pipeline.Override(r.Context(), claimID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claim_id":           rec.ClaimID,
		"effective_status":   rec.EffectiveStatus,
		"system_status":      rec.SystemStatus,
		"user_override":      rec.UserOverride,
		"override_timestamp": rec.OverrideTimestamp.Format(time.RFC3339),
		"override_reason":    rec.OverrideReason,
		"message":            "Claim status updated. Flagged for manual review during processing.",
	})
}
