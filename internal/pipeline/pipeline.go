// Package pipeline orchestrates claim photo validation: quality gate,
// classification, status derivation, and persistence. Leaves never call each
// other; everything flows through here.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/store"
)

// Analyzer scores image usability ahead of classification.
type Analyzer interface {
	Assess(imageBytes []byte) (model.QualityAssessment, error)
}

// Classifier turns image bytes into a damage verdict.
type Classifier interface {
	Classify(imageBytes []byte) (model.DamageVerdict, error)
}

// Pipeline sequences the quality analyzer, the classification engine, and
// the claim store, and applies the acceptance policy.
type Pipeline struct {
	cfg      *config.Config
	analyzer Analyzer
	engine   Classifier
	store    store.ClaimStore
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, analyzer Analyzer, engine Classifier, st store.ClaimStore) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		analyzer: analyzer,
		engine:   engine,
		store:    st,
	}
}

// SubmitRequest is one claim submission.
type SubmitRequest struct {
	ClaimID    string
	CustomerID string
	Image      []byte
}

// Submit runs a submission through the gate, the classifier, and the store.
//
// Quality-rejected submissions terminate before classification and persist
// nothing: the claim id has no durable existence and can be resubmitted
// freely. A submission that reaches the store replaces any prior record
// under the same id wholesale.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (*model.SubmissionOutcome, error) {
	start := time.Now()
	log := zap.L().With(zap.String("claim_id", req.ClaimID), zap.String("customer_id", req.CustomerID))

	if req.ClaimID == "" {
		return nil, claimerr.New(claimerr.CodeValidation, "missing required field: claim_id")
	}
	if req.CustomerID == "" {
		return nil, claimerr.New(claimerr.CodeValidation, "missing required field: customer_id")
	}
	if len(req.Image) == 0 {
		return nil, claimerr.New(claimerr.CodeValidation, "missing required field: image")
	}

	// Quality gate runs before the classifier: no inference cost on unusable
	// input, and a low-quality image invalidates any confidence the
	// classifier would report.
	qa, err := p.analyzer.Assess(req.Image)
	if err != nil {
		return nil, err
	}
	if !qa.IsUsable {
		log.Info("pipeline: quality rejected",
			zap.Float64("quality_score", qa.Overall),
			zap.Strings("issues", qa.Issues),
		)
		return &model.SubmissionOutcome{
			ClaimID:         req.ClaimID,
			QualityRejected: true,
			Quality:         qa,
		}, nil
	}

	verdict, err := p.engine.Classify(req.Image)
	if err != nil {
		log.Error("pipeline: classification failed", zap.Error(err))
		return nil, err
	}

	status := DeriveStatus(verdict, p.cfg.Inference.ConfidenceThreshold)

	rec := model.ClaimRecord{
		ClaimID:          req.ClaimID,
		CustomerID:       req.CustomerID,
		DamageDetected:   verdict.DamageDetected,
		Confidence:       verdict.Confidence,
		QualityScore:     qa.Overall,
		SystemStatus:     status,
		EffectiveStatus:  status,
		SubmittedAt:      time.Now().UTC(),
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		ModelVersion:     p.cfg.Inference.ModelVersion,
	}

	saved, err := p.store.Put(ctx, rec)
	if err != nil {
		log.Error("pipeline: persist failed", zap.Error(err))
		return nil, err
	}

	outcome := &model.SubmissionOutcome{
		ClaimID: saved.ClaimID,
		Quality: qa,
		Record:  saved,
	}
	if status == model.StatusRejected {
		outcome.Reason = RejectionReason(saved, p.cfg.Inference.ConfidenceThreshold)
	}

	log.Info("pipeline: submission complete",
		zap.String("status", string(status)),
		zap.Bool("damage_detected", verdict.DamageDetected),
		zap.Float64("confidence", verdict.Confidence),
		zap.Float64("quality_score", qa.Overall),
		zap.Int64("processing_time_ms", saved.ProcessingTimeMS),
	)
	return outcome, nil
}

// Fetch retrieves a claim record by id.
func (p *Pipeline) Fetch(ctx context.Context, claimID string) (*model.ClaimRecord, error) {
	if claimID == "" {
		return nil, claimerr.New(claimerr.CodeValidation, "missing required field: claim_id")
	}
	return p.store.Get(ctx, claimID)
}

// Override flips a rejected claim's effective status to APPROVED on the
// user's word, preserving the machine verdict in system_status.
func (p *Pipeline) Override(ctx context.Context, claimID, reason string) (*model.ClaimRecord, error) {
	if claimID == "" {
		return nil, claimerr.New(claimerr.CodeValidation, "missing required field: claim_id")
	}
	if reason == "" {
		return nil, claimerr.New(claimerr.CodeValidation, "missing required field: reason")
	}

	rec, err := p.store.ApplyOverride(ctx, claimID, reason)
	if err != nil {
		if code := claimerr.CodeOf(err); !claimerr.Expected(code) {
			zap.L().Error("pipeline: override failed",
				zap.String("claim_id", claimID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	zap.L().Info("pipeline: claim overridden",
		zap.String("claim_id", claimID),
		zap.String("system_status", string(rec.SystemStatus)),
	)
	return rec, nil
}
