package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/store"
)

type stubAnalyzer struct {
	qa  model.QualityAssessment
	err error
}

func (s *stubAnalyzer) Assess([]byte) (model.QualityAssessment, error) {
	return s.qa, s.err
}

type stubClassifier struct {
	verdict model.DamageVerdict
	err     error
}

func (s *stubClassifier) Classify([]byte) (model.DamageVerdict, error) {
	return s.verdict, s.err
}

func usableQA() model.QualityAssessment {
	return model.QualityAssessment{
		IsUsable: true,
		Overall:  0.82,
		Breakdown: model.QualityBreakdown{
			Sharpness: 0.9, Brightness: 0.8, Contrast: 0.6,
		},
	}
}

func newTestPipeline(t *testing.T, analyzer Analyzer, classifier Classifier) *Pipeline {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cfg := &config.Config{
		Inference: config.InferenceConfig{
			ConfidenceThreshold: 0.7,
			ModelVersion:        "v1.0",
		},
	}
	return New(cfg, analyzer, classifier, st)
}

func TestSubmit_Approved(t *testing.T) {
	p := newTestPipeline(t,
		&stubAnalyzer{qa: usableQA()},
		&stubClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.92}},
	)
	ctx := context.Background()

	outcome, err := p.Submit(ctx, SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img")})
	require.NoError(t, err)

	assert.False(t, outcome.QualityRejected)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, model.StatusApproved, outcome.Record.SystemStatus)
	assert.Equal(t, model.StatusApproved, outcome.Record.EffectiveStatus)
	assert.Empty(t, outcome.Reason)
	assert.Equal(t, "v1.0", outcome.Record.ModelVersion)

	got, err := p.Fetch(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.EffectiveStatus)
	assert.Equal(t, 0.82, got.QualityScore)
}

func TestSubmit_RejectedLowConfidence(t *testing.T) {
	p := newTestPipeline(t,
		&stubAnalyzer{qa: usableQA()},
		&stubClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.55}},
	)

	outcome, err := p.Submit(context.Background(), SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img")})
	require.NoError(t, err)

	assert.Equal(t, model.StatusRejected, outcome.Record.EffectiveStatus)
	assert.Equal(t, model.ReasonLowConfidence, outcome.Reason)
}

func TestSubmit_RejectedNoDamage(t *testing.T) {
	p := newTestPipeline(t,
		&stubAnalyzer{qa: usableQA()},
		&stubClassifier{verdict: model.DamageVerdict{DamageDetected: false, Confidence: 0.95}},
	)

	outcome, err := p.Submit(context.Background(), SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img")})
	require.NoError(t, err)

	assert.Equal(t, model.StatusRejected, outcome.Record.EffectiveStatus)
	assert.Equal(t, model.ReasonNoDamage, outcome.Reason)
}

func TestSubmit_QualityRejectedNotPersisted(t *testing.T) {
	p := newTestPipeline(t,
		&stubAnalyzer{qa: model.QualityAssessment{
			IsUsable: false,
			Overall:  0.21,
			Issues:   []string{"image too blurry - hold camera steady"},
		}},
		&stubClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.9}},
	)
	ctx := context.Background()

	outcome, err := p.Submit(ctx, SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img")})
	require.NoError(t, err)

	assert.True(t, outcome.QualityRejected)
	assert.Nil(t, outcome.Record)
	assert.Equal(t, 0.21, outcome.Quality.Overall)

	// The claim id has no durable existence after a quality rejection.
	_, err = p.Fetch(ctx, "claim-1")
	require.Error(t, err)
	assert.Equal(t, claimerr.CodeClaimNotFound, claimerr.CodeOf(err))
}

func TestSubmit_Validation(t *testing.T) {
	p := newTestPipeline(t, &stubAnalyzer{qa: usableQA()}, &stubClassifier{})

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing claim_id", SubmitRequest{CustomerID: "c", Image: []byte("i")}},
		{"missing customer_id", SubmitRequest{ClaimID: "c", Image: []byte("i")}},
		{"missing image", SubmitRequest{ClaimID: "c", CustomerID: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, claimerr.CodeValidation, claimerr.CodeOf(err))
		})
	}
}

func TestSubmit_ClassifierErrorPropagates(t *testing.T) {
	p := newTestPipeline(t,
		&stubAnalyzer{qa: usableQA()},
		&stubClassifier{err: claimerr.New(claimerr.CodeInference, "model unavailable")},
	)

	_, err := p.Submit(context.Background(), SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img")})
	require.Error(t, err)
	assert.Equal(t, claimerr.CodeInference, claimerr.CodeOf(err))
}

func TestOverride_RejectedClaim(t *testing.T) {
	p := newTestPipeline(t,
		&stubAnalyzer{qa: usableQA()},
		&stubClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.5}},
	)
	ctx := context.Background()

	_, err := p.Submit(ctx, SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img")})
	require.NoError(t, err)

	rec, err := p.Override(ctx, "claim-1", "damage clearly visible")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, rec.EffectiveStatus)
	assert.Equal(t, model.StatusRejected, rec.SystemStatus)
	assert.True(t, rec.UserOverride)
}

func TestOverride_ApprovedClaimConflicts(t *testing.T) {
	p := newTestPipeline(t,
		&stubAnalyzer{qa: usableQA()},
		&stubClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.92}},
	)
	ctx := context.Background()

	_, err := p.Submit(ctx, SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img")})
	require.NoError(t, err)

	_, err = p.Override(ctx, "claim-1", "reason")
	require.Error(t, err)
	assert.Equal(t, claimerr.CodeOverrideNotPermitted, claimerr.CodeOf(err))
}

func TestOverride_Validation(t *testing.T) {
	p := newTestPipeline(t, &stubAnalyzer{}, &stubClassifier{})
	ctx := context.Background()

	_, err := p.Override(ctx, "", "reason")
	assert.Equal(t, claimerr.CodeValidation, claimerr.CodeOf(err))

	_, err = p.Override(ctx, "claim-1", "")
	assert.Equal(t, claimerr.CodeValidation, claimerr.CodeOf(err))
}

func TestResubmission_ReplacesOverriddenRecord(t *testing.T) {
	classifier := &stubClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.5}}
	p := newTestPipeline(t, &stubAnalyzer{qa: usableQA()}, classifier)
	ctx := context.Background()

	_, err := p.Submit(ctx, SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img")})
	require.NoError(t, err)
	_, err = p.Override(ctx, "claim-1", "damage visible")
	require.NoError(t, err)

	// A better photo comes in for the same claim.
	classifier.verdict = model.DamageVerdict{DamageDetected: true, Confidence: 0.94}
	outcome, err := p.Submit(ctx, SubmitRequest{ClaimID: "claim-1", CustomerID: "cust-1", Image: []byte("img2")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, outcome.Record.SystemStatus)

	// No override state leaks from the replaced record.
	got, err := p.Fetch(ctx, "claim-1")
	require.NoError(t, err)
	assert.False(t, got.UserOverride)
	assert.Nil(t, got.OverrideReason)
	assert.Nil(t, got.OverrideTimestamp)
	assert.Equal(t, 0.94, got.Confidence)
}
