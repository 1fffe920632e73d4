package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/monitoring"
	"github.com/sells-group/claimcheck/internal/pipeline"
	"github.com/sells-group/claimcheck/internal/store"
)

type fixedAnalyzer struct {
	qa model.QualityAssessment
}

func (f *fixedAnalyzer) Assess([]byte) (model.QualityAssessment, error) {
	return f.qa, nil
}

type fixedClassifier struct {
	verdict model.DamageVerdict
}

func (f *fixedClassifier) Classify([]byte) (model.DamageVerdict, error) {
	return f.verdict, nil
}

func newTestServer(t *testing.T, analyzer pipeline.Analyzer, classifier pipeline.Classifier) *httptest.Server {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cfg := &config.Config{
		Inference: config.InferenceConfig{ConfidenceThreshold: 0.7, ModelVersion: "v1.0"},
	}
	p := pipeline.New(cfg, analyzer, classifier, st)

	srv := httptest.NewServer(NewServer(p, monitoring.NewCollector(st)).Router())
	t.Cleanup(srv.Close)
	return srv
}

func goodAnalyzer() *fixedAnalyzer {
	return &fixedAnalyzer{qa: model.QualityAssessment{
		IsUsable:  true,
		Overall:   0.85,
		Breakdown: model.QualityBreakdown{Sharpness: 0.9, Brightness: 0.8, Contrast: 0.7},
	}}
}

func postValidate(t *testing.T, srv *httptest.Server, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/v1/claims/validate", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func validateBody(claimID string) map[string]any {
	return map[string]any{
		"claim_id":    claimID,
		"customer_id": "cust-1",
		"image":       base64.StdEncoding.EncodeToString([]byte("image bytes")),
	}
}

func TestValidate_Approved(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(),
		&fixedClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.92}})

	resp, body := postValidate(t, srv, validateBody("claim-1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "claim-1", body["claim_id"])
	assert.Equal(t, "APPROVED", body["effective_status"])
	assert.Equal(t, "Damage detected. Claim approved for processing.", body["message"])
	assert.Equal(t, false, body["user_override_allowed"])
	assert.NotContains(t, body, "reason")

	result := body["result"].(map[string]any)
	assert.Equal(t, true, result["damage_detected"])
	assert.InDelta(t, 0.92, result["confidence"].(float64), 1e-9)
}

func TestValidate_Rejected(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(),
		&fixedClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.55}})

	resp, body := postValidate(t, srv, validateBody("claim-1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "REJECTED", body["effective_status"])
	assert.Equal(t, "low_confidence", body["reason"])
	assert.Equal(t, true, body["user_override_allowed"])
	assert.Contains(t, body["next_steps"], "override")
}

func TestValidate_QualityTooLow(t *testing.T) {
	srv := newTestServer(t,
		&fixedAnalyzer{qa: model.QualityAssessment{
			IsUsable: false,
			Overall:  0.22,
			Issues:   []string{"image too blurry - hold camera steady"},
		}},
		&fixedClassifier{})

	resp, body := postValidate(t, srv, validateBody("claim-1"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errBody := body["error"].(map[string]any)
	assert.Equal(t, "QUALITY_TOO_LOW", errBody["code"])
	assert.Contains(t, errBody["feedback"], "Please improve")

	details := errBody["details"].(map[string]any)
	assert.InDelta(t, 0.22, details["quality_score"].(float64), 1e-9)
}

func TestValidate_BadBase64(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(), &fixedClassifier{})

	resp, body := postValidate(t, srv, map[string]any{
		"claim_id":    "claim-1",
		"customer_id": "cust-1",
		"image":       "not!!valid!!base64",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_IMAGE", body["error"].(map[string]any)["code"])
}

func TestValidate_MissingFields(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(), &fixedClassifier{})

	resp, body := postValidate(t, srv, map[string]any{"customer_id": "cust-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}

func TestGetClaim(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(),
		&fixedClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.92}})

	_, created := postValidate(t, srv, validateBody("claim-1"))
	require.Equal(t, "claim-1", created["claim_id"])

	resp, err := http.Get(srv.URL + "/v1/claims/claim-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cust-1", body["customer_id"])
	assert.Equal(t, "APPROVED", body["system_status"])
	assert.Equal(t, false, body["user_override"])
	assert.NotContains(t, body, "override_reason")
}

func TestGetClaim_NotFound(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(), &fixedClassifier{})

	resp, err := http.Get(srv.URL + "/v1/claims/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "CLAIM_NOT_FOUND", errBody["code"])
	assert.Contains(t, errBody["message"], "missing")
	assert.NotEmpty(t, body["timestamp"])
}

func putOverride(t *testing.T, srv *httptest.Server, claimID, reason string) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"reason": reason})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/claims/"+claimID+"/override", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestOverride(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(),
		&fixedClassifier{verdict: model.DamageVerdict{DamageDetected: false, Confidence: 0.9}})

	_, created := postValidate(t, srv, validateBody("claim-1"))
	require.Equal(t, "REJECTED", created["effective_status"])

	resp, body := putOverride(t, srv, "claim-1", "damage visible in photo")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "APPROVED", body["effective_status"])
	assert.Equal(t, "REJECTED", body["system_status"])
	assert.Equal(t, true, body["user_override"])
	assert.Equal(t, "damage visible in photo", body["override_reason"])
	assert.Equal(t, "Claim status updated. Flagged for manual review during processing.", body["message"])
}

func TestOverride_AlreadyApproved(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(),
		&fixedClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.92}})

	postValidate(t, srv, validateBody("claim-1"))

	resp, body := putOverride(t, srv, "claim-1", "reason")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "OVERRIDE_NOT_PERMITTED", body["error"].(map[string]any)["code"])
}

func TestOverride_MissingReason(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(), &fixedClassifier{})

	resp, body := putOverride(t, srv, "claim-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(), &fixedClassifier{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, goodAnalyzer(),
		&fixedClassifier{verdict: model.DamageVerdict{DamageDetected: true, Confidence: 0.92}})

	postValidate(t, srv, validateBody("claim-1"))
	postValidate(t, srv, validateBody("claim-2"))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap monitoring.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 2, snap.Approved)
	assert.InDelta(t, 1.0, snap.ApprovalRate, 1e-9)
}
