package inference

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/config"
)

// writeModel serializes a scorer definition into a temp model file.
func writeModel(t *testing.T, s scorer) string {
	t.Helper()
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

// damageModel strongly prefers "damage" for bright inputs.
func damageModel(t *testing.T) string {
	return writeModel(t, scorer{
		Version: "test-1",
		Classes: []string{ClassDamage, "whole"},
		Pool:    1,
		Bias:    []float64{0, 0},
		Weights: [][]float64{
			{8, 8, 8},
			{0, 0, 0},
		},
	})
}

func solidPNG(t *testing.T, c color.Color, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testInferenceConfig(modelPath string) config.InferenceConfig {
	return config.InferenceConfig{
		ModelPath:           modelPath,
		ModelVersion:        "test-1",
		InputSize:           8,
		ConfidenceThreshold: 0.7,
	}
}

func TestClassify_DamageDetected(t *testing.T) {
	engine := NewEngine(testInferenceConfig(damageModel(t)))

	verdict, err := engine.Classify(solidPNG(t, color.White, 32))
	require.NoError(t, err)

	assert.True(t, verdict.DamageDetected)
	assert.Greater(t, verdict.Confidence, 0.99)
	assert.InDelta(t, 1.0, verdict.Probabilities[ClassDamage]+verdict.Probabilities["whole"], 0.001)
}

func TestClassify_NoDamage(t *testing.T) {
	// Negative damage weights push bright inputs toward "whole".
	path := writeModel(t, scorer{
		Version: "test-1",
		Classes: []string{ClassDamage, "whole"},
		Pool:    1,
		Bias:    []float64{0, 0},
		Weights: [][]float64{
			{-8, -8, -8},
			{0, 0, 0},
		},
	})
	engine := NewEngine(testInferenceConfig(path))

	verdict, err := engine.Classify(solidPNG(t, color.White, 32))
	require.NoError(t, err)

	assert.False(t, verdict.DamageDetected)
	assert.Greater(t, verdict.Confidence, 0.99)
}

func TestClassify_Deterministic(t *testing.T) {
	engine := NewEngine(testInferenceConfig(damageModel(t)))
	img := solidPNG(t, color.RGBA{R: 180, G: 90, B: 40, A: 255}, 32)

	first, err := engine.Classify(img)
	require.NoError(t, err)
	second, err := engine.Classify(img)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestClassify_MissingModelIsTerminal(t *testing.T) {
	engine := NewEngine(testInferenceConfig(filepath.Join(t.TempDir(), "absent.json")))

	_, err := engine.Classify(solidPNG(t, color.White, 32))
	require.Error(t, err)
	assert.Equal(t, claimerr.CodeInference, claimerr.CodeOf(err))

	// The load failure sticks; no silent retry on subsequent calls.
	_, err = engine.Classify(solidPNG(t, color.White, 32))
	require.Error(t, err)
	assert.Equal(t, claimerr.CodeInference, claimerr.CodeOf(err))
}

func TestClassify_UndecodableImage(t *testing.T) {
	engine := NewEngine(testInferenceConfig(damageModel(t)))

	_, err := engine.Classify([]byte("not an image"))
	require.Error(t, err)
	assert.Equal(t, claimerr.CodeInference, claimerr.CodeOf(err))
	assert.Contains(t, err.Error(), "preprocessing failed")
}
