// Package inference turns image bytes into a damage verdict. The scoring
// model is expensive to load, so a process-wide handle is constructed at most
// once and read concurrently thereafter.
package inference

import (
	"bytes"
	"image"
	"math"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

// ClassDamage is the label whose dominance marks a positive verdict.
const ClassDamage = "damage"

// Engine classifies images using a lazily loaded scoring model.
//
// The model loads on first Classify call. Load failure is terminal for the
// process lifetime: every subsequent call reports the same engine failure
// rather than retrying silently.
type Engine struct {
	cfg config.InferenceConfig

	once    sync.Once
	scorer  *scorer
	loadErr error
}

// NewEngine creates an Engine. No model I/O happens until first use.
func NewEngine(cfg config.InferenceConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Classify predicts whether the image shows damage. Preprocessing is
// deterministic: the same bytes always produce the same verdict.
//
// Confidence thresholding is deliberately not applied here — deriving a
// claim status from the verdict is orchestrator policy.
func (e *Engine) Classify(imageBytes []byte) (model.DamageVerdict, error) {
	var zero model.DamageVerdict

	e.once.Do(func() {
		s, err := loadScorer(e.cfg.ModelPath)
		if err != nil {
			e.loadErr = err
			zap.L().Error("inference: model load failed",
				zap.String("path", e.cfg.ModelPath),
				zap.Error(err),
			)
			return
		}
		e.scorer = s
		zap.L().Info("inference: model loaded",
			zap.String("path", e.cfg.ModelPath),
			zap.String("version", s.Version),
		)
	})
	if e.loadErr != nil {
		return zero, claimerr.Wrap(claimerr.CodeInference, e.loadErr, "model unavailable")
	}

	tensor, err := e.preprocess(imageBytes)
	if err != nil {
		return zero, claimerr.Wrap(claimerr.CodeInference, err, "preprocessing failed")
	}

	probs := e.scorer.Score(tensor)

	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}

	dist := make(map[string]float64, len(probs))
	for i, c := range e.scorer.Classes {
		dist[c] = math.Round(probs[i]*10000) / 10000
	}

	return model.DamageVerdict{
		DamageDetected: e.scorer.Classes[best] == ClassDamage,
		Confidence:     probs[best],
		Probabilities:  dist,
	}, nil
}

// preprocess decodes and resizes the image to the model's input shape and
// normalizes it to a CHW tensor in [0,1].
func (e *Engine) preprocess(imageBytes []byte) (*tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, err
	}

	size := e.cfg.InputSize
	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	t := newTensor(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := resized.PixOffset(x, y)
			t.set(0, x, y, float64(resized.Pix[i])/255.0)
			t.set(1, x, y, float64(resized.Pix[i+1])/255.0)
			t.set(2, x, y, float64(resized.Pix[i+2])/255.0)
		}
	}
	return t, nil
}

// tensor is a dense CHW float image.
type tensor struct {
	data []float64
	size int
}

func newTensor(size int) *tensor {
	return &tensor{data: make([]float64, 3*size*size), size: size}
}

func (t *tensor) set(c, x, y int, v float64) {
	t.data[c*t.size*t.size+y*t.size+x] = v
}

func (t *tensor) at(c, x, y int) float64 {
	return t.data[c*t.size*t.size+y*t.size+x]
}
