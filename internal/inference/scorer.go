package inference

import (
	"encoding/json"
	"math"
	"os"

	"github.com/rotisserie/eris"
)

// scorer is the compact scoring head exported from the trained classifier:
// a mean-pooled feature grid fed through a per-class linear layer, followed
// by softmax. Read-only after load; safe for concurrent use.
type scorer struct {
	Version string      `json:"version"`
	Classes []string    `json:"classes"`
	Pool    int         `json:"pool"`
	Bias    []float64   `json:"bias"`
	Weights [][]float64 `json:"weights"`
}

func loadScorer(path string) (*scorer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "inference: read model %s", path)
	}

	var s scorer
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrapf(err, "inference: parse model %s", path)
	}

	if len(s.Classes) == 0 || s.Pool <= 0 {
		return nil, eris.Errorf("inference: model %s missing classes or pool size", path)
	}
	if len(s.Bias) != len(s.Classes) || len(s.Weights) != len(s.Classes) {
		return nil, eris.Errorf("inference: model %s has %d classes but %d bias / %d weight rows",
			path, len(s.Classes), len(s.Bias), len(s.Weights))
	}
	featureDim := 3 * s.Pool * s.Pool
	for i, row := range s.Weights {
		if len(row) != featureDim {
			return nil, eris.Errorf("inference: model %s weight row %d has %d features, want %d",
				path, i, len(row), featureDim)
		}
	}
	return &s, nil
}

// Score computes class probabilities for a preprocessed tensor.
func (s *scorer) Score(t *tensor) []float64 {
	features := poolFeatures(t, s.Pool)

	logits := make([]float64, len(s.Classes))
	for c := range s.Classes {
		sum := s.Bias[c]
		for i, f := range features {
			sum += s.Weights[c][i] * f
		}
		logits[c] = sum
	}
	return softmax(logits)
}

// poolFeatures mean-pools each channel into a pool x pool grid.
func poolFeatures(t *tensor, pool int) []float64 {
	features := make([]float64, 0, 3*pool*pool)
	cell := t.size / pool
	for c := 0; c < 3; c++ {
		for gy := 0; gy < pool; gy++ {
			for gx := 0; gx < pool; gx++ {
				var sum float64
				for y := gy * cell; y < (gy+1)*cell; y++ {
					for x := gx * cell; x < (gx+1)*cell; x++ {
						sum += t.at(c, x, y)
					}
				}
				features = append(features, sum/float64(cell*cell))
			}
		}
	}
	return features
}

// softmax converts logits to probabilities. Numerically stable.
func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
