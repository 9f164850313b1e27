package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// ErrInsufficientSamples is returned by Train when the ledger does not yet
// hold enough labeled examples.
var ErrInsufficientSamples = errors.New("insufficient training samples")

// Model is a logistic regression ranker over FeatureVector. It is advisory:
// the deterministic scorer remains authoritative and the system is fully
// functional when no model file exists.
type Model struct {
	Version   string    `json:"version"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	TrainedAt time.Time `json:"trained_at"`
	Samples   int       `json:"samples"`
}

// Training hyperparameters. Plain batch gradient descent is enough at this
// feature count.
const (
	trainEpochs       = 500
	trainLearningRate = 0.1
)

// Train fits a model on labeled examples. Classes are weighted inversely to
// their frequency so a confirmation-heavy ledger does not drown out the
// rejections. Fewer than minSamples usable examples returns
// ErrInsufficientSamples.
func Train(examples []TrainingSample, minSamples int) (*Model, error) {
	if len(examples) < minSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(examples), minSamples)
	}

	var positives int
	for _, ex := range examples {
		if ex.Positive {
			positives++
		}
	}
	negatives := len(examples) - positives
	if positives == 0 || negatives == 0 {
		return nil, fmt.Errorf("%w: need both positive and negative labels", ErrInsufficientSamples)
	}

	// Balanced class weights: n / (2 * class count).
	n := float64(len(examples))
	posWeight := n / (2 * float64(positives))
	negWeight := n / (2 * float64(negatives))

	weights := make([]float64, FeatureCount)
	var bias float64

	for epoch := 0; epoch < trainEpochs; epoch++ {
		grad := make([]float64, FeatureCount)
		var gradBias float64
		for _, ex := range examples {
			x := ex.Features.Values()
			pred := sigmoid(dot(weights, x) + bias)
			y := 0.0
			w := negWeight
			if ex.Positive {
				y = 1.0
				w = posWeight
			}
			diff := w * (pred - y)
			for i := range grad {
				grad[i] += diff * x[i]
			}
			gradBias += diff
		}
		for i := range weights {
			weights[i] -= trainLearningRate * grad[i] / n
		}
		bias -= trainLearningRate * gradBias / n
	}

	return &Model{
		Version:   fmt.Sprintf("lr-%s-n%d", time.Now().UTC().Format("20060102T150405Z"), len(examples)),
		Weights:   weights,
		Bias:      bias,
		TrainedAt: time.Now().UTC(),
		Samples:   len(examples),
	}, nil
}

// TrainingSample is one decoded, labeled ledger entry.
type TrainingSample struct {
	Features FeatureVector
	Positive bool
}

// Score returns the model's pairing probability for a feature vector.
func (m *Model) Score(fv FeatureVector) float64 {
	return sigmoid(dot(m.Weights, fv.Values()) + m.Bias)
}

// Save writes the model as JSON, creating parent directories as needed.
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write model %s: %w", path, err)
	}
	return nil
}

// LoadModel reads a saved model. A missing file returns (nil, nil): running
// without a model is the normal cold-start condition.
func LoadModel(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	if len(m.Weights) != FeatureCount {
		return nil, fmt.Errorf("model %s has %d weights, expected %d", path, len(m.Weights), FeatureCount)
	}
	return &m, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
