package model

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
	"github.com/RyanBlaney/sonido-chords/chords"
)

// Triad interval patterns rooted on C.
var (
	majorPattern = [numFeatures]float64{1, 0, 0, 0, 1, 0, 0, 1, 0, 0, 0, 0}
	minorPattern = [numFeatures]float64{1, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0}
)

// DefaultSharpness scales template similarities before the softmax.
const DefaultSharpness = 20.0

// Templates scores a profile against the major or minor triad template of
// every label and turns the cosine similarities into probabilities. It needs
// no training data and serves as the fallback model.
type Templates struct {
	Sharpness float64 `msgpack:"sharpness"`

	patterns [numClasses][numFeatures]float64
}

// NewTemplates builds a template model. sharpness <= 0 selects
// DefaultSharpness.
func NewTemplates(sharpness float64) *Templates {
	t := &Templates{Sharpness: sharpness}
	t.init()
	return t
}

// FitTemplates picks the sharpness from candidates with the lowest log loss
// on the given rows.
func FitTemplates(ctx context.Context, x [][]float64, y []int, candidates []float64) (*Templates, error) {
	if err := checkDataset(x, y); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		candidates = []float64{DefaultSharpness}
	}

	var best *Templates
	bestLoss := math.Inf(1)
	for _, sharpness := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := NewTemplates(sharpness)
		probs, err := PredictAll(t, x)
		if err != nil {
			return nil, err
		}
		loss, err := stats.LogLoss(probs, y)
		if err != nil {
			return nil, err
		}
		if loss < bestLoss {
			best, bestLoss = t, loss
		}
	}
	return best, nil
}

func (t *Templates) init() {
	if t.Sharpness <= 0 {
		t.Sharpness = DefaultSharpness
	}
	for i, label := range chords.Vocabulary() {
		pattern := majorPattern
		if label.Minor() {
			pattern = minorPattern
		}
		t.patterns[i] = rotatePattern(pattern, label.Root())
	}
}

// rotatePattern transposes a C-rooted pattern up by semitones.
func rotatePattern(pattern [numFeatures]float64, semitones int) [numFeatures]float64 {
	var out [numFeatures]float64
	for i, v := range pattern {
		out[(i+semitones)%numFeatures] = v
	}
	return out
}

// Predict returns one probability per chord label.
func (t *Templates) Predict(features []float64) ([]float64, error) {
	if err := checkFeatures(features); err != nil {
		return nil, err
	}
	norm := 0.0
	for _, v := range features {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	scores := make([]float64, numClasses)
	for i, pattern := range t.patterns {
		if norm == 0 {
			continue
		}
		dot := 0.0
		for pc, v := range pattern {
			dot += features[pc] * v
		}
		// every triad pattern has three unit entries
		scores[i] = t.Sharpness * dot / (norm * math.Sqrt(3))
	}
	return stats.Softmax(scores, scores), nil
}

func (t *Templates) Kind() Kind { return KindTemplates }

func (t *Templates) Describe() string {
	return fmt.Sprintf("templates(sharpness=%g)", t.Sharpness)
}

// PredictAll runs p over every row.
func PredictAll(p chords.Model, x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		probs, err := p.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = probs
	}
	return out, nil
}
