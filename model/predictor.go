// Package model holds the trainable chord models, their persisted artifact
// format and the artifact store and registry.
package model

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/chords"
)

// Kind identifies a model family inside an artifact.
type Kind string

const (
	KindSoftmax   Kind = "softmax"
	KindMLP       Kind = "mlp"
	KindTemplates Kind = "templates"
)

// Predictor is a chords.Model that can be persisted in an artifact.
type Predictor interface {
	chords.Model
	Kind() Kind
	// Describe returns the model's hyperparameters in a short readable form.
	Describe() string
}

const (
	numFeatures = chroma.NumPitchClasses
	numClasses  = chords.NumLabels
)

func checkFeatures(features []float64) error {
	if len(features) != numFeatures {
		return fmt.Errorf("expected %d features, got %d", numFeatures, len(features))
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %d is not finite", i)
		}
	}
	return nil
}

// Standardizer rescales each feature to zero mean and unit variance using
// statistics from the training rows.
type Standardizer struct {
	Mean  []float64 `msgpack:"mean"`
	Scale []float64 `msgpack:"scale"`
}

// FitStandardizer computes per-feature mean and inverse standard deviation.
// Constant features get a scale of 1.
func FitStandardizer(x [][]float64) Standardizer {
	s := Standardizer{
		Mean:  make([]float64, numFeatures),
		Scale: make([]float64, numFeatures),
	}
	n := float64(len(x))
	if n == 0 {
		for j := range s.Scale {
			s.Scale[j] = 1
		}
		return s
	}
	for _, row := range x {
		for j := 0; j < numFeatures; j++ {
			s.Mean[j] += row[j]
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for j := 0; j < numFeatures; j++ {
		variance := 0.0
		for _, row := range x {
			d := row[j] - s.Mean[j]
			variance += d * d
		}
		std := math.Sqrt(variance / n)
		if std < 1e-12 {
			s.Scale[j] = 1
		} else {
			s.Scale[j] = 1 / std
		}
	}
	return s
}

// Apply returns the standardized copy of features.
func (s Standardizer) Apply(features []float64) []float64 {
	out := make([]float64, len(features))
	for j, v := range features {
		out[j] = (v - s.Mean[j]) * s.Scale[j]
	}
	return out
}

func (s Standardizer) valid() error {
	if len(s.Mean) != numFeatures || len(s.Scale) != numFeatures {
		return fmt.Errorf("standardizer has %d/%d values, want %d", len(s.Mean), len(s.Scale), numFeatures)
	}
	return nil
}

// checkDataset validates training rows and labels.
func checkDataset(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("no training rows")
	}
	if len(x) != len(y) {
		return fmt.Errorf("%d rows but %d labels", len(x), len(y))
	}
	for i, row := range x {
		if err := checkFeatures(row); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if y[i] < 0 || y[i] >= numClasses {
			return fmt.Errorf("row %d: label index %d out of range", i, y[i])
		}
	}
	return nil
}
