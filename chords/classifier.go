package chords

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
	"github.com/RyanBlaney/sonido-chords/logging"
)

var (
	// ErrModelUnavailable is returned when no model is loaded.
	ErrModelUnavailable = errors.New("no chord model loaded")
	// ErrInference wraps model failures and malformed model outputs.
	ErrInference = errors.New("chord inference failed")
)

// Model maps a 12-value pitch class profile to one probability per
// vocabulary label, in vocabulary order. Implementations must be safe for
// concurrent Predict calls.
type Model interface {
	Predict(features []float64) ([]float64, error)
}

// Classifier labels pitch class profiles with the currently loaded model.
// The model is swapped only through Load and Unload.
type Classifier struct {
	mu     sync.RWMutex
	model  Model
	name   string
	logger logging.Logger
}

// NewClassifier creates a classifier with no model loaded.
func NewClassifier() *Classifier {
	return &Classifier{
		logger: logging.WithFields(logging.Fields{
			"component": "chord_classifier",
		}),
	}
}

// Load makes m the active model. name identifies it in logs.
func (c *Classifier) Load(name string, m Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = m
	c.name = name
	c.logger.Info("Chord model loaded", logging.Fields{"model": name})
}

// Unload drops the active model.
func (c *Classifier) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = nil
	c.name = ""
}

// ModelName returns the name passed to Load, or "" when nothing is loaded.
func (c *Classifier) ModelName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Loaded reports whether a model is active.
func (c *Classifier) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model != nil
}

// Probabilities runs the active model on profile.
func (c *Classifier) Probabilities(profile chroma.Profile) ([]float64, error) {
	c.mu.RLock()
	m := c.model
	c.mu.RUnlock()
	if m == nil {
		return nil, ErrModelUnavailable
	}

	probs, err := m.Predict(profile.Slice())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(probs) != NumLabels {
		return nil, fmt.Errorf("%w: model returned %d scores for %d labels", ErrInference, len(probs), NumLabels)
	}
	for i, p := range probs {
		if math.IsNaN(p) {
			return nil, fmt.Errorf("%w: score for %s is NaN", ErrInference, vocabulary[i])
		}
	}
	return probs, nil
}

// Classify returns the most probable label for profile.
func (c *Classifier) Classify(profile chroma.Profile) (Label, error) {
	probs, err := c.Probabilities(profile)
	if err != nil {
		return "", err
	}
	return Decide(probs)
}

// Decide picks the label with the highest probability. The first label with
// a probability strictly greater than every earlier one wins, so ties go to
// the label declared first.
func Decide(probs []float64) (Label, error) {
	if len(probs) != NumLabels {
		return "", fmt.Errorf("%w: %d scores for %d labels", ErrInference, len(probs), NumLabels)
	}
	return vocabulary[stats.Argmax(probs)], nil
}
