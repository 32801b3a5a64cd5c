package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ProbabilityEpsilon is the lower clamp applied to predicted probabilities
// before taking their logarithm.
const ProbabilityEpsilon = 1e-15

// ClassificationMetrics summarizes a multiclass evaluation.
type ClassificationMetrics struct {
	LogLoss          float64 `json:"log_loss"`
	LogLossReduction float64 `json:"log_loss_reduction"` // relative gain over predicting the label prior
	MicroAccuracy    float64 `json:"micro_accuracy"`
	MacroAccuracy    float64 `json:"macro_accuracy"`
	Samples          int     `json:"samples"`
}

var errNoSamples = errors.New("no samples to evaluate")

func checkShapes(probs [][]float64, labels []int) error {
	if len(probs) == 0 {
		return errNoSamples
	}
	if len(probs) != len(labels) {
		return fmt.Errorf("got %d predictions for %d labels", len(probs), len(labels))
	}
	for i, p := range probs {
		if labels[i] < 0 || labels[i] >= len(p) {
			return fmt.Errorf("sample %d: label %d outside %d classes", i, labels[i], len(p))
		}
	}
	return nil
}

// LogLoss returns the mean negative log-likelihood of the true labels.
// Probabilities are clamped to [ProbabilityEpsilon, 1].
func LogLoss(probs [][]float64, labels []int) (float64, error) {
	if err := checkShapes(probs, labels); err != nil {
		return 0, err
	}
	losses := make([]float64, len(probs))
	for i, p := range probs {
		losses[i] = -math.Log(clampProbability(p[labels[i]]))
	}
	return floats.Sum(losses) / float64(len(losses)), nil
}

func clampProbability(p float64) float64 {
	if math.IsNaN(p) || p < ProbabilityEpsilon {
		return ProbabilityEpsilon
	}
	if p > 1 {
		return 1
	}
	return p
}

// Accuracy returns the share of samples whose Argmax matches the label.
func Accuracy(probs [][]float64, labels []int) (float64, error) {
	if err := checkShapes(probs, labels); err != nil {
		return 0, err
	}
	correct := 0
	for i, p := range probs {
		if Argmax(p) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(probs)), nil
}

// Evaluate computes log loss and accuracy metrics over numClasses classes.
func Evaluate(probs [][]float64, labels []int, numClasses int) (*ClassificationMetrics, error) {
	if err := checkShapes(probs, labels); err != nil {
		return nil, err
	}
	logLoss, err := LogLoss(probs, labels)
	if err != nil {
		return nil, err
	}
	micro, err := Accuracy(probs, labels)
	if err != nil {
		return nil, err
	}

	counts := make([]float64, numClasses)
	hits := make([]float64, numClasses)
	for i, p := range probs {
		if labels[i] >= numClasses {
			return nil, fmt.Errorf("sample %d: label %d outside %d classes", i, labels[i], numClasses)
		}
		counts[labels[i]]++
		if Argmax(p) == labels[i] {
			hits[labels[i]]++
		}
	}

	present := 0
	macro := 0.0
	prior := 0.0
	n := float64(len(labels))
	for c := range counts {
		if counts[c] == 0 {
			continue
		}
		present++
		macro += hits[c] / counts[c]
		prior -= counts[c] / n * math.Log(counts[c]/n)
	}
	macro /= float64(present)

	reduction := 0.0
	if prior > 0 {
		reduction = (prior - logLoss) / prior
	}

	return &ClassificationMetrics{
		LogLoss:          logLoss,
		LogLossReduction: reduction,
		MicroAccuracy:    micro,
		MacroAccuracy:    macro,
		Samples:          len(labels),
	}, nil
}

// Argmax returns the index of the largest value. The first of several equal
// maxima wins. Empty input returns -1.
func Argmax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// Softmax writes the normalized exponentials of logits into dst and returns
// it. dst may alias logits; a nil dst is allocated.
func Softmax(dst, logits []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(logits))
	}
	if len(logits) == 0 {
		return dst
	}
	lse := floats.LogSumExp(logits)
	for i, v := range logits {
		dst[i] = math.Exp(v - lse)
	}
	return dst
}
