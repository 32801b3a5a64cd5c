package model

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
)

// SoftmaxParams configures multinomial logistic regression training.
type SoftmaxParams struct {
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	L2           float64 `json:"l2" yaml:"l2"`
	Epochs       int     `json:"epochs" yaml:"epochs"`
}

// DefaultSoftmaxParams returns default softmax training parameters
func DefaultSoftmaxParams() SoftmaxParams {
	return SoftmaxParams{
		LearningRate: 0.5,
		L2:           1e-4,
		Epochs:       400,
	}
}

// Softmax is a multinomial logistic regression over standardized profiles.
type Softmax struct {
	Std     Standardizer  `msgpack:"std"`
	Weights []float64     `msgpack:"weights"` // 12 x classes, row major
	Bias    []float64     `msgpack:"bias"`
	Params  SoftmaxParams `msgpack:"params"`

	w *mat.Dense
}

// FitSoftmax trains a Softmax model with full-batch gradient descent.
func FitSoftmax(ctx context.Context, x [][]float64, y []int, p SoftmaxParams) (*Softmax, error) {
	if err := checkDataset(x, y); err != nil {
		return nil, err
	}
	if p.LearningRate <= 0 || p.Epochs <= 0 || p.L2 < 0 {
		return nil, fmt.Errorf("invalid softmax parameters %+v", p)
	}

	std := FitStandardizer(x)
	X := designMatrix(x, std)
	Y := oneHot(y)
	n := float64(len(x))

	W := mat.NewDense(numFeatures, numClasses, nil)
	bias := make([]float64, numClasses)
	var probs, gradW mat.Dense

	for epoch := 0; epoch < p.Epochs; epoch++ {
		if err := canceled(ctx, epoch); err != nil {
			return nil, err
		}
		probs.Mul(X, W)
		softmaxRows(&probs, bias)

		probs.Sub(&probs, Y)
		probs.Scale(1/n, &probs)

		gradW.Mul(X.T(), &probs)
		addScaled(&gradW, p.L2, W)
		addScaled(W, -p.LearningRate, &gradW)
		floats.AddScaled(bias, -p.LearningRate, columnSums(&probs))
	}

	s := &Softmax{
		Std:     std,
		Weights: W.RawMatrix().Data,
		Bias:    bias,
		Params:  p,
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Softmax) init() error {
	if err := s.Std.valid(); err != nil {
		return err
	}
	if len(s.Weights) != numFeatures*numClasses || len(s.Bias) != numClasses {
		return fmt.Errorf("softmax has %d weights and %d biases", len(s.Weights), len(s.Bias))
	}
	s.w = mat.NewDense(numFeatures, numClasses, s.Weights)
	return nil
}

// Predict returns one probability per chord label.
func (s *Softmax) Predict(features []float64) ([]float64, error) {
	if err := checkFeatures(features); err != nil {
		return nil, err
	}
	z := mat.NewVecDense(numFeatures, s.Std.Apply(features))
	var logits mat.VecDense
	logits.MulVec(s.w.T(), z)

	out := make([]float64, numClasses)
	for j := range out {
		out[j] = logits.AtVec(j) + s.Bias[j]
	}
	return stats.Softmax(out, out), nil
}

func (s *Softmax) Kind() Kind { return KindSoftmax }

func (s *Softmax) Describe() string {
	return fmt.Sprintf("softmax(lr=%g l2=%g epochs=%d)", s.Params.LearningRate, s.Params.L2, s.Params.Epochs)
}
