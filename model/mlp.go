package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
)

// MLPParams configures training of a one-hidden-layer network.
type MLPParams struct {
	Hidden       int     `json:"hidden" yaml:"hidden"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	L2           float64 `json:"l2" yaml:"l2"`
	Epochs       int     `json:"epochs" yaml:"epochs"`
	Seed         uint64  `json:"seed" yaml:"seed"`
}

// DefaultMLPParams returns default network training parameters
func DefaultMLPParams() MLPParams {
	return MLPParams{
		Hidden:       24,
		LearningRate: 0.3,
		L2:           1e-4,
		Epochs:       600,
		Seed:         1,
	}
}

// MLP is a dense network with one tanh hidden layer and a softmax output.
type MLP struct {
	Std    Standardizer `msgpack:"std"`
	W1     []float64    `msgpack:"w1"` // 12 x hidden
	B1     []float64    `msgpack:"b1"`
	W2     []float64    `msgpack:"w2"` // hidden x classes
	B2     []float64    `msgpack:"b2"`
	Params MLPParams    `msgpack:"params"`

	w1, w2 *mat.Dense
}

// FitMLP trains an MLP with full-batch gradient descent from a seeded
// Glorot-uniform initialization, so equal inputs give equal models.
func FitMLP(ctx context.Context, x [][]float64, y []int, p MLPParams) (*MLP, error) {
	if err := checkDataset(x, y); err != nil {
		return nil, err
	}
	if p.Hidden <= 0 || p.LearningRate <= 0 || p.Epochs <= 0 || p.L2 < 0 {
		return nil, fmt.Errorf("invalid mlp parameters %+v", p)
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	std := FitStandardizer(x)
	X := designMatrix(x, std)
	Y := oneHot(y)
	n := float64(len(x))

	W1 := glorot(rng, numFeatures, p.Hidden)
	W2 := glorot(rng, p.Hidden, numClasses)
	b1 := make([]float64, p.Hidden)
	b2 := make([]float64, numClasses)

	var z1, a1, probs, gradW1, gradW2, dA1, dZ1 mat.Dense
	for epoch := 0; epoch < p.Epochs; epoch++ {
		if err := canceled(ctx, epoch); err != nil {
			return nil, err
		}

		z1.Mul(X, W1)
		a1.Apply(func(_, j int, v float64) float64 { return math.Tanh(v + b1[j]) }, &z1)
		probs.Mul(&a1, W2)
		softmaxRows(&probs, b2)

		// output layer
		probs.Sub(&probs, Y)
		probs.Scale(1/n, &probs)
		gradW2.Mul(a1.T(), &probs)
		addScaled(&gradW2, p.L2, W2)

		// hidden layer
		dA1.Mul(&probs, W2.T())
		dZ1.Apply(func(i, j int, v float64) float64 {
			h := a1.At(i, j)
			return v * (1 - h*h)
		}, &dA1)
		gradW1.Mul(X.T(), &dZ1)
		addScaled(&gradW1, p.L2, W1)

		addScaled(W2, -p.LearningRate, &gradW2)
		addScaled(W1, -p.LearningRate, &gradW1)
		floats.AddScaled(b2, -p.LearningRate, columnSums(&probs))
		floats.AddScaled(b1, -p.LearningRate, columnSums(&dZ1))
	}

	m := &MLP{
		Std:    std,
		W1:     W1.RawMatrix().Data,
		B1:     b1,
		W2:     W2.RawMatrix().Data,
		B2:     b2,
		Params: p,
	}
	if err := m.init(); err != nil {
		return nil, err
	}
	return m, nil
}

func glorot(rng *rand.Rand, in, out int) *mat.Dense {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return mat.NewDense(in, out, data)
}

func (m *MLP) init() error {
	if err := m.Std.valid(); err != nil {
		return err
	}
	h := m.Params.Hidden
	if h <= 0 || len(m.W1) != numFeatures*h || len(m.B1) != h || len(m.W2) != h*numClasses || len(m.B2) != numClasses {
		return fmt.Errorf("mlp layer shapes do not match %d hidden units", h)
	}
	m.w1 = mat.NewDense(numFeatures, h, m.W1)
	m.w2 = mat.NewDense(h, numClasses, m.W2)
	return nil
}

// Predict returns one probability per chord label.
func (m *MLP) Predict(features []float64) ([]float64, error) {
	if err := checkFeatures(features); err != nil {
		return nil, err
	}
	z := mat.NewVecDense(numFeatures, m.Std.Apply(features))

	var hidden mat.VecDense
	hidden.MulVec(m.w1.T(), z)
	for j := 0; j < hidden.Len(); j++ {
		hidden.SetVec(j, math.Tanh(hidden.AtVec(j)+m.B1[j]))
	}

	var logits mat.VecDense
	logits.MulVec(m.w2.T(), &hidden)
	out := make([]float64, numClasses)
	for j := range out {
		out[j] = logits.AtVec(j) + m.B2[j]
	}
	return stats.Softmax(out, out), nil
}

func (m *MLP) Kind() Kind { return KindMLP }

func (m *MLP) Describe() string {
	return fmt.Sprintf("mlp(hidden=%d lr=%g l2=%g epochs=%d)", m.Params.Hidden, m.Params.LearningRate, m.Params.L2, m.Params.Epochs)
}
