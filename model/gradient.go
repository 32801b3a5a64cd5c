package model

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
)

// ctxCheckEvery is how many epochs pass between context checks.
const ctxCheckEvery = 25

// designMatrix stacks standardized rows into an n x 12 matrix.
func designMatrix(x [][]float64, std Standardizer) *mat.Dense {
	m := mat.NewDense(len(x), numFeatures, nil)
	for i, row := range x {
		m.SetRow(i, std.Apply(row))
	}
	return m
}

// oneHot encodes label indices as an n x numClasses indicator matrix.
func oneHot(y []int) *mat.Dense {
	m := mat.NewDense(len(y), numClasses, nil)
	for i, c := range y {
		m.Set(i, c, 1)
	}
	return m
}

// softmaxRows adds bias to every row of logits and turns each row into a
// probability distribution in place.
func softmaxRows(logits *mat.Dense, bias []float64) {
	rows, _ := logits.Dims()
	for i := 0; i < rows; i++ {
		row := logits.RawRowView(i)
		floats.Add(row, bias)
		stats.Softmax(row, row)
	}
}

// columnSums returns the sum of each column of m.
func columnSums(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	out := make([]float64, cols)
	for j := range out {
		out[j] = mat.Sum(m.ColView(j))
	}
	return out
}

// addScaled performs dst += alpha * x element-wise. Both matrices must be
// densely packed with the same shape.
func addScaled(dst *mat.Dense, alpha float64, x *mat.Dense) {
	floats.AddScaled(dst.RawMatrix().Data, alpha, x.RawMatrix().Data)
}

func canceled(ctx context.Context, epoch int) error {
	if epoch%ctxCheckEvery != 0 {
		return nil
	}
	return ctx.Err()
}
