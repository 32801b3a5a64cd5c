// Package windowing provides the analysis windows that may be applied to a
// buffer before its FFT.
package windowing

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Type names a window function.
type Type string

const (
	// Rectangular leaves samples unchanged. It is the default.
	Rectangular Type = "rectangular"
	Hann        Type = "hann"
	Hamming     Type = "hamming"
	Blackman    Type = "blackman"
)

// Valid reports whether t is a known window. The empty type is Rectangular.
func (t Type) Valid() bool {
	switch t {
	case "", Rectangular, Hann, Hamming, Blackman:
		return true
	}
	return false
}

type cacheKey struct {
	t    Type
	size int
}

var (
	cacheMu sync.Mutex
	cache   = make(map[cacheKey][]float64)
)

// Coefficients returns the periodic window of the given size. The returned
// slice is shared and must not be modified.
func Coefficients(t Type, size int) ([]float64, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown window %q", t)
	}
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	if t == "" {
		t = Rectangular
	}

	key := cacheKey{t, size}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if c, ok := cache[key]; ok {
		return c, nil
	}

	c := make([]float64, size)
	n := float64(size)
	for i := range c {
		arg := 2 * math.Pi * float64(i) / n
		switch t {
		case Rectangular:
			c[i] = 1
		case Hann:
			c[i] = 0.5 * (1 - math.Cos(arg))
		case Hamming:
			c[i] = 0.54 - 0.46*math.Cos(arg)
		case Blackman:
			c[i] = 0.42 - 0.5*math.Cos(arg) + 0.08*math.Cos(2*arg)
		}
	}
	cache[key] = c
	return c, nil
}

// Apply returns samples multiplied by window t in a new slice. Rectangular
// returns samples itself.
func Apply(t Type, samples []float64) ([]float64, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown window %q", t)
	}
	if t == "" || t == Rectangular || len(samples) == 0 {
		return samples, nil
	}
	c, err := Coefficients(t, len(samples))
	if err != nil {
		return nil, err
	}
	return floats.MulTo(make([]float64, len(samples)), samples, c), nil
}
