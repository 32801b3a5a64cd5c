// Package spectral turns sample buffers into spectra.
package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFT is a forward Fourier transform over real buffers of any length. The
// output is unscaled.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute returns the complex spectrum of x. The output has len(x) bins;
// only the first len(x)/2 are non-mirrored.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// BinFrequency returns the center frequency in Hz of bin l of an n-point
// transform at sampleRate.
func BinFrequency(l, n, sampleRate int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sampleRate) * float64(l) / float64(n)
}
