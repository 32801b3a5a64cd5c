package spectral

import (
	"math/cmplx"
)

// PowerSpectrum computes bin energies from a complex spectrum.
type PowerSpectrum struct{}

// NewPowerSpectrum creates a new power spectrum calculator
func NewPowerSpectrum() *PowerSpectrum {
	return &PowerSpectrum{}
}

// FromSpectrum returns |X[l]|^2 for the non-mirrored half of the spectrum,
// l < N/2 evaluated in real arithmetic. Odd lengths therefore keep the
// middle bin: ceil(N/2) values are returned.
func (ps *PowerSpectrum) FromSpectrum(spectrum []complex128) []float64 {
	half := (len(spectrum) + 1) / 2
	power := make([]float64, half)
	for l := 0; l < half; l++ {
		mag := cmplx.Abs(spectrum[l])
		power[l] = mag * mag
	}
	return power
}

// Total returns the summed energy of a power spectrum, skipping the DC bin.
func (ps *PowerSpectrum) Total(power []float64) float64 {
	total := 0.0
	for l := 1; l < len(power); l++ {
		total += power[l]
	}
	return total
}
