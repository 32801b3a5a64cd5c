package chroma

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-chords/algorithms/spectral"
	"github.com/RyanBlaney/sonido-chords/algorithms/windowing"
)

// ReferenceFrequency is the frequency of C3 in Hz. Pitch classes are counted
// in semitones from it.
const ReferenceFrequency = 130.81

// NumPitchClasses is the size of a pitch class profile.
const NumPitchClasses = 12

// PitchClassNames lists the pitch classes in profile order (0=C ... 11=B).
var PitchClassNames = [NumPitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ErrSilentSpectrum is returned when a spectrum carries no energy outside the
// DC bin, so no profile can be normalized.
var ErrSilentSpectrum = errors.New("spectrum has zero energy")

// PitchClass is a single entry of a profile.
type PitchClass struct {
	Class  int     // 0=C, 1=C#, ..., 11=B
	Name   string  // Pitch class name
	Energy float64 // Normalized energy
}

// Profile is a 12-bin pitch class profile indexed from C. Profiles produced
// by Extractor sum to 1.
type Profile [NumPitchClasses]float64

// Slice returns a copy of the profile as a slice, the layout models consume.
func (p Profile) Slice() []float64 {
	out := make([]float64, NumPitchClasses)
	copy(out, p[:])
	return out
}

// Sum returns the total of all bins.
func (p Profile) Sum() float64 {
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	return sum
}

// Dominant returns the strongest pitch class. Ties keep the lower class.
func (p Profile) Dominant() int {
	best := 0
	for pc := 1; pc < NumPitchClasses; pc++ {
		if p[pc] > p[best] {
			best = pc
		}
	}
	return best
}

// Top returns the n strongest pitch classes, strongest first.
func (p Profile) Top(n int) []PitchClass {
	classes := make([]PitchClass, NumPitchClasses)
	for pc := range classes {
		classes[pc] = PitchClass{Class: pc, Name: PitchClassNames[pc], Energy: p[pc]}
	}
	sort.SliceStable(classes, func(i, j int) bool {
		return classes[i].Energy > classes[j].Energy
	})
	if n < 0 {
		n = 0
	}
	if n > NumPitchClasses {
		n = NumPitchClasses
	}
	return classes[:n]
}

// Entropy returns the Shannon entropy of the profile in bits. A profile with
// all energy in one class has entropy 0; a flat profile has log2(12).
func (p Profile) Entropy() float64 {
	entropy := 0.0
	for _, v := range p {
		if v > 1e-10 {
			entropy -= v * math.Log2(v)
		}
	}
	return entropy
}

// ProfileFromSlice builds a Profile from 12 values, e.g. a training table row.
func ProfileFromSlice(values []float64) (Profile, error) {
	var p Profile
	if len(values) != NumPitchClasses {
		return p, fmt.Errorf("expected %d pitch class values, got %d", NumPitchClasses, len(values))
	}
	copy(p[:], values)
	return p, nil
}

// PitchClassOfBin maps FFT bin l of an n-point transform at sampleRate to its
// nearest pitch class in [0, 11]. Bin 0 (DC) has no pitch class and yields -1.
// The semitone offset is rounded half to even.
func PitchClassOfBin(l, n, sampleRate int) int {
	if l <= 0 || n <= 0 || sampleRate <= 0 {
		return -1
	}
	freq := spectral.BinFrequency(l, n, sampleRate)
	semitones := math.RoundToEven(12 * math.Log2(freq/ReferenceFrequency))
	pc := int(semitones) % NumPitchClasses
	if pc < 0 {
		pc += NumPitchClasses
	}
	return pc
}

// Extractor folds complex spectra into pitch class profiles.
type Extractor struct {
	power  *spectral.PowerSpectrum
	window windowing.Type
}

// NewExtractor creates a new profile extractor
func NewExtractor() *Extractor {
	return &Extractor{power: spectral.NewPowerSpectrum(), window: windowing.Rectangular}
}

// NewWindowedExtractor creates an extractor that applies window to samples
// before the FFT in ExtractSamples.
func NewWindowedExtractor(window windowing.Type) (*Extractor, error) {
	if !window.Valid() {
		return nil, fmt.Errorf("unknown analysis window %q", window)
	}
	e := NewExtractor()
	if window != "" {
		e.window = window
	}
	return e, nil
}

// Window returns the analysis window applied by ExtractSamples.
func (e *Extractor) Window() windowing.Type {
	return e.window
}

// Extract accumulates |X[l]|^2 of every non-mirrored bin into the bin's pitch
// class and normalizes the result to sum to 1. The spectrum length is the
// transform size N. A spectrum without energy outside DC returns
// ErrSilentSpectrum.
func (e *Extractor) Extract(spectrum []complex128, sampleRate int) (Profile, error) {
	var profile Profile
	if sampleRate <= 0 {
		return profile, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	power := e.power.FromSpectrum(spectrum)
	total := e.power.Total(power)
	if total == 0 {
		return profile, ErrSilentSpectrum
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return profile, fmt.Errorf("spectrum energy is not finite: %v", total)
	}

	n := len(spectrum)
	for l := 1; l < len(power); l++ {
		profile[PitchClassOfBin(l, n, sampleRate)] += power[l] / total
	}
	return profile, nil
}

// ExtractSamples windows samples, runs the forward FFT and extracts the
// profile of the resulting spectrum.
func (e *Extractor) ExtractSamples(fft *spectral.FFT, samples []float64, sampleRate int) (Profile, error) {
	if len(samples) == 0 {
		return Profile{}, ErrSilentSpectrum
	}
	windowed, err := windowing.Apply(e.window, samples)
	if err != nil {
		return Profile{}, err
	}
	return e.Extract(fft.Compute(windowed), sampleRate)
}
