package chroma

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-chords/algorithms/spectral"
	"github.com/RyanBlaney/sonido-chords/algorithms/windowing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(freqs []float64, amp float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		for _, f := range freqs {
			out[i] += amp * math.Sin(2*math.Pi*f*float64(i)/float64(sampleRate))
		}
	}
	return out
}

func TestPitchClassOfBin(t *testing.T) {
	tests := []struct {
		name string
		l    int
		want int
	}{
		{"dc", 0, -1},
		{"reference C3", 131, 0},
		{"octave below", 65, 0},
		{"A4", 440, 9},
		{"below reference wraps", 100, 7},
		{"E4", 330, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PitchClassOfBin(tt.l, 8000, 8000))
		})
	}
}

func TestPitchClassOfBinInvalidInput(t *testing.T) {
	assert.Equal(t, -1, PitchClassOfBin(10, 0, 8000))
	assert.Equal(t, -1, PitchClassOfBin(10, 100, 0))
}

func TestExtractBucketsEnergy(t *testing.T) {
	spectrum := make([]complex128, 8000)
	spectrum[0] = 1000 // DC is ignored
	spectrum[440] = 1
	spectrum[100] = complex(0, 2)
	spectrum[7000] = 50 // mirrored half is ignored

	profile, err := NewExtractor().Extract(spectrum, 8000)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, profile[9], 1e-12)
	assert.InDelta(t, 0.8, profile[7], 1e-12)
	assert.InDelta(t, 1.0, profile.Sum(), 1e-12)
	assert.Equal(t, 7, profile.Dominant())
}

func TestExtractSilentSpectrum(t *testing.T) {
	e := NewExtractor()

	_, err := e.Extract([]complex128{5, 0, 0, 0}, 8000)
	assert.ErrorIs(t, err, ErrSilentSpectrum)

	_, err = e.Extract(nil, 8000)
	assert.ErrorIs(t, err, ErrSilentSpectrum)

	_, err = e.ExtractSamples(spectral.NewFFT(), nil, 8000)
	assert.ErrorIs(t, err, ErrSilentSpectrum)
}

func TestExtractRejectsBadSampleRate(t *testing.T) {
	_, err := NewExtractor().Extract([]complex128{0, 1}, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSilentSpectrum)
}

func TestExtractSumsToOne(t *testing.T) {
	fft := spectral.NewFFT()
	e := NewExtractor()
	for _, freqs := range [][]float64{{440}, {196, 246.94, 293.66}, {82.41, 123.47, 164.81, 196}} {
		profile, err := e.ExtractSamples(fft, tone(freqs, 0.3, 8000, 4000), 8000)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, profile.Sum(), 1e-6)
		for _, v := range profile {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestExtractScaleInvariant(t *testing.T) {
	fft := spectral.NewFFT()
	e := NewExtractor()
	samples := tone([]float64{196, 246.94, 293.66}, 0.1, 8000, 4000)
	scaled := make([]float64, len(samples))
	for i, s := range samples {
		scaled[i] = 7.5 * s
	}

	a, err := e.ExtractSamples(fft, samples, 8000)
	require.NoError(t, err)
	b, err := e.ExtractSamples(fft, scaled, 8000)
	require.NoError(t, err)
	for pc := range a {
		assert.InDelta(t, a[pc], b[pc], 1e-9, PitchClassNames[pc])
	}
}

func TestExtractSineLandsOnItsPitchClass(t *testing.T) {
	profile, err := NewExtractor().ExtractSamples(spectral.NewFFT(), tone([]float64{440}, 0.5, 8000, 8000), 8000)
	require.NoError(t, err)
	assert.Equal(t, 9, profile.Dominant())
	assert.Greater(t, profile[9], 0.9)
}

func TestWindowedExtractor(t *testing.T) {
	e, err := NewWindowedExtractor(windowing.Hann)
	require.NoError(t, err)
	assert.Equal(t, windowing.Hann, e.Window())

	// a sine between bins leaks less under a Hann window
	samples := tone([]float64{440.5}, 0.5, 8000, 8000)
	windowed, err := e.ExtractSamples(spectral.NewFFT(), samples, 8000)
	require.NoError(t, err)
	plain, err := NewExtractor().ExtractSamples(spectral.NewFFT(), samples, 8000)
	require.NoError(t, err)
	assert.Equal(t, 9, windowed.Dominant())
	assert.InDelta(t, 1.0, windowed.Sum(), 1e-9)
	assert.GreaterOrEqual(t, windowed[9], plain[9])

	e, err = NewWindowedExtractor("")
	require.NoError(t, err)
	assert.Equal(t, windowing.Rectangular, e.Window())

	_, err = NewWindowedExtractor("kaiser")
	assert.Error(t, err)
}

func TestProfileHelpers(t *testing.T) {
	var flat Profile
	for i := range flat {
		flat[i] = 1.0 / 12
	}
	assert.InDelta(t, math.Log2(12), flat.Entropy(), 1e-9)

	var peak Profile
	peak[4] = 0.7
	peak[11] = 0.3
	assert.InDelta(t, 0, Profile{1}.Entropy(), 1e-12)
	top := peak.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, PitchClass{Class: 4, Name: "E", Energy: 0.7}, top[0])
	assert.Equal(t, "B", top[1].Name)
	assert.Len(t, peak.Top(20), 12)

	s := peak.Slice()
	s[4] = 0
	assert.Equal(t, 0.7, peak[4])

	p, err := ProfileFromSlice(peak.Slice())
	require.NoError(t, err)
	assert.Equal(t, peak, p)
	_, err = ProfileFromSlice([]float64{1, 2})
	assert.Error(t, err)
}
