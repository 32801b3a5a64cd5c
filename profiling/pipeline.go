package profiling

import (
	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/algorithms/spectral"
	"github.com/RyanBlaney/sonido-chords/chords"
)

// Analysis is the outcome of the read path over one buffer.
type Analysis struct {
	Profile    chroma.Profile `json:"profile"`
	Label      chords.Label   `json:"label"`
	Confidence float64        `json:"confidence"` // probability of Label
}

// Pipeline is the single-buffer read path: FFT, pitch class profile, chord
// classifier. It holds no per-call state and may be shared by goroutines.
type Pipeline struct {
	fft        *spectral.FFT
	extractor  *chroma.Extractor
	classifier *chords.Classifier
}

// NewPipeline creates a read path around classifier.
func NewPipeline(classifier *chords.Classifier) *Pipeline {
	return &Pipeline{
		fft:        spectral.NewFFT(),
		extractor:  chroma.NewExtractor(),
		classifier: classifier,
	}
}

// Profile computes the pitch class profile of samples.
func (p *Pipeline) Profile(samples []float64, sampleRate int) (chroma.Profile, error) {
	return p.extractor.ExtractSamples(p.fft, samples, sampleRate)
}

// Analyze runs the full read path over samples.
func (p *Pipeline) Analyze(samples []float64, sampleRate int) (Analysis, error) {
	profile, err := p.Profile(samples, sampleRate)
	if err != nil {
		return Analysis{}, err
	}
	probs, err := p.classifier.Probabilities(profile)
	if err != nil {
		return Analysis{}, err
	}
	label, err := chords.Decide(probs)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{Profile: profile, Label: label, Confidence: probs[label.Index()]}, nil
}

// ClassifySamples returns the chord label of samples.
func (p *Pipeline) ClassifySamples(samples []float64, sampleRate int) (chords.Label, error) {
	a, err := p.Analyze(samples, sampleRate)
	if err != nil {
		return "", err
	}
	return a.Label, nil
}
