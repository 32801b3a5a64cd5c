package transcode

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from one rate to another.
func Resample(pcm []float64, from, to int) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", from, to)
	}
	if from == to || len(pcm) == 0 {
		return pcm, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	out, err := r.Process(pcm)
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d: %w", from, to, err)
	}
	return out, nil
}

// resampleTo converts audio to rate in place.
func resampleTo(audio *AudioData, rate int) error {
	pcm, err := Resample(audio.PCM, audio.SampleRate, rate)
	if err != nil {
		return err
	}
	audio.PCM = pcm
	audio.SampleRate = rate
	audio.Duration = samplesDuration(len(pcm), rate)
	return nil
}
