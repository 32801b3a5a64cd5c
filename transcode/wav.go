package transcode

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// errUnsupportedWAV marks valid WAV files whose encoding is left to ffmpeg.
var errUnsupportedWAV = errors.New("unsupported wav encoding")

// ReadWAVFile decodes a PCM WAV file into mono AudioData.
func ReadWAVFile(path string) (*AudioData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	audioData, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	audioData.Source = path
	return audioData, nil
}

// ReadWAV decodes 16, 24 or 32 bit integer PCM WAV data. Multi-channel input
// is downmixed by averaging the channels of each frame.
func ReadWAV(r io.ReadSeeker) (*AudioData, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", ErrDecode)
	}

	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: %w: format tag %d", ErrDecode, errUnsupportedWAV, dec.WavAudioFormat)
	}
	switch dec.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %w: %d-bit samples", ErrDecode, errUnsupportedWAV, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrDecode, channels)
	}
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: no audio samples", ErrDecode)
	}

	scale := math.Ldexp(1, int(dec.BitDepth)-1)
	frames := len(buf.Data) / channels
	pcm := make([]float64, frames)
	for i := range pcm {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		pcm[i] = sum / float64(channels) / scale
	}

	sampleRate := int(dec.SampleRate)
	return &AudioData{
		PCM:            pcm,
		SampleRate:     sampleRate,
		SourceChannels: channels,
		Duration:       samplesDuration(frames, sampleRate),
	}, nil
}

// WriteWAV encodes mono samples in [-1, 1] as integer PCM. Values outside the
// range are clipped.
func WriteWAV(w io.WriteSeeker, samples []float64, sampleRate, bitDepth int) error {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	maxValue := math.Ldexp(1, bitDepth-1) - 1
	data := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * maxValue))
	}

	enc := wav.NewEncoder(w, sampleRate, bitDepth, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	return enc.Close()
}

// WriteWAVFile creates path and writes samples to it as 16-bit PCM.
func WriteWAVFile(path string, samples []float64, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteWAV(f, samples, sampleRate, 16)
}
