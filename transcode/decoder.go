package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-chords/logging"
)

// ErrDecode is wrapped by every decoding failure: unreadable files, unsupported
// formats and empty streams.
var ErrDecode = errors.New("audio decode failed")

// AudioData is a decoded, mono audio buffer. It is owned by the caller that
// decoded it and is not modified by the analysis pipeline.
type AudioData struct {
	PCM            []float64     `json:"-"` // mono samples in [-1, 1]
	SampleRate     int           `json:"sample_rate"`
	SourceChannels int           `json:"source_channels"` // channel count before downmixing
	Duration       time.Duration `json:"duration"`
	Source         string        `json:"source,omitempty"`
}

// NewAudioData wraps already decoded mono samples.
func NewAudioData(pcm []float64, sampleRate int) *AudioData {
	return &AudioData{
		PCM:            pcm,
		SampleRate:     sampleRate,
		SourceChannels: 1,
		Duration:       samplesDuration(len(pcm), sampleRate),
	}
}

func samplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate" yaml:"target_sample_rate"` // 0 keeps the file's rate
	MaxDuration      time.Duration `json:"max_duration" yaml:"max_duration"`
	FFmpegPath       string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path" yaml:"ffprobe_path"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	DisableFFmpeg    bool          `json:"disable_ffmpeg" yaml:"disable_ffmpeg"` // WAV-only operation
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 0,
		MaxDuration:      0,
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Timeout:          60 * time.Second,
	}
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
}

// Decoder turns audio files into mono AudioData. PCM WAV files are decoded
// in-process; everything else goes through ffmpeg.
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_decoder",
		}),
	}
}

// DecodeFile decodes an audio file and returns mono PCM data
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "DecodeFile",
		"filename": filename,
	})

	logger.Debug("Starting audio file decode")

	if strings.EqualFold(filepath.Ext(filename), ".wav") {
		audio, err := ReadWAVFile(filename)
		switch {
		case err == nil && (d.config.TargetSampleRate == 0 || d.config.TargetSampleRate == audio.SampleRate):
			d.trim(audio)
			logger.Debug("Decoded WAV natively", logging.Fields{
				"sample_rate": audio.SampleRate,
				"samples":     len(audio.PCM),
				"channels":    audio.SourceChannels,
			})
			return audio, nil
		case err == nil:
			logger.Debug("Resampling WAV", logging.Fields{
				"sample_rate":        audio.SampleRate,
				"target_sample_rate": d.config.TargetSampleRate,
			})
			if err := resampleTo(audio, d.config.TargetSampleRate); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filename, err)
			}
			d.trim(audio)
			return audio, nil
		case errors.Is(err, errUnsupportedWAV) && !d.config.DisableFFmpeg:
			logger.Debug("WAV encoding not handled natively, using ffmpeg", logging.Fields{
				"reason": err.Error(),
			})
		default:
			return nil, err
		}
	}

	if d.config.DisableFFmpeg {
		return nil, fmt.Errorf("%w: %s: only PCM WAV is supported without ffmpeg", ErrDecode, filename)
	}

	metadata, err := d.probeAudioFile(ctx, filename)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filename, err)
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	return d.decodeFileWithFFmpeg(ctx, filename, metadata)
}

func (d *Decoder) trim(audio *AudioData) {
	if d.config.MaxDuration <= 0 {
		return
	}
	limit := int(d.config.MaxDuration.Seconds() * float64(audio.SampleRate))
	if limit < len(audio.PCM) {
		audio.PCM = audio.PCM[:limit]
		audio.Duration = samplesDuration(limit, audio.SampleRate)
	}
}

func (d *Decoder) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// probeAudioFile uses ffprobe to get audio information from a file
func (d *Decoder) probeAudioFile(ctx context.Context, filename string) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		filename,
	}

	ctx, cancel := d.commandContext(ctx)
	defer cancel()

	output, err := exec.CommandContext(ctx, d.config.FFprobePath, args...).Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
	}, nil
}

// buildFFmpegArgs builds the ffmpeg arguments for a mono float64 decode.
func (d *Decoder) buildFFmpegArgs(filename string, sampleRate int) []string {
	args := []string{
		"-v", "error",
		"-i", filename,
		"-map", "0:a:0",
		"-vn",
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
	}
	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}
	return append(args, "pipe:1")
}

// decodeFileWithFFmpeg performs the actual audio decoding from a file
func (d *Decoder) decodeFileWithFFmpeg(ctx context.Context, filename string, metadata *AudioMetadata) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "decodeFileWithFFmpeg",
		"filename": filename,
	})

	sampleRate := metadata.SampleRate
	if d.config.TargetSampleRate > 0 {
		sampleRate = d.config.TargetSampleRate
	}
	args := d.buildFFmpegArgs(filename, sampleRate)

	ctx, cancel := d.commandContext(ctx)
	defer cancel()

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	startTime := time.Now()
	output, err := exec.CommandContext(ctx, d.config.FFmpegPath, args...).Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrDecode, err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s: no audio samples decoded", ErrDecode, filename)
	}

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_samples": len(samples),
		"sample_rate":    sampleRate,
		"decode_time":    time.Since(startTime).Seconds(),
	})

	return &AudioData{
		PCM:            samples,
		SampleRate:     sampleRate,
		SourceChannels: metadata.Channels,
		Duration:       samplesDuration(len(samples), sampleRate),
		Source:         filename,
	}, nil
}

// bytesToFloat64 converts raw float64 little-endian bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		data = data[:len(data)-(len(data)%8)]
	}

	if len(data) == 0 {
		return nil
	}

	samples := make([]float64, len(data)/8)
	for i := range samples {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate < 0 {
		return fmt.Errorf("target sample rate must not be negative: %d", d.config.TargetSampleRate)
	}
	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", d.config.Timeout)
	}
	if d.config.DisableFFmpeg {
		return nil
	}
	if _, err := exec.LookPath(d.config.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if _, err := exec.LookPath(d.config.FFprobePath); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}
	return nil
}
