package profiling

import (
	"fmt"
	"math"
	"time"
)

// PartialWindowPolicy decides what happens to a trailing window shorter
// than the configured length.
type PartialWindowPolicy string

const (
	// PartialDrop ignores the trailing samples.
	PartialDrop PartialWindowPolicy = "drop"
	// PartialInclude analyzes the trailing samples as a short window.
	PartialInclude PartialWindowPolicy = "include"
)

func (p PartialWindowPolicy) valid() bool {
	return p == PartialDrop || p == PartialInclude
}

// Window is a view over [Start, Start+Length) of an audio buffer.
type Window struct {
	Index  int `json:"index"`
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Samples returns the window's slice of pcm without copying.
func (w Window) Samples(pcm []float64) []float64 {
	return pcm[w.Start : w.Start+w.Length]
}

// StartTime returns the window offset at sampleRate.
func (w Window) StartTime(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(w.Start) * time.Second / time.Duration(sampleRate)
}

// SamplesPerWindow converts a window length in milliseconds to samples,
// rounding sampleRate*windowMs/1000 half to even. At 44100 Hz, 1000, 500,
// 200 and 333 ms give 44100, 22050, 8820 and 14685 samples.
func SamplesPerWindow(sampleRate, windowMs int) int {
	return int(math.RoundToEven(float64(sampleRate) * float64(windowMs) / 1000))
}

// Segment splits total samples into consecutive, non-overlapping windows of
// size samples.
func Segment(total, size int, policy PartialWindowPolicy) ([]Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	if total < 0 {
		return nil, fmt.Errorf("negative sample count %d", total)
	}
	if !policy.valid() {
		return nil, fmt.Errorf("unknown partial window policy %q", policy)
	}

	full := total / size
	windows := make([]Window, 0, full+1)
	for i := 0; i < full; i++ {
		windows = append(windows, Window{Index: i, Start: i * size, Length: size})
	}
	if rest := total - full*size; rest > 0 && policy == PartialInclude {
		windows = append(windows, Window{Index: full, Start: full * size, Length: rest})
	}
	return windows, nil
}
