// Package profiling labels long recordings window by window.
package profiling

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/algorithms/windowing"
	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// SilentWindowPolicy decides what happens to windows without energy.
type SilentWindowPolicy string

const (
	// SilentFail aborts the run on the first silent window.
	SilentFail SilentWindowPolicy = "fail"
	// SilentCarry gives a silent window the label of the closest earlier
	// window, or the closest later one at the start of the recording.
	SilentCarry SilentWindowPolicy = "carry"
)

// ProgressFunc receives the percentage of windows processed.
type ProgressFunc func(percent int)

// ProfilerConfig holds long-audio profiling configuration
type ProfilerConfig struct {
	WindowMs      int                 `json:"window_ms" yaml:"window_ms"`
	Workers       int                 `json:"workers" yaml:"workers"` // 0 uses GOMAXPROCS
	PartialWindow PartialWindowPolicy `json:"partial_window" yaml:"partial_window"`
	SilentWindow  SilentWindowPolicy  `json:"silent_window" yaml:"silent_window"`

	// AnalysisWindow is applied to each window's samples before the FFT.
	AnalysisWindow windowing.Type `json:"analysis_window" yaml:"analysis_window"`
}

// DefaultProfilerConfig returns default profiling configuration
func DefaultProfilerConfig() *ProfilerConfig {
	return &ProfilerConfig{
		WindowMs:      1000,
		Workers:       0,
		PartialWindow: PartialDrop,
		SilentWindow:  SilentFail,

		AnalysisWindow: windowing.Rectangular,
	}
}

// Validate checks the configuration values.
func (c *ProfilerConfig) Validate() error {
	if c.WindowMs <= 0 {
		return fmt.Errorf("window_ms must be positive, got %d", c.WindowMs)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if !c.PartialWindow.valid() {
		return fmt.Errorf("unknown partial_window policy %q", c.PartialWindow)
	}
	if c.SilentWindow != SilentFail && c.SilentWindow != SilentCarry {
		return fmt.Errorf("unknown silent_window policy %q", c.SilentWindow)
	}
	if !c.AnalysisWindow.Valid() {
		return fmt.Errorf("unknown analysis_window %q", c.AnalysisWindow)
	}
	return nil
}

// WindowResult is the analysis of one window.
type WindowResult struct {
	Window
	StartTime  time.Duration `json:"start_time"`
	Label      chords.Label  `json:"label"`
	Confidence float64       `json:"confidence"`
	Silent     bool          `json:"silent,omitempty"` // label carried from a neighbor
}

// ProfileResult is the time-ordered chord sequence of a recording.
type ProfileResult struct {
	Source           string          `json:"source,omitempty"`
	Tags             *transcode.Tags `json:"tags,omitempty"`
	SampleRate       int             `json:"sample_rate"`
	WindowMs         int             `json:"window_ms"`
	SamplesPerWindow int             `json:"samples_per_window"`
	Windows          []WindowResult  `json:"windows"`
}

// Labels returns the window labels in time order.
func (r *ProfileResult) Labels() []chords.Label {
	out := make([]chords.Label, len(r.Windows))
	for i, w := range r.Windows {
		out[i] = w.Label
	}
	return out
}

// Profiler runs the read path over every window of a recording.
type Profiler struct {
	config   *ProfilerConfig
	pipeline *Pipeline
	decoder  *transcode.Decoder
	logger   logging.Logger
}

// NewProfiler creates a profiler. decoder is only needed by ProfileFile and
// may be nil.
func NewProfiler(config *ProfilerConfig, classifier *chords.Classifier, decoder *transcode.Decoder) *Profiler {
	if config == nil {
		config = DefaultProfilerConfig()
	}
	pipeline := NewPipeline(classifier)
	// an unknown window is rejected by Validate before any window runs
	if extractor, err := chroma.NewWindowedExtractor(config.AnalysisWindow); err == nil {
		pipeline.extractor = extractor
	}
	return &Profiler{
		config:   config,
		pipeline: pipeline,
		decoder:  decoder,
		logger: logging.WithFields(logging.Fields{
			"component": "long_audio_profiler",
		}),
	}
}

// Pipeline returns the single-window read path the profiler uses.
func (p *Profiler) Pipeline() *Pipeline {
	return p.pipeline
}

// ProfileLongAudio returns one chord label per window of audio, in time
// order. windowMs <= 0 uses the configured window length.
func (p *Profiler) ProfileLongAudio(ctx context.Context, audio *transcode.AudioData, windowMs int, onProgress ProgressFunc) ([]chords.Label, error) {
	result, err := p.Profile(ctx, audio, windowMs, onProgress)
	if err != nil {
		return nil, err
	}
	return result.Labels(), nil
}

// ProfileFile decodes path and profiles it.
func (p *Profiler) ProfileFile(ctx context.Context, path string, windowMs int, onProgress ProgressFunc) (*ProfileResult, error) {
	if p.decoder == nil {
		return nil, errors.New("profiler has no decoder")
	}
	audio, err := p.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, err
	}
	result, err := p.Profile(ctx, audio, windowMs, onProgress)
	if err != nil {
		return nil, err
	}
	tags, err := transcode.ReadTags(path)
	switch {
	case err == nil && !tags.Empty():
		result.Tags = tags
	case err != nil && !errors.Is(err, transcode.ErrNoTags):
		p.logger.Warn("Ignoring unreadable tags", logging.Fields{"path": path, "error": err.Error()})
	}
	return result, nil
}

// Profile analyzes every window of audio. Windows run on a bounded worker
// pool; results keep window order and progress only ever increases,
// reaching 100 once after the last window. The first failing window cancels
// the rest and no progress is reported after it.
func (p *Profiler) Profile(ctx context.Context, audio *transcode.AudioData, windowMs int, onProgress ProgressFunc) (*ProfileResult, error) {
	if err := p.config.Validate(); err != nil {
		return nil, err
	}
	if audio == nil || len(audio.PCM) == 0 {
		return nil, fmt.Errorf("%w: no samples to profile", transcode.ErrDecode)
	}
	if windowMs <= 0 {
		windowMs = p.config.WindowMs
	}

	size := SamplesPerWindow(audio.SampleRate, windowMs)
	windows, err := Segment(len(audio.PCM), size, p.config.PartialWindow)
	if err != nil {
		return nil, err
	}

	logger := p.logger.WithContext(ctx).WithFields(logging.Fields{
		"function":           "Profile",
		"source":             audio.Source,
		"window_ms":          windowMs,
		"samples_per_window": size,
		"windows":            len(windows),
		"analysis_window":    p.pipeline.extractor.Window(),
	})
	logger.Debug("Starting long audio profile")
	start := time.Now()

	result := &ProfileResult{
		Source:           audio.Source,
		SampleRate:       audio.SampleRate,
		WindowMs:         windowMs,
		SamplesPerWindow: size,
		Windows:          make([]WindowResult, len(windows)),
	}

	progress := &progressTracker{total: len(windows), report: onProgress}
	workers := p.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, w := range windows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.analyzeWindow(audio, w)
			if err != nil {
				progress.fail()
				return err
			}
			result.Windows[w.Index] = res
			progress.done()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error(err, "Long audio profile failed")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := carrySilentLabels(result.Windows); err != nil {
		return nil, err
	}
	progress.complete()

	logger.Info("Long audio profile completed", logging.Fields{
		"duration": time.Since(start).Seconds(),
	})
	return result, nil
}

func (p *Profiler) analyzeWindow(audio *transcode.AudioData, w Window) (WindowResult, error) {
	res := WindowResult{Window: w, StartTime: w.StartTime(audio.SampleRate)}
	a, err := p.pipeline.Analyze(w.Samples(audio.PCM), audio.SampleRate)
	switch {
	case err == nil:
		res.Label = a.Label
		res.Confidence = a.Confidence
		return res, nil
	case errors.Is(err, chroma.ErrSilentSpectrum) && p.config.SilentWindow == SilentCarry:
		res.Silent = true
		return res, nil
	default:
		return res, fmt.Errorf("window %d at %v: %w", w.Index, res.StartTime, err)
	}
}

// carrySilentLabels fills silent windows from their neighbors.
func carrySilentLabels(windows []WindowResult) error {
	last := chords.Label("")
	for i := range windows {
		if !windows[i].Silent {
			last = windows[i].Label
			continue
		}
		windows[i].Label = last
	}
	if len(windows) == 0 || windows[0].Label != "" {
		return nil
	}

	next := chords.Label("")
	for i := len(windows) - 1; i >= 0; i-- {
		if windows[i].Label != "" {
			next = windows[i].Label
			continue
		}
		windows[i].Label = next
	}
	if next == "" {
		return fmt.Errorf("every window is silent: %w", chroma.ErrSilentSpectrum)
	}
	return nil
}

// progressTracker turns window completions into percentages. Reports are
// serialized, so the sequence a callback sees never decreases. 100 is held
// back until complete is called.
type progressTracker struct {
	mu       sync.Mutex
	total    int
	finished int
	failed   bool
	report   ProgressFunc
}

func (t *progressTracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed {
		return
	}
	t.finished++
	if t.report != nil && t.finished < t.total {
		t.report(t.finished * 100 / t.total)
	}
}

func (t *progressTracker) fail() {
	t.mu.Lock()
	t.failed = true
	t.mu.Unlock()
}

func (t *progressTracker) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.report != nil && !t.failed {
		t.report(100)
	}
}
