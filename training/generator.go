package training

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/algorithms/spectral"
	"github.com/RyanBlaney/sonido-chords/algorithms/windowing"
	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// DefaultTableName is the generated table written inside the clip folder.
const DefaultTableName = "trainData.csv"

// ErrDataGeneration is wrapped by every per-clip failure.
var ErrDataGeneration = errors.New("training data generation failed")

// FailurePolicy decides what a clip failure does to the scan.
type FailurePolicy string

const (
	// FailSkip records the failure and continues with the next clip.
	FailSkip FailurePolicy = "skip"
	// FailAbort stops the scan on the first failure.
	FailAbort FailurePolicy = "abort"
)

// ClipError describes a clip that could not be turned into a row.
type ClipError struct {
	Path string
	Err  error
}

func (e *ClipError) Error() string {
	return fmt.Sprintf("clip %s: %v", e.Path, e.Err)
}

func (e *ClipError) Unwrap() []error {
	return []error{ErrDataGeneration, e.Err}
}

// GeneratorConfig holds training data generation configuration
type GeneratorConfig struct {
	SourceDir     string        `json:"source_dir" yaml:"source_dir"`
	OutputPath    string        `json:"output_path" yaml:"output_path"` // defaults to <SourceDir>/trainData.csv
	Extensions    []string      `json:"extensions" yaml:"extensions"`
	Workers       int           `json:"workers" yaml:"workers"`
	FailurePolicy FailurePolicy `json:"failure_policy" yaml:"failure_policy"`

	// AnalysisWindow should match the profiler's so rows and live windows
	// see the same spectrum.
	AnalysisWindow windowing.Type `json:"analysis_window" yaml:"analysis_window"`
}

// DefaultGeneratorConfig returns default generator configuration
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		Extensions:    []string{".wav", ".mp3", ".flac", ".ogg", ".m4a"},
		Workers:       0,
		FailurePolicy: FailSkip,

		AnalysisWindow: windowing.Rectangular,
	}
}

func (c *GeneratorConfig) outputPath() string {
	if c.OutputPath != "" {
		return c.OutputPath
	}
	return filepath.Join(c.SourceDir, DefaultTableName)
}

// GenerateReport summarizes one Generate call.
type GenerateReport struct {
	OutputPath string
	Rows       int
	Labels     map[chords.Label]int
	Skipped    []*ClipError
}

// Generator turns a folder of labeled chord clips into a training table.
type Generator struct {
	config  *GeneratorConfig
	decoder *transcode.Decoder
	fft     *spectral.FFT
	logger  logging.Logger
}

// NewGenerator creates a generator that decodes clips with decoder.
func NewGenerator(config *GeneratorConfig, decoder *transcode.Decoder) *Generator {
	if config == nil {
		config = DefaultGeneratorConfig()
	}
	if decoder == nil {
		decoder = transcode.NewDecoder(nil)
	}
	return &Generator{
		config:  config,
		decoder: decoder,
		fft:     spectral.NewFFT(),
		logger: logging.WithFields(logging.Fields{
			"component": "train_data_generator",
		}),
	}
}

// SourceDir returns the scanned clip folder.
func (g *Generator) SourceDir() string {
	return g.config.SourceDir
}

// LabelForPath derives the chord label of a clip. The parent directory name
// wins when it is a vocabulary label; otherwise the file name prefix before
// the first '_', '-', ' ' or '.' is used ("Em_take3.wav" is Em).
func LabelForPath(path string) (chords.Label, error) {
	if l, err := chords.ParseLabel(filepath.Base(filepath.Dir(path))); err == nil {
		return l, nil
	}
	base := filepath.Base(path)
	if i := strings.IndexAny(base, "_- ."); i >= 0 {
		base = base[:i]
	}
	l, err := chords.ParseLabel(base)
	if err != nil {
		return "", fmt.Errorf("no chord label in %q", path)
	}
	return l, nil
}

// Generate scans SourceDir recursively, computes one whole-clip pitch class
// profile per clip and writes the rows, ordered by path, to the output
// table. The table is replaced on every run.
func (g *Generator) Generate(ctx context.Context) (*GenerateReport, error) {
	logger := g.logger.WithContext(ctx).WithFields(logging.Fields{
		"function":   "Generate",
		"source_dir": g.config.SourceDir,
	})
	if g.config.SourceDir == "" {
		return nil, fmt.Errorf("%w: no source directory configured", ErrDataGeneration)
	}
	if g.config.FailurePolicy != FailSkip && g.config.FailurePolicy != FailAbort {
		return nil, fmt.Errorf("unknown failure policy %q", g.config.FailurePolicy)
	}
	extractor, err := chroma.NewWindowedExtractor(g.config.AnalysisWindow)
	if err != nil {
		return nil, err
	}

	clips, err := g.scan()
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrDataGeneration, g.config.SourceDir, err)
	}
	logger.Debug("Found clips", logging.Fields{"clips": len(clips)})
	start := time.Now()

	rows := make([]Example, len(clips))
	failures := make([]*ClipError, len(clips))

	workers := g.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, clip := range clips {
		if egctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			row, err := g.featurize(egctx, extractor, clip)
			if err != nil {
				clipErr := &ClipError{Path: clip, Err: err}
				if g.config.FailurePolicy == FailAbort {
					return clipErr
				}
				failures[i] = clipErr
				return nil
			}
			rows[i] = row
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logger.Error(err, "Training data generation aborted")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &GenerateReport{
		OutputPath: g.config.outputPath(),
		Labels:     make(map[chords.Label]int),
	}
	kept := rows[:0]
	for i := range rows {
		if failures[i] != nil {
			report.Skipped = append(report.Skipped, failures[i])
			logger.Warn("Skipping clip", logging.Fields{
				"path":  failures[i].Path,
				"error": failures[i].Err.Error(),
			})
			continue
		}
		kept = append(kept, rows[i])
		report.Labels[rows[i].Label]++
	}
	report.Rows = len(kept)

	if err := WriteTableFile(report.OutputPath, kept); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrDataGeneration, report.OutputPath, err)
	}

	logger.Info("Training data generated", logging.Fields{
		"output":   report.OutputPath,
		"rows":     report.Rows,
		"skipped":  len(report.Skipped),
		"duration": time.Since(start).Seconds(),
	})
	return report, nil
}

// scan lists candidate clips in lexical path order.
func (g *Generator) scan() ([]string, error) {
	output, _ := filepath.Abs(g.config.outputPath())
	var clips []string
	err := filepath.WalkDir(g.config.SourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == output {
			return nil
		}
		if !slices.ContainsFunc(g.config.Extensions, func(ext string) bool {
			return strings.EqualFold(ext, filepath.Ext(path))
		}) {
			return nil
		}
		clips = append(clips, path)
		return nil
	})
	return clips, err
}

func (g *Generator) featurize(ctx context.Context, extractor *chroma.Extractor, path string) (Example, error) {
	label, err := LabelForPath(path)
	if err != nil {
		return Example{}, err
	}
	audio, err := g.decoder.DecodeFile(ctx, path)
	if err != nil {
		return Example{}, err
	}
	profile, err := extractor.ExtractSamples(g.fft, audio.PCM, audio.SampleRate)
	if err != nil {
		return Example{}, err
	}
	return Example{Profile: profile, Label: label}, nil
}
