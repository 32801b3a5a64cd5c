package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/model"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// ErrTrainingFailure is wrapped by every error that aborts a training run.
var ErrTrainingFailure = errors.New("model training failed")

// Step descriptions reported while training.
const (
	StepStarting   = "Starting training..."
	StepGenerating = "Generating training data..."
	StepReading    = "Reading data..."
	StepSearching  = "Running AutoML..."
	StepEvaluating = "Evaluating model..."
	StepCrossEval  = "Cross evaluating model..."
	StepSaving     = "Saving model..."
	StepFinished   = "Finished creating model"
)

// maxRunningReport caps time-based progress until the model is saved.
const maxRunningReport = 99

// ProgressFunc receives the overall percentage and the current step.
type ProgressFunc func(percent int, step string)

// TrainRequest names the inputs of one training run.
type TrainRequest struct {
	// OriginalTrainPath and OriginalTestPath are the shipped tables. The
	// test table is held out for the validation log loss.
	OriginalTrainPath string
	OriginalTestPath  string
	// UserDataDir holds user clips. Its generated table and any other
	// *.csv tables directly inside it are added to the training rows.
	UserDataDir    string
	TimeoutSeconds int
}

func (r TrainRequest) validate() error {
	if r.OriginalTrainPath == "" {
		return errors.New("no training table")
	}
	if r.OriginalTestPath == "" {
		return errors.New("no test table")
	}
	if r.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d seconds", r.TimeoutSeconds)
	}
	return nil
}

// TrainerConfig holds trainer configuration
type TrainerConfig struct {
	TickInterval time.Duration    `json:"tick_interval" yaml:"tick_interval"`
	Generator    *GeneratorConfig `json:"generator" yaml:"generator"` // SourceDir comes from the request
}

// DefaultTrainerConfig returns default trainer configuration
func DefaultTrainerConfig() *TrainerConfig {
	return &TrainerConfig{
		TickInterval: time.Second,
		Generator:    DefaultGeneratorConfig(),
	}
}

// Trainer runs the generate, read, search, evaluate and save sequence and
// persists the resulting artifact.
type Trainer struct {
	config   *TrainerConfig
	searcher Searcher
	store    *model.Store
	decoder  *transcode.Decoder
	now      func() time.Time
	logger   logging.Logger
}

// NewTrainer creates a trainer that saves artifacts into store.
func NewTrainer(config *TrainerConfig, searcher Searcher, store *model.Store, decoder *transcode.Decoder) *Trainer {
	if config == nil {
		config = DefaultTrainerConfig()
	}
	if config.Generator == nil {
		config.Generator = DefaultGeneratorConfig()
	}
	if searcher == nil {
		searcher = NewRandomSearch(nil)
	}
	return &Trainer{
		config:   config,
		searcher: searcher,
		store:    store,
		decoder:  decoder,
		now:      time.Now,
		logger: logging.WithFields(logging.Fields{
			"component": "model_trainer",
		}),
	}
}

// Train runs one training session. onProgress may be nil. On success the
// last report is (100, StepFinished) and the saved artifact is returned.
// On failure nothing is saved and no report follows the failing step.
func (t *Trainer) Train(ctx context.Context, req TrainRequest, onProgress ProgressFunc) (art *model.Artifact, err error) {
	logger := t.logger.WithContext(ctx).WithFields(logging.Fields{
		"function":        "Train",
		"timeout_seconds": req.TimeoutSeconds,
	})
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrainingFailure, err)
	}
	if t.store == nil {
		return nil, fmt.Errorf("%w: no artifact store", ErrTrainingFailure)
	}

	reporter := &progressReporter{fn: onProgress}
	start := t.now()
	stopTicker := t.startTicker(reporter, start, time.Duration(req.TimeoutSeconds)*time.Second)
	step := StepStarting
	defer func() {
		if err != nil {
			reporter.close()
			logger.Error(err, "Training failed", logging.Fields{"step": step})
			err = fmt.Errorf("%w: %s: %w", ErrTrainingFailure, step, err)
		}
		stopTicker()
	}()

	enter := func(s string) error {
		step = s
		reporter.enter(s)
		return ctx.Err()
	}

	if err := enter(StepStarting); err != nil {
		return nil, err
	}

	if err := enter(StepGenerating); err != nil {
		return nil, err
	}
	if req.UserDataDir != "" {
		cfg := *t.config.Generator
		cfg.SourceDir = req.UserDataDir
		cfg.OutputPath = ""
		report, err := NewGenerator(&cfg, t.decoder).Generate(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("Generated user training data", logging.Fields{
			"rows":    report.Rows,
			"skipped": len(report.Skipped),
		})
	}

	if err := enter(StepReading); err != nil {
		return nil, err
	}
	paths := []string{req.OriginalTrainPath}
	if req.UserDataDir != "" {
		tables, err := ListTables(req.UserDataDir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, tables...)
	}
	trainRows, err := ReadTables(paths...)
	if err != nil {
		return nil, err
	}
	testRows, err := ReadTableFile(req.OriginalTestPath)
	if err != nil {
		return nil, err
	}
	if len(trainRows) == 0 || len(testRows) == 0 {
		return nil, fmt.Errorf("need training and test rows, got %d and %d", len(trainRows), len(testRows))
	}

	if err := enter(StepSearching); err != nil {
		return nil, err
	}
	result, err := t.searcher.Search(ctx, trainRows, time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, err
	}

	if err := enter(StepEvaluating); err != nil {
		return nil, err
	}
	testX, testY := Features(testRows)
	probs, err := model.PredictAll(result.Best, testX)
	if err != nil {
		return nil, err
	}
	metrics, err := stats.Evaluate(probs, testY, chords.NumLabels)
	if err != nil {
		return nil, err
	}

	if err := enter(StepCrossEval); err != nil {
		return nil, err
	}
	trainX, trainY := Features(trainRows)
	probs, err = model.PredictAll(result.Best, trainX)
	if err != nil {
		return nil, err
	}
	crossLoss, err := stats.LogLoss(probs, trainY)
	if err != nil {
		return nil, err
	}

	if err := enter(StepSaving); err != nil {
		return nil, err
	}
	art = &model.Artifact{
		Metadata: model.Metadata{
			CreatedAt:              start.UTC(),
			TrainingTimeoutSeconds: req.TimeoutSeconds,
			ValidationLogLoss:      metrics.LogLoss,
			CrossValidationLogLoss: crossLoss,
			MicroAccuracy:          metrics.MicroAccuracy,
			MacroAccuracy:          metrics.MacroAccuracy,
			TrainingRows:           len(trainRows),
			Trainer:                result.Best.Describe(),
			RunID:                  uuid.NewString(),
		},
		Predictor: result.Best,
	}
	if _, err := t.store.Save(ctx, art); err != nil {
		return nil, err
	}

	stopTicker()
	reporter.finish(StepFinished)

	logger.Info("Model created", logging.Fields{
		"name":               art.Name,
		"validation_logloss": metrics.LogLoss,
		"cross_logloss":      crossLoss,
		"micro_accuracy":     metrics.MicroAccuracy,
		"trials":             len(result.Trials),
		"duration":           t.now().Sub(start).Seconds(),
	})
	return art, nil
}

// startTicker reports elapsed time against timeout as a percentage, capped
// at 99, every TickInterval. The returned stop function may be called more
// than once and returns after the last tick has been delivered.
func (t *Trainer) startTicker(r *progressReporter, start time.Time, timeout time.Duration) (stop func()) {
	interval := t.config.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				r.tick(elapsedPercent(t.now().Sub(start), timeout))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
		})
	}
}

// elapsedPercent returns floor(elapsed/timeout*100) clamped to [0, 99].
func elapsedPercent(elapsed, timeout time.Duration) int {
	if timeout <= 0 || elapsed <= 0 {
		return 0
	}
	p := int(math.Floor(elapsed.Seconds() / timeout.Seconds() * 100))
	return min(p, maxRunningReport)
}

// progressReporter serializes training reports. Percentages never
// decrease, and nothing is delivered once the reporter is closed.
type progressReporter struct {
	mu      sync.Mutex
	fn      ProgressFunc
	percent int
	step    string
	closed  bool
}

func (r *progressReporter) emit(percent int) {
	if r.fn == nil || r.closed {
		return
	}
	r.percent = max(r.percent, percent)
	r.fn(r.percent, r.step)
}

func (r *progressReporter) enter(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = step
	r.emit(r.percent)
}

func (r *progressReporter) tick(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit(percent)
}

func (r *progressReporter) finish(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = step
	r.emit(100)
	r.closed = true
}

func (r *progressReporter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
