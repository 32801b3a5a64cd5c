// Package config loads the YAML configuration shared by the chords command
// line tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/profiling"
	"github.com/RyanBlaney/sonido-chords/training"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// Environment overrides.
const (
	EnvConfigPath = "CHORDS_CONFIG"
	EnvModelDir   = "CHORDS_MODEL_DIR"
)

// Config is the root configuration.
type Config struct {
	Logging   LoggingConfig             `yaml:"logging"`
	Audio     *transcode.DecoderConfig  `yaml:"audio"`
	Profiling *profiling.ProfilerConfig `yaml:"profiling"`
	Training  TrainingConfig            `yaml:"training"`
	Models    ModelsConfig              `yaml:"models"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Color *bool  `yaml:"color,omitempty"` // nil detects a terminal
}

// TrainingConfig locates the training tables and tunes the trainer.
type TrainingConfig struct {
	OriginalTrainPath string                    `yaml:"original_train_path"`
	OriginalTestPath  string                    `yaml:"original_test_path"`
	UserDataDir       string                    `yaml:"user_data_dir"`
	TimeoutSeconds    int                       `yaml:"timeout_seconds"`
	TickInterval      time.Duration             `yaml:"tick_interval"`
	Generator         *training.GeneratorConfig `yaml:"generator"`
	Search            *training.SearchConfig    `yaml:"search"`
}

// ModelsConfig locates artifacts and the active model registry.
type ModelsConfig struct {
	// Dir is the local artifact directory, used when S3 is not configured.
	Dir         string    `yaml:"dir"`
	RegistryDir string    `yaml:"registry_dir"`
	S3          *S3Config `yaml:"s3,omitempty"`
}

// S3Config stores artifacts in a bucket instead of Dir.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
}

// DefaultConfig returns the configuration used when no file is given.
// Paths are relative to the data directory ./chords-data.
func DefaultConfig() *Config {
	const dataDir = "chords-data"
	return &Config{
		Logging:   LoggingConfig{Level: "info"},
		Audio:     transcode.DefaultDecoderConfig(),
		Profiling: profiling.DefaultProfilerConfig(),
		Training: TrainingConfig{
			OriginalTrainPath: filepath.Join(dataDir, "train.csv"),
			OriginalTestPath:  filepath.Join(dataDir, "test.csv"),
			UserDataDir:       filepath.Join(dataDir, "stored"),
			TimeoutSeconds:    60,
			TickInterval:      time.Second,
			Generator:         training.DefaultGeneratorConfig(),
			Search:            training.DefaultSearchConfig(),
		},
		Models: ModelsConfig{
			Dir:         filepath.Join(dataDir, "models"),
			RegistryDir: filepath.Join(dataDir, "registry"),
		},
	}
}

// Load reads path over DefaultConfig. An empty path falls back to
// $CHORDS_CONFIG; with neither set the defaults are returned.
// $CHORDS_MODEL_DIR overrides models.dir.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if dir := os.Getenv(EnvModelDir); dir != "" {
		cfg.Models.Dir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Audio == nil {
		errs = append(errs, errors.New("audio: section is empty"))
	} else {
		if c.Audio.TargetSampleRate < 0 {
			errs = append(errs, fmt.Errorf("audio: negative target_sample_rate %d", c.Audio.TargetSampleRate))
		}
		if c.Audio.MaxDuration < 0 || c.Audio.Timeout < 0 {
			errs = append(errs, errors.New("audio: durations must not be negative"))
		}
	}
	if c.Profiling == nil {
		errs = append(errs, errors.New("profiling: section is empty"))
	} else if err := c.Profiling.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("profiling: %w", err))
	}

	t := c.Training
	if t.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("training: timeout_seconds must be positive, got %d", t.TimeoutSeconds))
	}
	if t.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("training: negative tick_interval %s", t.TickInterval))
	}
	if t.Generator == nil {
		errs = append(errs, errors.New("training: generator section is empty"))
	} else if p := t.Generator.FailurePolicy; p != training.FailSkip && p != training.FailAbort {
		errs = append(errs, fmt.Errorf("training: unknown failure_policy %q", p))
	} else if c.Profiling != nil && t.Generator.AnalysisWindow != c.Profiling.AnalysisWindow {
		// rows must be featurized the way live windows are
		errs = append(errs, fmt.Errorf("training: generator analysis_window %q differs from profiling analysis_window %q",
			t.Generator.AnalysisWindow, c.Profiling.AnalysisWindow))
	}
	if t.Search == nil {
		errs = append(errs, errors.New("training: search section is empty"))
	} else if f := t.Search.HoldoutFraction; f < 0 || f >= 1 {
		errs = append(errs, fmt.Errorf("training: holdout_fraction %g outside [0, 1)", f))
	}

	if c.Models.S3 == nil && c.Models.Dir == "" {
		errs = append(errs, errors.New("models: dir or s3 is required"))
	}
	if c.Models.S3 != nil && c.Models.S3.Bucket == "" {
		errs = append(errs, errors.New("models: s3.bucket is required"))
	}
	if c.Models.RegistryDir == "" {
		errs = append(errs, errors.New("models: registry_dir is required"))
	}
	return errors.Join(errs...)
}

// TrainRequest builds the trainer input from the training section.
func (c *Config) TrainRequest() training.TrainRequest {
	return training.TrainRequest{
		OriginalTrainPath: c.Training.OriginalTrainPath,
		OriginalTestPath:  c.Training.OriginalTestPath,
		UserDataDir:       c.Training.UserDataDir,
		TimeoutSeconds:    c.Training.TimeoutSeconds,
	}
}

// TrainerConfig builds the trainer configuration from the training section.
func (c *Config) TrainerConfig() *training.TrainerConfig {
	return &training.TrainerConfig{
		TickInterval: c.Training.TickInterval,
		Generator:    c.Training.Generator,
	}
}
