package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-chords/config"
	"github.com/RyanBlaney/sonido-chords/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chords",
	Short: "Guitar chord recognition from recorded audio",
	Long: `chords - identify the guitar chords sounding in a recording.

Audio is cut into fixed-length windows; every window is reduced to a
12-bin pitch class profile and classified by the active model.

The chord vocabulary is C, D, Dm, E, Em, F, G, A, Am and Bm.

Configuration is read from --config, or $CHORDS_CONFIG when the flag is
not given. $CHORDS_MODEL_DIR overrides the artifact directory.

Examples:
  # Chord timeline of a song, half-second windows
  chords profile song.mp3 --window-ms 500

  # Fix window 12 and retrain with the correction included
  chords correct song.mp3 --window 12 --label Am
  chords train --timeout 120 --activate`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		globalConfig = cfg
		return setupLogging(cfg)
	},
}

// Execute runs the root command. Interrupts cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(correctCmd)
}

func setupLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if verbose {
		level = logging.DebugLevel
	}
	logger := logging.NewLogger(os.Stderr, os.Stderr, level)
	if cfg.Logging.Color != nil {
		logger.SetColors(*cfg.Logging.Color)
	} else {
		logger.SetColors(logging.IsTerminal(os.Stderr))
	}
	logging.SetGlobalLogger(logger)
	return nil
}

// GetConfig returns the configuration loaded for the running command.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
