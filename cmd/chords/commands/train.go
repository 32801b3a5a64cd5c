package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-chords/training"
)

var (
	trainTimeout  int
	trainActivate bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train, evaluate and save a new model",
	Long: `Regenerate the user training table, search for the best model on the
original and user tables within the timeout, score it on the original
test table and save it as a new artifact.

Artifacts are named {time}S{timeout}L{validation loss}C{cross loss}.model.
A new artifact is not used for classification until it is activated.

Examples:
  chords train --timeout 300
  chords train --activate`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().IntVarP(&trainTimeout, "timeout", "t", 0, "search budget in seconds (default from config)")
	trainCmd.Flags().BoolVar(&trainActivate, "activate", false, "activate the new model")
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	req := e.cfg.TrainRequest()
	if trainTimeout > 0 {
		req.TimeoutSeconds = trainTimeout
	}
	trainer := training.NewTrainer(e.cfg.TrainerConfig(),
		training.NewRandomSearch(e.cfg.Training.Search), e.store, e.decoder)

	bar := newProgressBar(os.Stderr, training.StepStarting)
	art, err := trainer.Train(ctx, req, bar.update)
	bar.done()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	md := art.Metadata
	fmt.Fprintf(out, "saved %s\n", art.Name)
	fmt.Fprintf(out, "  model           %s\n", md.Trainer)
	fmt.Fprintf(out, "  training rows   %d\n", md.TrainingRows)
	fmt.Fprintf(out, "  validation loss %.6f\n", md.ValidationLogLoss)
	fmt.Fprintf(out, "  cross loss      %.6f\n", md.CrossValidationLogLoss)
	fmt.Fprintf(out, "  accuracy        %.3f micro, %.3f macro\n", md.MicroAccuracy, md.MacroAccuracy)

	if trainActivate {
		if err := e.registry.Activate(ctx, art.Name); err != nil {
			return fmt.Errorf("activate %s: %w", art.Name, err)
		}
		fmt.Fprintf(out, "activated %s\n", art.Name)
	}
	return nil
}
