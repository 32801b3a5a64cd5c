package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/profiling"
	"github.com/RyanBlaney/sonido-chords/training"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

var (
	correctWindow   int
	correctWindowMs int
	correctLabel    string
)

var correctCmd = &cobra.Command{
	Use:   "correct <audio-file>",
	Short: "Save a relabeled window as a new training clip",
	Long: `Cut window N out of a recording and store it under
training.user_data_dir as a clip of the given chord. The next 'chords
generate' or 'chords train' run includes it.

Window numbers are the ones 'chords profile' shows, counted from 0 with
the same --window-ms.

Example:
  chords correct song.wav --window 12 --label Am`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrect,
}

func init() {
	correctCmd.Flags().IntVarP(&correctWindow, "window", "n", -1, "window index")
	correctCmd.Flags().IntVarP(&correctWindowMs, "window-ms", "w", 0, "window length in milliseconds (default from config)")
	correctCmd.Flags().StringVarP(&correctLabel, "label", "l", "", "correct chord")
	_ = correctCmd.MarkFlagRequired("window")
	_ = correctCmd.MarkFlagRequired("label")
}

func runCorrect(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	label, err := chords.ParseLabel(correctLabel)
	if err != nil {
		return err
	}
	audio, err := transcode.NewDecoder(cfg.Audio).DecodeFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	windowMs := correctWindowMs
	if windowMs <= 0 {
		windowMs = cfg.Profiling.WindowMs
	}
	windows, err := profiling.Segment(len(audio.PCM),
		profiling.SamplesPerWindow(audio.SampleRate, windowMs), cfg.Profiling.PartialWindow)
	if err != nil {
		return err
	}
	if correctWindow < 0 || correctWindow >= len(windows) {
		return fmt.Errorf("window %d out of range, %s has %d windows", correctWindow, args[0], len(windows))
	}

	path, err := training.SaveCorrection(cfg.Training.UserDataDir, audio, windows[correctWindow], label)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved window %d as %s: %s\n", correctWindow, label, path)
	return nil
}
