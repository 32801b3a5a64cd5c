package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-chords/training"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

var (
	genOutput string
	genAbort  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [clip-dir]",
	Short: "Training table from a folder of labeled clips",
	Long: `Scan a folder for chord clips and write one pitch class profile per clip
to a training table (default <clip-dir>/trainData.csv).

A clip's chord is its folder name when that is a chord (Em/take1.wav),
otherwise the file name prefix (Em_take1.wav). The folder defaults to
training.user_data_dir from the config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "output table path")
	generateCmd.Flags().BoolVar(&genAbort, "abort", false, "stop at the first unreadable clip")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	gcfg := *cfg.Training.Generator
	gcfg.SourceDir = cfg.Training.UserDataDir
	if len(args) == 1 {
		gcfg.SourceDir = args[0]
	}
	if genOutput != "" {
		gcfg.OutputPath = genOutput
	}
	if genAbort {
		gcfg.FailurePolicy = training.FailAbort
	}

	report, err := training.NewGenerator(&gcfg, transcode.NewDecoder(cfg.Audio)).Generate(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wrote %d rows to %s\n", report.Rows, report.OutputPath)
	if len(report.Labels) > 0 {
		fmt.Fprintf(out, "%s\n", summarizeCounts(report.Labels))
	}
	for _, skipped := range report.Skipped {
		fmt.Fprintf(out, "skipped %s: %v\n", skipped.Path, skipped.Err)
	}
	return nil
}
