package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/profiling"
)

var (
	profWindowMs int
	profModel    string
	profJSON     bool
	profPerRow   int
)

var profileCmd = &cobra.Command{
	Use:   "profile <audio-file>",
	Short: "Chord sequence of a recording",
	Long: `Cut a recording into fixed-length windows and classify each one.

The sequence is printed as one box per window with its start time. With
silent_window: carry in the config, silent windows take their neighbor's
chord and are marked with '*'.

Examples:
  chords profile song.wav
  chords profile song.mp3 --window-ms 500 --model templates
  chords profile song.flac --json > song.json`,
	Args: cobra.ExactArgs(1),
	RunE: runProfile,
}

func init() {
	profileCmd.Flags().IntVarP(&profWindowMs, "window-ms", "w", 0, "window length in milliseconds (default from config)")
	profileCmd.Flags().StringVarP(&profModel, "model", "m", "", "artifact name or 'templates' (default: active model)")
	profileCmd.Flags().BoolVar(&profJSON, "json", false, "print the result as JSON")
	profileCmd.Flags().IntVar(&profPerRow, "per-row", 8, "chord boxes per line")
}

func runProfile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	classifier, err := e.classifier(ctx, profModel)
	if err != nil {
		return err
	}
	profiler := profiling.NewProfiler(e.cfg.Profiling, classifier, e.decoder)

	bar := newProgressBar(os.Stderr, "Profiling "+filepath.Base(args[0]))
	result, err := profiler.ProfileFile(ctx, args[0], profWindowMs, func(percent int) {
		bar.update(percent, "")
	})
	bar.done()
	if err != nil {
		return fmt.Errorf("profile %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	if profJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	title := filepath.Base(args[0])
	if s := result.Tags.String(); s != "" {
		title = s
	}
	fmt.Fprintf(out, "%s  %d windows of %d ms  model %s\n\n",
		title, len(result.Windows), result.WindowMs, classifier.ModelName())
	fmt.Fprintln(out, renderTimeline(result, profPerRow))
	fmt.Fprintf(out, "\n%s\n", summarize(result.Labels()))
	return nil
}

// summarize lists the chords of a sequence with their window counts in
// vocabulary order.
func summarize(labels []chords.Label) string {
	counts := make(map[chords.Label]int)
	for _, l := range labels {
		counts[l]++
	}
	return summarizeCounts(counts)
}

func summarizeCounts(counts map[chords.Label]int) string {
	var parts []string
	for _, l := range chords.Vocabulary() {
		if n := counts[l]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s x%d", l, n))
		}
	}
	return strings.Join(parts, "  ")
}
