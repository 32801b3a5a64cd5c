package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/profiling"
)

var (
	classifyModel string
	classifyTop   int
)

var classifyCmd = &cobra.Command{
	Use:   "classify <clip>",
	Short: "Chord of a single clip",
	Long: `Classify a short clip as one chord, using the whole clip as a single
window. Prints the chord and its probability, then the strongest pitch classes
with the profile's entropy.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyModel, "model", "m", "", "artifact name or 'templates' (default: active model)")
	classifyCmd.Flags().IntVar(&classifyTop, "top", 3, "pitch classes to show")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	classifier, err := e.classifier(ctx, classifyModel)
	if err != nil {
		return err
	}
	audio, err := e.decoder.DecodeFile(ctx, args[0])
	if err != nil {
		return err
	}
	pipeline := profiling.NewProfiler(e.cfg.Profiling, classifier, nil).Pipeline()
	a, err := pipeline.Analyze(audio.PCM, audio.SampleRate)
	if err != nil {
		return fmt.Errorf("classify %s: %w", args[0], err)
	}

	var classes []string
	for _, pc := range a.Profile.Top(classifyTop) {
		classes = append(classes, fmt.Sprintf("%s %.2f", pc.Name, pc.Energy))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, chordStyle(a.Label).Render(a.Label.String()))
	fmt.Fprintf(out, "probability %.3f  model %s\n", a.Confidence, classifier.ModelName())
	fmt.Fprintf(out, "pitch classes %s\n", strings.Join(classes, ", "))
	fmt.Fprintf(out, "dominant %s  entropy %.3f bits\n",
		chroma.PitchClassNames[a.Profile.Dominant()], a.Profile.Entropy())
	return nil
}
