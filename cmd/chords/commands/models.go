package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-chords/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List, activate and show model artifacts",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runModelsList,
}

var modelsActivateCmd = &cobra.Command{
	Use:   "activate [name]",
	Short: "Make an artifact the active model",
	Long: `Make an artifact the active model. Without a name, use --latest or --best.

--best picks the lowest validation loss; ties go to the lower cross loss,
then the newer artifact.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModelsActivate,
}

var modelsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active model and activation history",
	Args:  cobra.NoArgs,
	RunE:  runModelsActive,
}

var (
	activateLatest bool
	activateBest   bool
)

func init() {
	modelsActivateCmd.Flags().BoolVar(&activateLatest, "latest", false, "activate the newest artifact")
	modelsActivateCmd.Flags().BoolVar(&activateBest, "best", false, "activate the most accurate artifact")
	modelsActivateCmd.MarkFlagsMutuallyExclusive("latest", "best")

	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsActivateCmd)
	modelsCmd.AddCommand(modelsActiveCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.store.List(ctx)
	if err != nil {
		return err
	}
	active, err := e.registry.Active(ctx)
	if err != nil && !errors.Is(err, model.ErrNoActiveModel) {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tCREATED\tTIMEOUT\tVALIDATION\tCROSS")
	for _, entry := range entries {
		mark := ""
		if entry.Name == active {
			mark = "*"
		}
		md := entry.Metadata
		fmt.Fprintf(tw, "%s\t%s\t%s\t%ds\t%g\t%g\n", mark, entry.Name,
			md.CreatedAt.Format("2006-01-02 15:04:05"), md.TrainingTimeoutSeconds,
			md.ValidationLogLoss, md.CrossValidationLogLoss)
	}
	return tw.Flush()
}

func runModelsActivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	var name string
	switch {
	case len(args) == 1:
		name = args[0]
	case activateLatest:
		entry, err := e.store.Latest(ctx)
		if err != nil {
			return err
		}
		name = entry.Name
	case activateBest:
		entry, err := e.store.Best(ctx)
		if err != nil {
			return err
		}
		name = entry.Name
	default:
		return fmt.Errorf("give an artifact name, --latest or --best")
	}

	if err := e.registry.Activate(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", name)
	return nil
}

func runModelsActive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	name, err := e.registry.Active(ctx)
	if errors.Is(err, model.ErrNoActiveModel) {
		fmt.Fprintln(out, "no active model")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "active %s\n", name)

	if !IsVerbose() {
		return nil
	}
	fmt.Fprintln(out, "history:")
	for act, err := range e.registry.History(ctx) {
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s  %s\n", act.At.Local().Format("2006-01-02 15:04:05"), act.Name)
	}
	return nil
}
