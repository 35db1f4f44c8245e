package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/thalesfsp/horunner"
	"github.com/thalesfsp/horunner/internal/objective"
)

var workerObjective string

// workerCmd is the child side of process mode. It evaluates one candidate
// read from stdin and prints the result on stdout.
var workerCmd = &cobra.Command{
	Use:          "worker",
	Short:        "Evaluate one candidate from stdin (used by process mode)",
	Hidden:       true,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, err := objective.Lookup(workerObjective)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		return horunner.ServeWorker(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), obj.Evaluator)
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerObjective, "objective", "quadratic", "Built-in objective to evaluate")

	rootCmd.AddCommand(workerCmd)
}
