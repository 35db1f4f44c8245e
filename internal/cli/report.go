package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thalesfsp/horunner"
	"github.com/thalesfsp/horunner/checkpoint"
	"github.com/thalesfsp/horunner/internal/objective"
)

var reportInput string

// reportCmd prints a checkpoint sorted by loss
var reportCmd = &cobra.Command{
	Use:          "report",
	Short:        "Print the trials of a checkpoint sorted by loss",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportInput == "" {
			return checkpoint.ErrEmptyPath
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		trials, err := checkpoint.Load(ctx, reportInput, logrus.StandardLogger())
		if err != nil {
			return err
		}

		return horunner.WriteReport(cmd.OutOrStdout(), trials)
	},
}

// objectivesCmd lists the built-in objectives
var objectivesCmd = &cobra.Command{
	Use:   "objectives",
	Short: "List the built-in objectives",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range objective.Names() {
			obj, _ := objective.Lookup(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", obj.Name, obj.Description)
		}
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportInput, "input", "", "Checkpoint to read (.json or .db)")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(objectivesCmd)
}
