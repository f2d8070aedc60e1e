package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loopdeck/internal/daemonctl"
	"loopdeck/internal/workflow"
)

var stageNames = []string{
	workflow.PoolFilter,
	workflow.PoolSegment,
	workflow.PoolSeparate,
	workflow.PoolAlign,
	workflow.PoolRights,
	workflow.PoolPublish,
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "submit <source-id> <stage>",
		Short: "Run one stage for a Track and wait for its result",
		Long: "Run one stage for a Track and wait for its result.\n\n" +
			"Stages: " + strings.Join(stageNames, ", ") + ". A stage that already " +
			"completed for the Track returns its cached result without running again.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				result, err := client.Submit(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Stage %s completed for %s (executions: %d)\n", result.Stage, result.SourceID, result.Executions)
				if result.VocalScore != nil {
					fmt.Fprintf(out, "Vocal score: %.3f\n", *result.VocalScore)
				}
				if result.NeedsReview {
					fmt.Fprintf(out, "Held for review: %s\n", result.ReviewReason)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
