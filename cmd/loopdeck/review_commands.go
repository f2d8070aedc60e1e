package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loopdeck/internal/api"
	"loopdeck/internal/daemonctl"
	"loopdeck/internal/queueaccess"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Resolve Tracks held for operator review",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List held Tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(session queueaccess.Session) error {
				items, err := session.Access.Review(cmd.Context())
				if err != nil {
					return err
				}
				items = api.SortTracksNewestFirst(items)
				if asJSON {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing awaits review")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(trackHeaders, buildTrackRows(items), trackNumericCols...))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	approveCmd := &cobra.Command{
		Use:   "approve <source-id>",
		Short: "Release a hold so the Track continues down the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				if err := client.ApproveReview(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Track %s approved\n", args[0])
				return nil
			})
		},
	}

	rejectCmd := &cobra.Command{
		Use:   "reject <source-id>",
		Short: "Reject a held Track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				if err := client.RejectReview(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Track %s rejected\n", args[0])
				return nil
			})
		},
	}

	reviewCmd.AddCommand(listCmd, approveCmd, rejectCmd)
	return reviewCmd
}
