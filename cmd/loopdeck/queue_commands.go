package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loopdeck/internal/api"
	"loopdeck/internal/daemonctl"
	"loopdeck/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued Tracks",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueReingestCommand(ctx))
	queueCmd.AddCommand(newQueueRejectCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued Tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(session queueaccess.Session) error {
				items, err := session.Access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				items = api.SortTracksByPlaylist(items)
				if asJSON {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(trackHeaders, buildTrackRows(items), trackNumericCols...))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <source-id>",
		Short: "Show one Track with its stage results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(session queueaccess.Session) error {
				item, err := session.Access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("track %s not found", args[0])
				}
				if asJSON {
					return writeJSON(cmd, item)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTrackDetail(*item))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [source-id...]",
		Short: "Requeue failed Tracks at the stage that failed (all failed Tracks when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(session queueaccess.Session) error {
				count, err := session.Access.Retry(cmd.Context(), args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case count == 0 && len(args) > 0:
					fmt.Fprintln(out, "No matching failed Tracks")
				case count == 0:
					fmt.Fprintln(out, "No failed Tracks to retry")
				default:
					fmt.Fprintf(out, "Retried %d Track(s)\n", count)
				}
				return nil
			})
		},
	}
}

func newQueueReingestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reingest <source-id>",
		Short: "Drop cached stage results and restart a Track from the filter stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(session queueaccess.Session) error {
				ok, err := session.Access.Reingest(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("track %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Track %s requeued from the start\n", args[0])
				return nil
			})
		},
	}
}

func newQueueRejectCommand(ctx *commandContext) *cobra.Command {
	var reason string
	var detail string
	cmd := &cobra.Command{
		Use:   "reject <source-id>",
		Short: "Reject a Track so no stage picks it up again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reason) == "" {
				return fmt.Errorf("--reason is required")
			}
			return ctx.withQueue(cmd, func(session queueaccess.Session) error {
				if err := session.Access.Reject(cmd.Context(), args[0], reason, detail); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Track %s rejected (%s)\n", args[0], reason)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "Manual", "Rejection reason code")
	cmd.Flags().StringVar(&detail, "detail", "", "Free-form detail stored with the rejection")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show queue counts and database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				health, err := client.QueueHealth(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database:   %s\n", health.DBPath)
				fmt.Fprintf(out, "Schema:     %s\n", valueOrDash(health.SchemaVersion))
				fmt.Fprintf(out, "Integrity:  %s\n", yesNo(health.IntegrityCheck))
				if health.Error != "" {
					fmt.Fprintf(out, "Error:      %s\n", health.Error)
				}
				rows := [][]string{
					{"total", fmt.Sprint(health.Total)},
					{"waiting", fmt.Sprint(health.Waiting)},
					{"processing", fmt.Sprint(health.Processing)},
					{"review", fmt.Sprint(health.Review)},
					{"failed", fmt.Sprint(health.Failed)},
					{"rejected", fmt.Sprint(health.Rejected)},
					{"published", fmt.Sprint(health.Published)},
				}
				fmt.Fprint(out, renderTable([]string{"Bucket", "Count"}, rows, 1))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
