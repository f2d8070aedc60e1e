package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loopdeck/internal/api"
	"loopdeck/internal/daemonctl"
)

func newRightsCommand(ctx *commandContext) *cobra.Command {
	rightsCmd := &cobra.Command{
		Use:   "rights",
		Short: "Inspect and record licensing decisions",
	}
	rightsCmd.AddCommand(newRightsListCommand(ctx))
	rightsCmd.AddCommand(newRightsShowCommand(ctx))
	rightsCmd.AddCommand(newRightsSetCommand(ctx))
	rightsCmd.AddCommand(newRightsHistoryCommand(ctx))
	return rightsCmd
}

func newRightsListCommand(ctx *commandContext) *cobra.Command {
	var states []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rights records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				records, err := client.ListRights(cmd.Context(), states)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No rights records")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.SourceID,
						rec.LicenseState,
						truncate(valueOrDash(rec.Uploader), 24),
						valueOrDash(rec.License),
						truncate(valueOrDash(rec.EvidenceURI), 40),
						valueOrDash(rec.UpdatedAt),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Source ID", "State", "Uploader", "License", "Evidence", "Updated"},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by license state (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRightsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <source-id>",
		Short: "Show a rights record and its transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				resp, err := client.Rights(cmd.Context(), args[0], true)
				if err != nil {
					return err
				}
				if resp == nil {
					return fmt.Errorf("no rights record for %s", args[0])
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderRightsRecord(resp.Record))
				if len(resp.History) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, renderTable(
					[]string{"Changed", "From", "To", "Actor", "Reason", "Evidence"},
					historyRows(resp.History),
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRightsSetCommand(ctx *commandContext) *cobra.Command {
	var evidence string
	var reason string
	cmd := &cobra.Command{
		Use:   "set <source-id> <state>",
		Short: "Move a Track's license state (cleared, restricted, rejected)",
		Long: "Move a Track's license state.\n\n" +
			"pending_clearance may move to cleared, restricted or rejected; cleared may move " +
			"to restricted or rejected. Clearing requires --evidence. The change is recorded " +
			"in the rights history under the --operator name.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				rec, err := client.SetRights(cmd.Context(), args[0], api.LicenseStateRequest{
					State:       strings.TrimSpace(args[1]),
					EvidenceURI: strings.TrimSpace(evidence),
					Reason:      strings.TrimSpace(reason),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Track %s is now %s\n", rec.SourceID, rec.LicenseState)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&evidence, "evidence", "", "URI of the license evidence (required to clear)")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the state changed")
	return cmd
}

func newRightsHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <source-id>",
		Short: "Show the clearance audit trail for a Track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				resp, err := client.Rights(cmd.Context(), args[0], true)
				if err != nil {
					return err
				}
				if resp == nil {
					return fmt.Errorf("no rights record for %s", args[0])
				}
				if asJSON {
					return writeJSON(cmd, resp.History)
				}
				if len(resp.History) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Track %s has no state changes (still %s)\n", args[0], resp.Record.LicenseState)
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Changed", "From", "To", "Actor", "Reason", "Evidence"},
					historyRows(resp.History),
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderRightsRecord(rec api.RightsRecord) string {
	var b strings.Builder
	for _, f := range [][2]string{
		{"Source ID", rec.SourceID},
		{"State", rec.LicenseState},
		{"Uploader", rec.Uploader},
		{"License", rec.License},
		{"Acquired", strings.TrimSpace(rec.AcquisitionMethod + " " + rec.AcquiredAt)},
		{"Evidence", rec.EvidenceURI},
		{"Rejection", rec.RejectionReason},
		{"Updated", rec.UpdatedAt},
	} {
		fmt.Fprintf(&b, "%-12s %s\n", f[0]+":", valueOrDash(f[1]))
	}
	return b.String()
}

func historyRows(history []api.RightsHistoryEntry) [][]string {
	rows := make([][]string, 0, len(history))
	for _, h := range history {
		rows = append(rows, []string{
			h.ChangedAt,
			h.FromState,
			h.ToState,
			h.Actor,
			valueOrDash(h.Reason),
			truncate(valueOrDash(h.EvidenceURI), 40),
		})
	}
	return rows
}
