package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"loopdeck/internal/daemonctl"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and maintain published loops",
	}

	var liveOnly bool
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				entries, err := client.Catalog(cmd.Context(), liveOnly)
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.SourceID,
						truncate(e.Title, 40),
						yesNo(e.Live),
						e.LicenseState,
						e.PublishedAt,
						valueOrDash(e.RetractReason),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Source ID", "Title", "Live", "License", "Published", "Retracted"},
					rows,
				))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&liveOnly, "live", false, "Only show live entries")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <source-id>",
		Short: "Show a catalog entry and its artifact objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				entry, err := client.CatalogEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("track %s was never published", args[0])
				}
				if showJSON {
					return writeJSON(cmd, entry)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Source ID:   %s\n", entry.SourceID)
				fmt.Fprintf(out, "Title:       %s\n", entry.Title)
				fmt.Fprintf(out, "Live:        %s\n", yesNo(entry.Live))
				fmt.Fprintf(out, "License:     %s\n", entry.LicenseState)
				fmt.Fprintf(out, "Published:   %s\n", entry.PublishedAt)
				if entry.RetractedAt != "" {
					fmt.Fprintf(out, "Retracted:   %s (%s)\n", entry.RetractedAt, valueOrDash(entry.RetractReason))
				}
				if len(entry.Segment) > 0 {
					fmt.Fprintf(out, "Segment:     %s\n", string(entry.Segment))
				}
				fmt.Fprintln(out, "Objects:")
				for _, obj := range entry.Objects {
					fmt.Fprintf(out, "  %s\n", obj)
				}
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	var reason string
	unpublishCmd := &cobra.Command{
		Use:   "unpublish <source-id>",
		Short: "Retract a live loop and reject its Track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				applied, err := client.Unpublish(cmd.Context(), args[0], strings.TrimSpace(reason))
				if err != nil {
					return err
				}
				if !applied {
					fmt.Fprintf(cmd.OutOrStdout(), "Track %s was not live\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Track %s unpublished\n", args[0])
				return nil
			})
		},
	}
	unpublishCmd.Flags().StringVar(&reason, "reason", "", "Why the loop is withdrawn")

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Retract live loops whose license no longer allows publication",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *daemonctl.Client) error {
				resp, err := client.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checked %d live entries, retracted %d\n", resp.Checked, len(resp.Retracted))
				for _, id := range resp.Retracted {
					fmt.Fprintf(out, "  retracted %s\n", id)
				}
				if len(resp.Failed) == 0 {
					return nil
				}
				ids := make([]string, 0, len(resp.Failed))
				for id := range resp.Failed {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(out, "  failed %s: %s\n", id, resp.Failed[id])
				}
				return fmt.Errorf("%d entries could not be reconciled", len(ids))
			})
		},
	}

	catalogCmd.AddCommand(listCmd, showCmd, unpublishCmd, reconcileCmd)
	return catalogCmd
}
