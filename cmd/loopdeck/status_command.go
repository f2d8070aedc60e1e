package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loopdeck/internal/api"
	"loopdeck/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show system, dependency and queue status",
		Long:  "Show daemon, dependency, path and queue status. When the daemon is down the queue database is read directly and dependencies are probed locally.",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, snap)
			}

			p := newStatusPrinter(cmd.OutOrStdout())
			p.section("System Status", checkRows(snap.SystemChecks))
			p.section("Dependencies", dependencyRows(snap.Daemon.Dependencies, snap.DependencySummary))
			p.section("Paths", checkRows(snap.Paths))
			if snap.Daemon.Running {
				p.section("Stages", stageRows(snap.Daemon.Workflow))
			}

			p.heading("Queue Status")
			rows := buildQueueStatusRows(snap.QueueStats)
			if len(rows) == 0 {
				fmt.Fprintln(p.w, "Queue is empty")
				return nil
			}
			fmt.Fprint(p.w, renderTable([]string{"Status", "Count"}, rows, 1))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func checkRows(lines []daemonctl.StatusLine) []statusRow {
	rows := make([]statusRow, len(lines))
	for i, line := range lines {
		rows[i] = statusRow{label: line.Label, sev: parseSeverity(line.Severity), detail: line.Detail}
	}
	return rows
}

func dependencyRows(deps []api.DependencyStatus, summary daemonctl.DependencySummary) []statusRow {
	rows := []statusRow{{label: "Summary", sev: parseSeverity(summary.Severity), detail: summary.Detail}}
	for _, dep := range deps {
		row := statusRow{label: dep.Name, sev: parseSeverity(daemonctl.DependencySeverity(dep))}
		switch {
		case dep.Available:
			row.detail = "Ready (command: " + dep.Command + ")"
		case dep.Optional:
			row.detail = valueOr(strings.TrimSpace(dep.Detail), "not available") + " (optional)"
		default:
			row.detail = valueOr(strings.TrimSpace(dep.Detail), "not available")
		}
		rows = append(rows, row)
	}
	return rows
}

func stageRows(status api.WorkflowStatus) []statusRow {
	rows := make([]statusRow, 0, len(status.StageHealth)+len(status.Pools)+1)
	for _, st := range status.StageHealth {
		if st.Ready {
			rows = append(rows, statusRow{label: st.Name, sev: sevOK, detail: "Ready"})
		} else {
			rows = append(rows, statusRow{label: st.Name, sev: sevError, detail: valueOrDash(st.Detail)})
		}
	}
	for _, pool := range status.Pools {
		detail := fmt.Sprintf("%d/%d busy, %d waiting, %d executed, %d cached, %d failed",
			pool.Busy, pool.Workers, pool.Waiting, pool.Executed, pool.Cached, pool.Failed)
		rows = append(rows, statusRow{label: pool.Name + " pool", sev: sevInfo, detail: detail})
	}
	if status.LastError != "" {
		rows = append(rows, statusRow{label: "Last error", sev: sevWarn, detail: status.LastError})
	}
	return rows
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
