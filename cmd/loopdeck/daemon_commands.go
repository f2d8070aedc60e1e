package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"loopdeck/internal/daemonctl"
	"loopdeck/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the loopdeck daemon",
	}
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonRestartCommand(ctx))
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.configValue(), exe,
				daemonLaunchOptions(ctx, logLevel, verbose), 15*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateStarted:
				if result.PID > 0 {
					fmt.Fprintf(stdout, "Daemon started (pid %d, %s)\n", result.PID, result.Address)
				} else {
					fmt.Fprintln(stdout, "Daemon started")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Use development logging")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), ctx.configValue(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in %s; killed pid %d\n", grace, result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "How long to wait for in-flight stages before killing the daemon")
	return cmd
}

func newDaemonRestartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(cmd.Context(), ctx.configValue(), exe,
				daemonLaunchOptions(ctx, logLevel, verbose), 30*time.Second, 15*time.Second)
			if err != nil {
				return err
			}
			if result.WasRunning {
				if result.Stop.ForcedKill {
					fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Use development logging")
	return cmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: verbose,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Use development logging")
	return cmd
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string, verbose bool) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   strings.TrimSpace(logLevel),
		Verbose:    verbose,
	}
}
