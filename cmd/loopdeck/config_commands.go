package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loopdeck/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check and print the configuration",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the annotated sample configuration",
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			var err error
			if target == "" {
				target, err = config.DefaultConfigPath()
			} else {
				target, err = config.ExpandPath(target)
			}
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			err = config.WriteSample(target, overwrite)
			if errors.Is(err, config.ErrConfigExists) {
				return fmt.Errorf("%w (use --overwrite to replace it)", err)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set playlist.id and youtube.api_key (or export YOUTUBE_API_KEY) before running loopdeck.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and create its directories",
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			rows := [][]string{
				{"Config path", path},
				{"Playlist", fmt.Sprintf("%s (%s)", valueOrDash(cfg.Playlist.ID), cfg.Playlist.Source)},
				{"Storage", cfg.Storage.Backend},
				{"Lock", cfg.Lock.Backend},
				{"API bind", fmt.Sprintf("%s (auth: %s)", valueOrDash(cfg.API.Bind), yesNo(cfg.API.JWTSecret != ""))},
			}
			out := cmd.OutOrStdout()
			for _, row := range rows {
				fmt.Fprintf(out, "%-12s %s\n", row[0]+":", row[1])
			}
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long:  "Print the configuration after defaults, environment variables and .env secrets are applied. Credentials are masked unless --reveal is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			effective := cfg.Redacted()
			if reveal {
				effective = *cfg
			}
			data, err := effective.Encode()
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print credentials in clear text")
	return cmd
}
