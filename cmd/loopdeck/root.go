package main

import (
	"github.com/spf13/cobra"
)

// skipConfigAnnotation marks commands that load (or write) the config file
// themselves instead of failing early on a broken one.
const skipConfigAnnotation = "skipConfigLoad"

var skipConfig = map[string]string{skipConfigAnnotation: "true"}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "loopdeck",
		Short:         "Karaoke loop pipeline CLI",
		Long:          "loopdeck turns a YouTube playlist into rights-cleared karaoke loops. The daemon runs the pipeline; these commands inspect and steer it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipsConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&ctx.flags.config, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.flags.operator, "operator", "", "Operator name recorded in rights history (defaults to the OS user)")

	for _, build := range []func(*commandContext) *cobra.Command{
		newDaemonCommand,
		newStatusCommand,
		newQueueCommand,
		newReviewCommand,
		newSubmitCommand,
		newIngestCommand,
		newRightsCommand,
		newCatalogCommand,
		newLogsCommand,
		newTestNotifyCommand,
		newConfigCommand,
	} {
		root.AddCommand(build(ctx))
	}
	return root
}

func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}
