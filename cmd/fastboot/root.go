package main

import (
	"github.com/spf13/cobra"

	"github.com/cryguy/fastboot"
	fblog "github.com/cryguy/fastboot/internal/log"
)

func newRootCmd() *cobra.Command {
	var (
		logLevel  string
		logPretty bool
	)
	cmd := &cobra.Command{
		Use:           "fastboot",
		Short:         "Pre-render single-page applications in an embedded JS engine",
		Long:          "fastboot boots a built application (index.html, package.json and its scripts) in an embedded " + fastboot.Engine + " engine and renders its routes to HTML.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			fblog.Configure(fblog.Config{Level: logLevel, Pretty: logPretty, Output: cmd.ErrOrStderr()})
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to $LOG_LEVEL or info")
	cmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human-readable log output")

	cmd.AddCommand(newServeCmd(), newRenderCmd())
	return cmd
}
