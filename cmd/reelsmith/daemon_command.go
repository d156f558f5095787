package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelsmith/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the reelsmith daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.RequireCredentials(); err != nil {
				return err
			}
			cfg.Paths.APIBind = ctx.apiBind(cfg)
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log lines")
	cmd.Flags().BoolVar(&opts.SkipPreflight, "skip-preflight", false, "Skip LLM and generation reachability checks at startup")
	return cmd
}
