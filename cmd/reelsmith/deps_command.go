package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelsmith/internal/preflight"
	"reelsmith/internal/toolchain"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check ffmpeg, ffprobe, and the caption font on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := preflight.CheckSystemDeps(cfg)
			toolchainResult := preflight.CheckToolchain(toolchain.New(cfg.Media), cfg.Media.FontName)
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"dependencies": statuses,
					"toolchain":    toolchainResult,
				})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			missingRequired := false
			for _, dep := range statuses {
				kind := statusOK
				message := dep.Command
				if !dep.Available {
					kind = statusError
					if dep.Optional {
						kind = statusWarn
					} else {
						missingRequired = true
					}
					message = dep.Detail
				}
				fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
			}
			kind := statusOK
			if !toolchainResult.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(toolchainResult.Name, kind, toolchainResult.Detail, colorize))
			if missingRequired || !toolchainResult.Passed {
				return fmt.Errorf("required dependencies missing")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
