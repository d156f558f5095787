package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reelsmith/internal/logging"
	"reelsmith/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean job workspaces in staging_dir",
	}
	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))
	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List job workspaces with their disk usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			list, err := staging.Workspaces(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("read staging dir: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(out, "No job workspaces in %s\n", cfg.Paths.StagingDir)
				return nil
			}
			rows := make([][]string, 0, len(list))
			var total int64
			for _, ws := range list {
				total += ws.Size
				rows = append(rows, []string{
					ws.JobID,
					humanize.Time(ws.ModTime),
					strconv.Itoa(ws.Files),
					humanize.Bytes(uint64(ws.Size)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Modified", "Files", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(out, "%d workspaces, %s total\n", len(list), humanize.Bytes(uint64(total)))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove job workspaces older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			maxAge := olderThan
			if maxAge <= 0 {
				maxAge = time.Duration(cfg.Workflow.StagingRetentionHours) * time.Hour
			}
			if maxAge <= 0 {
				return fmt.Errorf("workflow.staging_retention_hours is 0; pass --older-than")
			}
			result := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, maxAge, logging.NewNop())
			out := cmd.OutOrStdout()
			for _, path := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", path)
			}
			for _, failure := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to remove %s: %v\n", failure.Path, failure.Error)
			}
			fmt.Fprintf(out, "%d workspaces older than %s removed\n", len(result.Removed), maxAge)
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d workspaces could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (default workflow.staging_retention_hours)")
	return cmd
}
