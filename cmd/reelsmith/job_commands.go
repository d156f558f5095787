package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/fileutil"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var sceneCount int
	var wait bool
	var pollInterval time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <prompt...>",
		Short: "Submit a prompt and start a new video job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), api.SubmitRequest{Prompt: prompt, SceneCount: sceneCount})
				if err != nil {
					return err
				}
				if !wait {
					if asJSON {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", resp.ID)
					return nil
				}
				final, err := waitForJob(cmd.Context(), client, resp.ID, pollInterval, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, final)
				}
				printJobDetail(cmd.OutOrStdout(), final, shouldColorize(cmd.OutOrStdout()))
				if final.State == "failed" {
					return fmt.Errorf("job %s failed", final.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&sceneCount, "scenes", "n", 0, "Number of scenes (0 uses pipeline.default_scenes)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&pollInterval, "poll", 5*time.Second, "Status poll interval with --wait")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// waitForJob polls until the job is terminal, printing each step change.
func waitForJob(ctx context.Context, client *api.Client, id string, interval time.Duration, progress io.Writer) (api.Job, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastStep := ""
	for {
		current, err := client.Job(ctx, id)
		if err != nil {
			return api.Job{}, err
		}
		if current.Progress.Step != lastStep {
			fmt.Fprintf(progress, "[%3d%%] %s\n", current.Progress.Percent, current.Progress.Step)
			lastStep = current.Progress.Step
		}
		if current.State == "done" || current.State == "failed" {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return api.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon status, or one job's progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				if len(args) == 1 {
					current, err := client.Job(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, current)
					}
					printJobDetail(out, current, colorize)
					return nil
				}
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				printDaemonStatus(out, status, colorize)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runKind := statusOK
	if !status.Running {
		runKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Running", runKind, fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Active jobs", statusInfo, strconv.Itoa(status.Workflow.ActiveJobs), colorize))
	if status.DatabasePath != "" {
		fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	}
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, state := range api.SortedStates(status.Workflow.JobCounts) {
		count := status.Workflow.JobCounts[state]
		if count == 0 {
			continue
		}
		fmt.Fprintln(out, renderStatusLine(state, jobStateKind(state), strconv.Itoa(count), colorize))
	}

	if len(status.Dependencies) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Dependencies", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, dep := range status.Dependencies {
			kind := statusOK
			message := dep.Command
			if !dep.Available {
				kind = statusError
				if dep.Optional {
					kind = statusWarn
				}
				message = dep.Detail
			}
			fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
		}
	}
}

func printJobDetail(out io.Writer, current api.Job, colorize bool) {
	for _, line := range renderSectionHeader("Job "+current.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("State", jobStateKind(current.State), current.State, colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo,
		fmt.Sprintf("%d%% %s", current.Progress.Percent, current.Progress.Step), colorize))
	fmt.Fprintln(out, renderStatusLine("Prompt", statusInfo, snip(current.Prompt, 60), colorize))
	if current.Artifact != nil {
		fmt.Fprintln(out, renderStatusLine("Artifact", statusOK, current.Artifact.Location, colorize))
	}
	if f := current.Failure; f != nil {
		detail := fmt.Sprintf("%s during %s", f.Kind, f.Stage)
		if f.SceneIndex != nil {
			detail += fmt.Sprintf(" (scene %d)", *f.SceneIndex)
		}
		fmt.Fprintln(out, renderStatusLine("Failure", statusError, detail, colorize))
		if f.Detail != "" {
			fmt.Fprintln(out, renderStatusLine("Error", statusError, f.Detail, colorize))
		}
		if f.Hint != "" {
			fmt.Fprintln(out, renderStatusLine("Hint", statusWarn, f.Hint, colorize))
		}
	}
	if len(current.Scenes) == 0 {
		return
	}
	rows := make([][]string, 0, len(current.Scenes))
	for _, scene := range current.Scenes {
		note := scene.Dialogue
		if scene.Error != "" {
			note = scene.Error
		}
		rows = append(rows, []string{strconv.Itoa(scene.Index), scene.Status, snip(note, promptColumnWidth)})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable([]string{"Scene", "Status", "Dialogue"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect jobs known to the daemon",
	}

	var states []string
	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				items, err := client.Jobs(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if asJSON {
					if items == nil {
						items = []api.Job{}
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprintln(out, renderJobTable(items))
				return nil
			})
		},
	}
	listCmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by state (repeatable)")
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	deleteCmd := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a finished job with its workspace and output files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s (%s)\n", resp.ID, resp.State)
				return nil
			})
		},
	}

	jobsCmd.AddCommand(listCmd, deleteCmd)
	return jobsCmd
}

func renderJobTable(items []api.Job) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.State,
			fmt.Sprintf("%d%%", item.Progress.Percent),
			fmt.Sprintf("%d/%d", item.Progress.ScenesDone, item.Progress.ScenesTotal),
			snip(item.Prompt, promptColumnWidth),
			item.UpdatedAt,
		})
	}
	return renderTable(
		[]string{"ID", "State", "Progress", "Scenes", "Prompt", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				current, err := client.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s (state %s)\n", current.ID, current.State)
				return nil
			})
		},
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download the finished video of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			target := strings.TrimSpace(output)
			if target == "" {
				target = id + ".mp4"
			}
			target, err := filepath.Abs(target)
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}
			return ctx.withClient(func(client *api.Client) error {
				// Fails fast with not-ready before any file is created.
				if _, err := client.Artifact(cmd.Context(), id); err != nil {
					return err
				}
				pr, pw := io.Pipe()
				go func() {
					_, err := client.DownloadArtifact(cmd.Context(), id, pw)
					pw.CloseWithError(err)
				}()
				written, err := fileutil.WriteAtomic(target, pr, 0o644)
				_ = pr.Close()
				if err != nil {
					return fmt.Errorf("download %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", target, written)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default ./<job-id>.mp4)")
	return cmd
}
