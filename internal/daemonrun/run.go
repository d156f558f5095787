package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/jobstore"
	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
	"reelsmith/internal/preflight"
	"reelsmith/internal/staging"
	"reelsmith/internal/toolchain"
	"reelsmith/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight disables the network reachability checks at startup.
	SkipPreflight bool
}

// Run starts the reelsmith daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "reelsmith.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	tc := toolchain.New(cfg.Media)
	logDependencySnapshot(logger, cfg, tc)
	if !opts.SkipPreflight {
		logPreflight(signalCtx, logger, cfg)
	}

	store, err := jobstore.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	stages, err := BuildStages(cfg, tc, logger)
	if err != nil {
		return err
	}

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManager(cfg, store, stages, logger, workflow.WithNotifier(notifier))

	d, err := daemon.New(cfg, logger, manager, daemon.WithNotifier(notifier))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, the api bind address, and job store access"),
			logging.String(logging.FieldImpact, "no jobs will be accepted"),
		)
		return err
	}

	// Recovery ran inside Start, so every stored job is terminal now.
	sweepStaging(signalCtx, logger, cfg, store)

	<-signalCtx.Done()
	logger.Info("reelsmith daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	outputs := []string{"stdout"}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		outputs = append(outputs, filepath.Join(dir, "reelsmith.log"))
	}
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
	})
}

// sweepStaging removes workspaces past the retention window and workspaces
// whose job no longer exists in the store.
func sweepStaging(ctx context.Context, logger *slog.Logger, cfg *config.Config, store jobstore.Store) {
	if hours := cfg.Workflow.StagingRetentionHours; hours > 0 {
		result := staging.CleanStale(ctx, cfg.Paths.StagingDir, time.Duration(hours)*time.Hour, logger)
		logSweep(logger, "stale", result)
	}
	jobs, err := store.List(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "skip orphaned workspace sweep", "staging_sweep_skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "orphaned workspaces stay on disk until the next start"),
		)
		return
	}
	known := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		known[j.ID] = struct{}{}
	}
	logSweep(logger, "orphaned", staging.CleanOrphaned(ctx, cfg.Paths.StagingDir, known, logger))
}

func logSweep(logger *slog.Logger, kind string, result staging.CleanStaleResult) {
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "staging_sweep"),
		logging.String("sweep", kind),
		logging.Int("removed", len(result.Removed)),
	}
	if len(result.Errors) > 0 {
		attrs = append(attrs, logging.Int("errors", len(result.Errors)))
		logging.WarnWithContext(logger, "staging sweep incomplete", "staging_sweep", append(attrs,
			logging.String(logging.FieldErrorHint, "check staging directory permissions"),
			logging.String(logging.FieldImpact, "some workspaces were not removed"),
		)...)
		return
	}
	logger.Info("staging sweep complete", logging.Args(attrs...)...)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, tc *toolchain.Toolchain) {
	report := tc.Check(cfg.Media.FontName)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("generation_key_present", strings.TrimSpace(cfg.Generation.APIKey) != ""),
		logging.Bool("script_file", strings.TrimSpace(cfg.Pipeline.ScriptFile) != ""),
		logging.String("ffmpeg_binary", report.FFmpeg),
		logging.String("ffprobe_binary", report.FFprobe),
		logging.String("caption_font", report.Font),
		logging.String("store", cfg.Workflow.Store),
	}
	if !report.Resolved {
		logging.WarnWithContext(logger, "media toolchain incomplete", "dependency_snapshot", append(attrs,
			logging.String("problems", strings.Join(report.Problems, "; ")),
			logging.String(logging.FieldErrorHint, "install ffmpeg and the caption font or fix the [media] section"),
			logging.String(logging.FieldImpact, "jobs will fail at assembly or captioning"),
		)...)
		return
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the configuration before submitting jobs"),
			logging.String(logging.FieldImpact, "jobs depending on this check will fail"),
		)
	}
}
