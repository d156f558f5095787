package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"reelsmith/internal/logging"
)

// CleanStaleResult contains the outcome of a workspace sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes job workspaces older than maxAge. Workspaces of failed
// jobs are kept for inspection until this sweep reaches them.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	cutoff := time.Now().Add(-maxAge)
	return sweep(ctx, stagingDir, "stale", logger, func(_ string, info fs.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	})
}

// CleanOrphaned removes job workspaces whose job no longer exists in the
// store.
func CleanOrphaned(ctx context.Context, stagingDir string, knownJobs map[string]struct{}, logger *slog.Logger) CleanStaleResult {
	return sweep(ctx, stagingDir, "orphaned", logger, func(name string, _ fs.FileInfo) bool {
		_, known := knownJobs[name]
		return !known
	})
}

// sweep removes every workspace directory under stagingDir that remove
// selects. Files and directories that are not job workspaces are never
// touched. A missing staging dir is not an error.
func sweep(ctx context.Context, stagingDir, reason string, logger *slog.Logger, remove func(name string, info fs.FileInfo) bool) CleanStaleResult {
	var result CleanStaleResult
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !IsWorkspaceName(entry.Name()) {
			continue
		}
		path := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !remove(entry.Name(), info) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logging.WarnWithContext(logger, "failed to remove job workspace", "staging_cleanup_failed",
				logging.String("path", path),
				logging.String("reason", reason),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		logger.Info("removed job workspace",
			logging.String(logging.FieldEventType, "staging_cleanup"),
			logging.String("path", path),
			logging.String("reason", reason),
			logging.Duration("age", time.Since(info.ModTime())),
		)
	}
	return result
}

// WorkspaceInfo describes one job workspace on disk.
type WorkspaceInfo struct {
	JobID   string
	Path    string
	ModTime time.Time
	Size    int64
	Files   int
}

// Workspaces lists the job workspaces under stagingDir, oldest first.
func Workspaces(stagingDir string) ([]WorkspaceInfo, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []WorkspaceInfo
	for _, entry := range entries {
		if !entry.IsDir() || !IsWorkspaceName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ws := WorkspaceInfo{
			JobID:   entry.Name(),
			Path:    filepath.Join(stagingDir, entry.Name()),
			ModTime: info.ModTime(),
		}
		ws.Size, ws.Files = usage(ws.Path)
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	return out, nil
}

// usage totals regular files below dir. Unreadable entries are skipped.
func usage(dir string) (int64, int) {
	var size int64
	var files int
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
			files++
		}
		return nil
	})
	return size, files
}
