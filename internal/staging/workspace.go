package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const workspacePrefix = "vid_"

// Workspace is the per-job scratch directory holding downloads and
// intermediate renders.
type Workspace struct {
	Dir string
}

// IsWorkspaceName reports whether name looks like a job workspace directory.
func IsWorkspaceName(name string) bool {
	return strings.HasPrefix(name, workspacePrefix) && len(name) > len(workspacePrefix)
}

// Open creates (if needed) the workspace for jobID under root.
func Open(root, jobID string) (Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Workspace{}, fmt.Errorf("staging dir not configured")
	}
	if !IsWorkspaceName(jobID) || strings.ContainsAny(jobID, `/\`) || jobID != filepath.Base(jobID) {
		return Workspace{}, fmt.Errorf("invalid job id %q", jobID)
	}
	dir := filepath.Join(root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace: %w", err)
	}
	return Workspace{Dir: dir}, nil
}

// ScenePath is where the downloaded video for scene index lands.
func (w Workspace) ScenePath(index int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("scene_%02d.mp4", index))
}

// NormalizedPath is the per-scene output of the normalize pass.
func (w Workspace) NormalizedPath(index int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("norm_%02d.mp4", index))
}

// AssembledPath is the concatenated clip before captions.
func (w Workspace) AssembledPath() string {
	return filepath.Join(w.Dir, "assembled.mp4")
}

// CaptionedPath is the captioned render before it is published.
func (w Workspace) CaptionedPath() string {
	return filepath.Join(w.Dir, "captioned.mp4")
}

// SubtitlePath is the SRT sidecar written next to the captioned render.
func (w Workspace) SubtitlePath() string {
	return filepath.Join(w.Dir, "captions.srt")
}

// PruneIntermediates deletes per-scene downloads, normalized renders, and
// partial files while keeping the assembled and captioned outputs.
func (w Workspace) PruneIntermediates() error {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, entry := range entries {
		name := entry.Name()
		if !isIntermediate(name) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.Dir, name)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Remove deletes the whole workspace.
func (w Workspace) Remove() error {
	if strings.TrimSpace(w.Dir) == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

func isIntermediate(name string) bool {
	switch {
	case strings.HasPrefix(name, "scene_"), strings.HasPrefix(name, "norm_"):
		return true
	case strings.HasSuffix(name, ".part"), strings.HasSuffix(name, ".verify"):
		return true
	default:
		return false
	}
}
