package preflight

import (
	"context"
	"strings"

	"reelsmith/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks that gate the daemon: writable directories and
// reachable external collaborators. The LLM check is skipped when scripts come
// from a file.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	if strings.TrimSpace(cfg.Pipeline.ScriptFile) == "" {
		results = append(results, CheckLLM(ctx, cfg.LLM))
	}
	results = append(results, CheckGeneration(ctx, cfg.Generation))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
