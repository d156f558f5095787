package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reelsmith/internal/config"
	"reelsmith/internal/deps"
	"reelsmith/internal/services"
	"reelsmith/internal/services/kie"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/toolchain"
)

const healthTimeout = 30 * time.Second

// CheckLLM verifies that the script-writing LLM is reachable and the key is
// valid. It uses a single attempt (no retries).
func CheckLLM(ctx context.Context, cfg config.LLM) Result {
	const name = "Script LLM"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckGeneration verifies the generation vendor accepts the API key.
func CheckGeneration(ctx context.Context, cfg config.Generation, opts ...kie.Option) Result {
	const name = "Generation API"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := kie.New(cfg, opts...).HealthCheck(checkCtx); err != nil {
		if errors.Is(err, services.ErrPermanent) {
			return Result{Name: name, Detail: "auth failed (" + summarizeError(err) + ")"}
		}
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckToolchain resolves ffmpeg, ffprobe, and the caption font through the
// process toolchain. Results are cached by the toolchain, so this is cheap
// after the first call.
func CheckToolchain(tc *toolchain.Toolchain, fontName string) Result {
	const name = "Media toolchain"
	if tc == nil {
		return Result{Name: name, Detail: "not initialized"}
	}
	report := tc.Check(fontName)
	if !report.Resolved {
		return Result{Name: name, Detail: strings.Join(report.Problems, "; ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("ffmpeg %s, font %s", report.FFmpeg, report.Font)}
}

// CheckSystemDeps evaluates the binaries the media stages shell out to. Both
// the daemon status endpoint and the CLI deps command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	return deps.CheckBinaries(deps.MediaRequirements(cfg.Media))
}

// summarizeError produces a human-readable summary for health check failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, services.ErrTimeout) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
