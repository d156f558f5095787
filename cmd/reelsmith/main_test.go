package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/deps"
	"reelsmith/internal/job"
	"reelsmith/internal/jobstore"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/workflow"
)

// storeWorkflow serves reads from a memory job store; submissions are stored
// as PENDING and never driven.
type storeWorkflow struct {
	store    jobstore.Store
	mu       sync.Mutex
	canceled []string
}

func (w *storeWorkflow) Start(context.Context) error { return nil }
func (w *storeWorkflow) Stop()                       {}

func (w *storeWorkflow) Submit(ctx context.Context, prompt string, sceneCount int) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "", "submit", "prompt is required", nil)
	}
	j := job.New(job.NewID(), prompt, sceneCount, time.Now())
	if err := w.store.Create(ctx, j); err != nil {
		return "", err
	}
	return j.ID, nil
}

func (w *storeWorkflow) Status(ctx context.Context, id string) (job.View, error) {
	return jobstore.View(ctx, w.store, id)
}

func (w *storeWorkflow) FinalArtifact(ctx context.Context, id string) (job.MediaHandle, error) {
	return jobstore.FinalArtifact(ctx, w.store, id)
}

func (w *storeWorkflow) Cancel(ctx context.Context, id string) error {
	j, err := w.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.State.Terminal() {
		return fmt.Errorf("%w: %s", workflow.ErrTerminal, id)
	}
	w.mu.Lock()
	w.canceled = append(w.canceled, id)
	w.mu.Unlock()
	return nil
}

func (w *storeWorkflow) Delete(ctx context.Context, id string) (job.View, error) {
	j, err := w.store.Get(ctx, id)
	if err != nil {
		return job.View{}, err
	}
	if !j.State.Terminal() {
		return job.View{}, fmt.Errorf("%w: %s", workflow.ErrActive, id)
	}
	if err := w.store.Delete(ctx, id); err != nil {
		return job.View{}, err
	}
	return j.View(), nil
}

func (w *storeWorkflow) List(ctx context.Context, states ...job.State) ([]job.View, error) {
	jobs, err := w.store.List(ctx, states...)
	if err != nil {
		return nil, err
	}
	out := make([]job.View, len(jobs))
	for i, j := range jobs {
		out[i] = j.View()
	}
	return out, nil
}

func (w *storeWorkflow) Summary(ctx context.Context) workflow.StatusSummary {
	counts := make(map[job.State]int)
	jobs, _ := w.store.List(ctx)
	for _, j := range jobs {
		counts[j.State]++
	}
	return workflow.StatusSummary{Running: true, JobCounts: counts}
}

type cliTestEnv struct {
	store      jobstore.Store
	workflow   *storeWorkflow
	apiURL     string
	configPath string
	outputDir  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithMemoryStore())
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg.Paths.StagingDir, cfg.Paths.OutputDir, cfg.Paths.LogDir)

	store := testsupport.MustOpenStore(t, cfg)
	wf := &storeWorkflow{store: store}
	d, err := daemon.New(cfg, logging.NewNop(), wf, daemon.WithDependencyCheck(func() []deps.Status {
		return []deps.Status{{Name: "FFmpeg", Command: "/usr/bin/ffmpeg", Available: true}}
	}))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)

	return &cliTestEnv{
		store:      store,
		workflow:   wf,
		apiURL:     srv.URL,
		configPath: configPath,
		outputDir:  cfg.Paths.OutputDir,
	}
}

func writeTestConfig(t *testing.T, path, staging, output, logs string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
staging_dir = %q
output_dir = %q
log_dir = %q
api_bind = "127.0.0.1:1"

[workflow]
store = "memory"
`, staging, output, logs)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath, "--api", env.apiURL}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func TestCLISubmitListAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "submit", "--scenes", "3", "A", "neon", "city")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Submitted job vid_")
	id := strings.TrimSpace(strings.TrimPrefix(out, "Submitted job "))

	stored, err := env.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("stored job: %v", err)
	}
	if stored.Prompt != "A neon city" || stored.SceneCount != 3 {
		t.Fatalf("unexpected stored job: %+v", stored)
	}

	out, _, err = runCLI(t, env, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "pending")
	requireContains(t, out, "0/3")

	out, _, err = runCLI(t, env, "status", id)
	if err != nil {
		t.Fatalf("status <id>: %v", err)
	}
	requireContains(t, out, "Job "+id)
	requireContains(t, out, "Queued")

	out, _, err = runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running:")
	requireContains(t, out, "pending:")
	requireContains(t, out, "FFmpeg:")
}

func TestCLIJobsListEmptyAndJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No jobs")

	out, _, err = runCLI(t, env, "jobs", "list", "--json")
	if err != nil {
		t.Fatalf("jobs list --json: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", out)
	}
}

func TestCLIStatusShowsFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	j := testsupport.NewJob(t, env.store, "city", 3)
	idx := 1
	j.State = job.StateFailed
	j.Failure = &job.FailureCause{Stage: job.StateVideo, Kind: services.KindPermanent, Detail: "policy violation", SceneIndex: &idx}
	if err := env.store.Update(context.Background(), j); err != nil {
		t.Fatalf("update: %v", err)
	}

	out, _, err := runCLI(t, env, "status", j.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "permanent_external during video (scene 1)")
	requireContains(t, out, "policy violation")
}

func TestCLICancel(t *testing.T) {
	env := setupCLITestEnv(t)
	running := testsupport.NewJob(t, env.store, "city", 2)

	out, _, err := runCLI(t, env, "cancel", running.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Cancellation requested for "+running.ID)
	if len(env.workflow.canceled) != 1 {
		t.Fatalf("canceled = %v", env.workflow.canceled)
	}

	_, _, err = runCLI(t, env, "cancel", "vid_doesnotexist")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestCLIJobsDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	running := testsupport.NewJob(t, env.store, "city", 2)
	finished := testsupport.NewJob(t, env.store, "city", 2)
	finished.State = job.StateFailed
	if err := env.store.Update(context.Background(), finished); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, _, err := runCLI(t, env, "jobs", "delete", running.ID)
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected 409 for a running job, got %v", err)
	}

	out, _, err := runCLI(t, env, "jobs", "delete", finished.ID)
	if err != nil {
		t.Fatalf("jobs delete: %v", err)
	}
	requireContains(t, out, "Deleted job "+finished.ID+" (failed)")
	if _, err := env.store.Get(context.Background(), finished.ID); err == nil {
		t.Fatal("deleted job still stored")
	}
}

func TestCLIDownload(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	pending := testsupport.NewJob(t, env.store, "city", 1)
	target := filepath.Join(t.TempDir(), "out.mp4")
	if _, _, err := runCLI(t, env, "download", pending.ID, "--output", target); err == nil {
		t.Fatal("expected download of unfinished job to fail")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("no file should be written for an unfinished job: %v", err)
	}

	done := testsupport.NewJob(t, env.store, "city", 1)
	artifact := filepath.Join(env.outputDir, done.ID+".mp4")
	testsupport.WriteContent(t, artifact, []byte("captioned-video"))
	done.State = job.StateDone
	done.FinalArtifact = job.MediaHandle{Location: artifact, Format: job.FormatMP4H264}
	if err := env.store.Update(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	out, _, err := runCLI(t, env, "download", done.ID, "--output", target)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	requireContains(t, out, "Saved "+target)
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "captioned-video" {
		t.Fatalf("downloaded %q, %v", data, err)
	}
}

func TestCLIConnectionRefused(t *testing.T) {
	env := setupCLITestEnv(t)
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--config", env.configPath, "jobs", "list"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "127.0.0.1:1") {
		t.Fatalf("expected connection error naming the bind, got %v", err)
	}
}

func TestCLIConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "reelsmith", "config.toml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out.String(), "Wrote sample configuration to "+target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	cmd = newRootCommand()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected existing config error, got %v", err)
	}

	env := setupCLITestEnv(t)
	stdout, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "Config path: "+env.configPath)
	requireContains(t, stdout, "Configuration valid")
}

func TestCLITestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestCLIStagingListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	out, _, err := runCLI(t, env, "staging", "list")
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	requireContains(t, out, "No job workspaces")

	old := filepath.Join(cfg.Paths.StagingDir, "vid_000000000001")
	testsupport.WriteContent(t, filepath.Join(old, "scene_00.mp4"), []byte("12345"))
	past := time.Now().Add(-5 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	fresh := filepath.Join(cfg.Paths.StagingDir, "vid_000000000002")
	testsupport.WriteContent(t, filepath.Join(fresh, "scene_00.mp4"), []byte("1"))

	out, _, err = runCLI(t, env, "staging", "list")
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	requireContains(t, out, "vid_000000000001")
	requireContains(t, out, "2 workspaces, 6 B total")

	out, _, err = runCLI(t, env, "staging", "clean", "--older-than", "1h")
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "Removed "+old)
	requireContains(t, out, "1 workspaces older than 1h0m0s removed")
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh workspace removed: %v", err)
	}
}
