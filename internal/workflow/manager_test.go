package workflow_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"reelsmith/internal/job"
	"reelsmith/internal/jobstore"
	"reelsmith/internal/notifications"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/workflow"
)

func TestNeonCityFiveScenes(t *testing.T) {
	h := newHarness(t)
	// Later scenes finish first.
	h.videos.delay = func(i int) time.Duration { return time.Duration(5-i) * 10 * time.Millisecond }
	m := h.start(t)

	id, err := m.Submit(context.Background(), "neon city", 5)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(id, "vid_") || len(id) != len("vid_")+12 {
		t.Fatalf("unexpected job id %q", id)
	}

	view := h.await(t, id)
	if view.State != job.StateDone {
		t.Fatalf("expected done, got %s (%+v)", view.State, view.Failure)
	}
	if view.Percent != 100 || view.ScenesDone != 5 || len(view.Scenes) != 5 {
		t.Fatalf("unexpected progress %+v", view)
	}
	for i, scene := range view.Scenes {
		if scene.Index != i || scene.Status != job.SceneDone {
			t.Fatalf("scene %d = %+v", i, scene)
		}
	}

	artifact, err := m.FinalArtifact(context.Background(), id)
	if err != nil {
		t.Fatalf("FinalArtifact: %v", err)
	}
	if artifact.Location != filepath.Join(h.cfg.Paths.OutputDir, id+".mp4") {
		t.Fatalf("unexpected artifact location %s", artifact.Location)
	}
	if got := testsupport.ClipDuration(t, artifact.Location); math.Abs(got-20) > 1e-6 {
		t.Fatalf("expected 5 half-speed 8s scenes = 20s, got %v", got)
	}
	if view.Artifact == nil || view.Artifact.Location != artifact.Location {
		t.Fatalf("view should expose artifact, got %+v", view.Artifact)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.OutputDir, id+".srt")); err != nil {
		t.Fatalf("expected srt sidecar: %v", err)
	}

	calls := h.media.Calls()
	if len(calls) != 7 {
		t.Fatalf("expected 5 normalize + join + caption calls, got %d", len(calls))
	}
	var joined []string
	join := calls[5]
	for i := 0; i < len(join)-1; i++ {
		if join[i] == "-i" {
			joined = append(joined, filepath.Base(join[i+1]))
		}
	}
	want := []string{"norm_00.mp4", "norm_01.mp4", "norm_02.mp4", "norm_03.mp4", "norm_04.mp4"}
	if !slices.Equal(joined, want) {
		t.Fatalf("scenes joined out of order: %v", joined)
	}
	caption := strings.Join(calls[6], " ")
	for i, window := range []string{"gte(t,0.000)*lt(t,4.000)", "gte(t,16.000)*lt(t,20.000)"} {
		if !strings.Contains(caption, window) {
			t.Fatalf("caption window %d missing %q", i, window)
		}
	}

	h.videos.mu.Lock()
	refs := append([]job.MediaHandle(nil), h.videos.references...)
	completed := append([]int(nil), h.videos.completed...)
	h.videos.mu.Unlock()
	for _, ref := range refs {
		if ref.Location != "https://cdn.example.test/ref.png" {
			t.Fatalf("scene used a different reference image: %+v", ref)
		}
	}
	if slices.IsSorted(completed) {
		t.Fatalf("expected out-of-order completion, got %v", completed)
	}

	if _, err := os.Stat(filepath.Join(h.cfg.Paths.StagingDir, id)); !os.IsNotExist(err) {
		t.Fatalf("workspace should be removed after success, stat err %v", err)
	}
	if events := h.notifier.Events(); !slices.Equal(events, []notifications.Event{notifications.EventJobCompleted}) {
		t.Fatalf("unexpected notifications %v", events)
	}
}

func TestScenePermanentFailureFailsJob(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	h.videos.fail = func(i int) error {
		if i == 2 {
			return permanent("content policy")
		}
		return nil
	}
	m := h.start(t)

	id, err := m.Submit(context.Background(), "neon city", 4)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view := h.await(t, id)
	if view.State != job.StateFailed || view.Failure == nil {
		t.Fatalf("expected failed job, got %+v", view)
	}
	if view.Failure.Stage != job.StateVideo || view.Failure.Kind != services.KindPermanent {
		t.Fatalf("unexpected failure %+v", view.Failure)
	}
	if view.Failure.SceneIndex == nil || *view.Failure.SceneIndex != 2 {
		t.Fatalf("expected scene 2 in failure, got %v", view.Failure.SceneIndex)
	}
	if view.Artifact != nil {
		t.Fatal("failed job must not expose an artifact")
	}
	if _, err := m.FinalArtifact(context.Background(), id); !errors.Is(err, jobstore.ErrNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.OutputDir, id+".mp4")); !os.IsNotExist(err) {
		t.Fatalf("no output expected, stat err %v", err)
	}
	if n := len(h.media.Calls()); n != 0 {
		t.Fatalf("assembly must not run on an incomplete scene set, got %d calls", n)
	}
	if events := h.notifier.Events(); !slices.Equal(events, []notifications.Event{notifications.EventJobFailed}) {
		t.Fatalf("unexpected notifications %v", events)
	}
}

func TestCancelDuringVideoStopsDispatch(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	h.cfg.Pipeline.VideoConcurrency = 1
	h.videos.block = true
	h.videos.started = make(chan int, 8)
	m := h.start(t)

	id, err := m.Submit(context.Background(), "neon city", 5)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-h.videos.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first scene never dispatched")
	}
	if err := m.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	view := h.await(t, id)
	if view.State != job.StateFailed || view.Failure == nil || view.Failure.Kind != services.KindCanceled {
		t.Fatalf("expected canceled failure, got %+v", view)
	}
	if view.Failure.Stage != job.StateVideo {
		t.Fatalf("expected failure during video, got %s", view.Failure.Stage)
	}
	if got := h.videos.Dispatched(); len(got) != 1 {
		t.Fatalf("expected a single dispatch, got %v", got)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.StagingDir, id)); !os.IsNotExist(err) {
		t.Fatalf("workspace should be removed after cancel, stat err %v", err)
	}
	if err := m.Cancel(context.Background(), id); !errors.Is(err, workflow.ErrTerminal) {
		t.Fatalf("expected terminal error on second cancel, got %v", err)
	}
}

func TestMissingFontKeepsAssembledClip(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	h.fontErr = services.Wrap(services.ErrFontNotFound, "toolchain", "locate font", "Liberation Sans", nil)
	m := h.start(t)

	id, err := m.Submit(context.Background(), "neon city", 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view := h.await(t, id)
	if view.State != job.StateFailed || view.Failure.Kind != services.KindFontMissing || view.Failure.Stage != job.StateCaptioning {
		t.Fatalf("expected font failure during captioning, got %+v", view.Failure)
	}
	if view.Artifact != nil {
		t.Fatal("assembled clip must not be exposed as the final artifact")
	}
	stored, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.AssembledClip.IsZero() || !stored.FinalArtifact.IsZero() {
		t.Fatalf("unexpected handles assembled=%v final=%v", stored.AssembledClip, stored.FinalArtifact)
	}
	if _, err := os.Stat(stored.AssembledClip.Location); err != nil {
		t.Fatalf("assembled clip should survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(stored.AssembledClip.Location), "scene_00.mp4")); !os.IsNotExist(err) {
		t.Fatalf("scene downloads should be pruned, stat err %v", err)
	}
}

func TestTransientImageFailureIsClassified(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	h.images.err = services.Wrap(services.ErrTransient, "image", "kie image task", "rate limited", nil)
	m := h.start(t)

	id, err := m.Submit(context.Background(), "neon city", 3)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view := h.await(t, id)
	if view.Failure == nil || view.Failure.Kind != services.KindTransient || view.Failure.Stage != job.StateImage {
		t.Fatalf("unexpected failure %+v", view.Failure)
	}
	if view.Percent != 15 {
		t.Fatalf("expected progress frozen at the image band start, got %d", view.Percent)
	}
	if len(h.videos.Dispatched()) != 0 {
		t.Fatal("no scene should be dispatched after an image failure")
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	m := h.start(t)

	cases := []struct {
		name   string
		prompt string
		scenes int
	}{
		{"zero scenes", "neon city", 0},
		{"too many scenes", "neon city", 11},
		{"negative scenes", "neon city", -2},
		{"empty prompt", "   ", 3},
		{"long prompt", strings.Repeat("a", workflow.MaxPromptLength+1), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Submit(context.Background(), tc.prompt, tc.scenes); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	views, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("rejected submissions must not create jobs, got %d", len(views))
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	m := workflow.NewManager(h.cfg, h.store, workflow.Stages{}, nil)
	if _, err := m.Submit(context.Background(), "neon city", 2); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected not running, got %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected Start to reject missing stages")
	}
}

func TestStartRecoversInterruptedJobs(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	stale := testsupport.NewJob(t, h.store, "old prompt", 2)
	stale.State = job.StateVideo
	if err := h.store.Update(context.Background(), stale); err != nil {
		t.Fatalf("Update: %v", err)
	}
	m := h.start(t)

	view, err := m.Status(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.State != job.StateFailed || view.Failure == nil || view.Failure.Kind != services.KindInternal || view.Failure.Stage != job.StateVideo {
		t.Fatalf("expected recovered failure, got %+v", view)
	}
}

func TestStopFailsRunningJobsWithoutNotifying(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	h.videos.block = true
	h.videos.started = make(chan int, 8)
	m := h.start(t)

	id, err := m.Submit(context.Background(), "neon city", 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-h.videos.started
	m.Stop()

	view, err := m.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.State != job.StateFailed || view.Failure.Kind != services.KindCanceled {
		t.Fatalf("expected canceled failure after stop, got %+v", view)
	}
	if events := h.notifier.Events(); len(events) != 0 {
		t.Fatalf("shutdown must not notify, got %v", events)
	}
	if _, err := m.Submit(context.Background(), "neon city", 2); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected not running after stop, got %v", err)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	m := h.start(t)
	if _, err := m.Status(context.Background(), "vid_000000000000"); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := m.Cancel(context.Background(), "vid_000000000000"); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected not found on cancel, got %v", err)
	}
	summary := m.Summary(context.Background())
	if !summary.Running || summary.ActiveJobs != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestDeleteFinishedJobRemovesRecordAndFiles(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	m := h.start(t)

	id, err := m.Submit(context.Background(), "neon city", 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if view := h.await(t, id); view.State != job.StateDone {
		t.Fatalf("expected done, got %s (%+v)", view.State, view.Failure)
	}
	published := []string{
		filepath.Join(h.cfg.Paths.OutputDir, id+".mp4"),
		filepath.Join(h.cfg.Paths.OutputDir, id+".srt"),
	}
	keep := filepath.Join(h.cfg.Paths.OutputDir, "other.mp4")
	testsupport.WriteFile(t, keep, 1)

	view, err := m.Delete(context.Background(), id)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if view.ID != id || view.State != job.StateDone {
		t.Fatalf("unexpected deleted view %+v", view)
	}
	if _, err := m.Status(context.Background(), id); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	for _, path := range published {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed, stat err %v", path, err)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("unrelated output removed: %v", err)
	}
	if _, err := m.Delete(context.Background(), id); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteRefusesActiveJob(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	h.videos.block = true
	h.videos.started = make(chan int, 8)
	m := h.start(t)

	id, err := m.Submit(context.Background(), "neon city", 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-h.videos.started
	if _, err := m.Delete(context.Background(), id); !errors.Is(err, workflow.ErrActive) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected active error, got %v", err)
	}

	if err := m.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if view := h.await(t, id); view.State != job.StateFailed {
		t.Fatalf("expected failed after cancel, got %s", view.State)
	}
	if _, err := m.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete after cancel: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.StagingDir, id)); !os.IsNotExist(err) {
		t.Fatalf("workspace should be gone, stat err %v", err)
	}
}

// gatedStore holds Create until release is closed.
type gatedStore struct {
	jobstore.Store
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Create(ctx context.Context, j *job.Job) error {
	close(s.entered)
	<-s.release
	return s.Store.Create(ctx, j)
}

func TestSubmitDoesNotHoldManagerDuringStoreWrite(t *testing.T) {
	h := newHarness(t, testsupport.WithMemoryStore())
	gate := &gatedStore{Store: h.store, entered: make(chan struct{}), release: make(chan struct{})}
	h.store = gate
	m := h.start(t)

	type result struct {
		id  string
		err error
	}
	submitted := make(chan result, 1)
	go func() {
		id, err := m.Submit(context.Background(), "neon city", 2)
		submitted <- result{id, err}
	}()
	<-gate.entered

	summarized := make(chan workflow.StatusSummary, 1)
	go func() { summarized <- m.Summary(context.Background()) }()
	select {
	case summary := <-summarized:
		if !summary.Running {
			t.Fatalf("unexpected summary %+v", summary)
		}
	case <-time.After(2 * time.Second):
		close(gate.release)
		t.Fatal("Summary blocked behind a pending store write")
	}

	// Stop wins the race; the stored job must not be left pending.
	m.Stop()
	close(gate.release)
	res := <-submitted
	if !errors.Is(res.err, workflow.ErrNotRunning) {
		t.Fatalf("expected not running, got %v", res.err)
	}
	jobs, err := h.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].State != job.StateFailed || jobs[0].Failure == nil || jobs[0].Failure.Kind != services.KindCanceled {
		t.Fatalf("expected one canceled job, got %+v", jobs)
	}
}
