package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"reelsmith/internal/assembler"
	"reelsmith/internal/captions"
	"reelsmith/internal/config"
	"reelsmith/internal/job"
	"reelsmith/internal/jobstore"
	"reelsmith/internal/notifications"
	"reelsmith/internal/services"
	"reelsmith/internal/staging"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/workflow"
)

type stubScripts struct {
	err error
}

func (s *stubScripts) GenerateScript(_ context.Context, prompt string, sceneCount int) (job.Script, error) {
	if s.err != nil {
		return job.Script{}, s.err
	}
	script := job.Script{Character: "a courier in a glowing jacket", Background: prompt + " at night"}
	for i := 0; i < sceneCount; i++ {
		script.Scenes = append(script.Scenes, job.SceneScript{
			Number:   i + 1,
			Visual:   fmt.Sprintf("shot %d of %s", i+1, prompt),
			Dialogue: fmt.Sprintf("line %d", i+1),
		})
	}
	return script, nil
}

type stubImages struct {
	err error
}

func (s *stubImages) GenerateReferenceImage(_ context.Context, prompt string) (job.MediaHandle, error) {
	if s.err != nil {
		return job.MediaHandle{}, s.err
	}
	return job.NewRemoteHandle("https://cdn.example.test/ref.png", job.FormatPNG)
}

// stubVideos writes fake scene clips into the job workspace.
type stubVideos struct {
	t          *testing.T
	stagingDir string
	seconds    float64
	// delay returns how long scene index waits before finishing.
	delay func(index int) time.Duration
	// fail returns a non-nil error for scenes that should fail.
	fail func(index int) error
	// block makes every request wait for cancellation.
	block   bool
	started chan int

	mu         sync.Mutex
	dispatched []int
	references []job.MediaHandle
	completed  []int
}

func (s *stubVideos) GenerateScene(ctx context.Context, req job.SceneRequest) (job.MediaHandle, error) {
	s.mu.Lock()
	s.dispatched = append(s.dispatched, req.Index)
	s.references = append(s.references, req.Reference)
	s.mu.Unlock()
	if s.started != nil {
		s.started <- req.Index
	}
	if s.block {
		<-ctx.Done()
		return job.MediaHandle{}, ctx.Err()
	}
	if s.delay != nil {
		select {
		case <-time.After(s.delay(req.Index)):
		case <-ctx.Done():
			return job.MediaHandle{}, ctx.Err()
		}
	}
	if s.fail != nil {
		if err := s.fail(req.Index); err != nil {
			return job.MediaHandle{}, err
		}
	}
	ws, err := staging.Open(s.stagingDir, req.JobID)
	if err != nil {
		return job.MediaHandle{}, err
	}
	path := ws.ScenePath(req.Index)
	testsupport.WriteFakeClip(s.t, path, s.seconds, true)
	s.mu.Lock()
	s.completed = append(s.completed, req.Index)
	s.mu.Unlock()
	return job.MediaHandle{Location: path, Format: job.FormatMP4H264}, nil
}

func (s *stubVideos) Dispatched() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.dispatched...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Event(nil), n.events...)
}

type harness struct {
	cfg      *config.Config
	store    jobstore.Store
	media    *testsupport.FakeMedia
	scripts  *stubScripts
	images   *stubImages
	videos   *stubVideos
	notifier *recordingNotifier
	fontErr  error
	manager  *workflow.Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Pipeline.VideoConcurrency = 3
	h := &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		media:    &testsupport.FakeMedia{},
		scripts:  &stubScripts{},
		images:   &stubImages{},
		videos:   &stubVideos{t: t, stagingDir: cfg.Paths.StagingDir, seconds: 8},
		notifier: &recordingNotifier{},
	}
	return h
}

func (h *harness) start(t *testing.T) *workflow.Manager {
	t.Helper()
	locate := func() (string, error) { return "ffmpeg", nil }
	locateFont := func(name string) (string, error) {
		if h.fontErr != nil {
			return "", h.fontErr
		}
		return "/fonts/LiberationSans-Bold.ttf", nil
	}
	stages := workflow.Stages{
		Scripts:   h.scripts,
		Images:    h.images,
		Videos:    h.videos,
		Assembler: assembler.NewWithExecutor(locate, h.media, h.media, assembler.SettingsFromConfig(h.cfg), nil),
		Captions:  captions.NewWithExecutor(locate, locateFont, h.media, h.media, captions.SettingsFromConfig(h.cfg), nil),
	}
	h.manager = workflow.NewManager(h.cfg, h.store, stages, nil, workflow.WithNotifier(h.notifier))
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
	return h.manager
}

// await waits for the job runner to exit and returns the final view.
func (h *harness) await(t *testing.T, id string) job.View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.manager.Wait(ctx, id); err != nil {
		t.Fatalf("job %s did not finish: %v", id, err)
	}
	view, err := h.manager.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return view
}

func permanent(msg string) error {
	return services.Wrap(services.ErrPermanent, "video", "kie video task", msg, nil)
}
