package job

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelsmith/internal/services"
	"reelsmith/internal/toolchain"
)

func TestAdvanceRejectsSkippingStages(t *testing.T) {
	j := New("vid_1", "neon city", 2, time.Now())
	if err := j.Advance(StateImage, time.Now()); err == nil {
		t.Fatal("expected pending -> image to be rejected")
	}
	if err := j.Advance(StateScripting, time.Now()); err != nil {
		t.Fatalf("advance to scripting: %v", err)
	}
	if err := j.Advance(StateFailed, time.Now()); err == nil {
		t.Fatal("expected Advance to refuse FAILED")
	}
}

func TestFailKeepsFirstCause(t *testing.T) {
	j := New("vid_1", "neon city", 2, time.Now())
	_ = j.Advance(StateScripting, time.Now())
	if err := j.Fail(FailureCause{Kind: services.KindPermanent, Detail: "policy"}, time.Now()); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if j.Failure.Stage != StateScripting {
		t.Fatalf("expected stage defaulted to scripting, got %s", j.Failure.Stage)
	}
	if err := j.Fail(FailureCause{Kind: services.KindInternal}, time.Now()); err == nil {
		t.Fatal("expected second Fail on terminal job to error")
	}
	if j.Failure.Kind != services.KindPermanent {
		t.Fatalf("cause replaced: %+v", j.Failure)
	}
}

func TestSetScenesFixesCount(t *testing.T) {
	j := New("vid_1", "neon city", 3, time.Now())
	if err := j.SetScenes([]Scene{{Script: "a"}, {Script: "b"}}); err == nil {
		t.Fatal("expected count mismatch error")
	}
	if err := j.SetScenes([]Scene{{Index: 9, Script: "a"}, {Script: "b"}, {Script: "c"}}); err != nil {
		t.Fatalf("SetScenes: %v", err)
	}
	for i, scene := range j.Scenes {
		if scene.Index != i || scene.Status != ScenePending {
			t.Fatalf("scene %d not normalized: %+v", i, scene)
		}
	}
	if err := j.SetScenes([]Scene{{}, {}, {}}); err == nil {
		t.Fatal("expected scenes to be immutable once set")
	}
}

func TestCloneIsDeep(t *testing.T) {
	j := New("vid_1", "neon city", 1, time.Now())
	_ = j.SetScenes([]Scene{{Script: "a"}})
	idx := 0
	j.Failure = &FailureCause{Kind: services.KindDecode, SceneIndex: &idx}
	clone := j.Clone()
	clone.Scenes[0].Script = "changed"
	*clone.Failure.SceneIndex = 4
	if j.Scenes[0].Script != "a" {
		t.Fatal("clone shares scenes")
	}
	if *j.Failure.SceneIndex != 0 {
		t.Fatal("clone shares failure scene index")
	}
}

func TestViewProgressBands(t *testing.T) {
	j := New("vid_1", "neon city", 4, time.Now())
	if v := j.View(); v.Percent != 0 || v.CurrentStep != "Queued" {
		t.Fatalf("unexpected pending view: %+v", v)
	}
	_ = j.Advance(StateScripting, time.Now())
	_ = j.SetScenes([]Scene{{}, {}, {}, {}})
	_ = j.Advance(StateImage, time.Now())
	if v := j.View(); v.Percent != 15 {
		t.Fatalf("expected 15%% at image, got %d", v.Percent)
	}
	_ = j.Advance(StateVideo, time.Now())
	j.Scenes[0].Status = SceneDone
	j.Scenes[2].Status = SceneDone
	v := j.View()
	if v.ScenesDone != 2 || v.Percent != 47 {
		t.Fatalf("expected 2 done at 47%%, got %d at %d", v.ScenesDone, v.Percent)
	}
	if !strings.Contains(v.CurrentStep, "2/4") {
		t.Fatalf("unexpected step: %q", v.CurrentStep)
	}
}

func TestViewHidesArtifactUntilDone(t *testing.T) {
	j := New("vid_1", "neon city", 1, time.Now())
	j.State = StateCaptioning
	j.AssembledClip = MediaHandle{Location: "/tmp/assembled.mp4", Format: FormatMP4H264}
	j.FinalArtifact = MediaHandle{Location: "/tmp/final.mp4", Format: FormatMP4H264}
	if v := j.View(); v.Artifact != nil {
		t.Fatal("artifact exposed before done")
	}
	_ = j.Fail(FailureCause{Kind: services.KindFontMissing}, time.Now())
	v := j.View()
	if v.Artifact != nil {
		t.Fatal("artifact exposed on failed job")
	}
	if v.Failure == nil || v.Failure.Stage != StateCaptioning || v.Failure.Kind != services.KindFontMissing {
		t.Fatalf("unexpected failure view: %+v", v.Failure)
	}
	if v.Percent != 85 {
		t.Fatalf("expected failed percent to freeze at stage start, got %d", v.Percent)
	}
}

func TestCauseFromErrorCarriesScene(t *testing.T) {
	err := services.WithScene(2, services.Wrap(services.ErrAssembly, "assembling", "normalize", "ffmpeg exited 1", errors.New("boom")))
	cause := CauseFromError(StateAssembling, err)
	if cause.Kind != services.KindAssembly {
		t.Fatalf("unexpected kind %s", cause.Kind)
	}
	if cause.SceneIndex == nil || *cause.SceneIndex != 2 {
		t.Fatalf("expected scene index 2, got %v", cause.SceneIndex)
	}
	if !strings.Contains(cause.String(), "scene 2") {
		t.Fatalf("unexpected cause string %q", cause.String())
	}
}

func TestCauseFromErrorOmitsCommandOutput(t *testing.T) {
	stderr := "[Parsed_drawtext_0 @ 0x5581] Cannot find a valid font for the family Sans\nError initializing filter"
	err := services.Wrap(services.ErrRender, "captioning", "burn captions", "ffmpeg failed",
		&toolchain.CommandError{Binary: "ffmpeg", Stderr: stderr, Err: errors.New("exit status 1")})

	cause := CauseFromError(StateCaptioning, err)
	if strings.Contains(cause.Detail, "Parsed_drawtext") || strings.Contains(cause.Detail, "0x5581") {
		t.Fatalf("detail leaked command output: %q", cause.Detail)
	}
	if !strings.Contains(cause.Detail, "ffmpeg: exit status 1") {
		t.Fatalf("detail should keep the command failure, got %q", cause.Detail)
	}
	if got := services.Details(err).Diagnostics; got != stderr {
		t.Fatalf("diagnostics = %q", got)
	}
}

func TestNewLocalHandleRequiresNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewLocalHandle(filepath.Join(dir, "missing.mp4"), FormatMP4H264); !errors.Is(err, services.ErrMissingInput) {
		t.Fatalf("expected missing input, got %v", err)
	}
	empty := filepath.Join(dir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocalHandle(empty, FormatMP4H264); !errors.Is(err, services.ErrMissingInput) {
		t.Fatalf("expected missing input for empty file, got %v", err)
	}
	if _, err := NewLocalHandle(dir, FormatMP4H264); !errors.Is(err, services.ErrMissingInput) {
		t.Fatalf("expected missing input for directory, got %v", err)
	}
	full := filepath.Join(dir, "scene.mp4")
	if err := os.WriteFile(full, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	handle, err := NewLocalHandle(full, FormatMP4H264)
	if err != nil {
		t.Fatalf("NewLocalHandle: %v", err)
	}
	if handle.Remote() || handle.IsZero() {
		t.Fatalf("unexpected handle %+v", handle)
	}
}

func TestNewRemoteHandle(t *testing.T) {
	h, err := NewRemoteHandle("https://cdn.example.com/a.png", FormatPNG)
	if err != nil || !h.Remote() {
		t.Fatalf("expected remote handle, got %+v, %v", h, err)
	}
	if _, err := NewRemoteHandle("ftp://x/y", FormatPNG); err == nil {
		t.Fatal("expected non-http url rejection")
	}
}

func TestNewIDShape(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, "vid_") || len(id) != 16 {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestScriptValidateAndConvert(t *testing.T) {
	script := Script{
		Character: "a courier in a yellow raincoat",
		Scenes: []SceneScript{
			{Number: 1, Visual: " rooftop chase ", Dialogue: " Go! "},
			{Number: 2, Visual: "alley jump", Dialogue: ""},
		},
	}
	if err := script.Validate(2); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := script.Validate(3); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error for wrong count, got %v", err)
	}
	scenes := script.ToScenes()
	if len(scenes) != 2 || scenes[0].Script != "rooftop chase" || scenes[0].Dialogue != "Go!" {
		t.Fatalf("unexpected scenes %+v", scenes)
	}
	if scenes[1].Index != 1 || scenes[1].Status != ScenePending {
		t.Fatalf("unexpected second scene %+v", scenes[1])
	}

	script.Scenes[1].Visual = "  "
	err := script.Validate(2)
	if idx, ok := services.SceneIndex(err); !ok || idx != 1 {
		t.Fatalf("expected scene 1 error, got %v", err)
	}
}
