package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/services"
)

// Scene is one ordinal segment of the final video.
type Scene struct {
	Index    int         `json:"index"`
	Script   string      `json:"script"`
	Dialogue string      `json:"dialogue"`
	Video    MediaHandle `json:"video"`
	Status   SceneStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// FailureCause records why a job failed. It is attached once.
type FailureCause struct {
	Stage      State         `json:"stage"`
	Kind       services.Kind `json:"kind"`
	Detail     string        `json:"detail"`
	SceneIndex *int          `json:"scene_index,omitempty"`
}

func (c FailureCause) String() string {
	var b strings.Builder
	b.WriteString(string(c.Kind))
	if c.Stage != "" {
		b.WriteString(" during ")
		b.WriteString(string(c.Stage))
	}
	if c.SceneIndex != nil {
		fmt.Fprintf(&b, " (scene %d)", *c.SceneIndex)
	}
	if c.Detail != "" {
		b.WriteString(": ")
		b.WriteString(c.Detail)
	}
	return b.String()
}

// CauseFromError classifies err into a FailureCause for stage.
func CauseFromError(stage State, err error) FailureCause {
	details := services.Details(err)
	cause := FailureCause{
		Stage:  stage,
		Kind:   details.Kind,
		Detail: details.Message,
	}
	if cause.Kind == "" {
		cause.Kind = services.KindInternal
	}
	if details.HasScene {
		idx := details.SceneIndex
		cause.SceneIndex = &idx
	}
	return cause
}

// Job is one prompt-to-video request.
type Job struct {
	ID             string        `json:"id"`
	Prompt         string        `json:"prompt"`
	SceneCount     int           `json:"scene_count"`
	Character      string        `json:"character,omitempty"`
	State          State         `json:"state"`
	Scenes         []Scene       `json:"scenes"`
	ReferenceImage MediaHandle   `json:"reference_image"`
	AssembledClip  MediaHandle   `json:"assembled_clip"`
	FinalArtifact  MediaHandle   `json:"final_artifact"`
	CaptionTrack   MediaHandle   `json:"caption_track"`
	Failure        *FailureCause `json:"failure,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewID returns an opaque job identifier.
func NewID() string {
	return "vid_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// New creates a pending job.
func New(id, prompt string, sceneCount int, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:         id,
		Prompt:     prompt,
		SceneCount: sceneCount,
		State:      StatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy safe to hand to readers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Scenes != nil {
		out.Scenes = make([]Scene, len(j.Scenes))
		copy(out.Scenes, j.Scenes)
	}
	if j.Failure != nil {
		cause := *j.Failure
		if cause.SceneIndex != nil {
			idx := *cause.SceneIndex
			cause.SceneIndex = &idx
		}
		out.Failure = &cause
	}
	return &out
}

// Advance moves the job to its success successor.
func (j *Job) Advance(to State, now time.Time) error {
	if to == StateFailed {
		return fmt.Errorf("job %s: use Fail to enter %s", j.ID, StateFailed)
	}
	if !CanTransition(j.State, to) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", j.ID, j.State, to)
	}
	j.State = to
	j.UpdatedAt = now.UTC()
	return nil
}

// Fail moves a non-terminal job to FAILED and records cause. A cause already
// attached is never replaced.
func (j *Job) Fail(cause FailureCause, now time.Time) error {
	if j.State.Terminal() {
		return fmt.Errorf("job %s: already %s", j.ID, j.State)
	}
	if cause.Stage == "" {
		cause.Stage = j.State
	}
	if cause.Kind == "" {
		cause.Kind = services.KindInternal
	}
	if j.Failure == nil {
		j.Failure = &cause
	}
	j.State = StateFailed
	j.UpdatedAt = now.UTC()
	return nil
}

// SetScenes installs the scene list produced by script writing. The count is
// fixed afterwards.
func (j *Job) SetScenes(scenes []Scene) error {
	if len(j.Scenes) > 0 {
		return fmt.Errorf("job %s: scenes already set", j.ID)
	}
	if len(scenes) != j.SceneCount {
		return fmt.Errorf("job %s: expected %d scenes, got %d", j.ID, j.SceneCount, len(scenes))
	}
	out := make([]Scene, len(scenes))
	for i, scene := range scenes {
		scene.Index = i
		if scene.Status == "" {
			scene.Status = ScenePending
		}
		out[i] = scene
	}
	j.Scenes = out
	return nil
}

// ScenesDone counts scenes whose video is ready.
func (j *Job) ScenesDone() int {
	done := 0
	for _, scene := range j.Scenes {
		if scene.Status == SceneDone {
			done++
		}
	}
	return done
}

// SceneVideos returns the scene video handles in ordinal order.
func (j *Job) SceneVideos() []MediaHandle {
	out := make([]MediaHandle, len(j.Scenes))
	for _, scene := range j.Scenes {
		if scene.Index >= 0 && scene.Index < len(out) {
			out[scene.Index] = scene.Video
		}
	}
	return out
}
