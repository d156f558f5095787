package job

import (
	"fmt"
	"time"
)

// SceneView is the read-only projection of a scene.
type SceneView struct {
	Index    int         `json:"index"`
	Status   SceneStatus `json:"status"`
	Dialogue string      `json:"dialogue,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// View is the read-only projection returned by status queries.
type View struct {
	ID          string        `json:"id"`
	Prompt      string        `json:"prompt"`
	State       State         `json:"state"`
	SceneCount  int           `json:"scene_count"`
	ScenesDone  int           `json:"scenes_done"`
	Percent     int           `json:"percent"`
	CurrentStep string        `json:"current_step"`
	Scenes      []SceneView   `json:"scenes,omitempty"`
	Artifact    *MediaHandle  `json:"artifact,omitempty"`
	Failure     *FailureCause `json:"failure,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// band is the [start, end] progress percentage of a stage.
type band struct{ start, end int }

var progressBands = map[State]band{
	StatePending:    {0, 0},
	StateScripting:  {0, 15},
	StateImage:      {15, 25},
	StateVideo:      {25, 70},
	StateAssembling: {70, 85},
	StateCaptioning: {85, 100},
	StateDone:       {100, 100},
}

// View projects the job for status readers. The final artifact is exposed
// only once the job is DONE.
func (j *Job) View() View {
	v := View{
		ID:          j.ID,
		Prompt:      j.Prompt,
		State:       j.State,
		SceneCount:  j.SceneCount,
		ScenesDone:  j.ScenesDone(),
		Percent:     j.percent(),
		CurrentStep: j.currentStep(),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if len(j.Scenes) > 0 {
		v.Scenes = make([]SceneView, len(j.Scenes))
		for i, scene := range j.Scenes {
			v.Scenes[i] = SceneView{
				Index:    scene.Index,
				Status:   scene.Status,
				Dialogue: scene.Dialogue,
				Error:    scene.Error,
			}
		}
	}
	if j.State == StateDone && !j.FinalArtifact.IsZero() {
		artifact := j.FinalArtifact
		v.Artifact = &artifact
	}
	if j.Failure != nil {
		cause := *j.Failure
		v.Failure = &cause
	}
	return v
}

func (j *Job) percent() int {
	state := j.State
	if state == StateFailed {
		if j.Failure == nil {
			return 0
		}
		state = j.Failure.Stage
	}
	b, ok := progressBands[state]
	if !ok {
		return 0
	}
	if state == StateVideo && j.SceneCount > 0 {
		return b.start + (b.end-b.start)*j.ScenesDone()/j.SceneCount
	}
	return b.start
}

func (j *Job) currentStep() string {
	switch j.State {
	case StatePending:
		return "Queued"
	case StateScripting:
		return "Writing script"
	case StateImage:
		return "Generating reference image"
	case StateVideo:
		return fmt.Sprintf("Generating scene videos (%d/%d)", j.ScenesDone(), j.SceneCount)
	case StateAssembling:
		return "Stitching scenes"
	case StateCaptioning:
		return "Burning captions"
	case StateDone:
		return "Completed"
	case StateFailed:
		if j.Failure != nil {
			return "Failed: " + j.Failure.String()
		}
		return "Failed"
	default:
		return string(j.State)
	}
}
