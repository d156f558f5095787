package job

// State is the lifecycle position of a job.
type State string

const (
	StatePending    State = "pending"
	StateScripting  State = "scripting"
	StateImage      State = "image"
	StateVideo      State = "video"
	StateAssembling State = "assembling"
	StateCaptioning State = "captioning"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// pipeline is the success path in order. FAILED sits outside it.
var pipeline = []State{
	StatePending,
	StateScripting,
	StateImage,
	StateVideo,
	StateAssembling,
	StateCaptioning,
	StateDone,
}

var stateRank = func() map[State]int {
	ranks := make(map[State]int, len(pipeline))
	for i, s := range pipeline {
		ranks[s] = i
	}
	return ranks
}()

// AllStates returns every known state, success path first.
func AllStates() []State {
	out := make([]State, 0, len(pipeline)+1)
	out = append(out, pipeline...)
	return append(out, StateFailed)
}

// ParseState converts a stored string into a State.
func ParseState(value string) (State, bool) {
	s := State(value)
	return s, s.Valid()
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	if s == StateFailed {
		return true
	}
	_, ok := stateRank[s]
	return ok
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Next returns the single success successor of s.
func (s State) Next() (State, bool) {
	rank, ok := stateRank[s]
	if !ok || rank+1 >= len(pipeline) {
		return "", false
	}
	return pipeline[rank+1], true
}

// IsStage reports whether s is a working stage that calls a collaborator.
func (s State) IsStage() bool {
	switch s {
	case StateScripting, StateImage, StateVideo, StateAssembling, StateCaptioning:
		return true
	default:
		return false
	}
}

// CanTransition applies the closed transition table: each non-terminal state
// may move to its successor or to FAILED.
func CanTransition(from, to State) bool {
	if !from.Valid() || from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// SceneStatus tracks a single scene's video generation.
type SceneStatus string

const (
	ScenePending SceneStatus = "pending"
	SceneRunning SceneStatus = "running"
	SceneDone    SceneStatus = "done"
	SceneFailed  SceneStatus = "failed"
)

// Valid reports whether s is a known scene status.
func (s SceneStatus) Valid() bool {
	switch s {
	case ScenePending, SceneRunning, SceneDone, SceneFailed:
		return true
	default:
		return false
	}
}
