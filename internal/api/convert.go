package api

import (
	"slices"

	"reelsmith/internal/deps"
	"reelsmith/internal/job"
	"reelsmith/internal/services"
	"reelsmith/internal/workflow"
)

// FromView converts a job status projection to its API representation.
func FromView(v job.View) Job {
	dto := Job{
		ID:     v.ID,
		Prompt: v.Prompt,
		State:  string(v.State),
		Progress: Progress{
			ScenesDone:  v.ScenesDone,
			ScenesTotal: v.SceneCount,
			Percent:     v.Percent,
			Step:        v.CurrentStep,
		},
	}
	if len(v.Scenes) > 0 {
		dto.Scenes = make([]Scene, len(v.Scenes))
		for i, scene := range v.Scenes {
			dto.Scenes[i] = Scene{
				Index:    scene.Index,
				Status:   string(scene.Status),
				Dialogue: scene.Dialogue,
				Error:    scene.Error,
			}
		}
	}
	if v.Artifact != nil {
		media := FromMedia(*v.Artifact)
		dto.Artifact = &media
	}
	if v.Failure != nil {
		dto.Failure = &Failure{
			Stage:      string(v.Failure.Stage),
			Kind:       string(v.Failure.Kind),
			Detail:     v.Failure.Detail,
			Hint:       services.Hint(v.Failure.Kind),
			SceneIndex: v.Failure.SceneIndex,
		}
	}
	if !v.CreatedAt.IsZero() {
		dto.CreatedAt = v.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !v.UpdatedAt.IsZero() {
		dto.UpdatedAt = v.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromViews converts a slice of job views into API DTOs.
func FromViews(views []job.View) []Job {
	if len(views) == 0 {
		return nil
	}
	out := make([]Job, 0, len(views))
	for _, v := range views {
		out = append(out, FromView(v))
	}
	return out
}

// FromMedia converts a media handle.
func FromMedia(h job.MediaHandle) Media {
	return Media{Location: h.Location, Format: h.Format}
}

// FromStatusSummary converts workflow diagnostics. Every known state appears
// in JobCounts so consumers can render a stable table.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	counts := make(map[string]int, len(job.AllStates()))
	for _, state := range job.AllStates() {
		counts[string(state)] = summary.JobCounts[state]
	}
	return WorkflowStatus{
		Running:    summary.Running,
		ActiveJobs: summary.ActiveJobs,
		JobCounts:  counts,
		LastError:  summary.LastError,
	}
}

// FromDependencies converts binary availability reports.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// SortedStates returns the keys of counts in pipeline order, followed by any
// unknown keys alphabetically.
func SortedStates(counts map[string]int) []string {
	order := make(map[string]int, len(job.AllStates()))
	for i, state := range job.AllStates() {
		order[string(state)] = i
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ia, okA := order[a]
		ib, okB := order[b]
		switch {
		case okA && okB:
			return ia - ib
		case okA:
			return -1
		case okB:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})
	return keys
}
