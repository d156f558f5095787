package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the body of POST /api/jobs. A zero SceneCount selects the
// configured default.
type SubmitRequest struct {
	Prompt     string `json:"prompt"`
	SceneCount int    `json:"sceneCount,omitempty"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Media describes an artifact at rest.
type Media struct {
	Location string `json:"location"`
	Format   string `json:"format"`
}

// Failure explains why a job ended FAILED.
type Failure struct {
	Stage      string `json:"stage"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
	Hint       string `json:"hint,omitempty"`
	SceneIndex *int   `json:"sceneIndex,omitempty"`
}

// Scene is the per-scene progress entry of a job.
type Scene struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	Dialogue string `json:"dialogue,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Progress mirrors the stage and percent reported to status callers.
type Progress struct {
	ScenesDone  int    `json:"scenesDone"`
	ScenesTotal int    `json:"scenesTotal"`
	Percent     int    `json:"percent"`
	Step        string `json:"step"`
}

// Job is the transport form of a job status view.
type Job struct {
	ID        string   `json:"id"`
	Prompt    string   `json:"prompt"`
	State     string   `json:"state"`
	Progress  Progress `json:"progress"`
	Scenes    []Scene  `json:"scenes,omitempty"`
	Artifact  *Media   `json:"artifact,omitempty"`
	Failure   *Failure `json:"failure,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Items []Job `json:"items"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// DeleteResponse acknowledges a removed job.
type DeleteResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// ArtifactResponse carries the deliverable of a DONE job.
type ArtifactResponse struct {
	ID       string `json:"id"`
	Artifact Media  `json:"artifact"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	ActiveJobs int            `json:"activeJobs"`
	JobCounts  map[string]int `json:"jobCounts"`
	LastError  string         `json:"lastError,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath,omitempty"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// NotifyResponse reports the outcome of a test notification.
type NotifyResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}
