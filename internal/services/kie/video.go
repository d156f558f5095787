package kie

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

const (
	firstSceneDirection = "Cinematic shot starting in media res. Use the reference image for character " +
		"likeness and outfit only; ignore its neutral pose."
	continuationDirection = "Continue the story with the same character as the reference image. " +
		"Keep outfit, lighting and color grade consistent with earlier scenes."
	styleDirection = "STYLE: hyper-realistic, cinematic, natural lighting, detailed textures, " +
		"steady fluid camera movement."
	audioDirection = "AUDIO: cinematic sound effects matching the action, realistic ambience."
	cleanDirection = "Do not display any text, subtitles, watermarks or UI elements."
)

// Veo successFlag values.
const (
	veoGenerating = 0
	veoSucceeded  = 1
	veoFailed     = 2
	veoGenFailed  = 3
)

type veoGenerateRequest struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	AspectRatio    string   `json:"aspectRatio,omitempty"`
	ImageURLs      []string `json:"imageUrls,omitempty"`
	GenerationType string   `json:"generationType,omitempty"`
}

type veoRecord struct {
	TaskID       string `json:"taskId"`
	SuccessFlag  int    `json:"successFlag"`
	ErrorCode    *int   `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Response     *struct {
		ResultURLs []string `json:"resultUrls"`
	} `json:"response"`
}

// VideoGenerator renders scene videos and downloads them into the job
// workspace chosen by destination.
type VideoGenerator struct {
	client      *Client
	destination func(req job.SceneRequest) (string, error)
}

// NewVideoGenerator pairs the client with a function resolving where each
// scene's file is written.
func NewVideoGenerator(client *Client, destination func(req job.SceneRequest) (string, error)) *VideoGenerator {
	return &VideoGenerator{client: client, destination: destination}
}

// GenerateScene creates a video task for one scene, waits for it, and
// downloads the result. The returned handle points at a verified local file.
func (g *VideoGenerator) GenerateScene(ctx context.Context, req job.SceneRequest) (job.MediaHandle, error) {
	resultURL, err := g.client.RenderScene(ctx, req)
	if err != nil {
		return job.MediaHandle{}, err
	}
	dest, err := g.destination(req)
	if err != nil {
		return job.MediaHandle{}, services.Wrap(services.ErrConfiguration, "video", "scene destination", "", err)
	}
	return g.client.Download(ctx, resultURL, dest, job.FormatMP4H264)
}

// RenderScene submits the scene to the video model and returns the result URL.
func (c *Client) RenderScene(ctx context.Context, req job.SceneRequest) (string, error) {
	if req.Reference.IsZero() || !req.Reference.Remote() {
		return "", services.Wrap(services.ErrMissingInput, "video", "kie render scene", "reference image must be a remote url", nil)
	}
	body := veoGenerateRequest{
		Prompt:      ScenePrompt(req),
		Model:       c.videoModel,
		AspectRatio: c.aspectRatio,
		ImageURLs:   []string{req.Reference.Location},
	}
	var created taskID
	if err := c.call(ctx, http.MethodPost, "/veo/generate", nil, body, &created, "create video task"); err != nil {
		return "", err
	}
	if strings.TrimSpace(created.TaskID) == "" {
		return "", services.Wrap(services.ErrTransient, "video", "kie create video task", "response carried no taskId", nil)
	}
	c.logger.Info("scene video task created",
		logging.String(logging.FieldJobID, req.JobID),
		logging.Int(logging.FieldSceneIndex, req.Index),
		logging.String("task_id", created.TaskID),
		logging.String(logging.FieldEventType, "video_task_created"),
	)

	var resultURL string
	err := c.poll(ctx, c.videoTimeout, "video task", func(ctx context.Context) (bool, error) {
		var record veoRecord
		query := url.Values{"taskId": {created.TaskID}}
		if err := c.call(ctx, http.MethodGet, "/veo/record-info", query, nil, &record, "video record"); err != nil {
			return false, err
		}
		switch record.SuccessFlag {
		case veoSucceeded:
			if record.Response != nil {
				for _, u := range record.Response.ResultURLs {
					if strings.TrimSpace(u) != "" {
						resultURL = strings.TrimSpace(u)
						return true, nil
					}
				}
			}
			return false, services.Wrap(services.ErrPermanent, "video", "kie video task", "completed task carried no result url", nil)
		case veoFailed, veoGenFailed:
			return false, taskFailure(created.TaskID, record)
		default:
			if record.ErrorCode != nil || strings.TrimSpace(record.ErrorMessage) != "" {
				return false, taskFailure(created.TaskID, record)
			}
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return resultURL, nil
}

// taskFailure treats vendor-side 5xx task errors as transient and everything
// else (content policy, invalid input) as permanent.
func taskFailure(id string, record veoRecord) error {
	code := 0
	if record.ErrorCode != nil {
		code = *record.ErrorCode
	}
	msg := fmt.Sprintf("task %s failed (flag=%d code=%d): %s", id, record.SuccessFlag, code, strings.TrimSpace(record.ErrorMessage))
	if code >= http.StatusInternalServerError {
		return services.Wrap(services.ErrTransient, "video", "kie video task", msg, nil)
	}
	return services.Wrap(services.ErrPermanent, "video", "kie video task", msg, nil)
}

// ScenePrompt builds the video prompt for one scene. The first scene and the
// continuation scenes get different framing directions.
func ScenePrompt(req job.SceneRequest) string {
	parts := make([]string, 0, 8)
	if req.Index == 0 {
		parts = append(parts, firstSceneDirection)
	} else {
		parts = append(parts, continuationDirection)
	}
	if character := strings.TrimSpace(req.Character); character != "" {
		parts = append(parts, "CHARACTER: "+character)
	}
	parts = append(parts, "ACTION: "+strings.TrimSpace(req.Visual))
	if background := strings.TrimSpace(req.Background); background != "" {
		parts = append(parts, "BACKGROUND: "+background)
	}
	parts = append(parts, styleDirection, audioDirection, cleanDirection)
	return strings.Join(parts, " ")
}
