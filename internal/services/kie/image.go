package kie

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

const referenceImageStyle = "Single subject, waist-up, centered, neutral studio pose, " +
	"plain white seamless background, soft front key light. " +
	"No text, no logos, no watermark, no collage."

type createTaskRequest struct {
	Model       string         `json:"model"`
	Input       map[string]any `json:"input"`
	CallBackURL string         `json:"callBackUrl,omitempty"`
}

type taskID struct {
	TaskID string `json:"taskId"`
}

// imageRecord is the recordInfo payload for jobs/createTask tasks.
type imageRecord struct {
	TaskID     string `json:"taskId"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
}

type imageResult struct {
	ResultURLs []string `json:"resultUrls"`
}

// GenerateReferenceImage creates the character reference image shared by
// every scene. The handle is the vendor URL; the video endpoint consumes URLs.
func (c *Client) GenerateReferenceImage(ctx context.Context, prompt string) (job.MediaHandle, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return job.MediaHandle{}, services.Wrap(services.ErrValidation, "image", "reference image", "prompt required", nil)
	}
	req := createTaskRequest{
		Model: c.imageModel,
		Input: map[string]any{
			"prompt":        prompt + "\n\n" + referenceImageStyle,
			"output_format": "png",
			"image_size":    c.aspectRatio,
		},
	}
	var created taskID
	if err := c.call(ctx, http.MethodPost, "/jobs/createTask", nil, req, &created, "create image task"); err != nil {
		return job.MediaHandle{}, err
	}
	if strings.TrimSpace(created.TaskID) == "" {
		return job.MediaHandle{}, services.Wrap(services.ErrTransient, "image", "kie create image task", "response carried no taskId", nil)
	}
	c.logger.Info("reference image task created",
		logging.String("task_id", created.TaskID),
		logging.String("model", c.imageModel),
		logging.String(logging.FieldEventType, "image_task_created"),
	)

	var resultURL string
	err := c.poll(ctx, c.imageTimeout, "image task", func(ctx context.Context) (bool, error) {
		var record imageRecord
		query := url.Values{"taskId": {created.TaskID}}
		if err := c.call(ctx, http.MethodGet, "/jobs/recordInfo", query, nil, &record, "image record"); err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(record.State)) {
		case "success":
			u, err := firstImageURL(record.ResultJSON)
			if err != nil {
				return false, err
			}
			resultURL = u
			return true, nil
		case "fail", "failed":
			return false, services.Wrap(services.ErrPermanent, "image", "kie image task",
				fmt.Sprintf("task %s failed: %s %s", created.TaskID, record.FailCode, record.FailMsg), nil)
		default:
			return false, nil
		}
	})
	if err != nil {
		return job.MediaHandle{}, err
	}
	return job.NewRemoteHandle(resultURL, job.FormatPNG)
}

func firstImageURL(raw string) (string, error) {
	var result imageResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", services.Wrap(services.ErrPermanent, "image", "kie image task", "unparseable resultJson", err)
	}
	for _, u := range result.ResultURLs {
		if strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u), nil
		}
	}
	return "", services.Wrap(services.ErrPermanent, "image", "kie image task", "completed task carried no result url", nil)
}
