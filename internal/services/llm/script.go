package llm

import (
	"context"
	"fmt"
	"strings"

	"reelsmith/internal/job"
	"reelsmith/internal/services"
)

const scriptTemperature = 0.7

// ScriptWriter turns a prompt into a scene-by-scene script using the chat client.
type ScriptWriter struct {
	client *Client
}

// NewScriptWriter wraps client. Callers usually build the client with
// WithTemperature(0.7) so scripts vary between runs.
func NewScriptWriter(client *Client) *ScriptWriter {
	return &ScriptWriter{client: client}
}

// NewScriptClient builds a chat client tuned for script writing.
func NewScriptClient(cfg Config, opts ...Option) *Client {
	base := []Option{WithTemperature(scriptTemperature), WithMaxTokens(2000)}
	return NewClient(cfg, append(base, opts...)...)
}

// GenerateScript asks the model for exactly sceneCount scenes.
func (w *ScriptWriter) GenerateScript(ctx context.Context, prompt string, sceneCount int) (job.Script, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return job.Script{}, services.Wrap(services.ErrValidation, "scripting", "generate script", "prompt required", nil)
	}
	if sceneCount <= 0 {
		return job.Script{}, services.Wrap(services.ErrValidation, "scripting", "generate script", "scene count must be positive", nil)
	}
	content, err := w.client.CompleteJSON(ctx, scriptSystemPrompt(sceneCount), scriptUserPrompt(prompt, sceneCount))
	if err != nil {
		return job.Script{}, fmt.Errorf("generate script: %w", err)
	}
	var script job.Script
	if err := DecodeJSON(content, &script); err != nil {
		return job.Script{}, services.Wrap(services.ErrTransient, "scripting", "parse script", "model returned malformed JSON", err)
	}
	script.Character = strings.TrimSpace(script.Character)
	if err := script.Validate(sceneCount); err != nil {
		return job.Script{}, err
	}
	return script, nil
}

func scriptSystemPrompt(sceneCount int) string {
	return fmt.Sprintf(`You are an expert video script writer for short-form vertical video.

Write EXACTLY %d scenes. Every scene is about six seconds of filmable action and
flows naturally into the next. The main character stays visually consistent.

For each scene provide a concrete visual description (what the camera sees) and
a short punchy line of dialogue, at most 20 words.

Respond with JSON only, in this shape:
{
  "character_description": "appearance, clothing and style of the main character",
  "visual_style": "overall look, for example cinematic with warm lighting",
  "background_theme": "consistent setting",
  "scenes": [
    {"scene_number": 1, "visual_description": "...", "dialogue": "..."}
  ]
}`, sceneCount)
}

func scriptUserPrompt(prompt string, sceneCount int) string {
	return fmt.Sprintf("Create a %d-scene video script for:\n\n%q\n\nOutput exactly %d scenes as JSON.", sceneCount, prompt, sceneCount)
}
