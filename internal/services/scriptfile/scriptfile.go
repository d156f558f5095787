// Package scriptfile writes scripts from a YAML file instead of a language
// model. It is used for offline runs and for replaying a known script.
package scriptfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"reelsmith/internal/job"
	"reelsmith/internal/services"
)

// Writer serves scripts read from a YAML document shaped like job.Script.
type Writer struct {
	path string
}

// New returns a writer for path. The file is read on every call so edits take
// effect without a restart.
func New(path string) *Writer {
	return &Writer{path: strings.TrimSpace(path)}
}

// GenerateScript returns the first sceneCount scenes of the file. A file with
// fewer scenes is a permanent failure.
func (w *Writer) GenerateScript(ctx context.Context, prompt string, sceneCount int) (job.Script, error) {
	if err := ctx.Err(); err != nil {
		return job.Script{}, err
	}
	if sceneCount <= 0 {
		return job.Script{}, services.Wrap(services.ErrValidation, "scripting", "script file", "scene count must be positive", nil)
	}
	script, err := Load(w.path)
	if err != nil {
		return job.Script{}, err
	}
	if len(script.Scenes) > sceneCount {
		script.Scenes = script.Scenes[:sceneCount]
	}
	if script.Character == "" {
		script.Character = strings.TrimSpace(prompt)
	}
	if err := script.Validate(sceneCount); err != nil {
		return job.Script{}, err
	}
	return script, nil
}

// Load parses a script file.
func Load(path string) (job.Script, error) {
	if path == "" {
		return job.Script{}, services.Wrap(services.ErrConfiguration, "scripting", "script file", "path not configured", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return job.Script{}, services.Wrap(services.ErrConfiguration, "scripting", "script file", "read "+path, err)
	}
	var script job.Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return job.Script{}, services.Wrap(services.ErrPermanent, "scripting", "script file", fmt.Sprintf("parse %s", path), err)
	}
	script.Character = strings.TrimSpace(script.Character)
	return script, nil
}
