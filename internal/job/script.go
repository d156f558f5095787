package job

import (
	"fmt"
	"strings"

	"reelsmith/internal/services"
)

// Script is the result of script writing: one shared character plus an
// ordered list of scene scripts.
type Script struct {
	Character  string        `json:"character_description" yaml:"character_description"`
	Style      string        `json:"visual_style,omitempty" yaml:"visual_style,omitempty"`
	Background string        `json:"background_theme,omitempty" yaml:"background_theme,omitempty"`
	Scenes     []SceneScript `json:"scenes" yaml:"scenes"`
}

// SceneScript is the text for one scene.
type SceneScript struct {
	Number   int    `json:"scene_number" yaml:"scene_number"`
	Visual   string `json:"visual_description" yaml:"visual_description"`
	Dialogue string `json:"dialogue" yaml:"dialogue"`
}

// Validate requires exactly count scenes, each with a visual description.
// Violations are permanent: the writer produced an unusable script.
func (s Script) Validate(count int) error {
	if len(s.Scenes) != count {
		return services.Wrap(services.ErrPermanent, string(StateScripting), "validate script",
			fmt.Sprintf("expected %d scenes, got %d", count, len(s.Scenes)), nil)
	}
	for i, scene := range s.Scenes {
		if strings.TrimSpace(scene.Visual) == "" {
			return services.WithScene(i, services.Wrap(services.ErrPermanent, string(StateScripting), "validate script",
				"empty visual description", nil))
		}
	}
	return nil
}

// ToScenes converts the script into pending scene records in ordinal order.
func (s Script) ToScenes() []Scene {
	scenes := make([]Scene, len(s.Scenes))
	for i, scene := range s.Scenes {
		scenes[i] = Scene{
			Index:    i,
			Script:   strings.TrimSpace(scene.Visual),
			Dialogue: strings.TrimSpace(scene.Dialogue),
			Status:   ScenePending,
		}
	}
	return scenes
}

// SceneRequest carries everything a video generator needs for one scene.
type SceneRequest struct {
	JobID      string
	Index      int
	Visual     string
	Dialogue   string
	Character  string
	Background string
	Reference  MediaHandle
}
