package scriptfile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
)

const sample = `character_description: a fox in a trench coat
background_theme: foggy harbor
scenes:
  - scene_number: 1
    visual_description: fox steps off a ferry
    dialogue: New town, old tricks.
  - scene_number: 2
    visual_description: fox tips a hat at a gull
    dialogue: Evening.
  - scene_number: 3
    visual_description: fox vanishes into fog
    dialogue: Gone.
`

func TestGenerateScriptTruncatesToCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	testsupport.WriteContent(t, path, []byte(sample))

	script, err := New(path).GenerateScript(context.Background(), "harbor fox", 2)
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if len(script.Scenes) != 2 || script.Scenes[1].Dialogue != "Evening." {
		t.Fatalf("unexpected scenes %+v", script.Scenes)
	}
	if script.Character != "a fox in a trench coat" || script.Background != "foggy harbor" {
		t.Fatalf("unexpected header %+v", script)
	}
}

func TestGenerateScriptTooFewScenes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	testsupport.WriteContent(t, path, []byte(sample))

	_, err := New(path).GenerateScript(context.Background(), "harbor fox", 5)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestGenerateScriptMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.yaml")).GenerateScript(context.Background(), "x", 1)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	testsupport.WriteContent(t, path, []byte("scenes: [unclosed"))
	if _, err := Load(path); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent parse error, got %v", err)
	}
}
