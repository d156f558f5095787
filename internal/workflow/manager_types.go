package workflow

import (
	"context"

	"reelsmith/internal/assembler"
	"reelsmith/internal/captions"
	"reelsmith/internal/job"
)

// ScriptGenerator writes the ordered scene scripts for a prompt.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, prompt string, sceneCount int) (job.Script, error)
}

// ReferenceImageGenerator produces the image every scene is anchored to.
type ReferenceImageGenerator interface {
	GenerateReferenceImage(ctx context.Context, prompt string) (job.MediaHandle, error)
}

// SceneVideoGenerator renders one scene and returns a local video handle.
// Errors must be classifiable as transient or permanent.
type SceneVideoGenerator interface {
	GenerateScene(ctx context.Context, req job.SceneRequest) (job.MediaHandle, error)
}

// SceneAssembler joins scene videos into one clip.
type SceneAssembler interface {
	Assemble(ctx context.Context, req assembler.Request) (assembler.Result, error)
}

// CaptionBurner overlays caption text on a clip.
type CaptionBurner interface {
	Burn(ctx context.Context, req captions.Request) (captions.Result, error)
}

// Stages bundles the collaborators the manager calls, one per stage.
type Stages struct {
	Scripts   ScriptGenerator
	Images    ReferenceImageGenerator
	Videos    SceneVideoGenerator
	Assembler SceneAssembler
	Captions  CaptionBurner
}

func (s Stages) missing() []string {
	var out []string
	if s.Scripts == nil {
		out = append(out, "scripts")
	}
	if s.Images == nil {
		out = append(out, "images")
	}
	if s.Videos == nil {
		out = append(out, "videos")
	}
	if s.Assembler == nil {
		out = append(out, "assembler")
	}
	if s.Captions == nil {
		out = append(out, "captions")
	}
	return out
}
