package daemonrun

import (
	"fmt"
	"log/slog"
	"strings"

	"reelsmith/internal/assembler"
	"reelsmith/internal/captions"
	"reelsmith/internal/config"
	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services/kie"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/services/scriptfile"
	"reelsmith/internal/staging"
	"reelsmith/internal/toolchain"
	"reelsmith/internal/workflow"
)

// BuildStages constructs the collaborators for every job stage from config.
// Scripts come from the YAML file in pipeline.script_file when set, otherwise
// from the LLM.
func BuildStages(cfg *config.Config, tc *toolchain.Toolchain, logger *slog.Logger) (workflow.Stages, error) {
	if cfg == nil || tc == nil {
		return workflow.Stages{}, fmt.Errorf("config and toolchain are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	probe := ffprobe.NewProber(tc.LocateProbe, tc.Executor(), cfg.Media.ProbeTimeout())

	generation := kie.New(cfg.Generation, kie.WithLogger(logging.NewComponentLogger(logger, "kie")))
	videos := kie.NewVideoGenerator(generation, sceneDestination(cfg.Paths.StagingDir))

	return workflow.Stages{
		Scripts:   scriptGenerator(cfg),
		Images:    generation,
		Videos:    videos,
		Assembler: assembler.New(tc, probe, assembler.SettingsFromConfig(cfg), logging.NewComponentLogger(logger, "assembler")),
		Captions:  captions.New(tc, probe, captions.SettingsFromConfig(cfg), logging.NewComponentLogger(logger, "captions")),
	}, nil
}

func scriptGenerator(cfg *config.Config) workflow.ScriptGenerator {
	if path := strings.TrimSpace(cfg.Pipeline.ScriptFile); path != "" {
		return scriptfile.New(path)
	}
	client := llm.NewScriptClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		RetryAttempts:  cfg.LLM.RetryAttempts,
	})
	return llm.NewScriptWriter(client)
}

// sceneDestination downloads each generated scene into its job workspace.
func sceneDestination(stagingDir string) func(job.SceneRequest) (string, error) {
	return func(req job.SceneRequest) (string, error) {
		ws, err := staging.Open(stagingDir, req.JobID)
		if err != nil {
			return "", err
		}
		return ws.ScenePath(req.Index), nil
	}
}
