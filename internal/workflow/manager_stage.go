package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"reelsmith/internal/assembler"
	"reelsmith/internal/captions"
	"reelsmith/internal/fileutil"
	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/staging"
)

func (m *Manager) runStage(ctx context.Context, r *run, stage job.State) error {
	logger := logging.WithContext(ctx, m.logger)
	start := time.Now()
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	var err error
	switch stage {
	case job.StateScripting:
		err = m.writeScript(ctx, r)
	case job.StateImage:
		err = m.generateReference(ctx, r)
	case job.StateVideo:
		err = m.generateScenes(ctx, r)
	case job.StateAssembling:
		err = m.assemble(ctx, r)
	case job.StateCaptioning:
		err = m.burnCaptions(ctx, r)
	default:
		err = fmt.Errorf("no handler for stage %s", stage)
	}
	if err != nil {
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) writeScript(ctx context.Context, r *run) error {
	prompt, count := r.job.Prompt, r.job.SceneCount
	script, err := m.stages.Scripts.GenerateScript(ctx, prompt, count)
	if err != nil {
		return err
	}
	if err := script.Validate(count); err != nil {
		return err
	}
	return m.update(ctx, r, func(j *job.Job) error {
		r.script = script
		j.Character = strings.TrimSpace(script.Character)
		return j.SetScenes(script.ToScenes())
	})
}

func (m *Manager) generateReference(ctx context.Context, r *run) error {
	r.mu.Lock()
	prompt := referencePrompt(r.job.Prompt, r.script)
	r.mu.Unlock()

	handle, err := m.stages.Images.GenerateReferenceImage(ctx, prompt)
	if err != nil {
		return err
	}
	if handle.IsZero() {
		return services.Wrap(services.ErrPermanent, string(job.StateImage), "reference image", "generator returned no image", nil)
	}
	return m.update(ctx, r, func(j *job.Job) error {
		j.ReferenceImage = handle
		return nil
	})
}

// referencePrompt describes the shared character for the reference image.
func referencePrompt(prompt string, script job.Script) string {
	parts := make([]string, 0, 3)
	if character := strings.TrimSpace(script.Character); character != "" {
		parts = append(parts, character)
	} else {
		parts = append(parts, strings.TrimSpace(prompt))
	}
	if style := strings.TrimSpace(script.Style); style != "" {
		parts = append(parts, "Style: "+style)
	}
	return strings.Join(parts, "\n")
}

func (m *Manager) workspace(id string) (staging.Workspace, error) {
	ws, err := staging.Open(m.cfg.Paths.StagingDir, id)
	if err != nil {
		return staging.Workspace{}, services.Wrap(services.ErrConfiguration, "", "open workspace", id, err)
	}
	return ws, nil
}

func (m *Manager) assemble(ctx context.Context, r *run) error {
	ws, err := m.workspace(r.id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	scenes := r.job.SceneVideos()
	r.mu.Unlock()

	result, err := m.stages.Assembler.Assemble(ctx, assembler.Request{
		Scenes:         scenes,
		SpeedFactor:    m.cfg.Pipeline.SpeedFactor,
		Width:          m.cfg.Pipeline.Width,
		Height:         m.cfg.Pipeline.Height,
		NormalizedPath: ws.NormalizedPath,
		Output:         ws.AssembledPath(),
	})
	if err != nil {
		return err
	}
	if len(result.Segments) != len(scenes) {
		return services.Wrap(services.ErrAssembly, string(job.StateAssembling), "assemble",
			fmt.Sprintf("expected %d segments, got %d", len(scenes), len(result.Segments)), nil)
	}
	return m.update(ctx, r, func(j *job.Job) error {
		j.AssembledClip = result.Clip
		r.segments = result.Segments
		return nil
	})
}

func (m *Manager) burnCaptions(ctx context.Context, r *run) error {
	ws, err := m.workspace(r.id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	clip := r.job.AssembledClip
	dialogue := make([]string, len(r.job.Scenes))
	for _, scene := range r.job.Scenes {
		dialogue[scene.Index] = scene.Dialogue
	}
	segments := append([]assembler.Segment(nil), r.segments...)
	r.mu.Unlock()

	result, err := m.stages.Captions.Burn(ctx, captions.Request{
		Clip:      clip,
		Captions:  captions.FromSegments(dialogue, segments),
		Output:    ws.CaptionedPath(),
		Subtitles: ws.SubtitlePath(),
	})
	if err != nil {
		return err
	}

	artifact, track, err := m.publishArtifact(r.id, result)
	if err != nil {
		return err
	}
	return m.update(ctx, r, func(j *job.Job) error {
		j.FinalArtifact = artifact
		j.CaptionTrack = track
		return nil
	})
}

// publishArtifact copies the captioned render (and subtitles) out of the workspace
// into the output directory under the job id.
func (m *Manager) publishArtifact(id string, result captions.Result) (job.MediaHandle, job.MediaHandle, error) {
	dest := filepath.Join(m.cfg.Paths.OutputDir, id+".mp4")
	if err := fileutil.CopyFileVerified(result.Artifact.Location, dest); err != nil {
		return job.MediaHandle{}, job.MediaHandle{}, services.Wrap(services.ErrRender, string(job.StateCaptioning), "publish artifact", dest, err)
	}
	artifact, err := job.NewLocalHandle(dest, result.Artifact.Format)
	if err != nil {
		return job.MediaHandle{}, job.MediaHandle{}, err
	}
	var track job.MediaHandle
	if !result.Subtitles.IsZero() {
		srt := filepath.Join(m.cfg.Paths.OutputDir, id+".srt")
		if err := fileutil.CopyFileVerified(result.Subtitles.Location, srt); err != nil {
			m.logger.Warn("subtitle sidecar not published",
				logging.String(logging.FieldJobID, id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "subtitle_publish_failed"),
				logging.String(logging.FieldErrorHint, "check output_dir permissions"),
				logging.String(logging.FieldImpact, "video is delivered without an srt sidecar"),
			)
		} else {
			track = job.MediaHandle{Location: srt, Format: job.FormatSRT}
		}
	}
	return artifact, track, nil
}
