package workflow

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

func (m *Manager) concurrency() int {
	if n := m.cfg.Pipeline.VideoConcurrency; n > 0 {
		return n
	}
	return 1
}

// generateScenes dispatches one generation per scene with bounded
// concurrency. The first failure stops further dispatches; Wait returns only
// after every dispatched request has settled.
func (m *Manager) generateScenes(ctx context.Context, r *run) error {
	r.mu.Lock()
	requests := make([]job.SceneRequest, len(r.job.Scenes))
	for i, scene := range r.job.Scenes {
		requests[i] = job.SceneRequest{
			JobID:      r.id,
			Index:      scene.Index,
			Visual:     scene.Script,
			Dialogue:   scene.Dialogue,
			Character:  r.job.Character,
			Background: r.script.Background,
			Reference:  r.job.ReferenceImage,
		}
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency())
	for _, req := range requests {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return m.generateScene(gctx, r, req)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (m *Manager) generateScene(ctx context.Context, r *run, req job.SceneRequest) error {
	ctx = services.WithSceneIndex(ctx, req.Index)
	logger := logging.WithContext(ctx, m.logger)

	if err := m.setSceneStatus(ctx, r, req.Index, job.SceneRunning, job.MediaHandle{}, ""); err != nil {
		return err
	}
	logger.Debug("scene dispatched", logging.String(logging.FieldEventType, "scene_dispatched"))

	handle, err := m.stages.Videos.GenerateScene(ctx, req)
	if err == nil {
		handle, err = confirmSceneVideo(handle)
	}
	if err != nil {
		detail := services.Details(err)
		if persistErr := m.setSceneStatus(ctx, r, req.Index, job.SceneFailed, job.MediaHandle{}, detail.Message); persistErr != nil {
			logger.Error("failed to persist scene failure", logging.Error(persistErr))
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		logger.Warn("scene generation failed",
			logging.Args(logging.ErrorAttrs(err)...)...,
		)
		if _, ok := services.SceneIndex(err); !ok {
			err = services.WithScene(req.Index, err)
		}
		return err
	}

	if err := m.setSceneStatus(ctx, r, req.Index, job.SceneDone, handle, ""); err != nil {
		return err
	}
	logger.Info("scene generated",
		logging.String("video", handle.Location),
		logging.String(logging.FieldEventType, "scene_complete"),
	)
	return nil
}

// confirmSceneVideo requires a local, non-empty video before the scene counts
// as done.
func confirmSceneVideo(handle job.MediaHandle) (job.MediaHandle, error) {
	if handle.IsZero() || handle.Remote() {
		return job.MediaHandle{}, services.Wrap(services.ErrMissingInput, string(job.StateVideo), "scene video",
			"generator returned "+handle.String(), nil)
	}
	format := handle.Format
	if format == "" {
		format = job.FormatMP4H264
	}
	return job.NewLocalHandle(handle.Location, format)
}

func (m *Manager) setSceneStatus(ctx context.Context, r *run, index int, status job.SceneStatus, video job.MediaHandle, detail string) error {
	return m.update(ctx, r, func(j *job.Job) error {
		scene := &j.Scenes[index]
		scene.Status = status
		scene.Error = detail
		if !video.IsZero() {
			scene.Video = video
		}
		return nil
	})
}
