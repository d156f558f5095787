package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services"
	"reelsmith/internal/toolchain"
)

const stage = "assembling"

// Prober validates media files. *ffprobe.Prober satisfies it.
type Prober interface {
	Validate(ctx context.Context, path string) (ffprobe.Result, error)
}

// Settings are the fixed assembly parameters shared by every job.
type Settings struct {
	FPS              int
	Transition       string
	CrossfadeSeconds float64
	TrimLeadSeconds  float64
	Timeout          time.Duration
}

// SettingsFromConfig extracts assembly settings from the loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		FPS:              cfg.Pipeline.FPS,
		Transition:       cfg.Pipeline.Transition,
		CrossfadeSeconds: cfg.Pipeline.CrossfadeSeconds,
		TrimLeadSeconds:  cfg.Pipeline.TrimLeadSeconds,
		Timeout:          cfg.Media.TransformTimeout(),
	}
}

// Request describes one assembly: scene videos in ordinal order, the speed
// multiplier, and the target frame.
type Request struct {
	Scenes      []job.MediaHandle
	SpeedFactor float64
	Width       int
	Height      int
	// NormalizedPath returns where scene i's normalized render is written.
	NormalizedPath func(index int) string
	Output         string
}

// Segment is where one scene sits on the assembled timeline.
type Segment struct {
	Index    int
	Start    float64
	Duration float64
}

// End returns the segment end offset.
func (s Segment) End() float64 { return s.Start + s.Duration }

// Result is the assembled clip plus its timeline.
type Result struct {
	Clip     job.MediaHandle
	Duration float64
	Segments []Segment
}

// Assembler normalizes scene videos and joins them into one clip.
type Assembler struct {
	locate   func() (string, error)
	exec     toolchain.Executor
	probe    Prober
	settings Settings
	logger   *slog.Logger
}

// New builds an assembler on top of the process toolchain.
func New(tc *toolchain.Toolchain, probe Prober, settings Settings, logger *slog.Logger) *Assembler {
	return NewWithExecutor(tc.LocateBinary, tc.Executor(), probe, settings, logger)
}

// NewWithExecutor builds an assembler with an explicit binary locator and
// executor.
func NewWithExecutor(locate func() (string, error), exec toolchain.Executor, probe Prober, settings Settings, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if settings.FPS <= 0 {
		settings.FPS = 30
	}
	if settings.Transition == "" {
		settings.Transition = config.TransitionCut
	}
	return &Assembler{locate: locate, exec: exec, probe: probe, settings: settings, logger: logger}
}

type sceneInput struct {
	path     string
	duration float64
	hasAudio bool
}

// Assemble validates every scene, normalizes each one (speed, scale and
// crop, frame rate, audio), and joins them in ordinal order. No transform
// runs until all inputs have been validated.
func (a *Assembler) Assemble(ctx context.Context, req Request) (Result, error) {
	if err := a.validateRequest(req); err != nil {
		return Result{}, err
	}
	binary, err := a.locate()
	if err != nil {
		return Result{}, err
	}

	inputs := make([]sceneInput, len(req.Scenes))
	for i, handle := range req.Scenes {
		input, err := a.checkInput(ctx, i, handle)
		if err != nil {
			return Result{}, err
		}
		inputs[i] = input
	}

	normalized := make([]string, len(inputs))
	durations := make([]float64, len(inputs))
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		out := req.NormalizedPath(i)
		args := a.normalizeArgs(i, input, req, out)
		if _, err := toolchain.RunWithTimeout(ctx, a.exec, a.settings.Timeout, binary, args); err != nil {
			return Result{}, transformError(ctx, i, "normalize scene", err)
		}
		probed, err := a.probe.Validate(ctx, out)
		if err != nil {
			return Result{}, transformError(ctx, i, "validate normalized scene", err)
		}
		normalized[i] = out
		durations[i] = probed.DurationSeconds()
		a.logger.Debug("scene normalized",
			logging.Int(logging.FieldSceneIndex, i),
			logging.String("source", input.path),
			logging.Float64("source_seconds", input.duration),
			logging.Float64("normalized_seconds", durations[i]),
		)
	}

	segments, err := a.timeline(durations)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	args := a.joinArgs(normalized, segments, req.Output)
	if _, err := toolchain.RunWithTimeout(ctx, a.exec, a.settings.Timeout, binary, args); err != nil {
		return Result{}, transformError(ctx, -1, "join scenes", err)
	}

	clip, err := job.NewLocalHandle(req.Output, job.FormatMP4H264)
	if err != nil {
		return Result{}, services.Wrap(services.ErrAssembly, stage, "join scenes", "output missing", err)
	}
	probed, err := a.probe.Validate(ctx, req.Output)
	if err != nil {
		return Result{}, transformError(ctx, -1, "validate assembled clip", err)
	}
	total := probed.DurationSeconds()
	a.logger.Info("scenes assembled",
		logging.Int("scenes", len(segments)),
		logging.Float64("duration_seconds", total),
		logging.String("transition", a.settings.Transition),
		logging.String(logging.FieldEventType, "assembly_complete"),
	)
	return Result{Clip: clip, Duration: total, Segments: segments}, nil
}

func (a *Assembler) validateRequest(req Request) error {
	switch {
	case len(req.Scenes) == 0:
		return services.Wrap(services.ErrValidation, stage, "assemble", "no scenes", nil)
	case req.SpeedFactor <= 0 || math.IsNaN(req.SpeedFactor) || math.IsInf(req.SpeedFactor, 0):
		return services.Wrap(services.ErrValidation, stage, "assemble", fmt.Sprintf("speed factor %v must be positive", req.SpeedFactor), nil)
	case req.Width <= 0 || req.Height <= 0 || req.Width%2 != 0 || req.Height%2 != 0:
		return services.Wrap(services.ErrValidation, stage, "assemble", fmt.Sprintf("target %dx%d must be positive and even", req.Width, req.Height), nil)
	case req.NormalizedPath == nil || strings.TrimSpace(req.Output) == "":
		return services.Wrap(services.ErrValidation, stage, "assemble", "output paths required", nil)
	}
	return nil
}

// checkInput requires an existing, non-empty, decodable local video.
func (a *Assembler) checkInput(ctx context.Context, index int, handle job.MediaHandle) (sceneInput, error) {
	if handle.IsZero() || handle.Remote() {
		return sceneInput{}, services.WithScene(index, services.Wrap(services.ErrMissingInput, stage, "check input",
			fmt.Sprintf("scene video %s is not a local file", handle), nil))
	}
	if _, err := job.NewLocalHandle(handle.Location, handle.Format); err != nil {
		return sceneInput{}, services.WithScene(index, err)
	}
	probed, err := a.probe.Validate(ctx, handle.Location)
	if err != nil {
		if ctx.Err() != nil {
			return sceneInput{}, ctx.Err()
		}
		return sceneInput{}, services.WithScene(index, err)
	}
	return sceneInput{path: handle.Location, duration: probed.DurationSeconds(), hasAudio: probed.HasAudio()}, nil
}

// timeline places each normalized scene. With crossfade every scene after
// the first starts cf seconds before the previous one ends; each segment's
// caption window runs until the next segment starts.
func (a *Assembler) timeline(durations []float64) ([]Segment, error) {
	segments := make([]Segment, len(durations))
	crossfade := a.crossfade()
	start := 0.0
	for i, d := range durations {
		if crossfade > 0 && len(durations) > 1 && d <= crossfade {
			return nil, services.WithScene(i, services.Wrap(services.ErrAssembly, stage, "plan transitions",
				fmt.Sprintf("scene lasts %.3fs, not longer than the %.3fs crossfade", d, crossfade), nil))
		}
		segments[i] = Segment{Index: i, Start: start, Duration: d}
		if i < len(durations)-1 {
			segments[i].Duration = d - crossfade
		}
		start += d - crossfade
	}
	return segments, nil
}

func (a *Assembler) crossfade() float64 {
	if a.settings.Transition == config.TransitionCrossfade && a.settings.CrossfadeSeconds > 0 {
		return a.settings.CrossfadeSeconds
	}
	return 0
}

// transformError turns an ffmpeg failure into an assembly error tied to the
// scene; deadlines stay transient and cancellation passes through.
func transformError(ctx context.Context, index int, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var wrapped error
	if errors.Is(err, services.ErrTimeout) {
		wrapped = services.Wrap(services.ErrTimeout, stage, op, "", err)
	} else {
		wrapped = services.Wrap(services.ErrAssembly, stage, op, "", err)
	}
	if index < 0 {
		return wrapped
	}
	return services.WithScene(index, wrapped)
}
