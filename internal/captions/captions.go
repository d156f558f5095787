package captions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"reelsmith/internal/assembler"
	"reelsmith/internal/config"
	"reelsmith/internal/fileutil"
	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services"
	"reelsmith/internal/toolchain"
)

const (
	stage = "captioning"

	// windowTolerance absorbs container rounding between the assembled
	// timeline and the probed clip duration.
	windowTolerance = 0.05
)

// Caption is one piece of on-screen text and the window it is shown in.
type Caption struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the window end offset in seconds.
func (c Caption) End() float64 { return c.Start + c.Duration }

// FromSegments pairs scene dialogue with the assembled timeline. Scenes with
// no dialogue get no caption.
func FromSegments(dialogue []string, segments []assembler.Segment) []Caption {
	out := make([]Caption, 0, len(segments))
	for _, seg := range segments {
		if seg.Index < 0 || seg.Index >= len(dialogue) {
			continue
		}
		text := strings.TrimSpace(dialogue[seg.Index])
		if text == "" {
			continue
		}
		out = append(out, Caption{Text: text, Start: seg.Start, Duration: seg.Duration})
	}
	return out
}

// Prober validates media files. *ffprobe.Prober satisfies it.
type Prober interface {
	Validate(ctx context.Context, path string) (ffprobe.Result, error)
}

// Settings control caption styling.
type Settings struct {
	FontName string
	// FontSize of 0 derives the size from the clip height.
	FontSize  int
	WrapWidth int
	Timeout   time.Duration
}

// SettingsFromConfig extracts caption settings from the loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		FontName:  cfg.Media.FontName,
		FontSize:  cfg.Media.CaptionFontSize,
		WrapWidth: cfg.Media.CaptionWrapWidth,
		Timeout:   cfg.Media.TransformTimeout(),
	}
}

// Request describes one caption burn.
type Request struct {
	Clip     job.MediaHandle
	Captions []Caption
	Output   string
	// Subtitles, when set, receives an SRT rendition of the same captions.
	Subtitles string
}

// Result is the captioned artifact plus its optional subtitle sidecar.
type Result struct {
	Artifact  job.MediaHandle
	Subtitles job.MediaHandle
	Duration  float64
}

// Burner overlays caption text onto an assembled clip.
type Burner struct {
	locate     func() (string, error)
	locateFont func(name string) (string, error)
	exec       toolchain.Executor
	probe      Prober
	settings   Settings
	logger     *slog.Logger
}

// New builds a burner on top of the process toolchain.
func New(tc *toolchain.Toolchain, probe Prober, settings Settings, logger *slog.Logger) *Burner {
	return NewWithExecutor(tc.LocateBinary, tc.LocateFont, tc.Executor(), probe, settings, logger)
}

// NewWithExecutor builds a burner with explicit lookups and executor.
func NewWithExecutor(locate func() (string, error), locateFont func(string) (string, error), exec toolchain.Executor, probe Prober, settings Settings, logger *slog.Logger) *Burner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if settings.WrapWidth <= 0 {
		settings.WrapWidth = 25
	}
	return &Burner{locate: locate, locateFont: locateFont, exec: exec, probe: probe, settings: settings, logger: logger}
}

// Burn resolves the caption font, validates every window against the clip,
// and renders the captioned artifact. The input clip is never modified.
func (b *Burner) Burn(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Output) == "" || req.Output == req.Clip.Location {
		return Result{}, services.Wrap(services.ErrValidation, stage, "burn captions", "output must differ from the input clip", nil)
	}
	if _, err := job.NewLocalHandle(req.Clip.Location, req.Clip.Format); err != nil {
		return Result{}, err
	}
	binary, err := b.locate()
	if err != nil {
		return Result{}, err
	}
	fontFile, err := b.resolveFont()
	if err != nil {
		return Result{}, err
	}

	probed, err := b.probe.Validate(ctx, req.Clip.Location)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	clipDuration := probed.DurationSeconds()
	if err := ValidateWindows(req.Captions, clipDuration); err != nil {
		return Result{}, err
	}

	var subtitles job.MediaHandle
	if req.Subtitles != "" {
		if _, err := fileutil.WriteAtomic(req.Subtitles, strings.NewReader(RenderSRT(req.Captions)), 0o644); err != nil {
			return Result{}, services.Wrap(services.ErrRender, stage, "write subtitles", req.Subtitles, err)
		}
		subtitles = job.MediaHandle{Location: req.Subtitles, Format: job.FormatSRT}
	}

	_, height := probed.VideoSize()
	style := b.style(fontFile, height)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", req.Clip.Location,
		"-vf", FilterGraph(req.Captions, style),
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "20", "-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-movflags", "+faststart",
		req.Output,
	}
	if _, err := toolchain.RunWithTimeout(ctx, b.exec, b.settings.Timeout, binary, args); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if errors.Is(err, services.ErrTimeout) {
			return Result{}, services.Wrap(services.ErrTimeout, stage, "burn captions", "", err)
		}
		return Result{}, services.Wrap(services.ErrRender, stage, "burn captions", "", err)
	}

	artifact, err := job.NewLocalHandle(req.Output, job.FormatMP4H264)
	if err != nil {
		return Result{}, services.Wrap(services.ErrRender, stage, "burn captions", "output missing", err)
	}
	out, err := b.probe.Validate(ctx, req.Output)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, services.Wrap(services.ErrRender, stage, "validate captioned clip", "", err)
	}
	b.logger.Info("captions burned",
		logging.Int("captions", len(req.Captions)),
		logging.String("font", fontFile),
		logging.Int("font_size", style.FontSize),
		logging.Float64("duration_seconds", out.DurationSeconds()),
		logging.String(logging.FieldEventType, "captions_complete"),
	)
	return Result{Artifact: artifact, Subtitles: subtitles, Duration: out.DurationSeconds()}, nil
}

func (b *Burner) resolveFont() (string, error) {
	if b.locateFont == nil {
		return "", services.Wrap(services.ErrFontNotFound, stage, "locate font", "no font resolver configured", nil)
	}
	path, err := b.locateFont(b.settings.FontName)
	if err != nil {
		if errors.Is(err, services.ErrFontNotFound) {
			return "", err
		}
		return "", services.Wrap(services.ErrFontNotFound, stage, "locate font", b.settings.FontName, err)
	}
	return path, nil
}

func (b *Burner) style(fontFile string, height int) Style {
	size := b.settings.FontSize
	if size <= 0 {
		size = height / 27
	}
	if size <= 0 {
		size = 70
	}
	return Style{FontFile: fontFile, FontSize: size, WrapWidth: b.settings.WrapWidth}
}

// ValidateWindows rejects windows that start before zero, are empty, run
// past the clip, or overlap an earlier window. Nothing is clamped.
func ValidateWindows(captions []Caption, clipDuration float64) error {
	if math.IsNaN(clipDuration) || clipDuration <= 0 {
		return services.Wrap(services.ErrTimeWindow, stage, "validate windows", fmt.Sprintf("clip duration %v is unusable", clipDuration), nil)
	}
	prevEnd := 0.0
	for i, c := range captions {
		var msg string
		switch {
		case math.IsNaN(c.Start) || math.IsNaN(c.Duration):
			msg = "window is not a number"
		case c.Start < 0:
			msg = fmt.Sprintf("starts at %.3fs, before the clip", c.Start)
		case c.Duration <= 0:
			msg = fmt.Sprintf("duration %.3fs is not positive", c.Duration)
		case c.Start >= clipDuration:
			msg = fmt.Sprintf("starts at %.3fs, after the %.3fs clip ends", c.Start, clipDuration)
		case c.End() > clipDuration+windowTolerance:
			msg = fmt.Sprintf("ends at %.3fs, past the %.3fs clip", c.End(), clipDuration)
		case i > 0 && c.Start < prevEnd-1e-9:
			msg = fmt.Sprintf("starts at %.3fs, overlapping the previous caption ending at %.3fs", c.Start, prevEnd)
		}
		if msg != "" {
			return services.Wrap(services.ErrTimeWindow, stage, "validate windows", fmt.Sprintf("caption %d %s", i, msg), nil)
		}
		prevEnd = c.End()
	}
	return nil
}
