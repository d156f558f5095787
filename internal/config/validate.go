package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.MinScenes < 1 {
		return errors.New("pipeline.min_scenes must be at least 1")
	}
	if p.MaxScenes < p.MinScenes {
		return errors.New("pipeline.max_scenes must be >= pipeline.min_scenes")
	}
	if p.DefaultScenes < p.MinScenes || p.DefaultScenes > p.MaxScenes {
		return fmt.Errorf("pipeline.default_scenes must be between %d and %d", p.MinScenes, p.MaxScenes)
	}
	if p.VideoConcurrency < 1 {
		return errors.New("pipeline.video_concurrency must be positive")
	}
	if p.SpeedFactor <= 0 {
		return errors.New("pipeline.speed_factor must be greater than 0")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return errors.New("pipeline.width and pipeline.height must be positive")
	}
	if p.Width%2 != 0 || p.Height%2 != 0 {
		return errors.New("pipeline.width and pipeline.height must be even for yuv420p output")
	}
	if p.FPS <= 0 {
		return errors.New("pipeline.fps must be positive")
	}
	switch p.Transition {
	case TransitionCut:
	case TransitionCrossfade:
		if p.CrossfadeSeconds <= 0 {
			return errors.New("pipeline.crossfade_seconds must be positive when transition is crossfade")
		}
	default:
		return fmt.Errorf("pipeline.transition must be %q or %q", TransitionCut, TransitionCrossfade)
	}
	if p.TrimLeadSeconds < 0 {
		return errors.New("pipeline.trim_lead_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	checks := []struct {
		name  string
		value int
	}{
		{"llm.timeout_seconds", c.LLM.TimeoutSeconds},
		{"generation.poll_interval", c.Generation.PollIntervalSeconds},
		{"generation.image_timeout", c.Generation.ImageTimeoutSeconds},
		{"generation.video_timeout", c.Generation.VideoTimeoutSeconds},
		{"generation.download_timeout", c.Generation.DownloadTimeoutSeconds},
		{"media.transform_timeout", c.Media.TransformTimeoutSeconds},
		{"media.probe_timeout", c.Media.ProbeTimeoutSeconds},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return fmt.Errorf("%s must be positive", check.name)
		}
	}
	if c.LLM.RetryAttempts < 1 {
		return errors.New("llm.retry_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.CaptionFontSize < 0 {
		return errors.New("media.caption_font_size must be >= 0")
	}
	if c.Media.CaptionWrapWidth < 8 {
		return errors.New("media.caption_wrap_width must be at least 8")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	switch c.Workflow.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("workflow.store must be %q or %q", StoreSQLite, StoreMemory)
	}
	if c.Workflow.StagingRetentionHours < 0 {
		return errors.New("workflow.staging_retention_hours must be >= 0")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.SubmitLimitPerHour < 0 {
		return errors.New("paths.submit_limit_per_hour must be >= 0")
	}
	return nil
}
