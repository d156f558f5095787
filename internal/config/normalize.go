package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeGeneration()
	if err := c.normalizePipeline(); err != nil {
		return err
	}
	if err := c.normalizeMedia(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	c.Workflow.Store = strings.ToLower(strings.TrimSpace(c.Workflow.Store))
	if c.Workflow.Store == "" {
		c.Workflow.Store = defaultStore
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = envOr(c.Paths.APIToken, "REELSMITH_API_TOKEN")
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = envOr(c.LLM.APIKey, "LLM_API_KEY", "OPENAI_API_KEY")
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
}

func (c *Config) normalizeGeneration() {
	c.Generation.APIKey = envOr(c.Generation.APIKey, "KIE_API_KEY")
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaultGenerationBaseURL
	}
	c.Generation.ImageModel = strings.TrimSpace(c.Generation.ImageModel)
	c.Generation.VideoModel = strings.TrimSpace(c.Generation.VideoModel)
	c.Generation.AspectRatio = strings.TrimSpace(c.Generation.AspectRatio)
	if c.Generation.AspectRatio == "" {
		c.Generation.AspectRatio = defaultAspectRatio
	}
}

func (c *Config) normalizePipeline() error {
	c.Pipeline.Transition = strings.ToLower(strings.TrimSpace(c.Pipeline.Transition))
	if c.Pipeline.Transition == "" {
		c.Pipeline.Transition = defaultTransition
	}
	if strings.TrimSpace(c.Pipeline.ScriptFile) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Pipeline.ScriptFile))
		if err != nil {
			return fmt.Errorf("pipeline.script_file: %w", err)
		}
		c.Pipeline.ScriptFile = expanded
	}
	return nil
}

func (c *Config) normalizeMedia() error {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	c.Media.FontName = strings.TrimSpace(c.Media.FontName)
	if c.Media.FontName == "" {
		c.Media.FontName = defaultFontName
	}
	if path := strings.TrimSpace(c.Media.FontPath); path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return fmt.Errorf("media.font_path: %w", err)
		}
		c.Media.FontPath = expanded
	}
	dirs := make([]string, 0, len(c.Media.FontDirs))
	for _, dir := range c.Media.FontDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("media.font_dirs: %w", err)
		}
		dirs = append(dirs, expanded)
	}
	c.Media.FontDirs = dirs
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = envOr(c.Notifications.NtfyTopic, "NTFY_TOPIC")
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "text", "pretty":
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

// envOr returns the first non-empty environment value among keys, falling back
// to the file value. Environment wins so secrets never need to live in the file.
func envOr(fileValue string, keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(fileValue)
}
