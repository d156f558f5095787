package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
	// SubmitLimitPerHour caps job submissions per client address; 0 disables.
	SubmitLimitPerHour int `toml:"submit_limit_per_hour"`
}

// LLM contains the chat-completion settings used for script writing.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Generation contains settings for the image and video generation vendor.
type Generation struct {
	APIKey                 string `toml:"api_key"`
	BaseURL                string `toml:"base_url"`
	ImageModel             string `toml:"image_model"`
	VideoModel             string `toml:"video_model"`
	PollIntervalSeconds    int    `toml:"poll_interval"`
	ImageTimeoutSeconds    int    `toml:"image_timeout"`
	VideoTimeoutSeconds    int    `toml:"video_timeout"`
	DownloadTimeoutSeconds int    `toml:"download_timeout"`
	AspectRatio            string `toml:"aspect_ratio"`
}

// Pipeline contains job shape and assembly parameters.
type Pipeline struct {
	MinScenes        int     `toml:"min_scenes"`
	MaxScenes        int     `toml:"max_scenes"`
	DefaultScenes    int     `toml:"default_scenes"`
	VideoConcurrency int     `toml:"video_concurrency"`
	SpeedFactor      float64 `toml:"speed_factor"`
	Width            int     `toml:"width"`
	Height           int     `toml:"height"`
	FPS              int     `toml:"fps"`
	Transition       string  `toml:"transition"`
	CrossfadeSeconds float64 `toml:"crossfade_seconds"`
	TrimLeadSeconds  float64 `toml:"trim_lead_seconds"`
	// ScriptFile switches script writing to a YAML file instead of the LLM.
	ScriptFile string `toml:"script_file"`
}

// Media contains ffmpeg, ffprobe, and caption font settings.
type Media struct {
	FFmpegBinary            string   `toml:"ffmpeg_binary"`
	FFprobeBinary           string   `toml:"ffprobe_binary"`
	FontName                string   `toml:"font_name"`
	FontPath                string   `toml:"font_path"`
	FontDirs                []string `toml:"font_dirs"`
	TransformTimeoutSeconds int      `toml:"transform_timeout"`
	ProbeTimeoutSeconds     int      `toml:"probe_timeout"`
	// CaptionFontSize of 0 derives the size from the frame height.
	CaptionFontSize  int `toml:"caption_font_size"`
	CaptionWrapWidth int `toml:"caption_wrap_width"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Workflow contains daemon storage and housekeeping settings.
type Workflow struct {
	Store                 string `toml:"store"`
	StagingRetentionHours int    `toml:"staging_retention_hours"`
}

// Config encapsulates all configuration values for reelsmith.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - LLM: script writing via an OpenAI-compatible endpoint
//   - Generation: reference image and scene video vendor
//   - Pipeline: scene bounds, concurrency, speed, frame geometry
//   - Media: ffmpeg/ffprobe binaries, caption font, transform timeouts
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - Workflow: job store backend and staging retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Generation    Generation    `toml:"generation"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Media         Media         `toml:"media"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Workflow      Workflow      `toml:"workflow"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is loaded
// first so secrets can stay out of the TOML file.
func Load(path string) (*Config, string, bool, error) {
	_ = godotenv.Load(".env")

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelsmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequireCredentials reports the secrets a daemon needs before it can run jobs.
// Client-side commands never call it.
func (c *Config) RequireCredentials() error {
	if strings.TrimSpace(c.Pipeline.ScriptFile) == "" && strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required. Set LLM_API_KEY or edit %s (create with 'reelsmith config init')", c.displayPath())
	}
	if strings.TrimSpace(c.Generation.APIKey) == "" {
		return fmt.Errorf("generation.api_key is required. Set KIE_API_KEY or edit %s", c.displayPath())
	}
	return nil
}

func (c *Config) displayPath() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return defaultConfigPath
	}
	return path
}

// DatabasePath is the sqlite job store location inside the log directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LogDir, "jobs.db")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "reelsmith.lock")
}

// PollInterval returns the vendor task polling cadence.
func (g Generation) PollInterval() time.Duration { return seconds(g.PollIntervalSeconds) }

// ImageTimeout bounds one reference image task including polling.
func (g Generation) ImageTimeout() time.Duration { return seconds(g.ImageTimeoutSeconds) }

// VideoTimeout bounds one scene video task including polling.
func (g Generation) VideoTimeout() time.Duration { return seconds(g.VideoTimeoutSeconds) }

func (g Generation) DownloadTimeout() time.Duration { return seconds(g.DownloadTimeoutSeconds) }

// TransformTimeout bounds every ffmpeg invocation.
func (m Media) TransformTimeout() time.Duration { return seconds(m.TransformTimeoutSeconds) }

func (m Media) ProbeTimeout() time.Duration { return seconds(m.ProbeTimeoutSeconds) }

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
