package config

const (
	defaultConfigPath             = "~/.config/reelsmith/config.toml"
	defaultStagingDir             = "~/.local/share/reelsmith/staging"
	defaultOutputDir              = "~/.local/share/reelsmith/output"
	defaultLogDir                 = "~/.local/share/reelsmith/logs"
	defaultAPIBind                = "127.0.0.1:7489"
	defaultSubmitLimitPerHour     = 5
	defaultLLMBaseURL             = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel               = "gpt-4o-mini"
	defaultLLMTimeoutSeconds      = 60
	defaultLLMRetryAttempts       = 3
	defaultGenerationBaseURL      = "https://api.kie.ai/api/v1"
	defaultImageModel             = "google/nano-banana"
	defaultVideoModel             = "veo3_fast"
	defaultPollIntervalSeconds    = 10
	defaultImageTimeoutSeconds    = 300
	defaultVideoTimeoutSeconds    = 900
	defaultDownloadTimeoutSeconds = 120
	defaultAspectRatio            = "9:16"
	defaultMinScenes              = 1
	defaultMaxScenes              = 10
	defaultSceneCount             = 5
	defaultVideoConcurrency       = 3
	defaultSpeedFactor            = 2.0
	defaultWidth                  = 1080
	defaultHeight                 = 1920
	defaultFPS                    = 30
	defaultTransition             = TransitionCut
	defaultCrossfadeSeconds       = 0.5
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultFontName               = "Liberation Sans:style=Bold"
	defaultTransformTimeout       = 600
	defaultProbeTimeout           = 30
	defaultCaptionWrapWidth       = 25
	defaultNotifyTimeout          = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultStore                  = StoreSQLite
	defaultStagingRetentionHours  = 72
)

// Transition names accepted by pipeline.transition.
const (
	TransitionCut       = "cut"
	TransitionCrossfade = "crossfade"
)

// Job store backends accepted by workflow.store.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:         defaultStagingDir,
			OutputDir:          defaultOutputDir,
			LogDir:             defaultLogDir,
			APIBind:            defaultAPIBind,
			SubmitLimitPerHour: defaultSubmitLimitPerHour,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			RetryAttempts:  defaultLLMRetryAttempts,
		},
		Generation: Generation{
			BaseURL:                defaultGenerationBaseURL,
			ImageModel:             defaultImageModel,
			VideoModel:             defaultVideoModel,
			PollIntervalSeconds:    defaultPollIntervalSeconds,
			ImageTimeoutSeconds:    defaultImageTimeoutSeconds,
			VideoTimeoutSeconds:    defaultVideoTimeoutSeconds,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
			AspectRatio:            defaultAspectRatio,
		},
		Pipeline: Pipeline{
			MinScenes:        defaultMinScenes,
			MaxScenes:        defaultMaxScenes,
			DefaultScenes:    defaultSceneCount,
			VideoConcurrency: defaultVideoConcurrency,
			SpeedFactor:      defaultSpeedFactor,
			Width:            defaultWidth,
			Height:           defaultHeight,
			FPS:              defaultFPS,
			Transition:       defaultTransition,
			CrossfadeSeconds: defaultCrossfadeSeconds,
		},
		Media: Media{
			FFmpegBinary:            defaultFFmpegBinary,
			FFprobeBinary:           defaultFFprobeBinary,
			FontName:                defaultFontName,
			FontDirs:                []string{"/usr/share/fonts", "/usr/local/share/fonts", "~/.local/share/fonts"},
			TransformTimeoutSeconds: defaultTransformTimeout,
			ProbeTimeoutSeconds:     defaultProbeTimeout,
			CaptionWrapWidth:        defaultCaptionWrapWidth,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Workflow: Workflow{
			Store:                 defaultStore,
			StagingRetentionHours: defaultStagingRetentionHours,
		},
	}
}
