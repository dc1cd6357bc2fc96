package config

const (
	defaultConfigPath         = "~/.config/vidscribe/config.toml"
	defaultWorkDir            = "~/.cache/vidscribe/work"
	defaultOutputDir          = "~/vidscribe"
	defaultStateDir           = "~/.local/share/vidscribe"
	defaultLogDir             = "~/.local/share/vidscribe/logs"
	defaultYtDlpBinary        = "yt-dlp"
	defaultFFmpegBinary       = "ffmpeg"
	defaultMaxAttempts        = 3
	defaultRetryDelaySeconds  = 2
	defaultRunner             = "uv"
	defaultLanguage           = "auto"
	defaultLowPowerThreads    = 2
	defaultOutputFormat       = "txt"
	defaultWorkspaceStaleHour = 24
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Download: Download{
			YtDlpBinary:       defaultYtDlpBinary,
			FFmpegBinary:      defaultFFmpegBinary,
			MaxAttempts:       defaultMaxAttempts,
			RetryDelaySeconds: defaultRetryDelaySeconds,
		},
		Transcription: Transcription{
			Runner:          defaultRunner,
			Language:        defaultLanguage,
			VADFilter:       true,
			LowPowerThreads: defaultLowPowerThreads,
		},
		Diarization: Diarization{
			Enabled: true,
		},
		Output: Output{
			Format: defaultOutputFormat,
		},
		Workspace: Workspace{
			StaleHours: defaultWorkspaceStaleHour,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
