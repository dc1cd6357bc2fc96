package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDownload()
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	if err := c.normalizeDiarization(); err != nil {
		return err
	}
	c.normalizeOutput()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDownload() {
	c.Download.YtDlpBinary = strings.TrimSpace(c.Download.YtDlpBinary)
	if c.Download.YtDlpBinary == "" {
		c.Download.YtDlpBinary = defaultYtDlpBinary
	}
	c.Download.FFmpegBinary = strings.TrimSpace(c.Download.FFmpegBinary)
	if c.Download.FFmpegBinary == "" {
		c.Download.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Download.MaxAttempts == 0 {
		c.Download.MaxAttempts = defaultMaxAttempts
	}
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.Runner = strings.TrimSpace(c.Transcription.Runner)
	if c.Transcription.Runner == "" {
		c.Transcription.Runner = defaultRunner
	}
	lang, err := NormalizeLanguage(c.Transcription.Language)
	if err != nil {
		return fmt.Errorf("transcription.language: %w", err)
	}
	c.Transcription.Language = lang
	c.Transcription.Model = strings.ToLower(strings.TrimSpace(c.Transcription.Model))
	if c.Transcription.Model == "auto" {
		c.Transcription.Model = ""
	}
	if c.Transcription.LowPowerThreads <= 0 {
		c.Transcription.LowPowerThreads = defaultLowPowerThreads
	}
	return nil
}

func (c *Config) normalizeDiarization() error {
	c.Diarization.HFToken = strings.TrimSpace(c.Diarization.HFToken)
	if strings.TrimSpace(c.Diarization.LocalModelDir) == "" {
		c.Diarization.LocalModelDir = ""
		return nil
	}
	var err error
	if c.Diarization.LocalModelDir, err = expandPath(c.Diarization.LocalModelDir); err != nil {
		return fmt.Errorf("diarization.local_model_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeOutput() {
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = defaultOutputFormat
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizeLanguage canonicalizes a recognition language. Empty and "auto"
// mean detect and normalize to "auto"; anything else must parse as a BCP 47
// tag and is reduced to its base language (for example "en-US" becomes "en").
func NormalizeLanguage(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "auto") {
		return "auto", nil
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", fmt.Errorf("unrecognized language %q: %w", value, err)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("unrecognized language %q", value)
	}
	return base.String(), nil
}
