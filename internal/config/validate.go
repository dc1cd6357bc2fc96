package config

import (
	"errors"
	"fmt"
	"slices"
)

// OutputFormats lists the supported export formats.
var OutputFormats = []string{"txt", "srt", "json"}

// ModelProfiles lists the recognition model profiles accepted as overrides.
var ModelProfiles = []string{
	"tiny", "base", "small", "medium", "large-v2", "large-v3",
	"distil-small.en", "distil-medium.en", "distil-large-v3",
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDiarization(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Workspace.StaleHours < 0 {
		return errors.New("workspace.stale_hours must be zero or positive")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if c.Download.MaxAttempts < 1 {
		return errors.New("download.max_attempts must be at least 1")
	}
	if c.Download.RetryDelaySeconds < 0 {
		return errors.New("download.retry_delay_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.Model != "" && !slices.Contains(ModelProfiles, c.Transcription.Model) {
		return fmt.Errorf("transcription.model %q is not supported (choose from %v)", c.Transcription.Model, ModelProfiles)
	}
	if c.Transcription.BeamSize < 0 {
		return errors.New("transcription.beam_size must be zero (automatic) or positive")
	}
	return nil
}

func (c *Config) validateDiarization() error {
	if c.Diarization.NumSpeakers < 0 {
		return errors.New("diarization.num_speakers must be zero (automatic) or positive")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if !slices.Contains(OutputFormats, c.Output.Format) {
		return fmt.Errorf("output.format %q is not supported (choose from %v)", c.Output.Format, OutputFormats)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
