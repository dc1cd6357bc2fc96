package pipeline

import (
	"strings"

	"vidscribe/internal/config"
	"vidscribe/internal/hardware"
	"vidscribe/internal/output"
	"vidscribe/internal/services"
)

// Request describes one run. Zero values fall back to the configuration.
type Request struct {
	// RunID names the run; a random ID is generated when empty.
	RunID string
	URL   string
	// Language is an ISO code; empty or "auto" requests detection.
	Language         string
	ExpectedSpeakers int
	// OutputFormat selects txt, srt, or json. Empty skips persisting.
	OutputFormat string
	OutputPath   string
	HFToken      string

	DisableDiarization bool
	DisableVAD         bool
	ForceCPU           bool
	LowPower           bool

	// Model and BeamWidth override the hardware tier when set.
	Model        string
	Precision    string
	BeamWidth    int
	IncludeWords bool
}

// settings is a Request with configuration defaults applied.
type settings struct {
	url              string
	language         string
	expectedSpeakers int
	outputFormat     string
	outputPath       string
	token            string
	localModelDir    string
	diarize          bool
	vad              bool
	forceCPU         bool
	threads          int
	override         hardware.Override
	includeWords     bool
}

func resolve(cfg *config.Config, req Request) (settings, error) {
	s := settings{
		url:              strings.TrimSpace(req.URL),
		language:         strings.TrimSpace(req.Language),
		expectedSpeakers: req.ExpectedSpeakers,
		outputFormat:     strings.ToLower(strings.TrimSpace(req.OutputFormat)),
		outputPath:       strings.TrimSpace(req.OutputPath),
		localModelDir:    strings.TrimSpace(cfg.Diarization.LocalModelDir),
		diarize:          cfg.Diarization.Enabled && !req.DisableDiarization,
		vad:              cfg.Transcription.VADFilter && !req.DisableVAD,
		forceCPU:         cfg.Transcription.ForceCPU || req.ForceCPU,
		includeWords:     cfg.Output.IncludeWords || req.IncludeWords,
		override: hardware.Override{
			Profile:   firstNonEmpty(req.Model, cfg.Transcription.Model),
			Precision: strings.TrimSpace(req.Precision),
			BeamWidth: req.BeamWidth,
		},
	}
	if s.url == "" {
		return settings{}, services.Wrap(services.ErrValidation, "pipeline", "resolve request", "URL is required", nil)
	}
	if s.language == "" {
		s.language = cfg.Transcription.Language
	}
	if strings.EqualFold(s.language, "auto") {
		s.language = ""
	}
	if s.expectedSpeakers <= 0 {
		s.expectedSpeakers = cfg.Diarization.NumSpeakers
	}
	if s.expectedSpeakers < 0 {
		s.expectedSpeakers = 0
	}
	if s.override.BeamWidth <= 0 {
		s.override.BeamWidth = cfg.Transcription.BeamSize
	}
	if s.outputFormat != "" && !output.Supported(s.outputFormat) {
		return settings{}, services.Wrap(services.ErrValidation, "pipeline", "resolve request",
			"unsupported output format "+s.outputFormat, nil)
	}
	if cfg.Transcription.LowPower || req.LowPower {
		s.threads = cfg.Transcription.LowPowerThreads
	}
	if s.diarize {
		s.token, _ = cfg.ResolveHFToken(req.HFToken)
	}
	return s, nil
}

// wantsWords reports whether word timings are exported. An empty format
// means the caller renders the result itself, so the request decides.
func (s settings) wantsWords() bool {
	if !s.includeWords {
		return false
	}
	return s.outputFormat == "" || s.outputFormat == output.JSONFormatter{}.Name()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
