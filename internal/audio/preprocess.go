package audio

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/transcript"
)

const stageName = "preprocess"

// ProgressFunc receives a stage-local ratio in [0, 1] and a short message.
type ProgressFunc func(ratio float64, message string)

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Preprocessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTargetRate overrides the output sample rate.
func WithTargetRate(rate int) Option {
	return func(p *Preprocessor) {
		if rate > 0 {
			p.targetRate = rate
		}
	}
}

// Preprocessor normalizes audio files for recognition.
type Preprocessor struct {
	targetRate    int
	targetDB      float64
	clipThreshold float64
	logger        *slog.Logger
}

// NewPreprocessor constructs a Preprocessor with the standard targets.
func NewPreprocessor(opts ...Option) *Preprocessor {
	p := &Preprocessor{
		targetRate:    TargetSampleRate,
		targetDB:      TargetLoudnessDB,
		clipThreshold: ClipThreshold,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process reads inputPath, normalizes it, and writes 16-bit mono PCM to
// outputPath. Cancellation is checked between steps; a cancelled or failed
// run leaves no file at outputPath.
func (p *Preprocessor) Process(ctx context.Context, inputPath, outputPath string, progress ProgressFunc) (transcript.AudioAsset, error) {
	report := func(ratio float64, message string) {
		if progress != nil {
			progress(ratio, message)
		}
	}
	checkpoint := func() error {
		if err := ctx.Err(); err != nil {
			return services.Cancelled(stageName, err)
		}
		return nil
	}
	logger := logging.WithContext(ctx, p.logger)

	report(0, "loading audio")
	if err := checkpoint(); err != nil {
		return transcript.AudioAsset{}, err
	}
	pcm, err := ReadWAV(inputPath)
	if err != nil {
		return transcript.AudioAsset{}, services.Wrap(services.ErrPreprocess, stageName, "load", inputPath, err)
	}
	logger.Debug("audio loaded",
		logging.Int("sample_rate", pcm.SampleRate),
		logging.Int("channels", pcm.Channels),
		logging.Float64("duration_seconds", pcm.Duration()),
	)

	report(0.2, "converting to mono")
	if err := checkpoint(); err != nil {
		return transcript.AudioAsset{}, err
	}
	samples := Downmix(pcm.Samples, pcm.Channels)

	report(0.4, "resampling")
	if err := checkpoint(); err != nil {
		return transcript.AudioAsset{}, err
	}
	samples = Resample(samples, pcm.SampleRate, p.targetRate)

	report(0.6, "normalizing loudness")
	if err := checkpoint(); err != nil {
		return transcript.AudioAsset{}, err
	}
	samples, gainDB, applied := NormalizeLoudness(samples, p.targetDB)
	if applied {
		logger.Debug("loudness normalized", logging.Float64("gain_db", gainDB))
	} else {
		logger.Debug("near-silent input; loudness normalization skipped")
	}

	report(0.8, "limiting peaks")
	if err := checkpoint(); err != nil {
		return transcript.AudioAsset{}, err
	}
	samples, limited := LimitPeak(samples, p.clipThreshold)
	if limited {
		logger.Debug("peak limited", logging.Float64("threshold", p.clipThreshold))
	}

	report(0.9, "writing output")
	if err := checkpoint(); err != nil {
		return transcript.AudioAsset{}, err
	}
	out := PCM{Samples: samples, SampleRate: p.targetRate, Channels: 1}
	if err := p.persist(ctx, outputPath, out); err != nil {
		return transcript.AudioAsset{}, err
	}

	report(1, "audio ready")
	return transcript.AudioAsset{
		Path:       outputPath,
		SampleRate: p.targetRate,
		Channels:   1,
		Duration:   time.Duration(out.Duration() * float64(time.Second)),
	}, nil
}

// persist writes to a sibling temporary file and renames it into place once
// encoding finished and the run is still live.
func (p *Preprocessor) persist(ctx context.Context, outputPath string, pcm PCM) (err error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrPreprocess, stageName, "persist", "create output directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".preprocess-*.wav")
	if err != nil {
		return services.Wrap(services.ErrPreprocess, stageName, "persist", "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := WriteWAV(tmp, pcm); err != nil {
		_ = tmp.Close()
		return services.Wrap(services.ErrPreprocess, stageName, "persist", outputPath, err)
	}
	if err := tmp.Close(); err != nil {
		return services.Wrap(services.ErrPreprocess, stageName, "persist", "close temp file", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return services.Cancelled(stageName, ctxErr)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return services.Wrap(services.ErrPreprocess, stageName, "persist", "rename output", err)
	}
	return nil
}
