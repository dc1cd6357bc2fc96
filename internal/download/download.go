package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vidscribe/internal/config"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

const (
	stageName = "download"
	// OutputBase is the file name (without extension) yt-dlp writes into the
	// destination directory.
	OutputBase = "audio_raw"
	// transferShare is the fraction of the stage spent transferring; the rest
	// covers audio extraction.
	transferShare = 0.9
)

var progressPattern = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)

// ProgressFunc receives a stage-local ratio in [0, 1] and a short message.
type ProgressFunc func(ratio float64, message string)

// Downloader retrieves the audio of url into destDir and returns the WAV path.
type Downloader interface {
	Fetch(ctx context.Context, rawURL, destDir string, progress ProgressFunc) (string, error)
}

// Option configures a YtDlp downloader.
type Option func(*YtDlp)

// WithExecutor injects the process executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(y *YtDlp) {
		if exec != nil {
			y.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(y *YtDlp) {
		if logger != nil {
			y.logger = logger
		}
	}
}

// WithRetryDelay overrides the base backoff between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(y *YtDlp) {
		if delay >= 0 {
			y.retryDelay = delay
		}
	}
}

// YtDlp downloads with the yt-dlp CLI, retrying transient failures.
type YtDlp struct {
	binary      string
	ffmpeg      string
	maxAttempts int
	retryDelay  time.Duration
	exec        services.Executor
	logger      *slog.Logger
}

// NewYtDlp builds a downloader from the download configuration section.
func NewYtDlp(cfg config.Download, opts ...Option) *YtDlp {
	y := &YtDlp{
		binary:      strings.TrimSpace(cfg.YtDlpBinary),
		ffmpeg:      strings.TrimSpace(cfg.FFmpegBinary),
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  time.Duration(cfg.RetryDelaySeconds) * time.Second,
		exec:        services.CommandExecutor{},
		logger:      logging.NewNop(),
	}
	if y.binary == "" {
		y.binary = "yt-dlp"
	}
	if y.maxAttempts <= 0 {
		y.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return services.Wrap(services.ErrValidation, stageName, "validate url", "URL is empty", nil)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "validate url", "URL is malformed", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return services.Wrap(services.ErrValidation, stageName, "validate url", fmt.Sprintf("unsupported scheme %q", parsed.Scheme), nil)
	}
	if parsed.Hostname() == "" {
		return services.Wrap(services.ErrValidation, stageName, "validate url", "URL has no host", nil)
	}
	return nil
}

// Fetch downloads and extracts the audio track. Invalid URLs fail before any
// process runs.
func (y *YtDlp) Fetch(ctx context.Context, rawURL, destDir string, progress ProgressFunc) (string, error) {
	report := func(ratio float64, message string) {
		if progress != nil {
			progress(ratio, message)
		}
	}
	if err := ValidateURL(rawURL); err != nil {
		return "", fmt.Errorf("%w: %w", services.ErrDownload, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrDownload, stageName, "prepare", "Failed to create download directory", err)
	}
	rawURL = strings.TrimSpace(rawURL)
	cmd := services.Command{Binary: y.binary, Args: y.buildArgs(rawURL, destDir)}

	var lastErr error
	for attempt := 1; attempt <= y.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", services.Cancelled(stageName, err)
		}
		y.logger.Info("download attempt",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", y.maxAttempts),
			logging.String("url", rawURL),
		)
		report(0, fmt.Sprintf("download attempt %d/%d", attempt, y.maxAttempts))

		err := y.exec.Run(ctx, cmd, func(line string) {
			if ratio, message, ok := ParseProgress(line); ok {
				report(ratio, message)
			}
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", services.Cancelled(stageName, ctxErr)
		}
		if err == nil {
			path, locateErr := locateOutput(destDir)
			if locateErr != nil {
				return "", services.Wrap(services.ErrDownload, stageName, "locate output", "yt-dlp finished without producing a WAV file", locateErr)
			}
			y.logger.Info("download complete", logging.String("path", path))
			report(1, "download complete")
			return path, nil
		}

		lastErr = err
		logging.WarnWithContext(y.logger, "download attempt failed", "download_retry",
			logging.Int("attempt", attempt),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network access and that the URL is playable"),
			logging.String(logging.FieldImpact, "download is retried until attempts run out"),
		)
		if attempt < y.maxAttempts {
			if err := sleep(ctx, y.retryDelay*time.Duration(attempt)); err != nil {
				return "", services.Cancelled(stageName, err)
			}
		}
	}
	return "", services.Wrap(services.ErrDownload, stageName, "fetch",
		fmt.Sprintf("gave up after %d attempts", y.maxAttempts), lastErr)
}

func (y *YtDlp) buildArgs(rawURL, destDir string) []string {
	args := []string{
		"--no-playlist",
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"--newline",
		"--no-warnings",
		"--force-overwrites",
		"--output", filepath.Join(destDir, OutputBase+".%(ext)s"),
	}
	if y.ffmpeg != "" && y.ffmpeg != "ffmpeg" {
		args = append(args, "--ffmpeg-location", y.ffmpeg)
	}
	return append(args, rawURL)
}

// ParseProgress converts a yt-dlp progress line into a stage ratio.
// Transfer progress fills the first 90%; the extraction step reports 0.9.
func ParseProgress(line string) (float64, string, bool) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "[ExtractAudio]") {
		return transferShare, "extracting audio", true
	}
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, "", false
	}
	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, "", false
	}
	percent = min(max(percent, 0), 100)
	return percent / 100 * transferShare, fmt.Sprintf("downloading %.0f%%", percent), true
}

func locateOutput(destDir string) (string, error) {
	path := filepath.Join(destDir, OutputBase+".wav")
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}
	return path, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
