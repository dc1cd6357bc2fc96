package transcribe

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/transcript"
)

//go:embed faster_whisper_helper.py
var helperScript string

const (
	stageName        = "transcribe"
	helperScriptName = "faster_whisper_helper.py"

	// VAD parameters handed to the recognizer when filtering is enabled.
	VADMinSilenceMS = 500
	VADSpeechPadMS  = 200

	defaultProfile   = "base"
	defaultPrecision = "int8"
	defaultDevice    = "cpu"
)

var helperPackages = []string{"faster-whisper>=1.0"}

// ProgressFunc receives a stage-local ratio in [0, 1] and a short message.
type ProgressFunc func(ratio float64, message string)

// Options controls one recognition call.
type Options struct {
	// Language is an ISO code; empty or "auto" requests detection.
	Language       string
	WordTimestamps bool
	BeamWidth      int
	VADFilter      bool
	Profile        string
	Precision      string
	Device         string
	// Threads caps CPU threads; zero leaves the engine default.
	Threads int
}

// Transcriber converts an audio file into timestamped text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) (*transcript.Transcript, error)
}

// Option configures a FasterWhisper transcriber.
type Option func(*FasterWhisper)

// WithExecutor injects the process executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(f *FasterWhisper) {
		if exec != nil {
			f.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FasterWhisper) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithScratchDir sets where the helper script is written.
func WithScratchDir(dir string) Option {
	return func(f *FasterWhisper) {
		f.scratchDir = strings.TrimSpace(dir)
	}
}

// FasterWhisper runs the faster-whisper helper once per call.
type FasterWhisper struct {
	runner     string
	scratchDir string
	exec       services.Executor
	logger     *slog.Logger
}

// NewFasterWhisper constructs a transcriber that launches its helper through runner.
func NewFasterWhisper(runner string, opts ...Option) *FasterWhisper {
	f := &FasterWhisper{
		runner: runner,
		exec:   services.CommandExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type helperWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

type helperMessage struct {
	Type                string       `json:"type"`
	Stage               string       `json:"stage"`
	Message             string       `json:"message"`
	Language            string       `json:"language"`
	LanguageProbability float64      `json:"language_probability"`
	Duration            float64      `json:"duration"`
	Text                string       `json:"text"`
	Start               float64      `json:"start"`
	End                 float64      `json:"end"`
	Words               []helperWord `json:"words"`
}

// Transcribe runs recognition on audioPath.
func (f *FasterWhisper) Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) (*transcript.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Cancelled(stageName, err)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, services.Wrap(services.ErrTranscribe, stageName, "open audio", "Audio input is not readable", err)
	}
	report := func(ratio float64, message string) {
		if progress != nil {
			progress(ratio, message)
		}
	}

	scriptDir, err := os.MkdirTemp(f.scratchDir, "transcribe-*")
	if err != nil {
		return nil, services.Wrap(services.ErrTranscribe, stageName, "prepare helper", "Failed to create helper directory", err)
	}
	defer os.RemoveAll(scriptDir)
	script, err := services.WriteScript(scriptDir, helperScriptName, helperScript)
	if err != nil {
		return nil, services.Wrap(services.ErrTranscribe, stageName, "prepare helper", "Failed to write helper script", err)
	}

	cmd := services.PythonHelper(f.runner, helperPackages, script, BuildArgs(audioPath, opts)...)
	f.logger.Info("transcription started",
		logging.String("model", valueOr(opts.Profile, defaultProfile)),
		logging.String("precision", valueOr(opts.Precision, defaultPrecision)),
		logging.String("device", valueOr(opts.Device, defaultDevice)),
		logging.Int("beam_size", opts.BeamWidth),
		logging.Bool("word_timestamps", opts.WordTimestamps),
		logging.Bool("vad_filter", opts.VADFilter),
	)
	report(0, "loading recognition model")

	start := time.Now()
	stream := &segmentStream{report: report, logger: f.logger}
	runErr := f.exec.Run(ctx, cmd, func(line string) {
		if ctx.Err() != nil {
			return
		}
		stream.handle(line)
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, services.Cancelled(stageName, ctxErr)
	}
	if stream.failure != nil {
		if stream.failure.Stage == "load" {
			return nil, fmt.Errorf("%w: %w", services.ErrModelLoad,
				services.Wrap(services.ErrTranscribe, stageName, "load model", stream.failure.Message, nil))
		}
		return nil, services.Wrap(services.ErrTranscribe, stageName, "run", stream.failure.Message, nil)
	}
	if runErr != nil {
		return nil, services.Wrap(services.ErrTranscribe, stageName, "run", "Recognition helper failed", runErr)
	}
	if !stream.done {
		return nil, services.Wrap(services.ErrTranscribe, stageName, "run", "Recognition helper ended without a result", nil)
	}

	result := stream.result()
	f.logger.Info("transcription complete",
		logging.Int("segments", len(result.Segments)),
		logging.String("language", result.Language),
		logging.Float64("language_confidence", result.LanguageConfidence),
		logging.Duration("elapsed", time.Since(start)),
	)
	report(1, "transcription complete")
	return result, nil
}

// BuildArgs renders helper arguments for one call.
func BuildArgs(audioPath string, opts Options) []string {
	args := []string{
		"--audio", audioPath,
		"--model", valueOr(opts.Profile, defaultProfile),
		"--device", valueOr(opts.Device, defaultDevice),
		"--compute-type", valueOr(opts.Precision, defaultPrecision),
		"--beam-size", strconv.Itoa(max(opts.BeamWidth, 1)),
	}
	if lang := strings.ToLower(strings.TrimSpace(opts.Language)); lang != "" && lang != "auto" {
		args = append(args, "--language", lang)
	}
	if opts.WordTimestamps {
		args = append(args, "--word-timestamps")
	}
	if opts.VADFilter {
		args = append(args,
			"--vad",
			"--vad-min-silence-ms", strconv.Itoa(VADMinSilenceMS),
			"--vad-speech-pad-ms", strconv.Itoa(VADSpeechPadMS),
		)
	}
	if opts.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(opts.Threads))
	}
	return args
}

type segmentStream struct {
	report   ProgressFunc
	logger   *slog.Logger
	info     helperMessage
	segments []transcript.Segment
	failure  *helperMessage
	done     bool
}

func (s *segmentStream) handle(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		if line != "" {
			s.logger.Debug("recognition helper output", logging.String("line", line))
		}
		return
	}
	var msg helperMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		s.logger.Debug("unparseable helper line", logging.String("line", line), logging.Error(err))
		return
	}
	switch msg.Type {
	case "info":
		s.info = msg
		s.logger.Info("language detected",
			logging.String("language", msg.Language),
			logging.Float64("confidence", msg.LanguageProbability),
			logging.Float64("duration_seconds", msg.Duration),
		)
	case "segment":
		s.segments = append(s.segments, toSegment(msg))
		if s.info.Duration > 0 {
			ratio := math.Min(msg.End/s.info.Duration, 1)
			s.report(ratio, fmt.Sprintf("transcribing %.0f%%", ratio*100))
		}
	case "error":
		failure := msg
		s.failure = &failure
	case "done":
		s.done = true
	}
}

func (s *segmentStream) result() *transcript.Transcript {
	return &transcript.Transcript{
		Segments:           s.segments,
		Language:           s.info.Language,
		LanguageConfidence: s.info.LanguageProbability,
		Duration:           s.info.Duration,
	}
}

func toSegment(msg helperMessage) transcript.Segment {
	seg := transcript.Segment{
		Text:  strings.TrimSpace(msg.Text),
		Start: msg.Start,
		End:   msg.End,
	}
	for _, w := range msg.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		seg.Words = append(seg.Words, transcript.WordSpan{
			Text:       text,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Probability,
		})
	}
	return seg
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
