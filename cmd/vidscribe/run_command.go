package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vidscribe/internal/audio"
	"vidscribe/internal/config"
	"vidscribe/internal/diarize"
	"vidscribe/internal/download"
	"vidscribe/internal/hardware"
	"vidscribe/internal/history"
	"vidscribe/internal/logging"
	"vidscribe/internal/output"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/preflight"
	"vidscribe/internal/services"
	"vidscribe/internal/transcribe"
	"vidscribe/internal/transcript"
	"vidscribe/internal/workspace"
)

// stdoutPath selects printing the transcript instead of saving it.
const stdoutPath = "-"

type runFlags struct {
	language   string
	speakers   int
	format     string
	outputPath string
	hfToken    string
	noDiarize  bool
	noVAD      bool
	cpu        bool
	lowPower   bool
	model      string
	beamSize   int
	words      bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Download a video and write a speaker-attributed transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if err := flags.validate(); err != nil {
				return err
			}
			return runTranscription(cmd, cfg, logger, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.language, "language", "", "Spoken language code (default: detect)")
	cmd.Flags().IntVar(&flags.speakers, "speakers", 0, "Expected number of speakers (0 = detect)")
	cmd.Flags().StringVar(&flags.format, "format", "", "Output format: txt, srt, or json")
	cmd.Flags().StringVarP(&flags.outputPath, "output", "o", "", "Output file ('-' prints to stdout)")
	cmd.Flags().StringVar(&flags.hfToken, "hf-token", "", "Hugging Face token for speaker diarization")
	cmd.Flags().BoolVar(&flags.noDiarize, "no-diarize", false, "Skip speaker diarization")
	cmd.Flags().BoolVar(&flags.noVAD, "no-vad", false, "Disable voice-activity filtering")
	cmd.Flags().BoolVar(&flags.cpu, "cpu", false, "Force CPU inference")
	cmd.Flags().BoolVar(&flags.lowPower, "low-power", false, "Cap CPU threads for recognition")
	cmd.Flags().StringVar(&flags.model, "model", "", "Recognition model profile (overrides the hardware tier)")
	cmd.Flags().IntVar(&flags.beamSize, "beam-size", 0, "Beam width (overrides the hardware tier)")
	cmd.Flags().BoolVar(&flags.words, "words", false, "Include word timings in JSON output")
	return cmd
}

func (f runFlags) validate() error {
	if f.speakers < 0 {
		return services.Wrap(services.ErrValidation, "cli", "run", "--speakers must be zero or positive", nil)
	}
	if f.beamSize < 0 {
		return services.Wrap(services.ErrValidation, "cli", "run", "--beam-size must be zero or positive", nil)
	}
	if f.model != "" && !slices.Contains(config.ModelProfiles, f.model) {
		return services.Wrap(services.ErrValidation, "cli", "run",
			fmt.Sprintf("--model %q is not supported (choose from %v)", f.model, config.ModelProfiles), nil)
	}
	if f.format != "" && !output.Supported(f.format) {
		return services.Wrap(services.ErrValidation, "cli", "run",
			fmt.Sprintf("--format %q is not supported (choose from %v)", f.format, output.Names), nil)
	}
	return nil
}

// request maps flags onto a pipeline request. Printing to stdout renders
// after the run, so the pipeline itself persists nothing.
func (f runFlags) request(cfg *config.Config, runID, url string) pipeline.Request {
	format := strings.ToLower(strings.TrimSpace(f.format))
	if format == "" {
		format = cfg.Output.Format
	}
	req := pipeline.Request{
		RunID:              runID,
		URL:                url,
		Language:           f.language,
		ExpectedSpeakers:   f.speakers,
		OutputFormat:       format,
		OutputPath:         strings.TrimSpace(f.outputPath),
		HFToken:            f.hfToken,
		DisableDiarization: f.noDiarize,
		DisableVAD:         f.noVAD,
		ForceCPU:           f.cpu,
		LowPower:           f.lowPower,
		Model:              f.model,
		BeamWidth:          f.beamSize,
		IncludeWords:       f.words,
	}
	if req.OutputPath == stdoutPath {
		req.OutputPath = ""
		req.OutputFormat = ""
		req.IncludeWords = f.words && format == "json"
	} else if req.OutputPath != "" {
		if expanded, err := config.ExpandPath(req.OutputPath); err == nil {
			req.OutputPath = expanded
		}
	}
	return req
}

func runTranscription(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, url string, flags runFlags) error {
	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := download.ValidateURL(url); err != nil {
		return err
	}
	if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, r := range failed {
			parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		return services.Wrap(services.ErrConfiguration, "cli", "preflight",
			strings.Join(parts, "; ")+" (run `vidscribe doctor` for details)", nil)
	}

	store, err := history.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if n, err := store.MarkInterrupted(signalCtx); err != nil {
		logger.Warn("failed to mark interrupted runs", logging.Error(err))
	} else if n > 0 {
		logger.Info("marked interrupted runs", logging.Int("count", int(n)))
	}

	runID := uuid.NewString()
	req := flags.request(cfg, runID, url)
	record := history.Run{
		ID:           runID,
		URL:          url,
		Status:       history.StatusRunning,
		Stage:        string(pipeline.StageInit),
		OutputFormat: req.OutputFormat,
		StartedAt:    time.Now().UTC(),
	}
	if err := store.Record(signalCtx, record); err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	var (
		sink    pipeline.ProgressSink
		closeFn func()
	)
	if isTerminal(stderr) {
		bar := newBarSink(stderr)
		async := pipeline.NewAsyncSink(bar)
		sink = async
		closeFn = func() {
			async.Close()
			bar.close()
			fmt.Fprintln(stderr)
		}
	} else {
		sink = newLogSink(logger)
		closeFn = func() {}
	}

	orch, err := pipeline.New(cfg, buildDeps(cfg, logger), pipeline.WithSink(sink), pipeline.WithLogger(logger))
	if err != nil {
		closeFn()
		return err
	}

	type outcome struct {
		result *transcript.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, runErr := orch.Run(signalCtx, req)
		done <- outcome{result: res, err: runErr}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-signalCtx.Done():
		logger.Info("cancellation requested", logging.String(logging.FieldEventType, "cancel_requested"))
		orch.Cancel()
		out = <-done
	}
	closeFn()

	finishRecord(&record, orch.Snapshot(), out.result, out.err)
	// The signal context may already be cancelled; history must still land.
	if err := store.Record(context.WithoutCancel(signalCtx), record); err != nil {
		logger.Warn("failed to record run history", logging.Error(err))
	}
	if out.err != nil {
		return out.err
	}
	return printSummary(cmd.OutOrStdout(), stderr, cfg, flags, record, out.result)
}

func buildDeps(cfg *config.Config, logger *slog.Logger) pipeline.Deps {
	scratch := filepath.Join(cfg.Paths.StateDir, "helpers")
	return pipeline.Deps{
		Downloader:   download.NewYtDlp(cfg.Download, download.WithLogger(logger)),
		Preprocessor: audio.NewPreprocessor(audio.WithLogger(logger)),
		Diarizer: diarize.NewPyannote(cfg.Transcription.Runner,
			diarize.WithLogger(logger),
			diarize.WithScratchDir(scratch),
		),
		Transcriber: transcribe.NewFasterWhisper(cfg.Transcription.Runner,
			transcribe.WithLogger(logger),
			transcribe.WithScratchDir(scratch),
		),
		Detector:   hardware.NewDetector(hardware.WithLogger(logger)),
		Workspaces: workspace.NewManager(cfg.Paths.WorkDir, logger),
	}
}

func finishRecord(record *history.Run, snap pipeline.RunState, result *transcript.Result, runErr error) {
	finished := snap.FinishedAt.UTC()
	if snap.FinishedAt.IsZero() {
		finished = time.Now().UTC()
	}
	record.FinishedAt = &finished
	record.Stage = string(snap.Stage)
	record.OutputPath = snap.OutputPath
	if snap.Tier.Profile != "" {
		record.Tier = snap.Tier.String()
	}
	switch services.OutcomeOf(runErr) {
	case services.OutcomeCompleted:
		record.Status = history.StatusCompleted
	case services.OutcomeCancelled:
		record.Status = history.StatusCancelled
	default:
		record.Status = history.StatusFailed
		record.Error = runErr.Error()
	}
	if result != nil {
		record.Language = result.Language
		record.Speakers = result.SpeakerCount
		record.Segments = len(result.Segments)
		record.DurationSeconds = result.Duration
	}
}

func printSummary(stdout, stderr io.Writer, cfg *config.Config, flags runFlags, record history.Run, result *transcript.Result) error {
	if strings.TrimSpace(flags.outputPath) == stdoutPath {
		format := strings.TrimSpace(flags.format)
		if format == "" {
			format = cfg.Output.Format
		}
		formatter, err := output.ForName(format, flags.words || cfg.Output.IncludeWords)
		if err != nil {
			return err
		}
		content, err := formatter.Format(result)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, content)
		return err
	}
	fmt.Fprintf(stderr, "Transcript: %s\n", record.OutputPath)
	fmt.Fprintf(stderr, "Speakers:   %d\n", record.Speakers)
	fmt.Fprintf(stderr, "Segments:   %d\n", record.Segments)
	if record.Language != "" {
		fmt.Fprintf(stderr, "Language:   %s\n", record.Language)
	}
	fmt.Fprintf(stderr, "Run ID:     %s\n", record.ID)
	return nil
}
