package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vidscribe/internal/audio"
	"vidscribe/internal/config"
	"vidscribe/internal/diarize"
	"vidscribe/internal/download"
	"vidscribe/internal/hardware"
	"vidscribe/internal/logging"
	"vidscribe/internal/merge"
	"vidscribe/internal/output"
	"vidscribe/internal/services"
	"vidscribe/internal/transcribe"
	"vidscribe/internal/transcript"
	"vidscribe/internal/workspace"
)

// PreprocessedAudioName is the normalized audio file inside a run workspace.
const PreprocessedAudioName = "audio_16k.wav"

// Preprocessor converts downloaded audio into recognizer input.
type Preprocessor interface {
	Process(ctx context.Context, inputPath, outputPath string, progress audio.ProgressFunc) (transcript.AudioAsset, error)
}

// Detector reports the accelerator available to the recognizer.
type Detector interface {
	Detect(ctx context.Context) (hardware.Accelerator, bool)
}

// Deps are the collaborators of an Orchestrator. All are required.
type Deps struct {
	Downloader   download.Downloader
	Preprocessor Preprocessor
	Diarizer     diarize.Diarizer
	Transcriber  transcribe.Transcriber
	Detector     Detector
	Workspaces   *workspace.Manager
}

func (d Deps) validate() error {
	missing := make([]string, 0, 6)
	if d.Downloader == nil {
		missing = append(missing, "downloader")
	}
	if d.Preprocessor == nil {
		missing = append(missing, "preprocessor")
	}
	if d.Diarizer == nil {
		missing = append(missing, "diarizer")
	}
	if d.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if d.Detector == nil {
		missing = append(missing, "detector")
	}
	if d.Workspaces == nil {
		missing = append(missing, "workspace manager")
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "pipeline", "init",
			"missing collaborators: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the progress sink. The default discards updates.
func WithSink(sink ProgressSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator runs the transcription pipeline, one run at a time.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	sink   ProgressSink
	logger *slog.Logger

	running atomic.Bool
	state   stateBox

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New builds an orchestrator over cfg and deps.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "configuration is required", nil)
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		sink:   nopSink{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o, nil
}

// Snapshot returns the state of the current or most recent run.
func (o *Orchestrator) Snapshot() RunState {
	return o.state.snapshot()
}

// Cancel requests cancellation of the active run. It is safe to call from
// any goroutine and a no-op when nothing is running.
func (o *Orchestrator) Cancel() {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// run carries the artifacts flowing between stages.
type run struct {
	id       string
	settings settings
	ws       *workspace.Workspace
	tier     hardware.Tier

	rawAudio    string
	audio       transcript.AudioAsset
	diarization *transcript.Diarization
	transcript  *transcript.Transcript
	result      *transcript.Result
	outputPath  string
}

// Run executes every stage for req. It returns services.ErrCancelled when
// cancellation was observed, or a services.ErrPipeline error wrapping the
// first unrecoverable stage failure.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*transcript.Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", "run already in progress", nil)
	}
	defer o.running.Store(false)

	s, err := resolve(o.cfg, req)
	if err != nil {
		o.report(StageError, 0, err.Error())
		return nil, err
	}
	r := &run{id: strings.TrimSpace(req.RunID), settings: s}
	if r.id == "" {
		r.id = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelMu.Lock()
	o.cancel = cancel
	o.cancelMu.Unlock()
	defer func() {
		o.cancelMu.Lock()
		o.cancel = nil
		o.cancelMu.Unlock()
	}()

	ctx = services.WithRunID(ctx, r.id)
	started := time.Now()
	o.state.update(func(st *RunState) {
		*st = RunState{RunID: r.id, URL: s.url, Stage: StageInit, StartedAt: started}
	})
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("url", s.url),
		logging.Bool("diarization_enabled", s.diarize),
		logging.String("output_format", s.outputFormat),
	)

	err = o.execute(ctx, r)
	o.finish(ctx, r, started, err)
	if err != nil {
		return nil, err
	}
	return r.result, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	steps := []struct {
		stage Stage
		fn    func(context.Context, *slog.Logger, *run) (string, error)
	}{
		{StageInit, o.initStage},
		{StageDownload, o.downloadStage},
		{StagePreprocess, o.preprocessStage},
		{StageDiarize, nil},
		{StageTranscribe, o.transcribeStage},
		{StageMerge, o.mergeStage},
		{StageOutput, o.outputStage},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return services.Cancelled(string(step.stage), err)
		}
		if step.stage == StageDiarize {
			if err := o.diarizeStage(ctx, r); err != nil {
				return err
			}
			continue
		}
		if err := o.runStage(ctx, r, step.stage, step.fn); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return services.Cancelled(string(StageOutput), err)
	}
	return nil
}

// runStage wraps fn with stage logging, progress bookends, and error
// classification. Cancellation wins over any error fn returns.
func (o *Orchestrator) runStage(ctx context.Context, r *run, stage Stage, fn func(context.Context, *slog.Logger, *run) (string, error)) error {
	stageCtx := services.WithStage(ctx, string(stage))
	stageLogger := logging.WithContext(stageCtx, o.logger)
	stageStart := time.Now()

	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	o.report(stage, 0, strings.ToLower(string(stage))+" started")

	message, err := fn(stageCtx, stageLogger, r)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return services.Cancelled(string(stage), ctxErr)
	}
	if err != nil {
		if services.IsCancelled(err) {
			return services.Cancelled(string(stage), err)
		}
		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("error_message", err.Error()),
			logging.Duration("stage_duration", time.Since(stageStart)),
			logging.Error(err),
		)
		return services.Wrap(services.ErrPipeline, string(stage), "", "", err)
	}

	o.report(stage, 1, message)
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("progress_message", message),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// report maps a stage-local ratio into the overall window, records it, and
// forwards it to the sink.
func (o *Orchestrator) report(stage Stage, ratio float64, message string) {
	ratio = clampRatio(ratio)
	overall, ok := OverallPercent(stage, ratio)
	o.state.update(func(st *RunState) {
		st.Stage = stage
		st.StageRatio = ratio
		st.Message = message
		if ok && overall > st.Overall {
			st.Overall = overall
		}
	})
	o.sink.OnStage(stage, ratio, message)
}

func (o *Orchestrator) progress(stage Stage) func(float64, string) {
	return func(ratio float64, message string) {
		o.report(stage, ratio, message)
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run, started time.Time, runErr error) {
	logger := logging.WithContext(ctx, o.logger)
	cancelled := services.IsCancelled(runErr)
	finished := time.Now()

	if r.ws != nil {
		purge := runErr == nil || cancelled || !o.cfg.Workspace.KeepFailed
		if err := r.ws.Release(purge); err != nil {
			logging.WarnWithContext(logger, "workspace cleanup failed", "workspace_cleanup_failed",
				logging.Error(err),
				logging.String("path", r.ws.Path()),
				logging.String(logging.FieldErrorHint, "remove the run directory manually"),
				logging.String(logging.FieldImpact, "disk space is not reclaimed"),
			)
		} else if !purge {
			logger.Info("workspace kept for inspection",
				logging.String(logging.FieldEventType, "workspace_kept"),
				logging.String("path", r.ws.Path()),
			)
		}
	}

	current := o.state.snapshot()
	o.state.update(func(st *RunState) {
		st.FinishedAt = finished
		st.Cancelled = cancelled
		st.Err = runErr
		st.OutputPath = r.outputPath
	})

	elapsed := finished.Sub(started)
	switch {
	case runErr == nil:
		o.report(StageDone, 1, fmt.Sprintf("completed in %s", elapsed.Round(100*time.Millisecond)))
		logger.Info("run completed",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.Duration("run_duration", elapsed),
			logging.Int("segments", len(r.result.Segments)),
			logging.Int("speakers", r.result.SpeakerCount),
			logging.String("output_path", r.outputPath),
		)
	case cancelled:
		o.report(current.Stage, current.StageRatio, "cancelled")
		logger.Info("run cancelled",
			logging.String(logging.FieldEventType, "run_cancelled"),
			logging.String(logging.FieldStage, string(current.Stage)),
			logging.Duration("run_duration", elapsed),
		)
	default:
		o.report(StageError, 0, failureMessage(runErr))
		logging.ErrorWithContext(logger, "run failed", "run_failure",
			logging.Error(runErr),
			logging.Duration("run_duration", elapsed),
			logging.String(logging.FieldErrorHint, "rerun with --verbose for collaborator output"),
		)
	}
}

func failureMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if prefix := services.ErrPipeline.Error() + ": "; strings.HasPrefix(msg, prefix) {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

func (o *Orchestrator) initStage(ctx context.Context, logger *slog.Logger, r *run) (string, error) {
	if hours := o.cfg.Workspace.StaleHours; hours > 0 {
		swept := o.deps.Workspaces.CleanStale(ctx, time.Duration(hours)*time.Hour)
		if len(swept.Removed) > 0 {
			logger.Info("stale workspaces removed",
				logging.String(logging.FieldEventType, "workspace_sweep"),
				logging.Int("removed", len(swept.Removed)),
			)
		}
	}

	ws, err := o.deps.Workspaces.Acquire(r.id)
	if err != nil {
		return "", err
	}
	r.ws = ws
	o.report(StageInit, 0.5, "workspace ready")

	r.tier = o.selectTier(ctx, logger, r.settings)
	o.state.update(func(st *RunState) { st.Tier = r.tier })
	return "using " + r.tier.String(), nil
}

// selectTier applies accelerator detection unless the CPU is forced. Request
// and configuration overrides take precedence over the selected row.
func (o *Orchestrator) selectTier(ctx context.Context, logger *slog.Logger, s settings) hardware.Tier {
	memoryGB := 0.0
	if !s.forceCPU {
		if acc, ok := o.deps.Detector.Detect(ctx); ok {
			memoryGB = acc.MemoryGB
			logger.Debug("accelerator detected",
				logging.String("accelerator", acc.Name),
				logging.Float64("memory_gb", acc.MemoryGB),
				logging.String("source", acc.Source),
			)
		}
	}
	override := s.override
	tier := hardware.SelectTier(memoryGB, s.forceCPU, &override)
	logger.Info("hardware tier selected",
		logging.String(logging.FieldEventType, "tier_selected"),
		logging.String("device", tier.Device),
		logging.String("profile", tier.Profile),
		logging.String("precision", tier.Precision),
		logging.Int("beam_width", tier.BeamWidth),
		logging.String("reason", tier.Reason),
	)
	return tier
}

func (o *Orchestrator) downloadStage(ctx context.Context, logger *slog.Logger, r *run) (string, error) {
	path, err := o.deps.Downloader.Fetch(ctx, r.settings.url, r.ws.Path(), o.progress(StageDownload))
	if err != nil {
		return "", err
	}
	r.rawAudio = path
	logger.Debug("audio downloaded", logging.String("path", path))
	return "audio downloaded", nil
}

func (o *Orchestrator) preprocessStage(ctx context.Context, _ *slog.Logger, r *run) (string, error) {
	asset, err := o.deps.Preprocessor.Process(ctx, r.rawAudio, r.ws.File(PreprocessedAudioName), o.progress(StagePreprocess))
	if err != nil {
		return "", err
	}
	r.audio = asset
	return fmt.Sprintf("audio ready (%s)", asset.Duration.Round(time.Second)), nil
}

// diarizeStage attributes speakers when prerequisites are met. Missing
// prerequisites and diarization failures leave r.diarization nil and the run
// continues; only cancellation and unexpected errors abort.
func (o *Orchestrator) diarizeStage(ctx context.Context, r *run) error {
	stageCtx := services.WithStage(ctx, string(StageDiarize))
	logger := logging.WithContext(stageCtx, o.logger)

	if !r.settings.diarize {
		logger.Info("diarization skipped", logging.String(logging.FieldEventType, "stage_skipped"), logging.String("reason", "disabled"))
		o.report(StageDiarize, 1, "skipped: disabled")
		return nil
	}
	if r.settings.token == "" && !isDir(r.settings.localModelDir) {
		logging.WarnWithContext(logger, "diarization skipped", "stage_skipped",
			logging.String("reason", "no credential or local model"),
			logging.String(logging.FieldErrorHint, "set HF_TOKEN or diarization.local_model_dir"),
			logging.String(logging.FieldImpact, "all speech is attributed to one speaker"),
		)
		o.report(StageDiarize, 1, "skipped: no credential or local model")
		return nil
	}

	return o.runStage(ctx, r, StageDiarize, o.diarize)
}

func (o *Orchestrator) diarize(ctx context.Context, logger *slog.Logger, r *run) (string, error) {
	diar, err := o.attributeSpeakers(ctx, r)
	if err != nil {
		if ctx.Err() != nil || services.IsCancelled(err) || !errors.Is(err, services.ErrDiarize) {
			return "", err
		}
		logging.WarnWithContext(logger, "diarization failed; continuing without speakers", "diarization_fallback",
			logging.Error(err),
			logging.Bool("model_load", errors.Is(err, services.ErrModelLoad)),
			logging.String(logging.FieldErrorHint, "check the diarization credential and model access"),
			logging.String(logging.FieldImpact, "all speech is attributed to one speaker"),
		)
		r.diarization = nil
		return "fallback: single speaker", nil
	}
	r.diarization = diar
	o.state.update(func(st *RunState) { st.Diarized = diar.HasSpans() })
	count := 0
	if diar != nil {
		count = diar.SpeakerCount
	}
	logger.Info("speakers identified",
		logging.String(logging.FieldEventType, "diarization_complete"),
		logging.Int("speakers", count),
		logging.Int("spans", len(diarSpans(diar))),
	)
	return fmt.Sprintf("%d speakers identified", count), nil
}

// attributeSpeakers loads the diarizer, runs it, and always releases it.
func (o *Orchestrator) attributeSpeakers(ctx context.Context, r *run) (*transcript.Diarization, error) {
	defer func() {
		if err := o.deps.Diarizer.Release(); err != nil {
			logging.WithContext(ctx, o.logger).Debug("diarizer release failed", logging.Error(err))
		}
	}()

	opts := diarize.LoadOptions{
		Token:         r.settings.token,
		LocalModelDir: r.settings.localModelDir,
		Device:        r.tier.Device,
	}
	o.report(StageDiarize, 0.05, "loading diarization model")
	if err := o.deps.Diarizer.Load(ctx, opts); err != nil {
		return nil, err
	}
	progress := o.progress(StageDiarize)
	return o.deps.Diarizer.Diarize(ctx, r.audio.Path, r.settings.expectedSpeakers, func(ratio float64, message string) {
		progress(0.1+0.9*clampRatio(ratio), message)
	})
}

func diarSpans(d *transcript.Diarization) []transcript.SpeakerSpan {
	if d == nil {
		return nil
	}
	return d.Spans
}

func (o *Orchestrator) transcribeStage(ctx context.Context, logger *slog.Logger, r *run) (string, error) {
	opts := transcribe.Options{
		Language:       r.settings.language,
		WordTimestamps: r.diarization.HasSpans() || r.settings.wantsWords(),
		BeamWidth:      r.tier.BeamWidth,
		VADFilter:      r.settings.vad,
		Profile:        r.tier.Profile,
		Precision:      r.tier.Precision,
		Device:         r.tier.Device,
		Threads:        r.settings.threads,
	}
	logger.Debug("transcription options",
		logging.String("language", valueOr(opts.Language, "auto")),
		logging.Bool("word_timestamps", opts.WordTimestamps),
		logging.Bool("vad_filter", opts.VADFilter),
		logging.Int("threads", opts.Threads),
	)
	tr, err := o.deps.Transcriber.Transcribe(ctx, r.audio.Path, opts, o.progress(StageTranscribe))
	if err != nil {
		return "", err
	}
	r.transcript = tr
	return fmt.Sprintf("%d segments transcribed", len(tr.Segments)), nil
}

func (o *Orchestrator) mergeStage(_ context.Context, _ *slog.Logger, r *run) (string, error) {
	result, err := merge.Merge(r.transcript, r.diarization)
	if err != nil {
		return "", err
	}
	r.result = result
	return fmt.Sprintf("%d segments, %d speakers", len(result.Segments), result.SpeakerCount), nil
}

func (o *Orchestrator) outputStage(_ context.Context, logger *slog.Logger, r *run) (string, error) {
	if r.settings.outputFormat == "" {
		return "no output requested", nil
	}
	formatter, err := output.ForName(r.settings.outputFormat, r.settings.includeWords)
	if err != nil {
		return "", err
	}
	path := r.settings.outputPath
	if path == "" {
		dir, err := config.ExpandPath(o.cfg.Paths.OutputDir)
		if err != nil {
			return "", services.Wrap(services.ErrOutput, string(StageOutput), "resolve path", "invalid output directory", err)
		}
		path = output.DefaultPath(dir, r.id, formatter)
	}
	if err := output.Save(path, formatter, r.result); err != nil {
		return "", err
	}
	r.outputPath = path
	o.state.update(func(st *RunState) { st.OutputPath = path })
	logger.Info("transcript saved",
		logging.String(logging.FieldEventType, "output_saved"),
		logging.String("path", path),
		logging.String("format", r.settings.outputFormat),
	)
	return "saved " + path, nil
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(expanded)
	return err == nil && info.IsDir()
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
