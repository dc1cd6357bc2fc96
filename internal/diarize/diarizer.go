package diarize

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/transcript"
)

//go:embed pyannote_helper.py
var helperScript string

const (
	stageName        = "diarize"
	helperScriptName = "pyannote_helper.py"
	// DefaultModel is the pretrained pipeline loaded when no local model
	// directory is configured.
	DefaultModel = "pyannote/speaker-diarization-3.1"
)

var helperPackages = []string{"pyannote.audio>=3.1"}

// ProgressFunc receives a stage-local ratio in [0, 1] and a short message.
type ProgressFunc func(ratio float64, message string)

// LoadOptions selects how the model is obtained and where it runs.
type LoadOptions struct {
	Token         string
	LocalModelDir string
	Device        string
}

// Diarizer partitions audio into speaker turns. Load must precede Diarize and
// Release must follow it; Load is idempotent for identical options.
type Diarizer interface {
	Load(ctx context.Context, opts LoadOptions) error
	Diarize(ctx context.Context, audioPath string, expectedSpeakers int, progress ProgressFunc) (*transcript.Diarization, error)
	Release() error
}

// Option configures a Pyannote diarizer.
type Option func(*Pyannote)

// WithLauncher replaces the helper process launcher (primarily for tests).
func WithLauncher(launcher services.Launcher) Option {
	return func(p *Pyannote) {
		if launcher != nil {
			p.launcher = launcher
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pyannote) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithScratchDir sets where the helper script is written.
func WithScratchDir(dir string) Option {
	return func(p *Pyannote) {
		p.scratchDir = strings.TrimSpace(dir)
	}
}

// WithModel overrides the pretrained pipeline name.
func WithModel(model string) Option {
	return func(p *Pyannote) {
		if model = strings.TrimSpace(model); model != "" {
			p.model = model
		}
	}
}

// Pyannote drives the pyannote.audio helper process.
type Pyannote struct {
	runner     string
	model      string
	scratchDir string
	launcher   services.Launcher
	logger     *slog.Logger

	mu        sync.Mutex
	session   services.Session
	loaded    LoadOptions
	scriptDir string
}

// NewPyannote constructs a diarizer that launches its helper through runner.
func NewPyannote(runner string, opts ...Option) *Pyannote {
	p := &Pyannote{
		runner:   runner,
		model:    DefaultModel,
		launcher: services.ProcessLauncher{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type helperMessage struct {
	Type     string  `json:"type"`
	Stage    string  `json:"stage"`
	Message  string  `json:"message"`
	Ratio    float64 `json:"ratio"`
	Device   string  `json:"device"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Speaker  string  `json:"speaker"`
	Speakers int     `json:"speakers"`
}

type diarizeRequest struct {
	Audio       string `json:"audio"`
	NumSpeakers int    `json:"num_speakers,omitempty"`
}

// Load starts the helper and waits until the model reports ready.
func (p *Pyannote) Load(ctx context.Context, opts LoadOptions) error {
	opts.Token = strings.TrimSpace(opts.Token)
	opts.LocalModelDir = strings.TrimSpace(opts.LocalModelDir)
	if opts.Device == "" {
		opts.Device = "cpu"
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		if p.loaded == opts {
			return nil
		}
		if err := p.releaseLocked(); err != nil {
			p.logger.Warn("previous diarization helper did not stop cleanly", logging.Error(err))
		}
	}
	if opts.Token == "" && opts.LocalModelDir == "" {
		return loadError("no credential or local model directory available", nil)
	}
	if opts.LocalModelDir != "" {
		if info, err := os.Stat(opts.LocalModelDir); err != nil || !info.IsDir() {
			return loadError("local model directory is not usable", err)
		}
	}

	scriptDir, err := os.MkdirTemp(p.scratchDir, "diarize-*")
	if err != nil {
		return loadError("create helper directory", err)
	}
	script, err := services.WriteScript(scriptDir, helperScriptName, helperScript)
	if err != nil {
		_ = os.RemoveAll(scriptDir)
		return loadError("write helper script", err)
	}

	args := []string{"--model", p.model, "--device", opts.Device}
	if opts.LocalModelDir != "" {
		args = append(args, "--local-model-dir", opts.LocalModelDir)
	}
	cmd := services.PythonHelper(p.runner, helperPackages, script, args...)
	cmd.Env = []string{"TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1"}
	if opts.Token != "" {
		cmd.Env = append(cmd.Env, "HF_TOKEN="+opts.Token)
	}

	p.logger.Info("loading diarization model",
		logging.String("model", p.model),
		logging.String("device", opts.Device),
		logging.Bool("local_model", opts.LocalModelDir != ""),
	)
	session, err := p.launcher.Launch(ctx, cmd)
	if err != nil {
		_ = os.RemoveAll(scriptDir)
		return loadError("start diarization helper", err)
	}

	fail := func(err error) error {
		_ = session.Kill()
		_ = os.RemoveAll(scriptDir)
		return err
	}
	for {
		line, err := session.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(services.Cancelled(stageName, ctxErr))
			}
			if errors.Is(err, io.EOF) {
				err = errors.New("helper exited before the model was ready")
			}
			return fail(loadError("diarization helper failed", err))
		}
		msg, ok := decode(line)
		if !ok {
			p.logger.Debug("diarization helper output", logging.String("line", line))
			continue
		}
		switch msg.Type {
		case "ready":
			p.session = session
			p.loaded = opts
			p.scriptDir = scriptDir
			p.logger.Info("diarization model loaded", logging.String("device", msg.Device))
			return nil
		case "error":
			return fail(loadError(msg.Message, nil))
		}
	}
}

// Diarize runs speaker diarization on audioPath. expectedSpeakers <= 0 lets
// the engine estimate the count.
func (p *Pyannote) Diarize(ctx context.Context, audioPath string, expectedSpeakers int, progress ProgressFunc) (*transcript.Diarization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil, services.Wrap(services.ErrDiarize, stageName, "run", "Diarizer is not loaded", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, services.Cancelled(stageName, err)
	}
	report := func(ratio float64, message string) {
		if progress != nil {
			progress(ratio, message)
		}
	}

	report(0, "diarizing speakers")
	req := diarizeRequest{Audio: audioPath}
	if expectedSpeakers > 0 {
		req.NumSpeakers = expectedSpeakers
	}
	if err := p.session.Send(req); err != nil {
		p.dropSessionLocked()
		return nil, services.Wrap(services.ErrDiarize, stageName, "send request", "Diarization helper is not accepting requests", err)
	}

	var turns []RawTurn
	for {
		line, err := p.session.Next(ctx)
		if err != nil {
			p.dropSessionLocked()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, services.Cancelled(stageName, ctxErr)
			}
			return nil, services.Wrap(services.ErrDiarize, stageName, "read result", "Diarization helper stopped", err)
		}
		msg, ok := decode(line)
		if !ok {
			p.logger.Debug("diarization helper output", logging.String("line", line))
			continue
		}
		switch msg.Type {
		case "progress":
			report(clamp(msg.Ratio), msg.Message)
		case "turn":
			turns = append(turns, RawTurn{Start: msg.Start, End: msg.End, Speaker: msg.Speaker})
		case "error":
			return nil, services.Wrap(services.ErrDiarize, stageName, "run", msg.Message, nil)
		case "done":
			result := Canonicalize(turns)
			p.logger.Info("diarization complete",
				logging.Int("speakers", result.SpeakerCount),
				logging.Int("spans", len(result.Spans)),
			)
			report(1, "found "+strconv.Itoa(result.SpeakerCount)+" speakers")
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			p.dropSessionLocked()
			return nil, services.Cancelled(stageName, err)
		}
	}
}

// Release stops the helper and removes its scratch files. It is safe to call
// more than once.
func (p *Pyannote) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseLocked()
}

func (p *Pyannote) releaseLocked() error {
	var err error
	if p.session != nil {
		err = p.session.Close()
		p.session = nil
	}
	if p.scriptDir != "" {
		if rmErr := os.RemoveAll(p.scriptDir); rmErr != nil && err == nil {
			err = rmErr
		}
		p.scriptDir = ""
	}
	p.loaded = LoadOptions{}
	return err
}

// dropSessionLocked kills a helper whose request stream is in an unknown
// state. Scratch files stay until Release.
func (p *Pyannote) dropSessionLocked() {
	if p.session == nil {
		return
	}
	if err := p.session.Kill(); err != nil {
		p.logger.Debug("kill diarization helper", logging.Error(err))
	}
	p.session = nil
	p.loaded = LoadOptions{}
}

func loadError(message string, err error) error {
	return fmt.Errorf("%w: %w", services.ErrModelLoad, services.Wrap(services.ErrDiarize, stageName, "load model", message, err))
}

func decode(line string) (helperMessage, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return helperMessage{}, false
	}
	var msg helperMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Type == "" {
		return helperMessage{}, false
	}
	return msg, true
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
