package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidscribe/internal/logging"
	"vidscribe/internal/pipeline"
)

var titleCaser = cases.Title(language.Und)

func stageTitle(stage pipeline.Stage) string {
	return titleCaser.String(strings.ToLower(string(stage)))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// barSink renders overall progress as a terminal progress bar.
type barSink struct {
	bar  *progressbar.ProgressBar
	last int
}

func newBarSink(w io.Writer) *barSink {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(stageTitle(pipeline.StageInit)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &barSink{bar: bar}
}

func (s *barSink) OnStage(stage pipeline.Stage, ratio float64, message string) {
	desc := stageTitle(stage)
	if message = strings.TrimSpace(message); message != "" {
		desc += ": " + message
	}
	s.bar.Describe(desc)
	switch stage {
	case pipeline.StageError:
		_ = s.bar.Exit()
		return
	case pipeline.StageDone:
		_ = s.bar.Finish()
		return
	}
	overall, ok := pipeline.OverallPercent(stage, ratio)
	if !ok {
		return
	}
	if value := int(overall); value > s.last {
		s.last = value
		_ = s.bar.Set(value)
	}
}

func (s *barSink) close() {
	if !s.bar.IsFinished() {
		_ = s.bar.Exit()
	}
}

// logSink writes sampled progress lines for non-interactive output.
type logSink struct {
	logger  *slog.Logger
	sampler *logging.ProgressSampler
}

func newLogSink(logger *slog.Logger) *logSink {
	return &logSink{logger: logger, sampler: logging.NewProgressSampler(10)}
}

func (s *logSink) OnStage(stage pipeline.Stage, ratio float64, message string) {
	overall, ok := pipeline.OverallPercent(stage, ratio)
	if !ok {
		overall = -1
	}
	if !s.sampler.ShouldLog(overall, string(stage)) && message != "cancelled" {
		return
	}
	s.logger.Info("progress",
		logging.String(logging.FieldEventType, "progress"),
		logging.String(logging.FieldStage, string(stage)),
		logging.Float64("percent", overall),
		logging.String("message", message),
	)
}
