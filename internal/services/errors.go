package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")

	ErrDownload   = errors.New("download failed")
	ErrPreprocess = errors.New("preprocessing failed")
	ErrTranscribe = errors.New("transcription failed")
	ErrDiarize    = errors.New("diarization failed")
	ErrMerge      = errors.New("merge failed")
	ErrModelLoad  = errors.New("model load failed")
	ErrOutput     = errors.New("output failed")
	ErrPipeline   = errors.New("pipeline failed")

	// ErrCancelled marks a run that stopped because cancellation was
	// requested. It is never wrapped in ErrPipeline.
	ErrCancelled = errors.New("cancelled")
)

// Outcome labels the terminal state of a run for history and exit codes.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrPipeline
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Cancelled tags err (usually a context error) as a cancellation outcome.
func Cancelled(stage string, err error) error {
	if err == nil {
		err = context.Canceled
	}
	return Wrap(ErrCancelled, stage, "", "run cancelled", err)
}

// IsCancelled reports whether err represents a cancellation rather than a
// failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// OutcomeOf maps a run error to its terminal outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case IsCancelled(err):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
