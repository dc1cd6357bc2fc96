// Package logging assembles structured slog loggers and formatting helpers used
// across vidscribe.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with run IDs and stages. The package also provides a no-op
// logger for tests and wiring code that cannot fail, plus a sampler that keeps
// progress logging readable.
package logging
