// Package services defines shared utilities consumed by the pipeline stages
// and the external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs and stage names for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the download/preprocess/transcribe/diarize/merge taxonomy and keep
//     cancellation distinct from failure.
//   - A process Executor abstraction that streams helper output line by line
//     and makes command execution testable.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
