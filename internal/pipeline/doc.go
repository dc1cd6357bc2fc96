// Package pipeline sequences one transcription run through its stages:
//
//	INIT → DOWNLOAD → PREPROCESS → DIARIZE → TRANSCRIBE → MERGE → OUTPUT → DONE
//
// with ERROR reachable from any stage. DIARIZE may be skipped but is never
// reordered. Stage-local progress is mapped into fixed windows of the overall
// percentage and delivered to a ProgressSink. Cancellation is carried by the
// run context and always takes priority over an in-flight failure.
package pipeline
