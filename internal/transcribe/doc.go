// Package transcribe runs speech recognition through a faster-whisper helper
// process and streams its segments back as a transcript.Transcript.
package transcribe
