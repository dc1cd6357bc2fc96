// Package diarize determines "who spoke when" for a preprocessed audio file.
//
// The pyannote engine runs as a long-lived helper process: Load starts it and
// waits until the model is resident, Diarize sends one request per audio
// file, and Release shuts the helper down so the accelerator memory is
// returned. Raw cluster identities reported by the engine are mapped to
// canonical SPEAKER_i labels by Canonicalize.
package diarize
