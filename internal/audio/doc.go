// Package audio converts downloaded audio into the normalized form the
// recognizer and diarizer expect: 16-bit PCM mono WAV at 16 kHz, loudness
// normalized to -20 dBFS and peak limited to 0.99 of full scale.
//
// The DSP helpers (Downmix, Resample, NormalizeLoudness, LimitPeak) are pure
// functions over float64 samples in [-1, 1]. Preprocessor sequences them with
// progress reporting and cancellation checks between steps, and never leaves a
// partial output file behind.
package audio
