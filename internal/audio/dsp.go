package audio

import "math"

const (
	// TargetSampleRate is the rate expected by the recognizer and diarizer.
	TargetSampleRate = 16000
	// TargetLoudnessDB is the RMS loudness the signal is normalized to.
	TargetLoudnessDB = -20.0
	// ClipThreshold is the maximum absolute sample value after limiting.
	ClipThreshold = 0.99
	// SilenceRMS is the RMS below which normalization is skipped.
	SilenceRMS = 1e-10

	// peakTolerance absorbs the rounding left by a previous limiting pass.
	peakTolerance = 1e-9
)

// Downmix averages interleaved channels into mono with equal weights.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return append([]float64(nil), interleaved...)
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// Resample converts mono samples between rates by linear interpolation over a
// normalized [0, 1] time axis. The output length is int(duration * toRate).
// Equal rates return a copy of the input.
func Resample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return append([]float64(nil), samples...)
	}
	duration := float64(len(samples)) / float64(fromRate)
	n := int(duration * float64(toRate))
	out := make([]float64, n)
	if n == 0 || len(samples) == 0 {
		return out
	}
	if len(samples) == 1 || n == 1 {
		for i := range out {
			out[i] = samples[0]
		}
		return out
	}

	last := float64(len(samples) - 1)
	step := last / float64(n-1)
	for i := range out {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = samples[lo] + (samples[lo+1]-samples[lo])*frac
	}
	return out
}

// RMS returns the root mean square of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// GainDB returns the gain needed to move a signal with the given RMS to targetDB.
func GainDB(rms, targetDB float64) float64 {
	return targetDB - 20*math.Log10(rms)
}

// DBToLinear converts a decibel gain to a linear multiplier.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// NormalizeLoudness scales samples so their RMS reaches targetDB. Near-silent
// input (RMS below SilenceRMS) is returned unchanged with applied=false.
func NormalizeLoudness(samples []float64, targetDB float64) (out []float64, gainDB float64, applied bool) {
	rms := RMS(samples)
	if rms < SilenceRMS {
		return append([]float64(nil), samples...), 0, false
	}
	gainDB = GainDB(rms, targetDB)
	multiplier := DBToLinear(gainDB)
	out = make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * multiplier
	}
	return out, gainDB, true
}

// Peak returns the largest absolute sample value.
func Peak(samples []float64) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// LimitPeak scales the whole buffer by threshold/peak when the peak exceeds
// threshold, so the new peak equals threshold. Otherwise samples are returned
// unchanged.
func LimitPeak(samples []float64, threshold float64) (out []float64, limited bool) {
	peak := Peak(samples)
	if peak <= threshold+peakTolerance {
		return append([]float64(nil), samples...), false
	}
	scale := threshold / peak
	out = make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * scale
	}
	return out, true
}
