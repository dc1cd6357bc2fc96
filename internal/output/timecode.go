package output

import (
	"fmt"
	"math"
)

// ClockTime renders seconds as MM:SS, or HH:MM:SS from one hour on.
// Fractions are truncated.
func ClockTime(seconds float64) string {
	total := int64(math.Max(seconds, 0))
	h, m, s := total/3600, total%3600/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// SRTTime renders seconds as HH:MM:SS,mmm.
func SRTTime(seconds float64) string {
	ms := int64(math.Round(math.Max(seconds, 0) * 1000))
	h := ms / 3_600_000
	m := ms % 3_600_000 / 60_000
	s := ms % 60_000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
