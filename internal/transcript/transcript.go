// Package transcript holds the data model shared by the recognition,
// diarization, merge, and output stages.
package transcript

import (
	"fmt"
	"strings"
	"time"
)

// SingleSpeakerLabel is the synthetic label used when no diarization is available.
const SingleSpeakerLabel = "SPEAKER_0"

// AudioAsset describes an audio file produced by a stage.
type AudioAsset struct {
	Path       string
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// WordSpan is one recognized token.
type WordSpan struct {
	Text       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"probability"`
}

// Segment is one recognized utterance. Words may be empty when word
// timestamps were not requested.
type Segment struct {
	Text  string     `json:"text"`
	Start float64    `json:"start"`
	End   float64    `json:"end"`
	Words []WordSpan `json:"words,omitempty"`
}

// Transcript is the recognizer output for one audio file.
type Transcript struct {
	Segments           []Segment
	Language           string
	LanguageConfidence float64
	Duration           float64
}

// SpeakerSpan attributes a time interval to a canonical speaker label.
type SpeakerSpan struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Diarization is the diarizer output for one audio file.
type Diarization struct {
	Spans        []SpeakerSpan
	SpeakerCount int
}

// HasSpans reports whether d carries at least one speaker span.
func (d *Diarization) HasSpans() bool {
	return d != nil && len(d.Spans) > 0
}

// MergedSegment is a run of consecutive words attributed to one speaker.
type MergedSegment struct {
	Speaker string
	Text    string
	Start   float64
	End     float64
	Words   []WordSpan
}

// Result is the terminal artifact of a pipeline run.
type Result struct {
	Segments     []MergedSegment
	SpeakerCount int
	Language     string
	Duration     float64
}

// SpeakerLabel returns the canonical label for the i-th speaker.
func SpeakerLabel(i int) string {
	return fmt.Sprintf("SPEAKER_%d", i)
}

// Words returns the total number of words across all segments.
func (r *Result) Words() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, seg := range r.Segments {
		total += len(seg.Words)
	}
	return total
}

// Text returns the concatenated segment text separated by single spaces.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
