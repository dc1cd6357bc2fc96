// Package merge fuses recognized text with diarization spans into
// speaker-labeled segments.
//
// Words are attributed by their midpoint: the first span containing the
// midpoint wins, otherwise the span with the nearest endpoint (first in scan
// order on ties). Words are taken in start order, not recognizer order, and
// consecutive words with the same speaker form one segment.
package merge

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"vidscribe/internal/services"
	"vidscribe/internal/transcript"
)

// Merger merges transcripts with diarization output. The zero value uses
// transcript.SingleSpeakerLabel for single-speaker output.
type Merger struct {
	SingleSpeakerLabel string
}

// Merge runs the default Merger.
func Merge(tr *transcript.Transcript, diar *transcript.Diarization) (*transcript.Result, error) {
	return Merger{}.Merge(tr, diar)
}

// Merge fuses tr with diar. It is pure and deterministic; on any failure no
// partial result is returned.
func (m Merger) Merge(tr *transcript.Transcript, diar *transcript.Diarization) (*transcript.Result, error) {
	if tr == nil {
		return nil, services.Wrap(services.ErrMerge, "merge", "validate", "transcript missing", nil)
	}
	if err := validateTranscript(tr); err != nil {
		return nil, err
	}

	if !diar.HasSpans() {
		return m.singleSpeaker(tr), nil
	}
	if err := validateSpans(diar.Spans); err != nil {
		return nil, err
	}

	result := &transcript.Result{
		SpeakerCount: diar.SpeakerCount,
		Language:     tr.Language,
		Duration:     tr.Duration,
	}

	words := flattenWords(tr.Segments)
	if len(words) == 0 {
		result.Segments = []transcript.MergedSegment{}
		return result, nil
	}

	var (
		segments []transcript.MergedSegment
		current  []transcript.WordSpan
		speaker  string
	)
	for _, word := range words {
		label := FindSpeaker(diar.Spans, (word.Start+word.End)/2)
		if len(current) > 0 && label != speaker {
			segments = append(segments, closeRun(speaker, current))
			current = nil
		}
		speaker = label
		current = append(current, word)
	}
	segments = append(segments, closeRun(speaker, current))

	result.Segments = segments
	return result, nil
}

func (m Merger) label() string {
	if label := strings.TrimSpace(m.SingleSpeakerLabel); label != "" {
		return label
	}
	return transcript.SingleSpeakerLabel
}

func (m Merger) singleSpeaker(tr *transcript.Transcript) *transcript.Result {
	label := m.label()
	segments := make([]transcript.MergedSegment, 0, len(tr.Segments))
	for _, seg := range tr.Segments {
		segments = append(segments, transcript.MergedSegment{
			Speaker: label,
			Text:    strings.TrimSpace(seg.Text),
			Start:   seg.Start,
			End:     seg.End,
			Words:   slices.Clone(seg.Words),
		})
	}
	return &transcript.Result{
		Segments:     segments,
		SpeakerCount: 1,
		Language:     tr.Language,
		Duration:     tr.Duration,
	}
}

// FindSpeaker resolves the speaker for a time point. The first span with
// start <= t <= end wins. Otherwise the span whose nearer endpoint is closest
// wins, keeping the earliest span in scan order on ties. With no spans the
// single-speaker label is returned.
func FindSpeaker(spans []transcript.SpeakerSpan, t float64) string {
	for _, span := range spans {
		if span.Start <= t && t <= span.End {
			return span.Speaker
		}
	}

	best := transcript.SingleSpeakerLabel
	bestDistance := math.Inf(1)
	for _, span := range spans {
		distance := math.Min(math.Abs(t-span.Start), math.Abs(t-span.End))
		if distance < bestDistance {
			bestDistance = distance
			best = span.Speaker
		}
	}
	return best
}

// flattenWords collects every word across segments, turning a segment without
// word timings into one synthetic word. The result is stable-sorted by start,
// so recognizer order survives only among words that start together.
func flattenWords(segments []transcript.Segment) []transcript.WordSpan {
	words := make([]transcript.WordSpan, 0, len(segments)*8)
	for _, seg := range segments {
		if len(seg.Words) > 0 {
			words = append(words, seg.Words...)
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		words = append(words, transcript.WordSpan{
			Text:       text,
			Start:      seg.Start,
			End:        seg.End,
			Confidence: 1,
		})
	}
	slices.SortStableFunc(words, func(a, b transcript.WordSpan) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
	return words
}

func closeRun(speaker string, words []transcript.WordSpan) transcript.MergedSegment {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if text := strings.TrimSpace(w.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return transcript.MergedSegment{
		Speaker: speaker,
		Text:    strings.Join(parts, " "),
		Start:   words[0].Start,
		End:     words[len(words)-1].End,
		Words:   words,
	}
}

func validateTranscript(tr *transcript.Transcript) error {
	for i, seg := range tr.Segments {
		if err := checkInterval(seg.Start, seg.End); err != nil {
			return services.Wrap(services.ErrMerge, "merge", "validate", fmt.Sprintf("segment %d", i), err)
		}
		for j, w := range seg.Words {
			if err := checkInterval(w.Start, w.End); err != nil {
				return services.Wrap(services.ErrMerge, "merge", "validate", fmt.Sprintf("segment %d word %d", i, j), err)
			}
		}
	}
	return nil
}

func validateSpans(spans []transcript.SpeakerSpan) error {
	for i, span := range spans {
		if err := checkInterval(span.Start, span.End); err != nil {
			return services.Wrap(services.ErrMerge, "merge", "validate", fmt.Sprintf("speaker span %d", i), err)
		}
	}
	return nil
}

func checkInterval(start, end float64) error {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return fmt.Errorf("non-finite timestamp [%v, %v]", start, end)
	}
	if end < start {
		return fmt.Errorf("end %.3f before start %.3f", end, start)
	}
	return nil
}
