package diarize

import (
	"math"
	"sort"

	"vidscribe/internal/transcript"
)

// RawTurn is one speaker turn as reported by the engine, before labels are
// canonicalized.
type RawTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Canonicalize maps raw speaker identities to SPEAKER_0..N-1 in sorted order
// of the raw identities, so the labels do not depend on turn order. Turns with
// non-finite or inverted bounds are dropped. Spans are returned ordered by
// start time.
func Canonicalize(turns []RawTurn) *transcript.Diarization {
	kept := make([]RawTurn, 0, len(turns))
	seen := make(map[string]struct{})
	for _, turn := range turns {
		if !finite(turn.Start) || !finite(turn.End) || turn.End < turn.Start {
			continue
		}
		kept = append(kept, turn)
		seen[turn.Speaker] = struct{}{}
	}

	raw := make([]string, 0, len(seen))
	for id := range seen {
		raw = append(raw, id)
	}
	sort.Strings(raw)
	labels := make(map[string]string, len(raw))
	for i, id := range raw {
		labels[id] = transcript.SpeakerLabel(i)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	spans := make([]transcript.SpeakerSpan, 0, len(kept))
	for _, turn := range kept {
		spans = append(spans, transcript.SpeakerSpan{
			Speaker: labels[turn.Speaker],
			Start:   turn.Start,
			End:     turn.End,
		})
	}
	return &transcript.Diarization{Spans: spans, SpeakerCount: len(raw)}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
