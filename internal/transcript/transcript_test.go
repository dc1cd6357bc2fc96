package transcript_test

import (
	"testing"

	"vidscribe/internal/transcript"
)

func TestSpeakerLabel(t *testing.T) {
	if got := transcript.SpeakerLabel(3); got != "SPEAKER_3" {
		t.Fatalf("SpeakerLabel(3) = %q", got)
	}
	if transcript.SpeakerLabel(0) != transcript.SingleSpeakerLabel {
		t.Fatal("label 0 should match the single speaker label")
	}
}

func TestResultHelpers(t *testing.T) {
	var empty *transcript.Result
	if empty.Words() != 0 || empty.Text() != "" {
		t.Fatal("nil result should be empty")
	}

	res := &transcript.Result{Segments: []transcript.MergedSegment{
		{Speaker: "SPEAKER_0", Text: " hello ", Words: []transcript.WordSpan{{Text: "hello"}}},
		{Speaker: "SPEAKER_1", Text: "", Words: nil},
		{Speaker: "SPEAKER_1", Text: "world again", Words: []transcript.WordSpan{{Text: "world"}, {Text: "again"}}},
	}}
	if res.Words() != 3 {
		t.Fatalf("Words() = %d want 3", res.Words())
	}
	if res.Text() != "hello world again" {
		t.Fatalf("Text() = %q", res.Text())
	}
}

func TestDiarizationHasSpans(t *testing.T) {
	var d *transcript.Diarization
	if d.HasSpans() {
		t.Fatal("nil diarization has no spans")
	}
	d = &transcript.Diarization{SpeakerCount: 2}
	if d.HasSpans() {
		t.Fatal("empty diarization has no spans")
	}
	d.Spans = append(d.Spans, transcript.SpeakerSpan{Speaker: "SPEAKER_0", End: 1})
	if !d.HasSpans() {
		t.Fatal("expected spans")
	}
}
