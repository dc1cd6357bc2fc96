package output_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/output"
	"vidscribe/internal/services"
	"vidscribe/internal/transcript"
)

func sampleResult() *transcript.Result {
	return &transcript.Result{
		SpeakerCount: 2,
		Language:     "en",
		Duration:     3725.5,
		Segments: []transcript.MergedSegment{
			{
				Speaker: "SPEAKER_0",
				Text:    "Hello there.",
				Start:   2,
				End:     7.5,
				Words: []transcript.WordSpan{
					{Text: "Hello", Start: 2, End: 3.12345, Confidence: 0.912345},
					{Text: "there.", Start: 3.2, End: 7.5, Confidence: 0.8},
				},
			},
			{Speaker: "SPEAKER_1", Text: "Hi.", Start: 3661.25, End: 3662},
		},
	}
}

func TestClockTime(t *testing.T) {
	tests := map[float64]string{
		0:       "00:00",
		7.9:     "00:07",
		599:     "09:59",
		3599.99: "59:59",
		3600:    "01:00:00",
		3725.5:  "01:02:05",
		-4:      "00:00",
	}
	for in, want := range tests {
		if got := output.ClockTime(in); got != want {
			t.Fatalf("ClockTime(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestSRTTime(t *testing.T) {
	tests := map[float64]string{
		0:       "00:00:00,000",
		7.5:     "00:00:07,500",
		61.001:  "00:01:01,001",
		3661.25: "01:01:01,250",
	}
	for in, want := range tests {
		if got := output.SRTTime(in); got != want {
			t.Fatalf("SRTTime(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	got, err := output.TextFormatter{}.Format(sampleResult())
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	for _, want := range []string{
		"# Speakers: 2\n",
		"# Language: en\n",
		"# Duration: 01:02:05\n",
		strings.Repeat("=", 60) + "\n",
		"[00:02 - 00:07] SPEAKER_0\nHello there.\n",
		"[01:01:01 - 01:01:02] SPEAKER_1\nHi.\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("txt output missing %q:\n%s", want, got)
		}
	}
}

func TestSRTFormatterSpeakerTags(t *testing.T) {
	result := sampleResult()
	got, err := output.SRTFormatter{}.Format(result)
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	want := "1\n00:00:02,000 --> 00:00:07,500\n[SPEAKER_0] Hello there.\n\n2\n01:01:01,250 --> 01:01:02,000\n[SPEAKER_1] Hi.\n\n"
	if got != want {
		t.Fatalf("srt output mismatch:\n%q\nwant\n%q", got, want)
	}

	result.SpeakerCount = 1
	got, _ = output.SRTFormatter{}.Format(result)
	if strings.Contains(got, "[SPEAKER_") {
		t.Fatalf("single-speaker srt must not carry tags:\n%s", got)
	}
}

func TestJSONFormatter(t *testing.T) {
	fixed := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	tests := []struct {
		name         string
		includeWords bool
	}{
		{name: "segments only"},
		{name: "with words", includeWords: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := output.JSONFormatter{IncludeWords: tc.includeWords, Now: fixed}.Format(sampleResult())
			if err != nil {
				t.Fatalf("Format returned error: %v", err)
			}
			var doc struct {
				Metadata map[string]any `json:"metadata"`
				Segments []struct {
					Speaker string  `json:"speaker"`
					End     float64 `json:"end"`
					Words   []struct {
						End         float64 `json:"end"`
						Probability float64 `json:"probability"`
					} `json:"words"`
				} `json:"segments"`
			}
			if err := json.Unmarshal([]byte(got), &doc); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if doc.Metadata["num_speakers"] != float64(2) || doc.Metadata["created_at"] != "2026-01-02T03:04:05Z" {
				t.Fatalf("unexpected metadata %v", doc.Metadata)
			}
			if doc.Metadata["total_segments"] != float64(2) {
				t.Fatalf("unexpected total_segments %v", doc.Metadata["total_segments"])
			}
			if len(doc.Segments) != 2 || doc.Segments[1].Speaker != "SPEAKER_1" {
				t.Fatalf("unexpected segments %+v", doc.Segments)
			}
			words := doc.Segments[0].Words
			if !tc.includeWords {
				if len(words) != 0 {
					t.Fatalf("words must be omitted, got %d", len(words))
				}
				return
			}
			if len(words) != 2 || words[0].End != 3.123 || words[0].Probability != 0.9123 {
				t.Fatalf("unexpected words %+v", words)
			}
		})
	}
}

func TestFormattersRejectNilResult(t *testing.T) {
	for _, name := range output.Names {
		f, err := output.ForName(name, false)
		if err != nil {
			t.Fatalf("ForName(%q) returned error: %v", name, err)
		}
		if _, err := f.Format(nil); !errors.Is(err, services.ErrOutput) {
			t.Fatalf("%s: expected output error, got %v", name, err)
		}
	}
}

func TestForName(t *testing.T) {
	f, err := output.ForName(" SRT ", false)
	if err != nil || f.Extension() != ".srt" {
		t.Fatalf("ForName(SRT) = %v, %v", f, err)
	}
	if _, err := output.ForName("docx", false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if output.Supported("docx") || !output.Supported("json") {
		t.Fatal("Supported returned unexpected values")
	}
}

func TestSaveWritesAtomically(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path := output.DefaultPath(dir, "run-1", output.TextFormatter{})
	if err := output.Save(path, output.TextFormatter{}, sampleResult()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "Hello there.") {
		t.Fatalf("unexpected content %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, found %d entries", len(entries))
	}
}

func TestSaveRequiresFormatter(t *testing.T) {
	err := output.Save(filepath.Join(t.TempDir(), "x.txt"), nil, sampleResult())
	if !errors.Is(err, services.ErrOutput) {
		t.Fatalf("expected output error, got %v", err)
	}
}
