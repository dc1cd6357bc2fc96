package output

import (
	"bytes"
	"encoding/json"
	"time"

	"vidscribe/internal/services"
	"vidscribe/internal/transcript"
)

// JSONFormatter renders metadata and segments as indented JSON.
type JSONFormatter struct {
	IncludeWords bool
	// Now stamps created_at; nil uses time.Now.
	Now func() time.Time
}

type jsonDocument struct {
	Metadata jsonMetadata  `json:"metadata"`
	Segments []jsonSegment `json:"segments"`
}

type jsonMetadata struct {
	NumSpeakers   int     `json:"num_speakers"`
	Language      string  `json:"language"`
	Duration      float64 `json:"duration"`
	TotalSegments int     `json:"total_segments"`
	CreatedAt     string  `json:"created_at"`
}

type jsonSegment struct {
	Speaker string     `json:"speaker"`
	Start   float64    `json:"start"`
	End     float64    `json:"end"`
	Text    string     `json:"text"`
	Words   []jsonWord `json:"words,omitempty"`
}

type jsonWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

func (JSONFormatter) Name() string      { return "json" }
func (JSONFormatter) Extension() string { return ".json" }

func (f JSONFormatter) Format(result *transcript.Result) (string, error) {
	if err := requireResult(result, "json"); err != nil {
		return "", err
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	doc := jsonDocument{
		Metadata: jsonMetadata{
			NumSpeakers:   result.SpeakerCount,
			Language:      result.Language,
			Duration:      roundTo(result.Duration, 3),
			TotalSegments: len(result.Segments),
			CreatedAt:     now().UTC().Format(time.RFC3339),
		},
		Segments: make([]jsonSegment, 0, len(result.Segments)),
	}
	for _, seg := range result.Segments {
		out := jsonSegment{
			Speaker: seg.Speaker,
			Start:   roundTo(seg.Start, 3),
			End:     roundTo(seg.End, 3),
			Text:    seg.Text,
		}
		if f.IncludeWords {
			for _, w := range seg.Words {
				out.Words = append(out.Words, jsonWord{
					Word:        w.Text,
					Start:       roundTo(w.Start, 3),
					End:         roundTo(w.End, 3),
					Probability: roundTo(w.Confidence, 4),
				})
			}
		}
		doc.Segments = append(doc.Segments, out)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", services.Wrap(services.ErrOutput, stageName, "format json", "Failed to encode transcript", err)
	}
	return buf.String(), nil
}
