package output

import (
	"strconv"
	"strings"

	"vidscribe/internal/transcript"
)

const ruleWidth = 60

// TextFormatter renders a readable transcript with a short header.
type TextFormatter struct{}

func (TextFormatter) Name() string      { return "txt" }
func (TextFormatter) Extension() string { return ".txt" }

func (TextFormatter) Format(result *transcript.Result) (string, error) {
	if err := requireResult(result, "txt"); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("# Transcript\n")
	b.WriteString("# Speakers: " + strconv.Itoa(result.SpeakerCount) + "\n")
	if result.Language != "" {
		b.WriteString("# Language: " + result.Language + "\n")
	}
	if result.Duration > 0 {
		b.WriteString("# Duration: " + ClockTime(result.Duration) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", ruleWidth))
	b.WriteString("\n\n")

	for _, seg := range result.Segments {
		b.WriteString("[" + ClockTime(seg.Start) + " - " + ClockTime(seg.End) + "] " + seg.Speaker + "\n")
		b.WriteString(seg.Text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
