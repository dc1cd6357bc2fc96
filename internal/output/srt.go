package output

import (
	"strconv"
	"strings"

	"vidscribe/internal/transcript"
)

// SRTFormatter renders SubRip cues, one per merged segment. Speaker tags are
// added only when more than one speaker was found.
type SRTFormatter struct{}

func (SRTFormatter) Name() string      { return "srt" }
func (SRTFormatter) Extension() string { return ".srt" }

func (SRTFormatter) Format(result *transcript.Result) (string, error) {
	if err := requireResult(result, "srt"); err != nil {
		return "", err
	}
	tagged := result.SpeakerCount > 1
	var b strings.Builder
	for i, seg := range result.Segments {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(SRTTime(seg.Start) + " --> " + SRTTime(seg.End) + "\n")
		if tagged {
			b.WriteString("[" + seg.Speaker + "] ")
		}
		b.WriteString(seg.Text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
