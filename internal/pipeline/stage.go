package pipeline

// Stage names one step of a run.
type Stage string

const (
	StageInit       Stage = "INIT"
	StageDownload   Stage = "DOWNLOAD"
	StagePreprocess Stage = "PREPROCESS"
	StageDiarize    Stage = "DIARIZE"
	StageTranscribe Stage = "TRANSCRIBE"
	StageMerge      Stage = "MERGE"
	StageOutput     Stage = "OUTPUT"
	StageDone       Stage = "DONE"
	StageError      Stage = "ERROR"
)

// Stages lists the non-error stages in execution order.
var Stages = []Stage{
	StageInit,
	StageDownload,
	StagePreprocess,
	StageDiarize,
	StageTranscribe,
	StageMerge,
	StageOutput,
	StageDone,
}

// Window is the slice of overall progress, in percent, owned by a stage.
type Window struct {
	Start float64
	End   float64
}

// Windows maps each stage to its progress window. ERROR has none.
var Windows = map[Stage]Window{
	StageInit:       {Start: 0, End: 2},
	StageDownload:   {Start: 2, End: 15},
	StagePreprocess: {Start: 15, End: 25},
	StageDiarize:    {Start: 25, End: 50},
	StageTranscribe: {Start: 50, End: 90},
	StageMerge:      {Start: 90, End: 95},
	StageOutput:     {Start: 95, End: 100},
	StageDone:       {Start: 100, End: 100},
}

// OverallPercent interpolates a stage-local ratio into the stage's window.
// ok is false for stages without a window.
func OverallPercent(stage Stage, ratio float64) (float64, bool) {
	w, ok := Windows[stage]
	if !ok {
		return 0, false
	}
	return w.Start + (w.End-w.Start)*clampRatio(ratio), true
}

// Index returns the position of stage in Stages, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) String() string {
	return string(s)
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio != ratio:
		return 0
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
