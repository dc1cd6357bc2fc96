package pipeline

import (
	"sync"
	"time"

	"vidscribe/internal/hardware"
)

// RunState is a point-in-time view of the current or last run.
type RunState struct {
	RunID      string
	URL        string
	Stage      Stage
	StageRatio float64
	// Overall is the run-wide progress in percent.
	Overall    float64
	Message    string
	Tier       hardware.Tier
	Diarized   bool
	OutputPath string
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Err        error
}

// Running reports whether the run has not reached a terminal state.
func (s RunState) Running() bool {
	return s.RunID != "" && s.FinishedAt.IsZero()
}

// stateBox guards a RunState. The run goroutine is the only writer.
type stateBox struct {
	mu    sync.RWMutex
	state RunState
}

func (b *stateBox) snapshot() RunState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *stateBox) update(fn func(*RunState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.state)
}
