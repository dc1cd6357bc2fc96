package pipeline

import "sync"

// ProgressSink observes stage transitions and progress. OnStage is invoked
// synchronously on the run goroutine.
type ProgressSink interface {
	OnStage(stage Stage, ratio float64, message string)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(stage Stage, ratio float64, message string)

// OnStage calls f.
func (f SinkFunc) OnStage(stage Stage, ratio float64, message string) {
	f(stage, ratio, message)
}

type nopSink struct{}

func (nopSink) OnStage(Stage, float64, string) {}

// MultiSink fans updates out to several sinks in order.
func MultiSink(sinks ...ProgressSink) ProgressSink {
	filtered := make([]ProgressSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return SinkFunc(func(stage Stage, ratio float64, message string) {
		for _, s := range filtered {
			s.OnStage(stage, ratio, message)
		}
	})
}

type update struct {
	stage   Stage
	ratio   float64
	message string
}

// AsyncSink hands updates to another goroutine without blocking the caller.
// When the consumer lags, consecutive updates for the same stage collapse to
// the newest one; stage transitions are always delivered in order.
type AsyncSink struct {
	inner ProgressSink

	mu      sync.Mutex
	pending []update
	closed  bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewAsyncSink starts delivering updates to inner on a dedicated goroutine.
// Close must be called to flush and stop it.
func NewAsyncSink(inner ProgressSink) *AsyncSink {
	if inner == nil {
		inner = nopSink{}
	}
	s := &AsyncSink{
		inner: inner,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// OnStage queues an update. It never blocks on the consumer.
func (s *AsyncSink) OnStage(stage Stage, ratio float64, message string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	u := update{stage: stage, ratio: ratio, message: message}
	if n := len(s.pending); n > 0 && s.pending[n-1].stage == stage {
		s.pending[n-1] = u
	} else {
		s.pending = append(s.pending, u)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close delivers queued updates and stops the goroutine.
func (s *AsyncSink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		select {
		case s.wake <- struct{}{}:
		default:
		}
		<-s.done
	})
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for range s.wake {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		closed := s.closed
		s.mu.Unlock()

		for _, u := range batch {
			s.inner.OnStage(u.stage, u.ratio, u.message)
		}
		if closed {
			return
		}
	}
}
