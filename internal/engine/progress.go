package engine

import "github.com/randomizedcoder/go-speedtest/internal/collector"

// Phase identifies where in the test sequence the engine is.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseLatency
	PhaseDownload
	PhaseUpload
	PhaseComplete
)

// String returns the lowercase phase name used in logs and output.
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseLatency:
		return "latency"
	case PhaseDownload:
		return "download"
	case PhaseUpload:
		return "upload"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is a progress update emitted while a test runs. Fields beyond
// Phase are filled in where they make sense: latency events carry
// LatencyMs and JitterMs, bandwidth events carry the block shape and
// the latest speed.
type Event struct {
	Phase     Phase
	Direction collector.Direction

	// Block shape for bandwidth phases.
	Bytes     int64
	Iteration int
	Count     int

	// Latest figures.
	SpeedMbps float64
	LatencyMs float64
	JitterMs  float64

	// Failed marks an iteration that exhausted its retries.
	Failed bool
}

// ProgressFunc receives progress events. Implementations must not
// block; they run inline on the measurement goroutine.
type ProgressFunc func(Event)

func (e *Engine) emit(event Event) {
	if e.progress != nil {
		e.progress(event)
	}
}
