// Package collector accumulates loaded-latency samples taken while
// bandwidth transfers saturate the link.
package collector

// DefaultCapacity is the number of samples retained per direction.
const DefaultCapacity = 20

// DefaultMinRequestDurationMs filters out probes that completed too
// quickly to have observed a loaded link.
const DefaultMinRequestDurationMs = 250.0

// Direction identifies which bandwidth phase a latency sample was taken
// under.
type Direction int

const (
	Download Direction = iota
	Upload
)

// String returns the lowercase name used in logs and output.
func (d Direction) String() string {
	switch d {
	case Download:
		return "download"
	case Upload:
		return "upload"
	default:
		return "unknown"
	}
}

// Collector keeps the most recent loaded-latency samples, separately for
// each direction. Each direction holds at most Capacity samples; adding
// to a full window evicts the oldest. Samples whose probe request took
// less than MinRequestDurationMs are rejected outright.
//
// Collector is not safe for concurrent use. The engine funnels samples
// through a channel and adds them from a single goroutine.
type Collector struct {
	capacity             int
	minRequestDurationMs float64

	download []float64
	upload   []float64
}

// New returns a Collector with the given per-direction capacity and
// minimum probe duration. Non-positive capacity falls back to
// DefaultCapacity; a negative minimum falls back to
// DefaultMinRequestDurationMs.
func New(capacity int, minRequestDurationMs float64) *Collector {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if minRequestDurationMs < 0 {
		minRequestDurationMs = DefaultMinRequestDurationMs
	}
	return &Collector{
		capacity:             capacity,
		minRequestDurationMs: minRequestDurationMs,
	}
}

// NewDefault returns a Collector with the standard capacity and minimum
// probe duration.
func NewDefault() *Collector {
	return New(DefaultCapacity, DefaultMinRequestDurationMs)
}

// Add records a latency sample for the given direction. The sample is
// rejected (returning false) when the probe's total request duration is
// below the configured minimum. When the direction's window is full the
// oldest sample is evicted to make room.
func (c *Collector) Add(direction Direction, latencyMs, requestDurationMs float64) bool {
	if requestDurationMs < c.minRequestDurationMs {
		return false
	}

	window := c.windowFor(direction)
	if window == nil {
		return false
	}

	if len(*window) == c.capacity {
		copy(*window, (*window)[1:])
		*window = (*window)[:c.capacity-1]
	}
	*window = append(*window, latencyMs)
	return true
}

// Latencies returns the retained samples for the direction, oldest
// first. The returned slice is a copy.
func (c *Collector) Latencies(direction Direction) []float64 {
	window := c.windowFor(direction)
	if window == nil {
		return nil
	}
	out := make([]float64, len(*window))
	copy(out, *window)
	return out
}

// Len returns the number of retained samples for the direction.
func (c *Collector) Len(direction Direction) int {
	window := c.windowFor(direction)
	if window == nil {
		return 0
	}
	return len(*window)
}

func (c *Collector) windowFor(direction Direction) *[]float64 {
	switch direction {
	case Download:
		return &c.download
	case Upload:
		return &c.upload
	default:
		return nil
	}
}
