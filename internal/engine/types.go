package engine

import "github.com/randomizedcoder/go-speedtest/internal/stats"

// SizeMeasurement is the outcome of one bandwidth block: all the
// iterations run at a single file size in one direction.
type SizeMeasurement struct {
	Bytes                     int64                       `json:"bytes"`
	SpeedMbps                 float64                     `json:"speed_mbps"`
	Count                     int                         `json:"count"`
	Measurements              []stats.BandwidthMeasurement `json:"measurements"`
	TriggeredEarlyTermination bool                        `json:"triggered_early_termination"`
}

// LatencyResults holds the latency figures for a run. Idle latency is
// always measured; the loaded figures are nil when no usable samples
// were collected in that direction.
type LatencyResults struct {
	IdleMs             float64  `json:"idle_ms"`
	IdleJitterMs       *float64 `json:"idle_jitter_ms,omitempty"`
	LoadedDownMs       *float64 `json:"loaded_down_ms,omitempty"`
	LoadedDownJitterMs *float64 `json:"loaded_down_jitter_ms,omitempty"`
	LoadedUpMs         *float64 `json:"loaded_up_ms,omitempty"`
	LoadedUpJitterMs   *float64 `json:"loaded_up_jitter_ms,omitempty"`
}

// BandwidthResults holds one direction's final speed and the per-size
// breakdown it was derived from.
type BandwidthResults struct {
	SpeedMbps       float64           `json:"speed_mbps"`
	Sizes           []SizeMeasurement `json:"sizes"`
	EarlyTerminated bool              `json:"early_terminated"`
}

// Output is the complete result of a test run.
type Output struct {
	Latency  LatencyResults   `json:"latency"`
	Download BandwidthResults `json:"download"`
	Upload   BandwidthResults `json:"upload"`
}
