package engine

import (
	"time"

	"github.com/randomizedcoder/go-speedtest/internal/retry"
)

// DataBlock is one file size in the bandwidth test sequence and how
// many times it is measured.
type DataBlock struct {
	Bytes int64 `json:"bytes" yaml:"bytes"`
	Count int   `json:"count" yaml:"count"`
}

// Config holds the measurement parameters for a test run.
type Config struct {
	// DownloadSizes is the download sequence, smallest first.
	DownloadSizes []DataBlock `json:"download_sizes" yaml:"download_sizes"`

	// UploadSizes is the upload sequence, smallest first.
	UploadSizes []DataBlock `json:"upload_sizes" yaml:"upload_sizes"`

	// LatencyPackets is how many probes the idle latency measurement
	// takes.
	LatencyPackets int `json:"latency_packets" yaml:"latency_packets"`

	// LoadedLatencyThrottle is the minimum interval between loaded
	// latency probes.
	LoadedLatencyThrottle time.Duration `json:"loaded_latency_throttle" yaml:"loaded_latency_throttle"`

	// BandwidthFinishDurationMs stops testing larger sizes in a
	// direction once a measurement in that direction takes this long.
	BandwidthFinishDurationMs float64 `json:"bandwidth_finish_duration_ms" yaml:"bandwidth_finish_duration_ms"`

	// BandwidthMinDurationMs excludes measurements shorter than this
	// from bandwidth aggregation.
	BandwidthMinDurationMs float64 `json:"bandwidth_min_duration_ms" yaml:"bandwidth_min_duration_ms"`

	// LoadedRequestMinDurationMs excludes loaded latency samples taken
	// while the transfer had been running for less than this.
	LoadedRequestMinDurationMs float64 `json:"loaded_request_min_duration_ms" yaml:"loaded_request_min_duration_ms"`

	// BandwidthPercentile picks the percentile reported as the final
	// speed.
	BandwidthPercentile float64 `json:"bandwidth_percentile" yaml:"bandwidth_percentile"`

	// Retry is the policy applied to every individual measurement.
	Retry retry.Config `json:"retry" yaml:"retry"`
}

// DefaultConfig returns the standard test sequence: download sizes from
// 100KB to 100MB, upload sizes from 100KB to 50MB, with fewer
// iterations at larger sizes.
func DefaultConfig() Config {
	return Config{
		DownloadSizes: []DataBlock{
			{Bytes: 100_000, Count: 10},
			{Bytes: 1_000_000, Count: 8},
			{Bytes: 10_000_000, Count: 6},
			{Bytes: 25_000_000, Count: 4},
			{Bytes: 100_000_000, Count: 3},
		},
		UploadSizes: []DataBlock{
			{Bytes: 100_000, Count: 8},
			{Bytes: 1_000_000, Count: 6},
			{Bytes: 10_000_000, Count: 4},
			{Bytes: 25_000_000, Count: 4},
			{Bytes: 50_000_000, Count: 3},
		},
		LatencyPackets:             20,
		LoadedLatencyThrottle:      400 * time.Millisecond,
		BandwidthFinishDurationMs:  1000,
		BandwidthMinDurationMs:     10,
		LoadedRequestMinDurationMs: 250,
		BandwidthPercentile:        0.9,
		Retry:                      retry.DefaultConfig(),
	}
}
