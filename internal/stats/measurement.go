package stats

// BandwidthMeasurement is one completed transfer reduced to the numbers
// the aggregation layer needs. Durations are milliseconds.
type BandwidthMeasurement struct {
	Bytes        int64   `json:"bytes"`
	BandwidthBps float64 `json:"bandwidth_bps"`
	DurationMs   float64 `json:"duration_ms"`
	ServerTimeMs float64 `json:"server_time_ms"`
	TTFBMs       float64 `json:"ttfb_ms"`
}

// AggregateBandwidth reduces a set of measurements to a single
// bits-per-second figure: measurements shorter than minDurationMs are
// dropped (too short to reflect sustained throughput), then the p-th
// percentile of the surviving bandwidth values is taken. Returns
// ok=false when no measurement survives the filter.
func AggregateBandwidth(measurements []BandwidthMeasurement, p, minDurationMs float64) (float64, bool) {
	bandwidths := make([]float64, 0, len(measurements))
	for _, m := range measurements {
		if m.DurationMs >= minDurationMs {
			bandwidths = append(bandwidths, m.BandwidthBps)
		}
	}
	return Percentile(bandwidths, p)
}
