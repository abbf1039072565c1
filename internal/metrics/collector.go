// Package metrics exposes the speed test's live state as Prometheus
// metrics, for runs that are scraped while in progress or driven on a
// schedule.
package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Panel 1: Run overview ---
var (
	speedtestInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "speedtest_info",
			Help: "Information about the test run (value always 1)",
		},
		[]string{"version", "host", "run_id"},
	)

	speedtestPhase = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "speedtest_phase",
			Help: "Current test phase (0=initializing, 1=latency, 2=download, 3=upload, 4=complete)",
		},
	)

	speedtestElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "speedtest_elapsed_seconds",
			Help: "Seconds since the run started",
		},
	)
)

// --- Panel 2: Latency ---
var (
	speedtestIdleLatencyMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "speedtest_idle_latency_ms",
			Help: "Idle latency (median TCP connect time) in milliseconds",
		},
	)

	speedtestIdleJitterMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "speedtest_idle_jitter_ms",
			Help: "Idle jitter in milliseconds",
		},
	)

	speedtestLoadedLatencyMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "speedtest_loaded_latency_ms",
			Help: "Loaded latency percentiles in milliseconds",
		},
		[]string{"direction", "quantile"},
	)

	speedtestLoadedLatencySamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_loaded_latency_samples_total",
			Help: "Loaded latency samples collected",
		},
		[]string{"direction"},
	)
)

// --- Panel 3: Bandwidth ---
var (
	speedtestSpeedMbps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "speedtest_speed_mbps",
			Help: "Latest measured speed in Mbps",
		},
		[]string{"direction"},
	)

	speedtestMeasurementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_measurements_total",
			Help: "Completed bandwidth measurements",
		},
		[]string{"direction"},
	)

	speedtestMeasurementFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_measurement_failures_total",
			Help: "Bandwidth measurements that failed all retries",
		},
		[]string{"direction"},
	)

	speedtestBytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_bytes_transferred_total",
			Help: "Payload bytes transferred",
		},
		[]string{"direction"},
	)
)

// Collector tracks run state and keeps the Prometheus metrics current.
// Loaded latency percentiles come from t-digest sketches, which stay
// small no matter how many samples arrive.
type Collector struct {
	startTime time.Time

	mu         sync.Mutex
	downDigest *tdigest.TDigest
	upDigest   *tdigest.TDigest
}

// NewCollector registers the metrics with the default registry.
func NewCollector(version, host, runID string) *Collector {
	return NewCollectorWithRegistry(version, host, runID, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry registers with a custom registry. Useful for
// testing.
func NewCollectorWithRegistry(version, host, runID string, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime:  time.Now(),
		downDigest: tdigest.NewWithCompression(100),
		upDigest:   tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		// Panel 1: Run overview
		speedtestInfo,
		speedtestPhase,
		speedtestElapsedSeconds,

		// Panel 2: Latency
		speedtestIdleLatencyMs,
		speedtestIdleJitterMs,
		speedtestLoadedLatencyMs,
		speedtestLoadedLatencySamples,

		// Panel 3: Bandwidth
		speedtestSpeedMbps,
		speedtestMeasurementsTotal,
		speedtestMeasurementFailures,
		speedtestBytesTransferred,
	)

	speedtestInfo.WithLabelValues(version, host, runID).Set(1)

	return c
}

// SetPhase records the current test phase by ordinal.
func (c *Collector) SetPhase(phase int) {
	speedtestPhase.Set(float64(phase))
	speedtestElapsedSeconds.Set(time.Since(c.startTime).Seconds())
}

// RecordIdleLatency records the idle latency result.
func (c *Collector) RecordIdleLatency(latencyMs, jitterMs float64) {
	speedtestIdleLatencyMs.Set(latencyMs)
	speedtestIdleJitterMs.Set(jitterMs)
}

// RecordLoadedLatency folds one loaded latency sample into the
// direction's digest and refreshes the percentile gauges.
func (c *Collector) RecordLoadedLatency(direction string, latencyMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	digest := c.downDigest
	if direction == "upload" {
		digest = c.upDigest
	}
	digest.Add(latencyMs, 1)

	speedtestLoadedLatencySamples.WithLabelValues(direction).Inc()
	for _, q := range []struct {
		label string
		value float64
	}{
		{"0.5", 0.5},
		{"0.95", 0.95},
		{"0.99", 0.99},
	} {
		speedtestLoadedLatencyMs.WithLabelValues(direction, q.label).Set(digest.Quantile(q.value))
	}
}

// RecordMeasurement records one completed bandwidth measurement.
func (c *Collector) RecordMeasurement(direction string, bytes int64, speedMbps float64) {
	speedtestMeasurementsTotal.WithLabelValues(direction).Inc()
	speedtestBytesTransferred.WithLabelValues(direction).Add(float64(bytes))
	if speedMbps > 0 {
		speedtestSpeedMbps.WithLabelValues(direction).Set(speedMbps)
	}
}

// RecordFailure records a measurement that failed all its retries.
func (c *Collector) RecordFailure(direction string) {
	speedtestMeasurementFailures.WithLabelValues(direction).Inc()
}

// SetFinalSpeeds records the headline speeds at the end of the run.
func (c *Collector) SetFinalSpeeds(downloadMbps, uploadMbps float64) {
	speedtestSpeedMbps.WithLabelValues("download").Set(downloadMbps)
	speedtestSpeedMbps.WithLabelValues("upload").Set(uploadMbps)
}
