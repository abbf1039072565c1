// Package engine orchestrates the full speed test sequence: warm-up,
// idle latency, and interleaved download/upload blocks with loaded
// latency collection.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-speedtest/internal/collector"
	"github.com/randomizedcoder/go-speedtest/internal/errkind"
	"github.com/randomizedcoder/go-speedtest/internal/harness"
	"github.com/randomizedcoder/go-speedtest/internal/retry"
	"github.com/randomizedcoder/go-speedtest/internal/stats"
)

const (
	// latencyProbeBytes is the download size used as a latency probe.
	// The payload is irrelevant; only the TCP connect is timed.
	latencyProbeBytes = 1000

	// warmupDownloadBytes is the size of the discarded warm-up
	// download.
	warmupDownloadBytes = 100_000

	// loadedLatencyChannelCapacity bounds the per-block sample channel.
	loadedLatencyChannelCapacity = 100
)

// Transport runs individual timed transfers. *harness.Harness is the
// production implementation.
type Transport interface {
	Download(ctx context.Context, bytes int64) (harness.TestResults, error)
	Upload(ctx context.Context, bytes int64) (harness.TestResults, error)
	DownloadWithLoadedLatency(ctx context.Context, bytes int64, samples chan<- float64, cadence harness.SamplerCadence) (harness.TestResults, error)
	UploadWithLoadedLatency(ctx context.Context, bytes int64, samples chan<- float64, cadence harness.SamplerCadence) (harness.TestResults, error)
}

// Engine runs the complete measurement sequence.
type Engine struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger
	progress  ProgressFunc
	collector *collector.Collector
}

// New returns an Engine. progress may be nil.
func New(cfg Config, transport Transport, logger *slog.Logger, progress ProgressFunc) *Engine {
	return &Engine{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		progress:  progress,
		collector: collector.New(collector.DefaultCapacity, cfg.LoadedRequestMinDurationMs),
	}
}

// Run executes the full test sequence:
//
//  1. one discarded latency probe and one discarded 100KB download to
//     warm the path
//  2. the idle latency measurement
//  3. download and upload blocks interleaved by size, with loaded
//     latency probes running during each transfer
//
// Individual measurement failures are retried and then skipped; Run
// fails only when the warm-up cannot complete or every idle latency
// probe fails.
func (e *Engine) Run(ctx context.Context) (*Output, error) {
	e.logger.Info("speedtest_starting")
	e.emit(Event{Phase: PhaseInitializing})

	// Warm-up: prime DNS caches and the path so the real measurements
	// don't pay first-connection costs.
	if _, err := e.runLatency(ctx, 1); err != nil {
		return nil, err
	}
	if _, err := e.runSingleDownload(ctx, warmupDownloadBytes); err != nil {
		return nil, err
	}

	e.logger.Debug("idle_latency_starting", "packets", e.cfg.LatencyPackets)
	idleLatencies, err := e.runLatency(ctx, e.cfg.LatencyPackets)
	if err != nil {
		return nil, err
	}

	idleMs, _ := stats.Median(idleLatencies)
	latency := LatencyResults{IdleMs: idleMs}
	if jitter, ok := stats.Jitter(idleLatencies); ok {
		latency.IdleJitterMs = &jitter
	}

	e.logger.Info("idle_latency_measured",
		"latency_ms", idleMs,
		"jitter_ms", latency.IdleJitterMs,
		"samples", len(idleLatencies),
	)
	e.emit(Event{Phase: PhaseLatency, LatencyMs: idleMs, JitterMs: deref(latency.IdleJitterMs)})

	download, upload := e.runInterleaved(ctx)

	e.fillLoadedLatency(&latency)

	e.logger.Info("speedtest_complete",
		"download_mbps", download.SpeedMbps,
		"upload_mbps", upload.SpeedMbps,
	)
	e.emit(Event{Phase: PhaseComplete})

	return &Output{
		Latency:  latency,
		Download: download,
		Upload:   upload,
	}, nil
}

// fillLoadedLatency reduces the collected loaded latency samples to
// medians and jitter, leaving fields nil where too few samples exist.
func (e *Engine) fillLoadedLatency(latency *LatencyResults) {
	down := e.collector.Latencies(collector.Download)
	if median, ok := stats.Median(down); ok {
		latency.LoadedDownMs = &median
	}
	if jitter, ok := stats.Jitter(down); ok {
		latency.LoadedDownJitterMs = &jitter
	}

	up := e.collector.Latencies(collector.Upload)
	if median, ok := stats.Median(up); ok {
		latency.LoadedUpMs = &median
	}
	if jitter, ok := stats.Jitter(up); ok {
		latency.LoadedUpJitterMs = &jitter
	}
}

// runLatency takes count latency probes, each a tiny download whose TCP
// connect time is the latency sample. Probes that fail all their
// retries are skipped; runLatency fails only when every probe failed.
func (e *Engine) runLatency(ctx context.Context, count int) ([]float64, error) {
	latencies := make([]float64, 0, count)
	failed := 0
	var lastErr error

	for i := 0; i < count; i++ {
		label := fmt.Sprintf("latency measurement %d/%d", i+1, count)
		e.emit(Event{Phase: PhaseLatency, Iteration: i + 1, Count: count})

		result := retry.Do(ctx, e.cfg.Retry, e.logger, label,
			func(ctx context.Context) (harness.TestResults, error) {
				return e.transport.Download(ctx, latencyProbeBytes)
			})
		if !result.Success() {
			failed++
			lastErr = result.Err
			e.logger.Warn("latency_probe_failed",
				"probe", i+1,
				"total", count,
				"attempts", result.Attempts,
				"error", result.Err,
			)
			continue
		}

		latencyMs := float64(result.Value.TCPDuration.Microseconds()) / 1000
		latencies = append(latencies, latencyMs)
	}

	if len(latencies) == 0 {
		return nil, errkind.Wrap(errkind.Network,
			fmt.Sprintf("all %d latency measurements failed", count), lastErr)
	}
	if failed > 0 {
		e.logger.Warn("latency_probes_partial",
			"failed", failed,
			"total", count,
			"successful", len(latencies),
		)
	}
	return latencies, nil
}

// runSingleDownload runs one retried download and returns its timing.
func (e *Engine) runSingleDownload(ctx context.Context, bytes int64) (harness.TestResults, error) {
	label := fmt.Sprintf("download estimation (%dB)", bytes)

	result := retry.Do(ctx, e.cfg.Retry, e.logger, label,
		func(ctx context.Context) (harness.TestResults, error) {
			return e.transport.Download(ctx, bytes)
		})
	if !result.Success() {
		return harness.TestResults{}, errkind.Wrap(errkind.Network,
			fmt.Sprintf("%s failed after %d attempts", label, result.Attempts),
			result.Err)
	}
	return result.Value, nil
}

// runInterleaved walks the download and upload size sequences in
// lockstep, alternating directions at each size so both are measured
// under comparable conditions. Early termination is sticky per
// direction: once a measurement in a direction crosses the finish
// threshold, all larger sizes in that direction are skipped.
func (e *Engine) runInterleaved(ctx context.Context) (BandwidthResults, BandwidthResults) {
	var (
		downloadAll   []stats.BandwidthMeasurement
		uploadAll     []stats.BandwidthMeasurement
		downloadSizes []SizeMeasurement
		uploadSizes   []SizeMeasurement

		downloadTerminated bool
		uploadTerminated   bool
	)

	maxBlocks := max(len(e.cfg.DownloadSizes), len(e.cfg.UploadSizes))

	for i := 0; i < maxBlocks; i++ {
		if i < len(e.cfg.DownloadSizes) {
			block := e.cfg.DownloadSizes[i]
			if downloadTerminated {
				e.logger.Debug("block_skipped", "direction", "download", "bytes", block.Bytes)
			} else {
				size, triggered := e.runBlock(ctx, block, collector.Download)
				downloadSizes = append(downloadSizes, size)
				downloadAll = append(downloadAll, size.Measurements...)
				if triggered {
					downloadTerminated = true
					e.logger.Info("early_termination", "direction", "download", "bytes", block.Bytes)
				}
			}
		}

		if i < len(e.cfg.UploadSizes) {
			block := e.cfg.UploadSizes[i]
			if uploadTerminated {
				e.logger.Debug("block_skipped", "direction", "upload", "bytes", block.Bytes)
			} else {
				size, triggered := e.runBlock(ctx, block, collector.Upload)
				uploadSizes = append(uploadSizes, size)
				uploadAll = append(uploadAll, size.Measurements...)
				if triggered {
					uploadTerminated = true
					e.logger.Info("early_termination", "direction", "upload", "bytes", block.Bytes)
				}
			}
		}
	}

	download := BandwidthResults{
		SpeedMbps:       e.finalSpeed(downloadAll),
		Sizes:           downloadSizes,
		EarlyTerminated: downloadTerminated,
	}
	upload := BandwidthResults{
		SpeedMbps:       e.finalSpeed(uploadAll),
		Sizes:           uploadSizes,
		EarlyTerminated: uploadTerminated,
	}
	return download, upload
}

// runBlock measures one file size for count iterations in one
// direction. Loaded latency samples arrive on a channel while transfers
// run and are folded into the collector after the block, tagged with
// the duration of the block's most recent measurement. Iterations that
// fail all their retries are skipped.
func (e *Engine) runBlock(ctx context.Context, block DataBlock, direction collector.Direction) (SizeMeasurement, bool) {
	e.logger.Info("block_starting",
		"direction", direction.String(),
		"bytes", block.Bytes,
		"iterations", block.Count,
	)

	phase := PhaseDownload
	if direction == collector.Upload {
		phase = PhaseUpload
	}

	samples := make(chan float64, loadedLatencyChannelCapacity)
	cadence := harness.SamplerCadence{
		Throttle:           e.cfg.LoadedLatencyThrottle,
		MinRequestDuration: minRequestDuration(e.cfg.LoadedRequestMinDurationMs),
	}

	measurements := make([]stats.BandwidthMeasurement, 0, block.Count)
	triggered := false
	failed := 0

	for i := 0; i < block.Count; i++ {
		label := fmt.Sprintf("%s %dB iteration %d/%d",
			direction.String(), block.Bytes, i+1, block.Count)
		e.emit(Event{
			Phase:     phase,
			Direction: direction,
			Bytes:     block.Bytes,
			Iteration: i + 1,
			Count:     block.Count,
		})

		result := retry.Do(ctx, e.cfg.Retry, e.logger, label,
			func(ctx context.Context) (harness.TestResults, error) {
				if direction == collector.Download {
					return e.transport.DownloadWithLoadedLatency(ctx, block.Bytes, samples, cadence)
				}
				return e.transport.UploadWithLoadedLatency(ctx, block.Bytes, samples, cadence)
			})
		if !result.Success() {
			failed++
			e.logger.Warn("iteration_failed",
				"operation", label,
				"attempts", result.Attempts,
				"error", result.Err,
			)
			e.emit(Event{
				Phase:     phase,
				Direction: direction,
				Bytes:     block.Bytes,
				Iteration: i + 1,
				Count:     block.Count,
				Failed:    true,
			})
			continue
		}

		m := result.Value.Measurement()
		measurements = append(measurements, m)

		e.emit(Event{
			Phase:     phase,
			Direction: direction,
			Bytes:     block.Bytes,
			Iteration: i + 1,
			Count:     block.Count,
			SpeedMbps: stats.SpeedMbps(m.BandwidthBps),
		})

		if m.DurationMs >= e.cfg.BandwidthFinishDurationMs {
			triggered = true
			e.logger.Debug("finish_threshold_reached",
				"duration_ms", m.DurationMs,
				"threshold_ms", e.cfg.BandwidthFinishDurationMs,
			)
		}
	}

	e.drainLoadedLatency(samples, direction, measurements)

	if failed > 0 {
		e.logger.Warn("block_partial",
			"direction", direction.String(),
			"bytes", block.Bytes,
			"failed", failed,
			"successful", len(measurements),
		)
	}

	speed := e.blockSpeed(measurements)
	e.logger.Info("block_complete",
		"direction", direction.String(),
		"bytes", block.Bytes,
		"speed_mbps", speed,
	)

	return SizeMeasurement{
		Bytes:                     block.Bytes,
		SpeedMbps:                 speed,
		Count:                     len(measurements),
		Measurements:              measurements,
		TriggeredEarlyTermination: triggered,
	}, triggered
}

// drainLoadedLatency moves queued samples into the collector. Each
// sample is tagged with the duration of the block's last successful
// measurement; with no successful measurement the zero duration makes
// the collector reject them.
func (e *Engine) drainLoadedLatency(samples chan float64, direction collector.Direction, measurements []stats.BandwidthMeasurement) {
	requestDurationMs := 0.0
	if len(measurements) > 0 {
		requestDurationMs = measurements[len(measurements)-1].DurationMs
	}

	for {
		select {
		case latencyMs := <-samples:
			e.collector.Add(direction, latencyMs, requestDurationMs)
		default:
			e.emitLoadedLatency(direction)
			return
		}
	}
}

// emitLoadedLatency publishes the running loaded latency for a
// direction, once enough samples exist to summarize.
func (e *Engine) emitLoadedLatency(direction collector.Direction) {
	latencies := e.collector.Latencies(direction)
	median, ok := stats.Median(latencies)
	if !ok {
		return
	}

	phase := PhaseDownload
	if direction == collector.Upload {
		phase = PhaseUpload
	}
	jitter, _ := stats.Jitter(latencies)
	e.emit(Event{
		Phase:     phase,
		Direction: direction,
		LatencyMs: median,
		JitterMs:  jitter,
	})
}

// blockSpeed is the per-size speed: the configured percentile of the
// block's measurements after the minimum-duration filter.
func (e *Engine) blockSpeed(measurements []stats.BandwidthMeasurement) float64 {
	bps, ok := stats.AggregateBandwidth(measurements, e.cfg.BandwidthPercentile, e.cfg.BandwidthMinDurationMs)
	if !ok {
		return 0
	}
	return stats.SpeedMbps(bps)
}

// finalSpeed is the direction's headline speed: the configured
// percentile across every measurement taken in that direction.
func (e *Engine) finalSpeed(measurements []stats.BandwidthMeasurement) float64 {
	bps, ok := stats.AggregateBandwidth(measurements, e.cfg.BandwidthPercentile, e.cfg.BandwidthMinDurationMs)
	if !ok {
		return 0
	}
	return stats.SpeedMbps(bps)
}

func minRequestDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
