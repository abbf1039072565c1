package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-speedtest/internal/harness"
	"github.com/randomizedcoder/go-speedtest/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport satisfies Transport with scripted results. The plain
// hooks serve latency probes and warm-ups; the loaded hooks serve
// bandwidth iterations and can feed latency samples into the channel.
type fakeTransport struct {
	download func(bytes int64) (harness.TestResults, error)
	upload   func(bytes int64) (harness.TestResults, error)

	loadedDownload func(bytes int64, call int) (harness.TestResults, error)
	loadedUpload   func(bytes int64, call int) (harness.TestResults, error)

	// samples are pushed into the channel on every loaded call.
	samples []float64

	loadedDownloadBytes []int64
	loadedUploadBytes   []int64
	loadedDownloadCalls int
	loadedUploadCalls   int
}

func (f *fakeTransport) Download(ctx context.Context, bytes int64) (harness.TestResults, error) {
	return f.download(bytes)
}

func (f *fakeTransport) Upload(ctx context.Context, bytes int64) (harness.TestResults, error) {
	return f.upload(bytes)
}

func (f *fakeTransport) DownloadWithLoadedLatency(ctx context.Context, bytes int64, samples chan<- float64, cadence harness.SamplerCadence) (harness.TestResults, error) {
	f.loadedDownloadCalls++
	f.loadedDownloadBytes = append(f.loadedDownloadBytes, bytes)
	f.pushSamples(samples)
	return f.loadedDownload(bytes, f.loadedDownloadCalls)
}

func (f *fakeTransport) UploadWithLoadedLatency(ctx context.Context, bytes int64, samples chan<- float64, cadence harness.SamplerCadence) (harness.TestResults, error) {
	f.loadedUploadCalls++
	f.loadedUploadBytes = append(f.loadedUploadBytes, bytes)
	f.pushSamples(samples)
	return f.loadedUpload(bytes, f.loadedUploadCalls)
}

func (f *fakeTransport) pushSamples(samples chan<- float64) {
	for _, s := range f.samples {
		select {
		case samples <- s:
		default:
		}
	}
}

// resultWithDuration builds a TestResults whose measurement has the
// given total duration.
func resultWithDuration(bytes int64, duration time.Duration) harness.TestResults {
	return harness.TestResults{
		TCPDuration:  10 * time.Millisecond,
		TTFBDuration: 5 * time.Millisecond,
		EndDuration:  duration,
		Bytes:        bytes,
	}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.DownloadSizes = []DataBlock{
		{Bytes: 1000, Count: 3},
		{Bytes: 10_000, Count: 2},
		{Bytes: 100_000, Count: 2},
	}
	cfg.UploadSizes = []DataBlock{
		{Bytes: 1000, Count: 2},
		{Bytes: 10_000, Count: 2},
	}
	cfg.LatencyPackets = 5
	cfg.Retry = retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return cfg
}

func healthyTransport() *fakeTransport {
	ok := func(bytes int64) (harness.TestResults, error) {
		return resultWithDuration(bytes, 50*time.Millisecond), nil
	}
	okLoaded := func(bytes int64, call int) (harness.TestResults, error) {
		return resultWithDuration(bytes, 50*time.Millisecond), nil
	}
	return &fakeTransport{
		download:       ok,
		upload:         ok,
		loadedDownload: okLoaded,
		loadedUpload:   okLoaded,
	}
}

// =============================================================================
// Full sequence
// =============================================================================

func TestRunCompletesFullSequence(t *testing.T) {
	transport := healthyTransport()

	var phases []Phase
	e := New(smallConfig(), transport, testLogger(), func(ev Event) {
		phases = append(phases, ev.Phase)
	})

	output, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Every TCP connect is scripted at 10ms, so idle latency is 10ms.
	if output.Latency.IdleMs != 10 {
		t.Errorf("IdleMs = %v, want 10", output.Latency.IdleMs)
	}
	if output.Latency.IdleJitterMs == nil || *output.Latency.IdleJitterMs != 0 {
		t.Errorf("IdleJitterMs = %v, want 0", output.Latency.IdleJitterMs)
	}

	if len(output.Download.Sizes) != 3 {
		t.Errorf("download sizes = %d, want 3", len(output.Download.Sizes))
	}
	if len(output.Upload.Sizes) != 2 {
		t.Errorf("upload sizes = %d, want 2", len(output.Upload.Sizes))
	}
	if output.Download.SpeedMbps <= 0 {
		t.Errorf("download SpeedMbps = %v, want > 0", output.Download.SpeedMbps)
	}
	if output.Upload.SpeedMbps <= 0 {
		t.Errorf("upload SpeedMbps = %v, want > 0", output.Upload.SpeedMbps)
	}
	if output.Download.EarlyTerminated || output.Upload.EarlyTerminated {
		t.Error("unexpected early termination")
	}

	if len(phases) == 0 || phases[0] != PhaseInitializing {
		t.Error("first event is not the initializing phase")
	}
	if phases[len(phases)-1] != PhaseComplete {
		t.Error("last event is not the complete phase")
	}
}

func TestRunLoadedLatencyResults(t *testing.T) {
	transport := healthyTransport()
	transport.samples = []float64{20, 30, 40}
	// Transfers must run long enough for their samples to count.
	slow := func(bytes int64, call int) (harness.TestResults, error) {
		return resultWithDuration(bytes, 500*time.Millisecond), nil
	}
	transport.loadedDownload = slow
	transport.loadedUpload = slow

	e := New(smallConfig(), transport, testLogger(), nil)
	output, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if output.Latency.LoadedDownMs == nil || *output.Latency.LoadedDownMs != 30 {
		t.Errorf("LoadedDownMs = %v, want 30", output.Latency.LoadedDownMs)
	}
	if output.Latency.LoadedUpMs == nil || *output.Latency.LoadedUpMs != 30 {
		t.Errorf("LoadedUpMs = %v, want 30", output.Latency.LoadedUpMs)
	}
	if output.Latency.LoadedDownJitterMs == nil || *output.Latency.LoadedDownJitterMs <= 0 {
		t.Errorf("LoadedDownJitterMs = %v, want > 0", output.Latency.LoadedDownJitterMs)
	}
}

func TestRunShortTransfersExcludeLoadedLatency(t *testing.T) {
	transport := healthyTransport()
	transport.samples = []float64{20, 30, 40}
	// 50ms transfers sit below the 250ms loaded-latency gate, so every
	// sample must be rejected.

	e := New(smallConfig(), transport, testLogger(), nil)
	output, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if output.Latency.LoadedDownMs != nil {
		t.Errorf("LoadedDownMs = %v, want nil", *output.Latency.LoadedDownMs)
	}
	if output.Latency.LoadedUpMs != nil {
		t.Errorf("LoadedUpMs = %v, want nil", *output.Latency.LoadedUpMs)
	}
}

// =============================================================================
// Early termination
// =============================================================================

func TestEarlyTerminationSkipsLargerSizes(t *testing.T) {
	transport := healthyTransport()
	// The first loaded download crosses the 1000ms finish threshold;
	// later iterations are quick.
	transport.loadedDownload = func(bytes int64, call int) (harness.TestResults, error) {
		if call == 1 {
			return resultWithDuration(bytes, 1200*time.Millisecond), nil
		}
		return resultWithDuration(bytes, 50*time.Millisecond), nil
	}

	cfg := smallConfig()
	e := New(cfg, transport, testLogger(), nil)
	output, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !output.Download.EarlyTerminated {
		t.Error("download not early terminated")
	}
	if len(output.Download.Sizes) != 1 {
		t.Fatalf("download sizes = %d, want 1", len(output.Download.Sizes))
	}
	if !output.Download.Sizes[0].TriggeredEarlyTermination {
		t.Error("first size block did not record the trigger")
	}

	// The remaining iterations of the triggering block still ran, but
	// no larger size was requested.
	if transport.loadedDownloadCalls != cfg.DownloadSizes[0].Count {
		t.Errorf("loaded download calls = %d, want %d",
			transport.loadedDownloadCalls, cfg.DownloadSizes[0].Count)
	}
	for _, bytes := range transport.loadedDownloadBytes {
		if bytes != cfg.DownloadSizes[0].Bytes {
			t.Errorf("download requested %d bytes after early termination", bytes)
		}
	}

	// Upload is unaffected.
	if output.Upload.EarlyTerminated {
		t.Error("upload early terminated")
	}
	if len(output.Upload.Sizes) != len(cfg.UploadSizes) {
		t.Errorf("upload sizes = %d, want %d", len(output.Upload.Sizes), len(cfg.UploadSizes))
	}
}

func TestEarlyTerminationIsPerDirection(t *testing.T) {
	transport := healthyTransport()
	transport.loadedUpload = func(bytes int64, call int) (harness.TestResults, error) {
		return resultWithDuration(bytes, 1500*time.Millisecond), nil
	}

	cfg := smallConfig()
	e := New(cfg, transport, testLogger(), nil)
	output, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !output.Upload.EarlyTerminated {
		t.Error("upload not early terminated")
	}
	if output.Download.EarlyTerminated {
		t.Error("download early terminated")
	}
	if len(output.Download.Sizes) != len(cfg.DownloadSizes) {
		t.Errorf("download sizes = %d, want %d", len(output.Download.Sizes), len(cfg.DownloadSizes))
	}
}

// =============================================================================
// Failure handling
// =============================================================================

func TestRunFailsWhenAllLatencyProbesFail(t *testing.T) {
	transport := healthyTransport()
	transport.download = func(bytes int64) (harness.TestResults, error) {
		return harness.TestResults{}, errors.New("connection refused")
	}

	e := New(smallConfig(), transport, testLogger(), nil)
	_, err := e.Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded with no reachable server")
	}
	if !strings.Contains(err.Error(), "latency measurements failed") {
		t.Errorf("Run() error = %v", err)
	}
}

func TestRunSkipsFailedIterations(t *testing.T) {
	transport := healthyTransport()
	// Every loaded download at the middle size fails all its attempts.
	transport.loadedDownload = func(bytes int64, call int) (harness.TestResults, error) {
		if bytes == 10_000 {
			return harness.TestResults{}, errors.New("connection reset")
		}
		return resultWithDuration(bytes, 50*time.Millisecond), nil
	}

	cfg := smallConfig()
	e := New(cfg, transport, testLogger(), nil)
	output, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(output.Download.Sizes) != 3 {
		t.Fatalf("download sizes = %d, want 3", len(output.Download.Sizes))
	}
	for _, size := range output.Download.Sizes {
		wantCount := 0
		switch size.Bytes {
		case 1000:
			wantCount = 3
		case 100_000:
			wantCount = 2
		}
		if size.Count != wantCount {
			t.Errorf("size %d: Count = %d, want %d", size.Bytes, size.Count, wantCount)
		}
	}
	if output.Download.SpeedMbps <= 0 {
		t.Error("download speed undefined despite surviving measurements")
	}
}

func TestFinalSpeedUndefinedIsZero(t *testing.T) {
	transport := healthyTransport()
	// All transfers complete in under the 10ms aggregation floor.
	fast := func(bytes int64, call int) (harness.TestResults, error) {
		return resultWithDuration(bytes, 5*time.Millisecond), nil
	}
	transport.loadedDownload = fast
	transport.loadedUpload = fast

	e := New(smallConfig(), transport, testLogger(), nil)
	output, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if output.Download.SpeedMbps != 0 {
		t.Errorf("download SpeedMbps = %v, want 0", output.Download.SpeedMbps)
	}
	if output.Upload.SpeedMbps != 0 {
		t.Errorf("upload SpeedMbps = %v, want 0", output.Upload.SpeedMbps)
	}
}

// =============================================================================
// Configuration
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LatencyPackets != 20 {
		t.Errorf("LatencyPackets = %d, want 20", cfg.LatencyPackets)
	}
	if cfg.LoadedLatencyThrottle != 400*time.Millisecond {
		t.Errorf("LoadedLatencyThrottle = %v, want 400ms", cfg.LoadedLatencyThrottle)
	}
	if cfg.BandwidthFinishDurationMs != 1000 {
		t.Errorf("BandwidthFinishDurationMs = %v, want 1000", cfg.BandwidthFinishDurationMs)
	}
	if cfg.BandwidthMinDurationMs != 10 {
		t.Errorf("BandwidthMinDurationMs = %v, want 10", cfg.BandwidthMinDurationMs)
	}
	if cfg.LoadedRequestMinDurationMs != 250 {
		t.Errorf("LoadedRequestMinDurationMs = %v, want 250", cfg.LoadedRequestMinDurationMs)
	}
	if cfg.BandwidthPercentile != 0.9 {
		t.Errorf("BandwidthPercentile = %v, want 0.9", cfg.BandwidthPercentile)
	}
	if len(cfg.DownloadSizes) != 5 || len(cfg.UploadSizes) != 5 {
		t.Errorf("sizes = %d/%d, want 5/5", len(cfg.DownloadSizes), len(cfg.UploadSizes))
	}
	if cfg.DownloadSizes[0].Bytes != 100_000 || cfg.DownloadSizes[0].Count != 10 {
		t.Errorf("first download block = %+v", cfg.DownloadSizes[0])
	}
	if last := cfg.UploadSizes[len(cfg.UploadSizes)-1]; last.Bytes != 50_000_000 || last.Count != 3 {
		t.Errorf("last upload block = %+v", last)
	}
}

func TestPhaseStrings(t *testing.T) {
	want := map[Phase]string{
		PhaseInitializing: "initializing",
		PhaseLatency:      "latency",
		PhaseDownload:     "download",
		PhaseUpload:       "upload",
		PhaseComplete:     "complete",
	}
	for phase, name := range want {
		if phase.String() != name {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, phase.String(), name)
		}
	}
}
