// Package main provides the go-speedtest CLI entry point.
//
// go-speedtest measures download and upload bandwidth, idle and loaded
// latency against speed.cloudflare.com, scores the connection for
// common use cases, and prints a summary or a JSON report.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/randomizedcoder/go-speedtest/internal/config"
	"github.com/randomizedcoder/go-speedtest/internal/engine"
	"github.com/randomizedcoder/go-speedtest/internal/errkind"
	"github.com/randomizedcoder/go-speedtest/internal/harness"
	"github.com/randomizedcoder/go-speedtest/internal/logging"
	"github.com/randomizedcoder/go-speedtest/internal/meta"
	"github.com/randomizedcoder/go-speedtest/internal/metrics"
	"github.com/randomizedcoder/go-speedtest/internal/preflight"
	"github.com/randomizedcoder/go-speedtest/internal/results"
	"github.com/randomizedcoder/go-speedtest/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-speedtest
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-speedtest %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return errkind.Config.ExitCode()
	}

	if cfg.ShowVersion {
		fmt.Printf("go-speedtest %s\n", version)
		return 0
	}

	// JSON output owns stdout, so the dashboard stays off.
	if cfg.JSONOutput {
		cfg.TUIEnabled = false
	}

	// Initialize logger
	// When the TUI is enabled, suppress logs to avoid corrupting the display
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewDiscardLogger()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return errkind.Config.ExitCode()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Preflight
	if !cfg.SkipPreflight {
		pf := preflight.RunAll(ctx, cfg.Host, cfg.Port)
		if !pf.Passed {
			preflight.PrintResults(pf)
			return errkind.Network.ExitCode()
		}
		logger.Debug("preflight_passed")
	}

	runID := uuid.NewString()

	logger.Info("starting",
		"version", version,
		"host", cfg.Host,
		"run_id", runID,
		"metrics_addr", cfg.MetricsAddr,
	)

	// Prometheus metrics (optional)
	var promCollector *metrics.Collector
	var promServer *metrics.Server
	if cfg.MetricsAddr != "" {
		promCollector = metrics.NewCollector(version, cfg.Host, runID)
		promServer = metrics.NewServer(cfg.MetricsAddr, logger)
		promServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := promServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics_shutdown_failed", "error", err)
			}
		}()
	}

	transport := harness.New(harness.Config{
		Host:                cfg.Host,
		Port:                cfg.Port,
		UserAgent:           cfg.UserAgent,
		LatencyProbeTimeout: harness.DefaultLatencyProbeTimeout,
	}, logger)

	// TUI (optional)
	var program *tea.Program
	if cfg.TUIEnabled {
		model := tui.New(tui.Config{Host: cfg.Host, Version: version})
		program = tea.NewProgram(model, tea.WithAltScreen())
	}

	progress := func(ev engine.Event) {
		tui.SendEvent(program, ev)
		recordEvent(promCollector, ev)
	}

	eng := engine.New(cfg.Engine, transport, logger, progress)

	output, runErr := runEngine(ctx, eng, program, logger)
	if runErr != nil {
		kind := errkind.Classify(runErr)
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		fmt.Fprintf(os.Stderr, "  %s\n", kind.Description())
		fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", kind.Suggestion())
		return kind.ExitCode()
	}
	if output == nil {
		// The user quit the dashboard before the run finished.
		return 0
	}

	if promCollector != nil {
		promCollector.SetFinalSpeeds(output.Download.SpeedMbps, output.Upload.SpeedMbps)
		promCollector.SetPhase(int(engine.PhaseComplete))
	}

	// Connection metadata is best effort: the measurements stand on
	// their own when the metadata endpoints are unreachable.
	metaClient := meta.New("https://"+cfg.Host, cfg.UserAgent, logger)
	connMeta, err := metaClient.Fetch(ctx)
	if err != nil {
		logger.Warn("meta_fetch_failed", "error", err)
		// The trace endpoint carries a subset of the same fields and
		// tends to survive outages that take down /meta.
		if trace, traceErr := metaClient.FetchTrace(ctx); traceErr == nil {
			connMeta.ClientIP = trace.IP
			connMeta.Colo = trace.Colo
			connMeta.Country = trace.Loc
		}
	}
	locations, err := metaClient.Locations(ctx)
	if err != nil {
		logger.Warn("locations_fetch_failed", "error", err)
	}

	report := results.Build(output, connMeta, locations, nil)
	report.RunID = runID

	if cfg.JSONOutput {
		data, err := report.JSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
			return errkind.Unknown.ExitCode()
		}
		fmt.Println(string(data))
	} else {
		fmt.Println(results.FormatReport(report))
	}

	return 0
}

// runEngine runs the measurement, either directly or alongside the
// dashboard. With the TUI active the measurement runs on a separate
// goroutine and the dashboard owns the terminal until it quits.
func runEngine(ctx context.Context, eng *engine.Engine, program *tea.Program, logger *slog.Logger) (*engine.Output, error) {
	if program == nil {
		return eng.Run(ctx)
	}

	var output *engine.Output
	var runErr error
	done := make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer close(done)
		output, runErr = eng.Run(runCtx)
		tui.SendDone(program, runErr)
	}()

	if _, err := program.Run(); err != nil {
		logger.Error("tui_failed", "error", err)
	}

	// Quitting the dashboard cancels an unfinished run.
	cancel()
	<-done

	if runErr != nil && errors.Is(runErr, context.Canceled) && ctx.Err() == nil {
		// The user quit; the cancellation error is not a test failure.
		return nil, nil
	}
	return output, runErr
}

// recordEvent folds a progress event into the Prometheus collector.
func recordEvent(c *metrics.Collector, ev engine.Event) {
	if c == nil {
		return
	}

	c.SetPhase(int(ev.Phase))

	switch {
	case ev.Failed:
		c.RecordFailure(ev.Direction.String())

	case ev.Phase == engine.PhaseLatency && ev.LatencyMs > 0:
		c.RecordIdleLatency(ev.LatencyMs, ev.JitterMs)

	case ev.Phase == engine.PhaseDownload || ev.Phase == engine.PhaseUpload:
		if ev.SpeedMbps > 0 {
			c.RecordMeasurement(ev.Direction.String(), ev.Bytes, ev.SpeedMbps)
		} else if ev.LatencyMs > 0 {
			c.RecordLoadedLatency(ev.Direction.String(), ev.LatencyMs)
		}
	}
}
