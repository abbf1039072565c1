package results

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-speedtest/internal/engine"
	"github.com/randomizedcoder/go-speedtest/internal/meta"
	"github.com/randomizedcoder/go-speedtest/internal/scoring"
)

func ptr(v float64) *float64 { return &v }

func sampleOutput() *engine.Output {
	return &engine.Output{
		Latency: engine.LatencyResults{
			IdleMs:       12.5,
			IdleJitterMs: ptr(1.2),
			LoadedDownMs: ptr(45.0),
			LoadedUpMs:   ptr(60.0),
		},
		Download: engine.BandwidthResults{
			SpeedMbps: 250.5,
			Sizes: []engine.SizeMeasurement{
				{Bytes: 100_000, SpeedMbps: 180.0, Count: 10},
				{Bytes: 1_000_000, SpeedMbps: 240.0, Count: 8},
			},
		},
		Upload: engine.BandwidthResults{
			SpeedMbps: 40.2,
			Sizes: []engine.SizeMeasurement{
				{Bytes: 100_000, SpeedMbps: 35.0, Count: 8},
			},
			EarlyTerminated: true,
		},
	}
}

func sampleMeta() meta.Meta {
	return meta.Meta{
		ClientIP:       "203.0.113.7",
		Country:        "NL",
		ASOrganization: "Example ISP",
		ASN:            64496,
		Colo:           "AMS",
	}
}

func TestBuild(t *testing.T) {
	locations := []meta.Location{
		{IATA: "AMS", City: "Amsterdam"},
		{IATA: "SJC", City: "San Jose"},
	}

	r := Build(sampleOutput(), sampleMeta(), locations, nil)

	if r.RunID == "" {
		t.Error("RunID empty")
	}
	if r.Timestamp.IsZero() {
		t.Error("Timestamp zero")
	}
	if r.Server.City != "Amsterdam" || r.Server.IATA != "AMS" {
		t.Errorf("Server = %+v", r.Server)
	}
	if r.Connection.ISP != "Example ISP" || r.Connection.ASN != 64496 {
		t.Errorf("Connection = %+v", r.Connection)
	}
	if r.Download.SpeedMbps != 250.5 {
		t.Errorf("Download.SpeedMbps = %v", r.Download.SpeedMbps)
	}
	if len(r.Download.Measurements) != 2 {
		t.Errorf("download measurements = %d, want 2", len(r.Download.Measurements))
	}
	if !r.Upload.EarlyTerminated {
		t.Error("upload early termination lost")
	}
	if r.PacketLoss != nil {
		t.Error("PacketLoss set without a measurement")
	}

	// 250 Mbps down, 40 up, loaded latencies well under thresholds.
	if r.Scores.Streaming != scoring.Great {
		t.Errorf("Streaming = %v, want Great", r.Scores.Streaming)
	}
	if r.Scores.Overall > r.Scores.Gaming {
		t.Error("Overall exceeds a component score")
	}
}

func TestBuildUnknownColo(t *testing.T) {
	r := Build(sampleOutput(), sampleMeta(), nil, nil)
	if r.Server.IATA != "AMS" || r.Server.City != "" {
		t.Errorf("Server = %+v, want bare colo code", r.Server)
	}
}

func TestBuildScoresUseLoadedLatency(t *testing.T) {
	output := sampleOutput()
	output.Latency.LoadedDownMs = ptr(350.0)

	r := Build(output, sampleMeta(), nil, nil)
	if r.Scores.Streaming != scoring.Average {
		t.Errorf("Streaming = %v, want Average under 350ms loaded latency", r.Scores.Streaming)
	}
}

func TestNewPacketLoss(t *testing.T) {
	pl := NewPacketLoss(100, 97, ptr(12.0))
	if pl.PacketsLost != 3 {
		t.Errorf("PacketsLost = %d, want 3", pl.PacketsLost)
	}
	if pl.Ratio != 0.03 {
		t.Errorf("Ratio = %v, want 0.03", pl.Ratio)
	}
	if pl.Percent != 3 {
		t.Errorf("Percent = %v, want 3", pl.Percent)
	}

	zero := NewPacketLoss(0, 0, nil)
	if zero.Ratio != 0 {
		t.Errorf("Ratio = %v for zero packets, want 0", zero.Ratio)
	}
}

func TestBuildWithPacketLoss(t *testing.T) {
	pl := NewPacketLoss(100, 90, nil)
	r := Build(sampleOutput(), sampleMeta(), nil, &pl)

	if r.PacketLoss == nil {
		t.Fatal("PacketLoss nil")
	}
	// 10% loss drags gaming to Poor.
	if r.Scores.Gaming != scoring.Poor {
		t.Errorf("Gaming = %v, want Poor at 10%% loss", r.Scores.Gaming)
	}
}

func TestReportJSON(t *testing.T) {
	r := Build(sampleOutput(), sampleMeta(), nil, nil)

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	for _, key := range []string{"timestamp", "run_id", "server", "connection", "latency", "download", "upload", "scores"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON missing key %q", key)
		}
	}
	if _, ok := decoded["packet_loss"]; ok {
		t.Error("packet_loss present despite no measurement")
	}

	scores := decoded["scores"].(map[string]any)
	if scores["streaming"] != "great" {
		t.Errorf("scores.streaming = %v, want great", scores["streaming"])
	}
}

func TestFormatReport(t *testing.T) {
	pl := NewPacketLoss(100, 99, ptr(15.0))
	r := Build(sampleOutput(), sampleMeta(), []meta.Location{{IATA: "AMS", City: "Amsterdam"}}, &pl)

	text := FormatReport(r)

	for _, want := range []string{
		"Amsterdam (AMS)",
		"203.0.113.7",
		"Example ISP (AS64496)",
		"12.50 ms",
		"250.50 Mbps",
		"40.20 Mbps",
		"1.00%",
		"larger sizes skipped",
		"Streaming:",
		"Overall:",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{500, "500 B"},
		{100_000, "100 KB"},
		{25_000_000, "25 MB"},
		{1_000_000_000, "1 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}

	if got := FormatMs(12.345); got != "12.35 ms" {
		t.Errorf("FormatMs() = %q", got)
	}
	if got := FormatMbps(1.5); got != "1.50 Mbps" {
		t.Errorf("FormatMbps() = %q", got)
	}
}
