// Package results assembles a complete test run into a report and
// renders it as JSON or a human-readable summary.
package results

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-speedtest/internal/engine"
	"github.com/randomizedcoder/go-speedtest/internal/meta"
	"github.com/randomizedcoder/go-speedtest/internal/scoring"
)

// ServerLocation identifies the point of presence the test ran against.
type ServerLocation struct {
	City string `json:"city"`
	IATA string `json:"iata"`
}

// ConnectionMeta describes the client connection.
type ConnectionMeta struct {
	IP      string `json:"ip"`
	Country string `json:"country"`
	ISP     string `json:"isp"`
	ASN     int64  `json:"asn"`
}

// SizeSummary is the per-size breakdown kept in the report: the raw
// per-iteration measurements stay in the engine output.
type SizeSummary struct {
	Bytes     int64   `json:"bytes"`
	SpeedMbps float64 `json:"speed_mbps"`
	Count     int     `json:"count"`
}

// BandwidthSummary is one direction's result.
type BandwidthSummary struct {
	SpeedMbps       float64       `json:"speed_mbps"`
	Measurements    []SizeSummary `json:"measurements"`
	EarlyTerminated bool          `json:"early_terminated"`
}

// PacketLoss is an optional packet loss measurement.
type PacketLoss struct {
	Ratio           float64  `json:"ratio"`
	Percent         float64  `json:"percent"`
	PacketsSent     int      `json:"packets_sent"`
	PacketsLost     int      `json:"packets_lost"`
	PacketsReceived int      `json:"packets_received"`
	AvgRTTMs        *float64 `json:"avg_rtt_ms,omitempty"`
}

// Scores carries the per-use-case ratings plus the overall minimum.
type Scores struct {
	Streaming         scoring.QualityScore `json:"streaming"`
	Gaming            scoring.QualityScore `json:"gaming"`
	VideoConferencing scoring.QualityScore `json:"video_conferencing"`
	Overall           scoring.QualityScore `json:"overall"`
}

// Report is the complete output of a test run.
type Report struct {
	Timestamp  time.Time             `json:"timestamp"`
	RunID      string                `json:"run_id"`
	Server     ServerLocation        `json:"server"`
	Connection ConnectionMeta        `json:"connection"`
	Latency    engine.LatencyResults `json:"latency"`
	Download   BandwidthSummary      `json:"download"`
	Upload     BandwidthSummary      `json:"upload"`
	PacketLoss *PacketLoss           `json:"packet_loss,omitempty"`
	Scores     Scores                `json:"scores"`
}

// Build assembles a Report from the engine output and connection
// metadata, computing the quality scores along the way. locations may
// be nil; the server location then falls back to the colo code alone.
func Build(output *engine.Output, m meta.Meta, locations []meta.Location, packetLoss *PacketLoss) *Report {
	server := ServerLocation{IATA: m.Colo}
	if loc, found := meta.LookupLocation(locations, m.Colo); found {
		server.City = loc.City
	}

	metrics := scoring.Metrics{
		DownloadMbps:        output.Download.SpeedMbps,
		UploadMbps:          output.Upload.SpeedMbps,
		LatencyMs:           output.Latency.IdleMs,
		JitterMs:            derefOr(output.Latency.IdleJitterMs, 0),
		LoadedLatencyDownMs: output.Latency.LoadedDownMs,
		LoadedLatencyUpMs:   output.Latency.LoadedUpMs,
	}
	if packetLoss != nil {
		metrics.PacketLoss = &packetLoss.Ratio
	}

	scores := scoring.Calculate(metrics)

	return &Report{
		Timestamp: time.Now().UTC(),
		RunID:     uuid.NewString(),
		Server:    server,
		Connection: ConnectionMeta{
			IP:      m.ClientIP,
			Country: m.Country,
			ISP:     m.ASOrganization,
			ASN:     m.ASN,
		},
		Latency:    output.Latency,
		Download:   summarize(output.Download),
		Upload:     summarize(output.Upload),
		PacketLoss: packetLoss,
		Scores: Scores{
			Streaming:         scores.Streaming,
			Gaming:            scores.Gaming,
			VideoConferencing: scores.VideoConferencing,
			Overall:           scores.Overall(),
		},
	}
}

// NewPacketLoss derives the full packet loss record from raw counters.
func NewPacketLoss(sent, received int, avgRTTMs *float64) PacketLoss {
	lost := sent - received
	ratio := 0.0
	if sent > 0 {
		ratio = float64(lost) / float64(sent)
	}
	return PacketLoss{
		Ratio:           ratio,
		Percent:         ratio * 100,
		PacketsSent:     sent,
		PacketsLost:     lost,
		PacketsReceived: received,
		AvgRTTMs:        avgRTTMs,
	}
}

func summarize(b engine.BandwidthResults) BandwidthSummary {
	sizes := make([]SizeSummary, 0, len(b.Sizes))
	for _, s := range b.Sizes {
		sizes = append(sizes, SizeSummary{
			Bytes:     s.Bytes,
			SpeedMbps: s.SpeedMbps,
			Count:     s.Count,
		})
	}
	return BandwidthSummary{
		SpeedMbps:       b.SpeedMbps,
		Measurements:    sizes,
		EarlyTerminated: b.EarlyTerminated,
	}
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
