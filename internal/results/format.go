package results

import (
	"fmt"
	"strings"
)

const bannerWidth = 79

// FormatReport renders the report as a human-readable summary for
// terminal output.
func FormatReport(r *Report) string {
	var b strings.Builder

	heavy := strings.Repeat("═", bannerWidth)
	light := strings.Repeat("─", bannerWidth)

	b.WriteString("\n")
	b.WriteString(heavy + "\n")
	b.WriteString(center("go-speedtest Results") + "\n")
	b.WriteString(heavy + "\n\n")

	if r.Server.City != "" {
		fmt.Fprintf(&b, "Server:                 %s (%s)\n", r.Server.City, r.Server.IATA)
	} else if r.Server.IATA != "" {
		fmt.Fprintf(&b, "Server:                 %s\n", r.Server.IATA)
	}
	if r.Connection.IP != "" {
		fmt.Fprintf(&b, "Your IP:                %s (%s)\n", r.Connection.IP, r.Connection.Country)
	}
	if r.Connection.ISP != "" {
		fmt.Fprintf(&b, "ISP:                    %s (AS%d)\n", r.Connection.ISP, r.Connection.ASN)
	}
	b.WriteString("\n")

	b.WriteString(light + "\n")
	b.WriteString(center("Latency") + "\n")
	b.WriteString(light + "\n\n")

	fmt.Fprintf(&b, "  Idle:                 %s", FormatMs(r.Latency.IdleMs))
	if r.Latency.IdleJitterMs != nil {
		fmt.Fprintf(&b, "  (jitter %s)", FormatMs(*r.Latency.IdleJitterMs))
	}
	b.WriteString("\n")

	if r.Latency.LoadedDownMs != nil {
		fmt.Fprintf(&b, "  Loaded (download):    %s", FormatMs(*r.Latency.LoadedDownMs))
		if r.Latency.LoadedDownJitterMs != nil {
			fmt.Fprintf(&b, "  (jitter %s)", FormatMs(*r.Latency.LoadedDownJitterMs))
		}
		b.WriteString("\n")
	}
	if r.Latency.LoadedUpMs != nil {
		fmt.Fprintf(&b, "  Loaded (upload):      %s", FormatMs(*r.Latency.LoadedUpMs))
		if r.Latency.LoadedUpJitterMs != nil {
			fmt.Fprintf(&b, "  (jitter %s)", FormatMs(*r.Latency.LoadedUpJitterMs))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(light + "\n")
	b.WriteString(center("Bandwidth") + "\n")
	b.WriteString(light + "\n\n")

	fmt.Fprintf(&b, "  Download:             %s\n", FormatMbps(r.Download.SpeedMbps))
	writeSizeTable(&b, r.Download)
	fmt.Fprintf(&b, "  Upload:               %s\n", FormatMbps(r.Upload.SpeedMbps))
	writeSizeTable(&b, r.Upload)

	if r.PacketLoss != nil {
		b.WriteString(light + "\n")
		b.WriteString(center("Packet Loss") + "\n")
		b.WriteString(light + "\n\n")
		fmt.Fprintf(&b, "  Loss:                 %.2f%%  (%d of %d packets)\n",
			r.PacketLoss.Percent, r.PacketLoss.PacketsLost, r.PacketLoss.PacketsSent)
		if r.PacketLoss.AvgRTTMs != nil {
			fmt.Fprintf(&b, "  Average RTT:          %s\n", FormatMs(*r.PacketLoss.AvgRTTMs))
		}
		b.WriteString("\n")
	}

	b.WriteString(light + "\n")
	b.WriteString(center("Quality Scores") + "\n")
	b.WriteString(light + "\n\n")

	fmt.Fprintf(&b, "  Streaming:            %s\n", r.Scores.Streaming)
	fmt.Fprintf(&b, "  Gaming:               %s\n", r.Scores.Gaming)
	fmt.Fprintf(&b, "  Video Conferencing:   %s\n", r.Scores.VideoConferencing)
	fmt.Fprintf(&b, "  Overall:              %s\n\n", r.Scores.Overall)

	b.WriteString(heavy + "\n")

	return b.String()
}

func writeSizeTable(b *strings.Builder, bw BandwidthSummary) {
	for _, size := range bw.Measurements {
		fmt.Fprintf(b, "    %-10s %14s  (%d tests)\n",
			FormatBytes(size.Bytes), FormatMbps(size.SpeedMbps), size.Count)
	}
	if bw.EarlyTerminated {
		b.WriteString("    (larger sizes skipped: connection already saturated)\n")
	}
	b.WriteString("\n")
}

func center(s string) string {
	pad := (bannerWidth - len(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s
}

// FormatMs renders a millisecond value for display.
func FormatMs(ms float64) string {
	return fmt.Sprintf("%.2f ms", ms)
}

// FormatMbps renders a speed for display.
func FormatMbps(mbps float64) string {
	return fmt.Sprintf("%.2f Mbps", mbps)
}

// FormatBytes renders a byte count using decimal units, matching the
// decimal megabits used for speeds.
func FormatBytes(bytes int64) string {
	switch {
	case bytes >= 1_000_000_000:
		return fmt.Sprintf("%.0f GB", float64(bytes)/1_000_000_000)
	case bytes >= 1_000_000:
		return fmt.Sprintf("%.0f MB", float64(bytes)/1_000_000)
	case bytes >= 1_000:
		return fmt.Sprintf("%.0f KB", float64(bytes)/1_000)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
