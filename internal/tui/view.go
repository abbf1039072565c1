package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-speedtest/internal/engine"
)

// =============================================================================
// Main Render
// =============================================================================

// render draws the full dashboard.
func (m Model) render() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderPhase())
	b.WriteString("\n")
	b.WriteString(m.renderLatencyPanel())
	b.WriteString("\n")
	b.WriteString(m.renderBandwidthPanel())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	title := fmt.Sprintf(" go-speedtest %s ", m.version)
	info := mutedStyle.Render(fmt.Sprintf("%s  |  elapsed %s", m.host, formatDuration(m.Elapsed())))

	return lipgloss.JoinHorizontal(lipgloss.Center,
		headerStyle.Render(title),
		"  ",
		info,
	)
}

// =============================================================================
// Phase
// =============================================================================

// phaseOrder is the display sequence for the phase tracker.
var phaseOrder = []engine.Phase{
	engine.PhaseInitializing,
	engine.PhaseLatency,
	engine.PhaseDownload,
	engine.PhaseUpload,
	engine.PhaseComplete,
}

func (m Model) renderPhase() string {
	var parts []string
	for _, phase := range phaseOrder {
		name := phase.String()
		switch {
		case phase == m.phase:
			parts = append(parts, subtitleStyle.Render("▶ "+name))
		case phaseIndex(phase) < phaseIndex(m.phase):
			parts = append(parts, statusOK.Render("✓ "+name))
		default:
			parts = append(parts, dimStyle.Render("  "+name))
		}
	}
	return strings.Join(parts, mutedStyle.Render("  ·  "))
}

func phaseIndex(p engine.Phase) int {
	for i, phase := range phaseOrder {
		if phase == p {
			return i
		}
	}
	return -1
}

// =============================================================================
// Latency Panel
// =============================================================================

func (m Model) renderLatencyPanel() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Latency"))
	b.WriteString("\n")

	b.WriteString(RenderKeyValue("Idle", GetLatencyLabel(m.idleLatencyMs)))
	b.WriteString("\n")
	if m.idleJitterMs > 0 {
		b.WriteString(RenderKeyValue("Idle jitter", fmt.Sprintf("%.1f ms", m.idleJitterMs)))
		b.WriteString("\n")
	}

	if m.download.hasLatency {
		b.WriteString(RenderKeyValue("Loaded (down)", GetLatencyLabel(m.download.latencyMs)))
		b.WriteString("\n")
	}
	if m.upload.hasLatency {
		b.WriteString(RenderKeyValue("Loaded (up)", GetLatencyLabel(m.upload.latencyMs)))
		b.WriteString("\n")
	}

	return boxStyle.Width(m.panelWidth()).Render(strings.TrimRight(b.String(), "\n"))
}

// =============================================================================
// Bandwidth Panel
// =============================================================================

func (m Model) renderBandwidthPanel() string {
	down := m.renderDirection("Download", m.download, m.phase == engine.PhaseDownload)
	up := m.renderDirection("Upload", m.upload, m.phase == engine.PhaseUpload)

	return lipgloss.JoinVertical(lipgloss.Left, down, up)
}

func (m Model) renderDirection(name string, state directionState, active bool) string {
	var b strings.Builder

	title := titleStyle.Render(name)
	if active {
		title += subtitleStyle.Render("  ●")
	}
	if state.failures > 0 {
		style := statusWarning
		if state.failures >= 3 {
			style = statusError
		}
		title += style.Render(fmt.Sprintf("  %d failed", state.failures))
	}
	b.WriteString(title)
	b.WriteString("\n")

	b.WriteString(RenderKeyValue("Speed", GetSpeedLabel(state.speedMbps)))
	b.WriteString("\n")

	if state.count > 0 {
		label := fmt.Sprintf("%s  %d/%d", formatBytes(state.bytes), state.iteration, state.count)
		bar := RenderProgressBar(state.blockProgress(), m.barWidth())
		b.WriteString(RenderKeyValue("Transfer", label))
		b.WriteString("\n")
		b.WriteString(bar)
	} else {
		b.WriteString(dimStyle.Render("waiting..."))
	}

	for _, row := range state.completed {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %-8s %8.2f Mbps", formatBytes(row.bytes), row.speedMbps)))
	}

	return boxStyle.Width(m.panelWidth()).Render(b.String())
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	return footerStyle.Render("q: quit")
}

// =============================================================================
// Sizing
// =============================================================================

func (m Model) panelWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 76 {
		w = 76
	}
	return w
}

func (m Model) barWidth() int {
	w := m.panelWidth() - 30
	if w < 10 {
		w = 10
	}
	return w
}
