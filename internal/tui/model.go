package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-speedtest/internal/collector"
	"github.com/randomizedcoder/go-speedtest/internal/engine"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to refresh the elapsed time.
type TickMsg time.Time

// ProgressMsg carries one engine progress event.
type ProgressMsg engine.Event

// DoneMsg signals the test finished and the TUI should exit.
type DoneMsg struct {
	Err error
}

// =============================================================================
// Model
// =============================================================================

// sizeRow is one finished size block: the transfer size and the last
// speed observed at it.
type sizeRow struct {
	bytes     int64
	speedMbps float64
}

// directionState accumulates the latest measurement state for one
// transfer direction.
type directionState struct {
	bytes      int64
	iteration  int
	count      int
	speedMbps  float64
	latencyMs  float64
	jitterMs   float64
	hasLatency bool
	failures   int
	completed  []sizeRow
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	host    string
	version string

	// Current state
	phase         engine.Phase
	idleLatencyMs float64
	idleJitterMs  float64
	download      directionState
	upload        directionState
	startTime     time.Time

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
	err      error
}

// Config holds TUI configuration.
type Config struct {
	Host    string
	Version string
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		host:      cfg.Host,
		version:   cfg.Version,
		phase:     engine.PhaseInitializing,
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		return m, tickCmd()

	case ProgressMsg:
		m.applyEvent(engine.Event(msg))
		return m, nil

	case DoneMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// applyEvent folds one progress event into the model.
func (m *Model) applyEvent(ev engine.Event) {
	m.phase = ev.Phase

	switch ev.Phase {
	case engine.PhaseLatency:
		m.idleLatencyMs = ev.LatencyMs
		m.idleJitterMs = ev.JitterMs

	case engine.PhaseDownload, engine.PhaseUpload:
		state := &m.download
		if ev.Direction == collector.Upload {
			state = &m.upload
		}
		if ev.Bytes > 0 {
			state.bytes = ev.Bytes
		}
		if ev.Count > 0 {
			state.iteration = ev.Iteration
			state.count = ev.Count
		}
		if ev.SpeedMbps > 0 {
			state.speedMbps = ev.SpeedMbps
			if ev.Iteration == ev.Count {
				state.completed = append(state.completed, sizeRow{bytes: ev.Bytes, speedMbps: ev.SpeedMbps})
			}
		}
		if ev.LatencyMs > 0 {
			state.latencyMs = ev.LatencyMs
			state.jitterMs = ev.JitterMs
			state.hasLatency = true
		}
		if ev.Failed {
			state.failures++
		}
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 250ms.
func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the test started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Phase returns the current test phase.
func (m Model) Phase() engine.Phase {
	return m.phase
}

// Err returns the terminal error, if the test failed.
func (m Model) Err() error {
	return m.err
}

// blockProgress returns the progress through the current size block
// (0.0 to 1.0).
func (s directionState) blockProgress() float64 {
	if s.count == 0 {
		return 0
	}
	p := float64(s.iteration) / float64(s.count)
	if p > 1 {
		p = 1
	}
	return p
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendEvent forwards an engine progress event to the TUI.
func SendEvent(p *tea.Program, ev engine.Event) {
	if p != nil {
		p.Send(ProgressMsg(ev))
	}
}

// SendDone tells the TUI the run finished.
func SendDone(p *tea.Program, err error) {
	if p != nil {
		p.Send(DoneMsg{Err: err})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as MM:SS.
func formatDuration(d time.Duration) string {
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.0f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.0f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.0f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}
