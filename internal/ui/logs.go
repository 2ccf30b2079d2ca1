package ui

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bigschom/ssportal/internal/logtail"
)

// logState holds all log-related state.
type logState struct {
	entries     []logtail.Entry
	follow      bool
	loading     bool
	err         error
	lastRefresh time.Time
}

type logLinesMsg struct {
	entries []logtail.Entry
	err     error
}

// refreshLogs starts a read of the console log unless one is in flight.
func (m *Model) refreshLogs() tea.Cmd {
	if m.logPath == "" || m.logState.loading {
		return nil
	}
	m.logState.loading = true
	path := m.logPath
	return func() tea.Msg {
		entries, err := logtail.ReadEntries(path, LogFetchLimit)
		return logLinesMsg{entries: entries, err: err}
	}
}

func (m *Model) handleLogLines(msg logLinesMsg) {
	m.logState.loading = false
	m.logState.lastRefresh = m.clk.Now()
	switch {
	case errors.Is(msg.err, fs.ErrNotExist):
		m.logState.entries = nil
		m.logState.err = nil
	case msg.err != nil:
		m.logState.err = msg.err
	default:
		m.logState.entries = msg.entries
		m.logState.err = nil
	}
	m.updateLogViewport()
}

// updateLogViewport updates the log viewport with current content.
func (m *Model) updateLogViewport() {
	if !m.ready {
		return
	}
	// Box = content height minus the status line; inner = box minus borders.
	m.logViewport.Width = max(m.width-4, 1)
	m.logViewport.Height = max(m.contentHeight()-3, 1)
	m.logViewport.Style = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.FocusBg))
	m.logViewport.SetContent(m.renderLogContent())
	if m.logState.follow {
		m.logViewport.GotoBottom()
	}
}

// renderLogContent colors each entry by level.
func (m Model) renderLogContent() string {
	if len(m.logState.entries) == 0 {
		return m.theme.Styles().MutedText.Render("No log entries yet")
	}
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	lines := make([]string, 0, len(m.logState.entries))
	for _, e := range m.logState.entries {
		style := styles.Text
		switch strings.ToLower(e.Level) {
		case "debug":
			style = styles.FaintText
		case "warn":
			style = styles.WarningText
		case "error", "dpanic", "panic", "fatal":
			style = styles.DangerText
		}
		lines = append(lines, style.Render(truncate(e.String(), m.logViewport.Width)))
	}
	return strings.Join(lines, "\n")
}

// renderLogs renders the log view.
func (m Model) renderLogs() string {
	bg := NewBgStyle(m.theme.FocusBg)
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	contentHeight := m.contentHeight() - 1

	box := m.renderTitledBox("Console Log", m.logViewport.View(), m.width, contentHeight, true)
	return box + "\n" + bg.FillLine(m.renderLogStatus(styles, bg), m.width)
}

// renderLogStatus renders the log status line.
func (m Model) renderLogStatus(styles Styles, bg BgStyle) string {
	if m.logState.err != nil {
		return bg.Render("log read failed: "+truncate(m.logState.err.Error(), 60), styles.DangerText)
	}
	autoTail := "off"
	if m.logState.follow {
		autoTail = "on"
	}
	status := fmt.Sprintf("%d lines auto-tail %s", len(m.logState.entries), autoTail)
	return bg.Render(status, styles.FaintText) + bg.Spaces(2) +
		bg.Render(truncateMiddle(m.logPath, 50), styles.MutedText)
}

// handleLogsKey processes keyboard input for the log view.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logState.follow = !m.logState.follow
		if m.logState.follow {
			m.logViewport.GotoBottom()
		}
	case key.Matches(msg, m.keys.Down):
		m.logState.follow = false
		m.logViewport.ScrollDown(1)
	case key.Matches(msg, m.keys.Up):
		m.logState.follow = false
		m.logViewport.ScrollUp(1)
	case key.Matches(msg, m.keys.Top):
		m.logState.follow = false
		m.logViewport.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.logState.follow = true
		m.logViewport.GotoBottom()
	case key.Matches(msg, m.keys.HalfPageDown):
		m.logViewport.HalfPageDown()
	case key.Matches(msg, m.keys.HalfPageUp):
		m.logState.follow = false
		m.logViewport.HalfPageUp()
	}
	return m, nil
}
