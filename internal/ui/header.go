package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bigschom/ssportal/internal/portal"
)

// renderHeader renders the status bar with desk counters.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	if m.snapshot.LastUpdated.IsZero() {
		return m.renderConnectingHeader(styles, bg)
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Foreground(lipgloss.Color(m.theme.Text)).
		Width(m.width).
		Render(m.buildStatusContent(styles, bg))
}

// renderConnectingHeader shows the state before the first successful check.
func (m Model) renderConnectingHeader(styles Styles, bg BgStyle) string {
	sep := bg.Spaces(2)

	if m.snapshot.LastError != nil {
		parts := []string{
			bg.Render("ssportal", styles.Logo),
			bg.Render("API "+classifyConnectionError(m.snapshot.LastError), styles.DangerText.Bold(true)),
			bg.Render("Retrying...", styles.WarningText.Bold(true)),
		}
		if m.logPath != "" {
			parts = append(parts,
				bg.Render("logs", styles.FaintText)+bg.Space()+
					bg.Render(truncateMiddle(m.logPath, 50), styles.MutedText))
		}
		return styles.Header.Width(m.width).Render(bg.Join(parts, sep))
	}

	return styles.Header.Width(m.width).Render(
		bg.Render("ssportal", styles.Logo) + sep +
			bg.Render("Connecting to portal...", styles.WarningText.Bold(true)),
	)
}

// buildStatusContent builds the status bar content string.
func (m Model) buildStatusContent(styles Styles, bg BgStyle) string {
	compact := m.width < 100

	var parts []string
	parts = append(parts, bg.Render("ssportal", styles.Logo))

	if m.snapshot.IsOffline() {
		parts = append(parts, bg.Render("● OFFLINE", styles.DangerText))
	} else {
		parts = append(parts, bg.Render("● ONLINE", styles.SuccessText))
	}

	counts := m.statusCounts()
	order := []string{portal.StatusNew, portal.StatusPending, portal.StatusInProgress}
	for _, status := range order {
		label := titleCase(status) + ":"
		if compact {
			label = strings.ToUpper(status[:1]) + ":"
		}
		valueStyle := styles.MutedText
		if counts[status] > 0 {
			valueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(m.theme.StatusColors[status])).
				Background(lipgloss.Color(m.theme.Surface))
		}
		parts = append(parts,
			bg.Render(label, styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d", counts[status]), valueStyle))
	}

	if m.snapshot.HasStats {
		overdueStyle := styles.MutedText
		if m.snapshot.Stats.OverdueCount > 0 {
			overdueStyle = styles.DangerText
		}
		parts = append(parts,
			bg.Render("Overdue:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d", m.snapshot.Stats.OverdueCount), overdueStyle))
	}

	if m.muted {
		parts = append(parts, bg.Render("MUTED", styles.WarningText))
	}

	if ts := m.formatLastUpdate(); ts != "" {
		parts = append(parts, bg.Render(ts, styles.MutedText))
	}

	if m.snapshot.LastError != nil {
		maxErr := 80
		if compact {
			maxErr = 40
		}
		parts = append(parts,
			bg.Render(classifyConnectionError(m.snapshot.LastError), styles.DangerText.Bold(true))+bg.Space()+
				bg.Render(truncate(m.snapshot.LastError.Error(), maxErr), styles.DangerText))
	}

	return bg.Join(parts, "  ")
}

// statusCounts prefers backend counters and falls back to counting the list.
func (m Model) statusCounts() map[string]int {
	if m.snapshot.HasStats && len(m.snapshot.Stats.ByStatus) > 0 {
		return m.snapshot.Stats.ByStatus
	}
	counts := make(map[string]int)
	for _, item := range m.snapshot.Requests {
		counts[strings.ToLower(strings.TrimSpace(item.Status))]++
	}
	return counts
}

// formatLastUpdate formats the last successful check with a relative indicator.
func (m Model) formatLastUpdate() string {
	last := m.snapshot.LastUpdated
	if last.IsZero() {
		return ""
	}
	since := m.clk.Now().Sub(last)
	ts := last.Format("15:04:05")
	switch {
	case since < time.Minute:
		ts += " (now)"
	case since < time.Hour:
		ts += fmt.Sprintf(" (%dm ago)", int(since.Minutes()))
	case since < 24*time.Hour:
		ts += fmt.Sprintf(" (%dh ago)", int(since.Hours()))
	}
	return ts
}

// classifyConnectionError returns a short description of a check failure.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, portal.ErrUnauthorized) {
		return "UNAUTHORIZED"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "OFFLINE"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// renderCommandBar renders the key hints, or the latest action result.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewLogs:
		followLabel := "Pause"
		if !m.logState.follow {
			followLabel = "Follow"
		}
		commands = []cmd{
			{"Space", followLabel},
			{"j/k", "Scroll"},
			{"q", "Queue"},
			{"?", "More"},
		}
	default:
		commands = []cmd{
			{"f", m.filterLabel()},
			{"c", "Claim"},
			{"x", "Complete"},
			{"r", "Refresh"},
			{"j/k", "Navigate"},
			{"l", "Logs"},
			{"?", "More"},
		}
	}

	muteLabel := "Mute"
	if m.muted {
		muteLabel = "Unmute"
	}
	commands = append(commands, cmd{"m", muteLabel})

	colon := bg.Sep(":")
	segments := make([]string, 0, len(commands)+2)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	if m.flash != "" {
		segments = append(segments, bg.Render(truncate(m.flash, 60), styles.InfoText))
	}

	return styles.Header.Width(m.width).Render(strings.Join(segments, bg.Spaces(2)))
}

// renderToasts renders live notifications, newest last.
func (m Model) renderToasts() string {
	if len(m.toasts) == 0 {
		return ""
	}
	styles := m.theme.Styles().WithBackground(m.theme.SurfaceAlt)
	bg := NewBgStyle(m.theme.SurfaceAlt)

	lines := make([]string, 0, len(m.toasts))
	for _, t := range m.toasts {
		line := bg.Space() + bg.Render("▲", styles.WarningText) + bg.Space() +
			bg.Render(t.n.Title, styles.Text.Bold(true))
		if body := strings.TrimSpace(t.n.Body); body != "" {
			line += bg.Spaces(2) + bg.Render(truncate(body, max(m.width-lipgloss.Width(t.n.Title)-8, 10)), styles.MutedText)
		}
		lines = append(lines, bg.FillLine(line, m.width))
	}
	return strings.Join(lines, "\n")
}
