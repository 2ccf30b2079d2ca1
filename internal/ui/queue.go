package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bigschom/ssportal/internal/portal"
)

// updateQueueTable updates selection bounds when the request list or filter
// changes. selectedID is the request that was selected before the change and
// keeps its selection when it is still listed.
func (m *Model) updateQueueTable(selectedID int64) {
	items := m.getSortedItems()
	itemCount := len(items)

	if itemCount == 0 {
		m.selectedRow = 0
		return
	}

	if selectedID > 0 {
		for i, item := range items {
			if item.ID == selectedID {
				m.selectedRow = i
				return
			}
		}
	}

	if m.selectedRow >= itemCount {
		m.selectedRow = itemCount - 1
	}
}

// selectedID returns the ID of the selected request, or 0.
func (m Model) selectedID() int64 {
	if item := m.getSelectedItem(); item != nil {
		return item.ID
	}
	return 0
}

// getSortedItems returns requests filtered and sorted by priority, status and age.
func (m Model) getSortedItems() []portal.ServiceRequest {
	items := make([]portal.ServiceRequest, 0, len(m.snapshot.Requests))

	for _, item := range m.snapshot.Requests {
		status := strings.ToLower(strings.TrimSpace(item.Status))
		switch m.filterMode {
		case FilterNew:
			if status != portal.StatusNew && status != portal.StatusPending {
				continue
			}
		case FilterInProgress:
			if status != portal.StatusInProgress {
				continue
			}
		case FilterMine:
			if m.operator == "" || !strings.EqualFold(strings.TrimSpace(item.AssignedTo), m.operator) {
				continue
			}
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := priorityRank(items[i].Priority), priorityRank(items[j].Priority)
		if pi != pj {
			return pi < pj
		}
		si, sj := statusRank(items[i].Status), statusRank(items[j].Status)
		if si != sj {
			return si < sj
		}
		// Oldest first; requests without a timestamp sink.
		ti, tj := items[i].ParsedCreatedAt(), items[j].ParsedCreatedAt()
		if ti.IsZero() != tj.IsZero() {
			return !ti.IsZero()
		}
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return items[i].ID < items[j].ID
	})

	return items
}

// getSelectedItem returns the currently selected request.
func (m Model) getSelectedItem() *portal.ServiceRequest {
	items := m.getSortedItems()
	if m.selectedRow < 0 || m.selectedRow >= len(items) {
		return nil
	}
	item := items[m.selectedRow]
	return &item
}

// queuePanes returns table and detail box sizes for the current terminal.
func (m Model) queuePanes() (tableW, tableH, detailW, detailH int, stacked bool) {
	h := m.contentHeight()
	if m.width < LayoutCompactWidth {
		tableH = max(h*55/100, 3)
		return m.width, tableH, m.width, max(h-tableH, 3), true
	}
	tableW = m.width * 55 / 100
	return tableW, h, m.width - tableW, h, false
}

// renderQueue renders the queue view with split layout (table + detail).
func (m Model) renderQueue() string {
	styles := m.theme.Styles()
	contentHeight := m.contentHeight()

	if len(m.snapshot.Requests) == 0 {
		msg := "No open requests"
		if m.snapshot.LastUpdated.IsZero() {
			msg = "Waiting for first check..."
		}
		return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, styles.MutedText.Render(msg))
	}

	tableW, tableH, detailW, detailH, stacked := m.queuePanes()

	tableContent := m.renderQueueTable(tableW-2, m.theme.FocusBg)
	if tableContent == "" {
		tableContent = lipgloss.NewStyle().
			Foreground(lipgloss.Color(m.theme.Muted)).
			Background(lipgloss.Color(m.theme.FocusBg)).
			Render("Nothing matches the " + strings.ToLower(m.filterLabel()) + " filter")
	}
	tablePane := m.renderTitledBox(m.getQueueTitle(), tableContent, tableW, tableH, true)

	detailContent := m.detailViewport.View()
	if m.getSelectedItem() == nil {
		detailContent = lipgloss.NewStyle().
			Foreground(lipgloss.Color(m.theme.Muted)).
			Background(lipgloss.Color(m.theme.SurfaceAlt)).
			Render("Select a request")
	}
	detailPane := m.renderTitledBox("Details", detailContent, detailW, detailH, false)

	if stacked {
		return lipgloss.JoinVertical(lipgloss.Left, tablePane, detailPane)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tablePane, detailPane)
}

// getQueueTitle returns the table title with filter and counts.
func (m Model) getQueueTitle() string {
	shown := len(m.getSortedItems())
	total := len(m.snapshot.Requests)
	if m.filterMode == FilterAll {
		return fmt.Sprintf("Requests (%d)", total)
	}
	return fmt.Sprintf("Requests · %s (%d/%d)", m.filterLabel(), shown, total)
}

// renderQueueTable renders the requests as styled rows, scrolled to keep the
// selection visible.
func (m Model) renderQueueTable(width int, bgColor string) string {
	items := m.getSortedItems()
	if len(items) == 0 {
		return ""
	}

	_, tableH, _, _, _ := m.queuePanes()
	visible := max(tableH-2, 1)
	start := 0
	if m.selectedRow >= visible {
		start = m.selectedRow - visible + 1
	}
	end := min(start+visible, len(items))

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		selected := i == m.selectedRow
		rowBg := bgColor
		if selected {
			rowBg = m.theme.SelectionBg
		}
		content := m.formatQueueRowContent(items[i], width, rowBg, selected)
		lines = append(lines, lipgloss.NewStyle().
			Background(lipgloss.Color(rowBg)).
			Width(width).
			Render(content))
	}
	return strings.Join(lines, "\n")
}

// formatQueueRowContent formats a request row with inline colors.
// Format: "REF Service · Name  STATUS age"
func (m Model) formatQueueRowContent(item portal.ServiceRequest, width int, bgColor string, selected bool) string {
	bg := NewBgStyle(bgColor)
	styles := m.theme.Styles()

	textStyle := styles.Text
	mutedStyle := styles.MutedText
	if selected {
		textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText))
		mutedStyle = textStyle
	}

	ref := padRight(truncate(requestRef(item), 14), 14)
	status := portal.StatusLabel(item.Status)
	badge := styles.StatusStyle(item.Status).Render(status)
	badgeWidth := lipgloss.Width(badge)

	age := ""
	if width >= LayoutAgeWidth {
		age = padRight(formatAge(item.ParsedCreatedAt(), m.clk.Now()), 4)
	}

	marker := " "
	if isHighPriority(item.Priority) {
		marker = "!"
	}

	// ref + marker + spacing + badge + age
	fixed := 14 + 2 + 1 + badgeWidth + 1
	if age != "" {
		fixed += len(age) + 1
	}
	summary := portal.ServiceLabel(item.ServiceType)
	if name := strings.TrimSpace(item.FullName); name != "" {
		summary += " · " + name
	}
	summary = padRight(truncate(summary, max(width-fixed, 4)), max(width-fixed, 4))

	var b strings.Builder
	b.WriteString(bg.Space())
	b.WriteString(bg.Render(ref, textStyle.Bold(true)))
	b.WriteString(bg.Render(marker, styles.DangerText))
	b.WriteString(bg.Space())
	b.WriteString(bg.Render(summary, mutedStyle))
	b.WriteString(bg.Space())
	b.WriteString(badge)
	if age != "" {
		b.WriteString(bg.Space())
		b.WriteString(bg.Render(age, mutedStyle))
	}
	return b.String()
}

// renderTitledBox renders content in a box with the title embedded in the
// top border: ┌─── Title ───┐
func (m Model) renderTitledBox(title, content string, width, height int, focused bool) string {
	var borderColorStr, bgColorStr string
	if focused {
		borderColorStr = m.theme.BorderFocus
		bgColorStr = m.theme.FocusBg
	} else {
		borderColorStr = m.theme.Border
		bgColorStr = m.theme.SurfaceAlt
	}
	bg := NewBgStyle(bgColorStr)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColorStr))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text))

	innerWidth := max(width-2, 0)
	title = truncate(title, max(innerWidth-4, 0))
	titleLen := lipgloss.Width(title)
	leftPad := max((innerWidth-titleLen-2)/2, 0)
	rightPad := max(innerWidth-titleLen-2-leftPad, 0)

	topBorder := bg.Render("┌", borderStyle) +
		bg.Render(strings.Repeat("─", leftPad), borderStyle) +
		bg.Render(" "+title+" ", titleStyle) +
		bg.Render(strings.Repeat("─", rightPad), borderStyle) +
		bg.Render("┐", borderStyle)

	bottomBorder := bg.Render("└", borderStyle) +
		bg.Render(strings.Repeat("─", innerWidth), borderStyle) +
		bg.Render("┘", borderStyle)

	contentStyle := lipgloss.NewStyle().Width(innerWidth).MaxWidth(innerWidth).Background(lipgloss.Color(bgColorStr))
	contentLines := strings.Split(content, "\n")
	boxHeight := max(height-2, 0)

	lines := make([]string, 0, boxHeight)
	for i := 0; i < boxHeight; i++ {
		var line string
		if i < len(contentLines) {
			line = contentLines[i]
		}
		lines = append(lines,
			bg.Render("│", borderStyle)+
				contentStyle.Render(line)+
				bg.Render("│", borderStyle))
	}

	return topBorder + "\n" + strings.Join(lines, "\n") + "\n" + bottomBorder
}

// priorityRank returns the sort rank for a priority (lower = more urgent).
func priorityRank(priority string) int {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "urgent", "critical":
		return 0
	case "high":
		return 1
	case "normal", "medium", "":
		return 2
	case "low":
		return 3
	default:
		return 2
	}
}

func isHighPriority(priority string) bool {
	return priorityRank(priority) <= 1
}

// statusRank returns the sort rank for a status (lower = needs attention sooner).
func statusRank(status string) int {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case portal.StatusNew:
		return 0
	case portal.StatusPending:
		return 1
	case portal.StatusInProgress:
		return 2
	case portal.StatusCompleted:
		return 3
	case portal.StatusRejected:
		return 4
	default:
		return 5
	}
}

// requestRef returns the reference number, or the ID when none is set.
func requestRef(item portal.ServiceRequest) string {
	if ref := strings.TrimSpace(item.ReferenceNumber); ref != "" {
		return ref
	}
	return fmt.Sprintf("#%d", item.ID)
}
