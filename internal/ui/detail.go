package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bigschom/ssportal/internal/portal"
)

// metadataRow represents a single label/value pair in the detail pane.
type metadataRow struct {
	key   string
	value string
}

// updateDetailViewport sizes the detail viewport and refills it from the
// selected request.
func (m *Model) updateDetailViewport() {
	if !m.ready {
		return
	}
	_, _, detailW, detailH, _ := m.queuePanes()
	m.detailViewport.Width = max(detailW-2, 1)
	m.detailViewport.Height = max(detailH-2, 1)

	item := m.getSelectedItem()
	if item == nil {
		m.detailViewport.SetContent("")
		return
	}
	m.detailViewport.SetContent(m.renderDetailContent(*item, m.detailViewport.Width-2, m.theme.SurfaceAlt))
}

// renderDetailContent renders the full record for one request.
func (m Model) renderDetailContent(item portal.ServiceRequest, width int, bgColor string) string {
	styles := m.theme.Styles().WithBackground(bgColor)
	bg := NewBgStyle(bgColor)
	width = max(width, 10)

	var lines []string

	heading := requestRef(item) + " · " + portal.ServiceLabel(item.ServiceType)
	lines = append(lines, bg.Space()+bg.Render(truncate(heading, width), styles.Text.Bold(true)))

	chips := []string{m.theme.Styles().StatusStyle(item.Status).Render(portal.StatusLabel(item.Status))}
	if isHighPriority(item.Priority) {
		chips = append(chips, bg.Render(strings.ToUpper(strings.TrimSpace(item.Priority)), styles.DangerText))
	}
	lines = append(lines, bg.Space()+strings.Join(chips, bg.Space()), "")

	now := m.clk.Now()
	rows := []metadataRow{
		{"Customer", item.FullName},
		{"Phone", item.PhoneNumber},
		{"ID/Passport", item.IDPassport},
		{"Priority", titleCase(item.Priority)},
		{"Assigned", item.AssignedTo},
		{"Created by", item.CreatedBy},
		{"Created", formatTimestamp(item.CreatedAt, item.ParsedCreatedAt().IsZero(), formatAge(item.ParsedCreatedAt(), now))},
		{"Updated", formatTimestamp(item.UpdatedAt, item.ParsedUpdatedAt().IsZero(), formatAge(item.ParsedUpdatedAt(), now))},
	}
	lines = append(lines, m.renderMetadataRows(rows, width, styles, bg)...)

	if details := strings.TrimSpace(item.Details); details != "" {
		lines = append(lines, "", bg.Space()+bg.Render("DETAILS", styles.MutedText))
		wrapped := lipgloss.NewStyle().Width(width).Render(details)
		for _, line := range strings.Split(wrapped, "\n") {
			lines = append(lines, bg.Space()+bg.Render(strings.TrimRight(line, " "), styles.Text))
		}
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderMetadataRows(rows []metadataRow, width int, styles Styles, bg BgStyle) []string {
	const keyWidth = 12
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		value := strings.TrimSpace(row.value)
		if value == "" {
			continue
		}
		out = append(out, bg.Space()+
			bg.Render(padRight(row.key, keyWidth), styles.MutedText)+
			bg.Render(truncate(value, max(width-keyWidth, 4)), styles.Text))
	}
	return out
}

func formatTimestamp(raw string, unparsed bool, age string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || unparsed {
		return raw
	}
	return raw + " (" + age + ")"
}
