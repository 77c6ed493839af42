package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/reckless/internal/tui/components"
)

// View renders the current state of the model.
func (m Model) View() string {
	sections := []string{
		titleStyle.Render(fmt.Sprintf("reckless • install %s", m.plugin)),
		components.NewProgress(len(m.stages)).View(m.reached),
	}

	entries := make([]components.StageEntry, 0, len(m.stages))
	for _, stage := range m.stages {
		status := m.status[stage]
		icon := StatusIcon(status)
		if status == StatusRunning && !m.finished {
			icon = m.spinner.View()
		}
		entries = append(entries, components.StageEntry{
			Name:   stage.String(),
			Icon:   icon,
			Detail: m.details[stage],
		})
	}
	sections = append(sections, sectionStyle.Render("Stages"), components.NewStageList(entries).View())

	summary := components.NewSummary(components.SummaryData{
		Plugin:    m.plugin,
		Reached:   m.reached,
		Total:     len(m.stages),
		Finished:  m.finished,
		Cancelled: m.cancelled,
		Err:       m.err,
	}).View()
	if strings.TrimSpace(summary) != "" {
		style := successStyle
		if m.err != nil || m.cancelled {
			style = failureStyle
		}
		sections = append(sections, summaryStyle.Render(style.Render(summary)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

// StatusIcon returns the glyph representing a stage status.
func StatusIcon(status string) string {
	switch status {
	case StatusDone:
		return successStyle.Render("✓")
	case StatusRunning:
		return runningStyle.Render("⏳")
	case StatusFailed:
		return failureStyle.Render("✗")
	default:
		return pendingStyle.Render("…")
	}
}
