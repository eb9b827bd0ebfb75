package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/omniget/omniget/internal/events"
)

func (m RootModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.state {
	case InputState:
		return m.viewInput()
	case ConfirmClearState:
		return m.viewConfirmClear()
	}
	return m.viewDashboard()
}

func (m RootModel) viewDashboard() string {
	header := HeaderStyle.Width(m.width - HeaderWidthOffset).Render("omniget")
	stats := StatsStyle.Render(m.statsLine())

	var cards []string
	if len(m.items) == 0 {
		cards = append(cards, StatsStyle.Render("Queue is empty. Press 'a' to add a URL."))
	}
	for i, it := range m.items {
		cards = append(cards, m.renderCard(it, i == m.cursor))
	}

	help := HelpStyle.Render("a add · p pause/resume · c cancel · r retry · x remove · C clear finished · q quit")
	body := lipgloss.JoinVertical(lipgloss.Left, cards...)

	sections := []string{header, stats, body, help}
	if m.errLine != "" {
		sections = append(sections, StatusFailedStyle.Render(m.errLine))
	}
	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m RootModel) renderCard(it events.ItemSnapshot, selected bool) string {
	style := CardStyle
	if selected {
		style = SelectedCardStyle
	}

	title := it.Title
	if title == "" {
		title = it.URL
	}

	bar := ""
	switch it.Status.Type {
	case events.TagActive:
		p := m.barFor(it.ID)
		p.Width = m.width - ProgressBarWidthOffset*2
		bar = p.ViewAs(it.Percent / 100)
	case events.TagComplete:
		bar = StatusCompletedStyle.Render("done · " + it.FilePath)
	case events.TagError:
		bar = StatusFailedStyle.Render("failed · " + it.Status.Data)
	}

	lines := []string{
		CardTitleStyle.Render(truncate(title, m.width-8)),
		CardStatsStyle.Render(m.cardStats(it)),
	}
	if bar != "" {
		lines = append(lines, bar)
	}
	return style.Width(m.width - 6).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m RootModel) cardStats(it events.ItemSnapshot) string {
	parts := []string{statusLabel(it.Status.Type), it.Platform}

	if it.Status.Type == events.TagActive {
		if it.TotalBytes != nil {
			parts = append(parts, fmt.Sprintf("%s / %s",
				humanize.Bytes(uint64(it.DownloadedBytes)), humanize.Bytes(uint64(*it.TotalBytes))))
		} else if it.DownloadedBytes > 0 {
			parts = append(parts, humanize.Bytes(uint64(it.DownloadedBytes)))
		}
		if it.SpeedBytesPerSec > 0 {
			parts = append(parts, humanize.Bytes(uint64(it.SpeedBytesPerSec))+"/s")
		}
		if it.ETASeconds != nil {
			parts = append(parts, fmt.Sprintf("ETA %ds", *it.ETASeconds))
		}
	}
	if it.Status.Type == events.TagComplete && it.FileSizeBytes > 0 {
		parts = append(parts, humanize.Bytes(uint64(it.FileSizeBytes)))
	}
	return strings.Join(parts, " · ")
}

func (m RootModel) statsLine() string {
	var active, queued, done, failed int
	for _, it := range m.items {
		switch it.Status.Type {
		case events.TagActive:
			active++
		case events.TagQueued, events.TagPaused:
			queued++
		case events.TagComplete:
			done++
		case events.TagError:
			failed++
		}
	}
	return fmt.Sprintf("%d active · %d waiting · %d done · %d failed", active, queued, done, failed)
}

func (m RootModel) viewInput() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render("Add Download"),
		"",
		m.urlInput.View(),
		"",
		HelpStyle.Render("enter add · esc cancel"),
	)
	if m.errLine != "" {
		content = lipgloss.JoinVertical(lipgloss.Left, content, StatusFailedStyle.Render(m.errLine))
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m RootModel) viewConfirmClear() string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		StatusPausedStyle.Bold(true).Render("Clear all finished items?"),
		"",
		HelpStyle.Render("y yes · n no"),
	)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func statusLabel(status string) string {
	switch status {
	case events.TagQueued:
		return StatusQueuedStyle.Render("QUEUED")
	case events.TagActive:
		return StatusActiveStyle.Render("ACTIVE")
	case events.TagPaused:
		return StatusPausedStyle.Render("PAUSED")
	case events.TagComplete:
		return StatusCompletedStyle.Render("DONE")
	case events.TagError:
		return StatusFailedStyle.Render("FAILED")
	}
	return strings.ToUpper(status)
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
