package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/omniget/omniget/internal/events"
	"github.com/omniget/omniget/internal/types"
)

// Update handles messages and updates the model.
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case events.QueueStateMsg:
		m.items = msg.Items
		if m.cursor >= len(m.items) {
			m.cursor = len(m.items) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		m.pruneBars()
		cmds = append(cmds, listenForActivity(m.eventCh))

	case events.ItemProgressMsg:
		// Per-item progress arrives more often than full snapshots; patch
		// the matching row in place.
		for i := range m.items {
			if m.items[i].ID == msg.Progress.ID {
				m.items[i].Percent = msg.Progress.Percent
				m.items[i].SpeedBytesPerSec = msg.Progress.SpeedBytesPerSec
				m.items[i].DownloadedBytes = msg.Progress.DownloadedBytes
				if msg.Progress.TotalBytes != nil {
					m.items[i].TotalBytes = msg.Progress.TotalBytes
				}
				break
			}
		}
		cmds = append(cmds, listenForActivity(m.eventCh))

	case ClipboardURLMsg:
		if m.state == DashboardState {
			m.state = InputState
			m.errLine = ""
			m.urlInput.SetValue(msg.URL)
			m.urlInput.Focus()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m RootModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case InputState:
		return m.handleInputKey(msg)
	case ConfirmClearState:
		switch msg.String() {
		case "y", "Y":
			m.controller.ClearFinished()
			m.state = DashboardState
		case "n", "N", "esc":
			m.state = DashboardState
		}
		return m, nil
	}

	// Dashboard
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "a":
		m.state = InputState
		m.errLine = ""
		m.urlInput.SetValue("")
		m.urlInput.Focus()
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "p":
		if it := m.selected(); it != nil {
			switch it.Status.Type {
			case events.TagActive, events.TagQueued:
				m.reportErr(m.controller.Pause(it.ID))
			case events.TagPaused:
				m.reportErr(m.controller.Resume(it.ID))
			}
		}

	case "c":
		if it := m.selected(); it != nil {
			m.reportErr(m.controller.Cancel(it.ID))
		}

	case "r":
		if it := m.selected(); it != nil {
			m.reportErr(m.controller.Retry(it.ID))
		}

	case "x", "delete":
		if it := m.selected(); it != nil {
			m.reportErr(m.controller.Remove(it.ID))
		}

	case "C":
		m.state = ConfirmClearState
	}
	return m, nil
}

func (m RootModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = DashboardState
		m.urlInput.Blur()
		return m, nil

	case "enter":
		rawurl := strings.TrimSpace(m.urlInput.Value())
		if rawurl == "" {
			return m, nil
		}
		if err := m.controller.Enqueue(rawurl, types.DownloadOptions{}); err != nil {
			m.errLine = err.Error()
			return m, nil
		}
		m.state = DashboardState
		m.urlInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

func (m *RootModel) reportErr(err error) {
	if err != nil {
		m.errLine = err.Error()
	}
}

// pruneBars drops progress bars for items no longer in the queue.
func (m *RootModel) pruneBars() {
	live := make(map[int64]bool, len(m.items))
	for _, it := range m.items {
		live[it.ID] = true
	}
	for id := range m.bars {
		if !live[id] {
			delete(m.bars, id)
		}
	}
}
