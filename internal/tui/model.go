// Package tui renders the interactive queue dashboard on top of the engine's
// event stream. It holds no download state of its own: queue snapshots
// arriving on the event channel are the single source of truth.
package tui

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/omniget/omniget/internal/events"
	"github.com/omniget/omniget/internal/types"
)

type UIState int

const (
	DashboardState UIState = iota
	InputState
	ConfirmClearState
)

// Controller is the engine surface the dashboard drives. Implemented by the
// app wiring in cmd; stubbed in tests.
type Controller interface {
	Enqueue(rawurl string, opts types.DownloadOptions) error
	Pause(id int64) error
	Resume(id int64) error
	Cancel(id int64) error
	Retry(id int64) error
	Remove(id int64) error
	ClearFinished() int
}

type RootModel struct {
	controller Controller
	eventCh    chan any

	items []events.ItemSnapshot
	bars  map[int64]progress.Model

	width  int
	height int
	state  UIState
	cursor int

	urlInput textinput.Model
	errLine  string
}

// NewRootModel builds the dashboard. eventCh is the engine's emitter channel.
func NewRootModel(controller Controller, eventCh chan any) RootModel {
	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com/watch?v=..."
	urlInput.Width = InputWidth
	urlInput.Prompt = ""

	return RootModel{
		controller: controller,
		eventCh:    eventCh,
		bars:       make(map[int64]progress.Model),
		state:      DashboardState,
		urlInput:   urlInput,
	}
}

func (m RootModel) Init() tea.Cmd {
	return listenForActivity(m.eventCh)
}

// ClipboardURLMsg is sent by the clipboard watcher when a web URL lands on
// the clipboard. The dashboard opens the add prompt pre-filled so one
// keystroke confirms it.
type ClipboardURLMsg struct {
	URL string
}

func listenForActivity(sub chan any) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// selected returns the snapshot under the cursor, or nil.
func (m *RootModel) selected() *events.ItemSnapshot {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return nil
	}
	return &m.items[m.cursor]
}

// barFor returns (creating on first sight) the progress bar for an item.
func (m *RootModel) barFor(id int64) progress.Model {
	bar, ok := m.bars[id]
	if !ok {
		bar = progress.New(progress.WithDefaultGradient())
		m.bars[id] = bar
	}
	return bar
}
