package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	ColorPrimary   = lipgloss.Color("#bd93f9")
	ColorSecondary = lipgloss.Color("#ff79c6")
	ColorSuccess   = lipgloss.Color("#50fa7b")
	ColorError     = lipgloss.Color("#ff5555")
	ColorWarning   = lipgloss.Color("#ffb86c")
	ColorText      = lipgloss.Color("#f8f8f2")
	ColorSubtext   = lipgloss.Color("#6272a4")
	ColorBorder    = lipgloss.Color("#44475a")

	AppStyle = lipgloss.NewStyle().
			Padding(DefaultPaddingX, 2).
			Foreground(ColorText)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Padding(DefaultPaddingY, DefaultPaddingX).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true).
			Padding(DefaultPaddingY, DefaultPaddingX).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(ColorPrimary).
			BorderBottom(true)

	StatsStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Padding(DefaultPaddingY, DefaultPaddingX)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(DefaultPaddingY, DefaultPaddingX).
			Margin(DefaultPaddingY, DefaultPaddingX)

	SelectedCardStyle = CardStyle.
				BorderForeground(ColorSecondary)

	CardTitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	CardStatsStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Italic(true)

	StatusQueuedStyle    = lipgloss.NewStyle().Foreground(ColorSubtext)
	StatusActiveStyle    = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	StatusPausedStyle    = lipgloss.NewStyle().Foreground(ColorWarning)
	StatusCompletedStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	StatusFailedStyle    = lipgloss.NewStyle().Foreground(ColorError)

	HelpStyle = lipgloss.NewStyle().Foreground(ColorSubtext)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(lipgloss.Color("#282a36")).
			Padding(DefaultPaddingY, DefaultPaddingX)
)

// AdaptToLightBackground darkens the text palette for light terminals. Called
// once at startup after probing the terminal background.
func AdaptToLightBackground() {
	ColorText = lipgloss.Color("#282a36")
	ColorSubtext = lipgloss.Color("#44475a")

	AppStyle = AppStyle.Foreground(ColorText)
	HeaderStyle = HeaderStyle.Foreground(ColorText)
	StatsStyle = StatsStyle.Foreground(ColorSubtext)
	CardStatsStyle = CardStatsStyle.Foreground(ColorSubtext)
	StatusQueuedStyle = StatusQueuedStyle.Foreground(ColorSubtext)
	HelpStyle = HelpStyle.Foreground(ColorSubtext)
}
