package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines colors and symbols for the CLI using lipgloss
type Theme struct {
	Bold   lipgloss.Style
	Cyan   lipgloss.Style
	Green  lipgloss.Style
	Yellow lipgloss.Style
	Dim    lipgloss.Style
	Red    lipgloss.Style

	Bullet  string
	Arrow   string
	Rule    string
	BoxTree string
	BoxLast string
	BoxItem string

	IconDownload string
	IconList     string
	IconWorld    string
	IconHelp     string
}

func DefaultTheme() *Theme {
	t := &Theme{
		Bold:   lipgloss.NewStyle().Bold(true),
		Cyan:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Green:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Yellow: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Dim:    lipgloss.NewStyle().Faint(true),
		Red:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		Bullet:  "•",
		Arrow:   "→",
		Rule:    "─",
		BoxTree: "├──",
		BoxLast: "└──",
		BoxItem: "│  ",

		IconDownload: "📥",
		IconList:     "📋",
		IconWorld:    "🌐",
		IconHelp:     "💡",
	}

	return t
}

func (t *Theme) Styled(style lipgloss.Style, text string) string {
	return style.Render(text)
}

// Header renders a bold title over a horizontal rule of the same width.
func (t *Theme) Header(title string) string {
	width := lipgloss.Width(title)
	return t.Styled(t.Bold, title) + "\n" + t.Styled(t.Dim, strings.Repeat(t.Rule, width)) + "\n"
}
