package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds every style used by the console printer and the progress view.
type Styles struct {
	Header  lipgloss.Style
	Title   lipgloss.Style
	OK      lipgloss.Style
	Error   lipgloss.Style
	Skipped lipgloss.Style
	Pending lipgloss.Style
	Detail  lipgloss.Style
	Footer  lipgloss.Style
	LogHead lipgloss.Style
	LogBody lipgloss.Style
	LogBox  lipgloss.Style
}

// NewStyles builds the palette on r so colour support follows the writer the
// renderer was created for.
func NewStyles(r *lipgloss.Renderer) Styles {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return Styles{
		Header: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1),
		Title:   r.NewStyle().Bold(true),
		OK:      r.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		Error:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		Skipped: r.NewStyle().Foreground(lipgloss.Color("#888888")),
		Pending: r.NewStyle().Foreground(lipgloss.Color("#444444")),
		Detail:  r.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
		Footer:  r.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1),
		LogHead: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		LogBody: r.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
		LogBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1),
	}
}
