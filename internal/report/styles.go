package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

// Colors
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	textColor      = lipgloss.Color("#F9FAFB") // Light gray
)

// Chart series colors for CTL, ATL and TSB
var chartColors = []asciigraph.AnsiColor{
	asciigraph.Blue,
	asciigraph.Red,
	asciigraph.Green,
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 1).
			MarginBottom(1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 2)

	cardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	metricLabelStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Width(18)

	metricValueStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(textColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor)

	freshStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	tiredStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	overreachedStyle = lipgloss.NewStyle().
				Foreground(errorColor)

	barFullStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// renderMetric renders a label/value pair on one line
func renderMetric(label, value string) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		metricLabelStyle.Render(label),
		metricValueStyle.Render(value),
	)
}

// renderBar renders a horizontal bar filled to fraction of width
func renderBar(fraction float64, width int) string {
	filled := int(fraction*float64(width) + 0.5)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

// card renders a titled, bordered block
func card(title string, lines ...string) string {
	body := append([]string{cardTitleStyle.Render(title)}, lines...)
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body...))
}

// tsbStyle colors form by training stress balance
func tsbStyle(tsb float64) lipgloss.Style {
	switch {
	case tsb < -30:
		return overreachedStyle
	case tsb < -10:
		return tiredStyle
	default:
		return freshStyle
	}
}
