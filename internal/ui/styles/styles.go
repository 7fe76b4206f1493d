// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#CCCCCC"}
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BBBBBB"} // local ids, counts
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // hints, help text, footers

	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}
	BorderFocusedColor = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}

	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}

	SelectionIndicatorColor = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}

	// Tool colours, matching what the viewer draws
	HighlightColor = lipgloss.Color("#BCF124")
	MeasurerColor  = lipgloss.Color("#494CB6")
	OrbitLockColor = lipgloss.Color("#FF0000")

	CategoryColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	MatchColor    = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"}

	OverlayTitleColor  = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#C9C9C9"}
	OverlayBorderColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#8C8C8C"}

	ToastBorderSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	ToastBorderErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	ToastBorderInfoColor    = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}
	ToastBorderWarnColor    = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}

	// Selection indicator style (">" prefix of the tree cursor)
	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(SelectionIndicatorColor)

	CategoryStyle    = lipgloss.NewStyle().Foreground(CategoryColor)
	ElementStyle     = lipgloss.NewStyle().Foreground(TextPrimaryColor)
	MatchStyle       = lipgloss.NewStyle().Foreground(MatchColor).Bold(true)
	MutedStyle       = lipgloss.NewStyle().Foreground(TextMutedColor)
	SecondaryStyle   = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	HighlightedStyle = lipgloss.NewStyle().Foreground(HighlightColor).Bold(true)

	baseToolStyle = lipgloss.NewStyle().Padding(0, 1)

	ToolActiveStyle = baseToolStyle.
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(MeasurerColor).
			Bold(true)

	ToolInactiveStyle = baseToolStyle.
				Foreground(TextPrimaryColor).
				Background(lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#2D3436"})

	ToolUnavailableStyle = baseToolStyle.
				Foreground(TextMutedColor).
				Strikethrough(true)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(StatusErrorColor).
			Bold(true)
)

// PanelStyle is the bordered box around a panel.
func PanelStyle(focused bool) lipgloss.Style {
	color := BorderDefaultColor
	if focused {
		color = BorderFocusedColor
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color)
}
