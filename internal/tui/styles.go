// Package tui hosts the HubSpot connect button in a terminal. The app owns the
// integration parameters and hands them to the widget, which is how a settings
// page would embed it.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("#FF7A59") // hubspot orange
	colorSuccess   = lipgloss.Color("#22C55E")
	colorWarning   = lipgloss.Color("#EAB308")
	colorError     = lipgloss.Color("#EF4444")
	colorInfo      = lipgloss.Color("#3B82F6")
	colorMuted     = lipgloss.Color("#6B7280")
	colorSurface   = lipgloss.Color("#313244")
	colorText      = lipgloss.Color("#CDD6F4")
	colorSubtext   = lipgloss.Color("#A6ADC8")
	colorBorder    = lipgloss.Color("#45475A")
	colorHighlight = lipgloss.Color("#F5C2E7")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorHighlight).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// Button styles, one per display state.
var (
	buttonBase = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 3).
			Border(lipgloss.RoundedBorder())

	buttonDisconnected = buttonBase.
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(colorPrimary).
				BorderForeground(colorPrimary)

	buttonConnecting = buttonBase.
				Foreground(colorSubtext).
				Background(colorSurface).
				BorderForeground(colorBorder)

	buttonConnected = buttonBase.
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorSuccess).
			BorderForeground(colorSuccess)
)

var (
	logDebugStyle = lipgloss.NewStyle().Foreground(colorMuted)
	logInfoStyle  = lipgloss.NewStyle().Foreground(colorInfo)
	logWarnStyle  = lipgloss.NewStyle().Foreground(colorWarning)
	logErrorStyle = lipgloss.NewStyle().Foreground(colorError)
)

func logLevelStyle(level string) lipgloss.Style {
	switch level {
	case "debug", "trace":
		return logDebugStyle
	case "warn", "warning":
		return logWarnStyle
	case "error", "fatal", "panic":
		return logErrorStyle
	default:
		return logInfoStyle
	}
}
