package tui

import "charm.land/lipgloss/v2"

// Catppuccin Mocha
var (
	colorMauve    = lipgloss.Color("#cba6f7")
	colorBlue     = lipgloss.Color("#89b4fa")
	colorGreen    = lipgloss.Color("#a6e3a1")
	colorYellow   = lipgloss.Color("#f9e2af")
	colorRed      = lipgloss.Color("#f38ba8")
	colorText     = lipgloss.Color("#cdd6f4")
	colorSubtext  = lipgloss.Color("#a6adc8")
	colorOverlay  = lipgloss.Color("#6c7086")
	colorSurface1 = lipgloss.Color("#45475a")
)

var (
	styleTitle   = lipgloss.NewStyle().Foreground(colorMauve).Bold(true)
	stylePrompt  = lipgloss.NewStyle().Foreground(colorText).Italic(true)
	styleLabel   = lipgloss.NewStyle().Foreground(colorSubtext)
	styleValue   = lipgloss.NewStyle().Foreground(colorText)
	stylePhase   = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	styleDone    = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	styleHint    = lipgloss.NewStyle().Foreground(colorOverlay)
	styleBarFull = lipgloss.NewStyle().Foreground(colorMauve)
	styleBarRest = lipgloss.NewStyle().Foreground(colorSurface1)
	styleNote    = lipgloss.NewStyle().
			Foreground(colorSubtext).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(colorSurface1).
			PaddingLeft(1)
)
