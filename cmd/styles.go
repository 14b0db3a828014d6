package cmd

import "github.com/charmbracelet/lipgloss"

var (
	headerColor  = lipgloss.Color("#F780FF") // Bright pink
	nameColor    = lipgloss.Color("#8BE9FD") // Cyan
	textColor    = lipgloss.Color("#E9E9F4") // Light purple/white
	mutedColor   = lipgloss.Color("#6272A4") // Muted purple
	accentColor  = lipgloss.Color("#BD93F9") // Purple
	errorColor   = lipgloss.Color("#FF5555") // Red
	warnColor    = lipgloss.Color("#FFB86C") // Orange
	successColor = lipgloss.Color("#50FA7B") // Green
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(headerColor).Bold(true)
	nameStyle    = lipgloss.NewStyle().Foreground(nameColor).Bold(true)
	textStyle    = lipgloss.NewStyle().Foreground(textColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	labelStyle   = lipgloss.NewStyle().Foreground(accentColor).Width(14)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warnColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	borderStyle  = lipgloss.NewStyle().Foreground(mutedColor)
)
