package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan

	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	connectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))            // green
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6"))
	disabledButtonStyle = buttonStyle.
				BorderForeground(lipgloss.Color("8")).
				Foreground(lipgloss.Color("8"))

	messageStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("5"))

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
)
