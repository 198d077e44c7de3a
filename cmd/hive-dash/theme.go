package main

import "github.com/charmbracelet/lipgloss"

// Styles holds the dashboard's lipgloss styles.
type Styles struct {
	Header    lipgloss.Style
	Connected lipgloss.Style
	Offline   lipgloss.Style
	EventType lipgloss.Style
	Info      lipgloss.Style
	Dim       lipgloss.Style
	Help      lipgloss.Style
}

func defaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Connected: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Offline:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		EventType: lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		Info:      lipgloss.NewStyle().Foreground(lipgloss.Color("222")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Help:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
	}
}
