package console

import "github.com/charmbracelet/lipgloss"

var (
	colorPink     = lipgloss.Color("205")
	colorDarkGray = lipgloss.Color("240")
	colorCyan     = lipgloss.Color("212")
	colorPurple   = lipgloss.Color("99")
	colorGreen    = lipgloss.Color("42")
	colorRed      = lipgloss.Color("196")
)

var (
	timeStyle   = lipgloss.NewStyle().Foreground(colorDarkGray)
	ownStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPurple)
	systemStyle = lipgloss.NewStyle().Italic(true).Foreground(colorDarkGray)
	callStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	statusStyle = lipgloss.NewStyle().Foreground(colorGreen)
	errorStyle  = lipgloss.NewStyle().Foreground(colorRed)
	idStyle     = lipgloss.NewStyle().Foreground(colorDarkGray)
)
