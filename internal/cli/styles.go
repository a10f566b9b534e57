package cli

import "github.com/charmbracelet/lipgloss"

var (
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	header      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

func renderOK(msg string) string { return statusOK.Render("✓") + " " + msg }
func renderWarn(msg string) string { return statusWarn.Render("⚠") + " " + msg }

// RenderError formats a failure line for the terminal.
func RenderError(msg string) string { return statusError.Render("✗") + " " + msg }
