// Package ui provides consistent styling and terminal components for the
// waydriver CLI
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray
)

// Base styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorMuted).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	KeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("240")).
			Padding(0, 1)
)

// Icons and indicators
var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconActive  = "●"
	IconIdle    = "○"
)

// FormatSuccess renders a success line
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + msg
}

// FormatError renders an error line
func FormatError(err error) string {
	return ErrorStyle.Render(IconError + " " + err.Error())
}

// FormatKeyValue renders an aligned "key: value" pair
func FormatKeyValue(key string, value any) string {
	return KeyStyle.Render(fmt.Sprintf("%-14s", key+":")) + " " + TextStyle.Render(fmt.Sprint(value))
}

// FormatListItem renders a list entry, highlighted when active
func FormatListItem(item string, active bool) string {
	indicator := SubtleStyle.Render(IconIdle)
	style := TextStyle
	if active {
		indicator = SuccessStyle.Render(IconActive)
		style = style.Foreground(ColorPrimary)
	}
	return "  " + indicator + " " + style.Render(item)
}

// FormatControl renders a key binding hint
func FormatControl(key, desc string) string {
	return KeyStyle.Render(key) + " " + SubtleStyle.Render(desc)
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}
	return SubtleStyle.Render(strings.Repeat(char, width))
}
