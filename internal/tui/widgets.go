package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// ========================================
// Brand Colors - Kartoza standard palette
// ========================================

var (
	ColorOrange   = lipgloss.Color("#DDA036") // Primary/Active
	ColorBlue     = lipgloss.Color("#569FC6") // Secondary/Links
	ColorGray     = lipgloss.Color("#9A9EA0") // Inactive/Subtle
	ColorWhite    = lipgloss.Color("#FFFFFF") // Text
	ColorDarkGray = lipgloss.Color("#3A3A3A") // Background
	ColorRed      = lipgloss.Color("#E95420") // Error/Recording
	ColorGreen    = lipgloss.Color("#4CAF50") // Success
)

// HeaderWidth is the standard width for the header
const HeaderWidth = 60

const divider = "────────────────────────────────────────────────────────────"

// HeaderState contains the dynamic state for the header
type HeaderState struct {
	State    string
	Active   bool
	Surface  string
	Duration string
	BlinkOn  bool
}

// RenderHeader renders the standard application header. A nil state renders the
// title block only.
func RenderHeader(screenTitle string, state *HeaderState) string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorOrange).
		Align(lipgloss.Center).
		Width(HeaderWidth)

	mottoStyle := lipgloss.NewStyle().
		Italic(true).
		Foreground(ColorGray).
		Align(lipgloss.Center).
		Width(HeaderWidth)

	dividerStyle := lipgloss.NewStyle().
		Foreground(ColorGray).
		Width(HeaderWidth)

	title := titleStyle.Render("Kartoza Capture - " + screenTitle)
	motto := mottoStyle.Render("capture your screen")
	line := dividerStyle.Render(divider)

	if state == nil {
		return lipgloss.JoinVertical(lipgloss.Center, title, motto, line)
	}

	label := state.State
	stateColor := ColorGray
	if state.Active {
		// blink the dot while capturing
		if state.BlinkOn {
			label = "● " + label
		} else {
			label = "○ " + label
		}
		stateColor = ColorRed
	}
	styled := lipgloss.NewStyle().Foreground(stateColor).Bold(true).Render(label)

	surface := state.Surface
	if surface == "" {
		surface = "Auto"
	}
	duration := state.Duration
	if duration == "" {
		duration = "00:00:00"
	}

	status := lipgloss.NewStyle().
		Foreground(ColorWhite).
		Align(lipgloss.Center).
		Width(HeaderWidth).
		Render(fmt.Sprintf("Status: %s  |  Surface: %s  |  Duration: %s", styled, surface, duration))

	return lipgloss.JoinVertical(lipgloss.Center, title, motto, line, status, line)
}

// RenderHelpFooter renders the standard help footer at the bottom of the screen
func RenderHelpFooter(helpText string, width int) string {
	helpStyle := lipgloss.NewStyle().
		Foreground(ColorGray).
		Italic(true)

	footerStyle := lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center)

	return footerStyle.Render(helpStyle.Render(helpText))
}

// LayoutWithHeaderFooter creates a standard layout with header at top and footer at bottom
func LayoutWithHeaderFooter(header, content, footer string, width, height int) string {
	mainSection := lipgloss.JoinVertical(
		lipgloss.Center,
		header,
		"",
		content,
	)

	// leave room for the footer
	centeredMain := lipgloss.Place(
		width,
		height-2,
		lipgloss.Center,
		lipgloss.Top,
		mainSection,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		centeredMain,
		footer,
	)
}

// Label style for field names
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// Value style for displaying values
var ValueStyle = lipgloss.NewStyle().
	Foreground(ColorWhite)

// Title style for section headings
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorOrange)

// Warning style for non-fatal problems
var WarningStyle = lipgloss.NewStyle().
	Foreground(ColorOrange)

// Error style for error messages
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed).
	Bold(true)

// Success style for success messages
var SuccessStyle = lipgloss.NewStyle().
	Foreground(ColorGreen).
	Bold(true)
